// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability holds the Prometheus metrics for the gateway.
//
// Metrics cover request outcomes, token throughput, stream latency, and
// active stream counts. All operations are thread-safe via Prometheus's
// internal locking; the registry is exposed on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "anchorage"
const gatewaySubsystem = "gateway"

// Metrics holds all Prometheus instruments for the gateway.
// Initialize once at startup via InitMetrics.
type Metrics struct {
	// RequestsTotal counts completed requests by endpoint and status.
	RequestsTotal *prometheus.CounterVec

	// TokensTotal counts tokens processed by direction and model.
	TokensTotal *prometheus.CounterVec

	// TimeToFirstChunkSeconds measures latency from request to the first
	// streamed chunk.
	TimeToFirstChunkSeconds *prometheus.HistogramVec

	// StreamDurationSeconds measures total stream duration.
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently open streaming connections.
	ActiveStreams *prometheus.GaugeVec

	// ErrorsTotal counts errors by endpoint and error code.
	ErrorsTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts clients that went away mid-stream.
	ClientDisconnectsTotal *prometheus.CounterVec
}

// DefaultMetrics is the process-wide metrics instance, nil until
// InitMetrics runs. Helper methods are nil-safe so tests that never
// initialize metrics still work.
var DefaultMetrics *Metrics

// InitMetrics creates and registers all gateway metrics. Call once at
// startup; a second call panics on duplicate registration.
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "requests_total",
				Help:      "Completed requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		TokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "tokens_total",
				Help:      "Tokens processed by direction and model",
			},
			[]string{"direction", "model"},
		),

		TimeToFirstChunkSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "time_to_first_chunk_seconds",
				Help:      "Time from request to first streamed chunk",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint"},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total stream duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"endpoint", "status"},
		),

		ActiveStreams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "active_streams",
				Help:      "Currently open streaming connections",
			},
			[]string{"endpoint"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "errors_total",
				Help:      "Errors by endpoint and error code",
			},
			[]string{"endpoint", "error_code"},
		),

		ClientDisconnectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "client_disconnects_total",
				Help:      "Client disconnections during streaming",
			},
			[]string{"endpoint"},
		),
	}
	return DefaultMetrics
}

// ErrorCode is a categorized error type for metrics labels.
type ErrorCode string

const (
	ErrorCodeValidation       ErrorCode = "validation"
	ErrorCodeAuthorization    ErrorCode = "authorization"
	ErrorCodeLLMError         ErrorCode = "llm_error"
	ErrorCodeTimeout          ErrorCode = "timeout"
	ErrorCodeInternal         ErrorCode = "internal"
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// Endpoint labels a metrics series with its logical endpoint.
type Endpoint string

const (
	// EndpointChatStream is the SSE chat endpoint.
	EndpointChatStream Endpoint = "chat_stream"

	// EndpointModelPull is the local-engine model pull endpoint.
	EndpointModelPull Endpoint = "model_pull"
)

// RecordRequest records a completed request outcome.
func (m *Metrics) RecordRequest(endpoint Endpoint, success bool) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), statusLabel(success)).Inc()
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError(endpoint Endpoint, code ErrorCode) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordTokens records token usage for one generation.
func (m *Metrics) RecordTokens(inputTokens, outputTokens int, model string) {
	if m == nil {
		return
	}
	m.TokensTotal.WithLabelValues("input", model).Add(float64(inputTokens))
	m.TokensTotal.WithLabelValues("output", model).Add(float64(outputTokens))
}

// StreamStarted increments the active stream gauge.
func (m *Metrics) StreamStarted(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded decrements the active stream gauge.
func (m *Metrics) StreamEnded(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

// RecordTimeToFirstChunk records first-chunk latency.
func (m *Metrics) RecordTimeToFirstChunk(endpoint Endpoint, seconds float64) {
	if m == nil {
		return
	}
	m.TimeToFirstChunkSeconds.WithLabelValues(string(endpoint)).Observe(seconds)
}

// RecordStreamDuration records total stream duration.
func (m *Metrics) RecordStreamDuration(endpoint Endpoint, seconds float64, success bool) {
	if m == nil {
		return
	}
	m.StreamDurationSeconds.WithLabelValues(string(endpoint), statusLabel(success)).Observe(seconds)
}

// RecordClientDisconnect counts a client that went away mid-stream.
func (m *Metrics) RecordClientDisconnect(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.ClientDisconnectsTotal.WithLabelValues(string(endpoint)).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
