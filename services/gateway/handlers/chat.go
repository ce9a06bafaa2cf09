// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/gateway/chat"
	"github.com/anchorage-ai/anchorage/services/gateway/observability"
	"github.com/anchorage-ai/anchorage/services/llm"
)

// heartbeatInterval paces SSE comment frames that keep idle proxies
// from closing the connection while the model thinks.
const heartbeatInterval = 15 * time.Second

// ChatHandler serves the SSE chat endpoint.
type ChatHandler struct {
	engine *chat.Engine
	logger *slog.Logger
}

func NewChatHandler(engine *chat.Engine, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{engine: engine, logger: logger}
}

var chatTracer = otel.Tracer("anchorage.gateway.handlers.chat")

type chatStreamRequest struct {
	ConversationID      string  `json:"conversation_id" binding:"required"`
	Message             string  `json:"message" binding:"required"`
	PromptCustomization *string `json:"prompt_customization"`
}

// Stream runs one chat turn over SSE.
//
// Pre-flight failures (bad request, unknown conversation, denied
// access, provider refusal) come back as ordinary JSON statuses. Once
// the first byte of the event stream is out, failures can only be
// reported in-band as a terminal [ERROR: ...] frame.
func (h *ChatHandler) Stream(c *gin.Context) {
	ctx, span := chatTracer.Start(c.Request.Context(), "ChatHandler.Stream")
	defer span.End()

	endpoint := observability.EndpointChatStream
	metrics := observability.DefaultMetrics
	start := time.Now()
	success := false
	defer func() {
		metrics.RecordRequest(endpoint, success)
		metrics.RecordStreamDuration(endpoint, time.Since(start).Seconds(), success)
	}()

	// Step 1: resolve the principal and bind the request.
	p, ok := requirePrincipal(c)
	if !ok {
		metrics.RecordError(endpoint, observability.ErrorCodeAuthorization)
		return
	}
	var req chatStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.RecordError(endpoint, observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	span.SetAttributes(attribute.String("conversation.id", req.ConversationID))

	// Step 2: run the engine pre-flight. Everything that can fail with
	// a meaningful HTTP status fails here, before any SSE byte.
	events, err := h.engine.Stream(ctx, p, chat.Request{
		ConversationID:      req.ConversationID,
		Message:             req.Message,
		PromptCustomization: req.PromptCustomization,
	})
	if err != nil {
		metrics.RecordError(endpoint, errorCodeFor(err))
		respondErr(c, err)
		return
	}

	// Step 3: switch the response to event-stream mode.
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		metrics.RecordError(endpoint, observability.ErrorCodeInternal)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	metrics.StreamStarted(endpoint)
	defer metrics.StreamEnded(endpoint)

	// Step 4: heartbeat until the stream finishes.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if writer.WriteKeepAlive() != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Step 5: relay events. The engine closes the channel when the turn
	// is over; a terminal Err means the turn failed mid-generation.
	first := true
	for event := range events {
		if event.Err != nil {
			metrics.RecordError(endpoint, errorCodeFor(event.Err))
			// Error already delivered via SSE; status codes are gone.
			_ = writer.WriteError(apperrors.Message(mapProviderErr(event.Err)))
			return
		}
		if first {
			first = false
			metrics.RecordTimeToFirstChunk(endpoint, time.Since(start).Seconds())
		}
		if err := writer.WriteChunk(event.Content); err != nil {
			// The write path is the only place a client disconnect is
			// observable; the engine sees it through context cancel.
			metrics.RecordClientDisconnect(endpoint)
			h.logger.Info("Client disconnected mid-stream",
				"conversation_id", req.ConversationID)
			return
		}
	}
	if ctx.Err() != nil {
		metrics.RecordClientDisconnect(endpoint)
		return
	}

	// Step 6: normal completion.
	if err := writer.WriteDone(); err != nil {
		return
	}
	success = true
}

// errorCodeFor buckets an error for the metrics label.
func errorCodeFor(err error) observability.ErrorCode {
	var le *llm.Error
	if errors.As(err, &le) {
		if le.Kind == llm.KindTimeout {
			return observability.ErrorCodeTimeout
		}
		return observability.ErrorCodeLLMError
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindBadRequest, apperrors.KindUnprocessable:
		return observability.ErrorCodeValidation
	case apperrors.KindUnauthorized, apperrors.KindForbidden, apperrors.KindNotFound:
		return observability.ErrorCodeAuthorization
	default:
		return observability.ErrorCodeInternal
	}
}
