// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"net/http"
	"sync"
)

// SSEWriter emits the chat stream wire format:
//
//	data: <chunk>\n\n        one frame per token chunk
//	data: [DONE]\n\n         normal completion
//	data: [ERROR: <msg>]\n\n terminal failure; no [DONE] follows
//
// Writes flush immediately so tokens reach the client as they arrive.
type SSEWriter interface {
	WriteChunk(content string) error
	WriteDone() error
	WriteError(msg string) error
	WriteKeepAlive() error
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter wraps a ResponseWriter for SSE output. The caller must
// have set the SSE headers first. Fails when the writer cannot flush,
// which means streaming is impossible on this connection.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) WriteChunk(content string) error {
	return s.frame("data: " + content + "\n\n")
}

func (s *sseWriter) WriteDone() error {
	return s.frame("data: [DONE]\n\n")
}

func (s *sseWriter) WriteError(msg string) error {
	return s.frame("data: [ERROR: " + msg + "]\n\n")
}

// WriteKeepAlive sends an SSE comment frame. Proxies forward it but
// clients ignore it.
func (s *sseWriter) WriteKeepAlive() error {
	return s.frame(": ping\n\n")
}

func (s *sseWriter) frame(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprint(s.w, payload); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// SetSSEHeaders configures the response for event streaming. Must run
// before any body byte. X-Accel-Buffering tells intermediary proxies
// not to buffer the stream.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

var _ SSEWriter = (*sseWriter)(nil)
