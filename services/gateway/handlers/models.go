// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/gateway/authz"
	"github.com/anchorage-ai/anchorage/services/gateway/observability"
	"github.com/anchorage-ai/anchorage/services/llm"
)

// ModelsHandler serves local-engine model management. The endpoints
// exist only when the configured provider is ollama; cloud providers
// have no pullable registry.
type ModelsHandler struct {
	ollama *llm.OllamaClient
}

func NewModelsHandler(ollama *llm.OllamaClient) *ModelsHandler {
	return &ModelsHandler{ollama: ollama}
}

// List returns the models available in the local registry.
func (h *ModelsHandler) List(c *gin.Context) {
	if _, ok := requirePrincipal(c); !ok {
		return
	}
	if h.ollama == nil {
		respondErr(c, errNotLocalEngine())
		return
	}
	models, err := h.ollama.ListModels(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

type pullModelRequest struct {
	Name string `json:"name" binding:"required"`
}

// Pull downloads a model into the local registry and verifies it is
// actually listed afterwards. Managers and root only; pulls are large
// downloads.
func (h *ModelsHandler) Pull(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := authz.CanManageModels(p); err != nil {
		respondErr(c, err)
		return
	}
	if h.ollama == nil {
		respondErr(c, errNotLocalEngine())
		return
	}
	var req pullModelRequest
	if !bindJSON(c, &req) {
		return
	}

	metrics := observability.DefaultMetrics
	start := time.Now()
	if err := h.ollama.PullModel(c.Request.Context(), req.Name); err != nil {
		metrics.RecordRequest(observability.EndpointModelPull, false)
		respondErr(c, err)
		return
	}
	metrics.RecordRequest(observability.EndpointModelPull, true)
	c.JSON(http.StatusOK, gin.H{
		"model":       req.Name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func errNotLocalEngine() error {
	return apperrors.New(apperrors.KindBadRequest,
		"model management is only available with the ollama provider")
}
