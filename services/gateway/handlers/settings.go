// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anchorage-ai/anchorage/services/gateway/settings"
)

// SettingsHandler serves the caller's own preference record. There is
// no cross-user surface here; the principal is the key.
type SettingsHandler struct {
	settings *settings.Service
}

func NewSettingsHandler(svc *settings.Service) *SettingsHandler {
	return &SettingsHandler{settings: svc}
}

// Get returns the caller's settings, defaults filled in.
func (h *SettingsHandler) Get(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	s, err := h.settings.Get(c.Request.Context(), p.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": s})
}

// Update merges the supplied fields into the caller's settings.
// Omitted fields are preserved; explicit empty strings clear.
func (h *SettingsHandler) Update(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var patch settings.Patch
	if !bindJSON(c, &patch) {
		return
	}
	s, err := h.settings.Update(c.Request.Context(), p.ID, patch)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": s})
}
