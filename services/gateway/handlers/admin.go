// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anchorage-ai/anchorage/services/gateway/authz"
	"github.com/anchorage-ai/anchorage/services/gateway/middleware"
)

// AdminHandler serves root-only operational controls.
type AdminHandler struct {
	gate   *middleware.MaintenanceGate
	logger *slog.Logger
}

func NewAdminHandler(gate *middleware.MaintenanceGate, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{gate: gate, logger: logger}
}

// MaintenanceStatus reports the current flag state.
func (h *AdminHandler) MaintenanceStatus(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := authz.CanToggleMaintenance(p); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled": h.gate.Enabled(),
		"message": h.gate.Message(),
	})
}

type maintenanceRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetMaintenance flips the process-wide maintenance flag. Root only.
// Root requests keep passing the gate, so the flag can always be
// turned back off through the same endpoint.
func (h *AdminHandler) SetMaintenance(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := authz.CanToggleMaintenance(p); err != nil {
		respondErr(c, err)
		return
	}
	var req maintenanceRequest
	if !bindJSON(c, &req) {
		return
	}
	h.gate.SetEnabled(*req.Enabled)
	h.logger.Warn("Maintenance mode changed", "enabled", *req.Enabled, "by", p.ID)
	c.JSON(http.StatusOK, gin.H{"enabled": h.gate.Enabled()})
}
