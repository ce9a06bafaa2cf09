// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

const defaultMaintenanceMessage = "the service is temporarily unavailable for maintenance"

// MaintenanceGate is the process-wide maintenance flag. Reads are
// lock-free; only root can flip it, enforced at the handler.
type MaintenanceGate struct {
	enabled atomic.Bool
	message string
}

// NewMaintenanceGate builds the gate with its configured message and
// initial state.
func NewMaintenanceGate(enabled bool, message string) *MaintenanceGate {
	if message == "" {
		message = defaultMaintenanceMessage
	}
	g := &MaintenanceGate{message: message}
	g.enabled.Store(enabled)
	return g
}

func (g *MaintenanceGate) Enabled() bool      { return g.enabled.Load() }
func (g *MaintenanceGate) SetEnabled(on bool) { g.enabled.Store(on) }
func (g *MaintenanceGate) Message() string    { return g.message }

// Middleware rejects non-root requests with 503 while maintenance is
// on. Root principals pass through so the flag can be turned off again.
// Must run after Authenticate.
func (g *MaintenanceGate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.enabled.Load() {
			c.Next()
			return
		}
		if p, ok := PrincipalFrom(c); ok && p.IsRoot() {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusServiceUnavailable,
			gin.H{"error": g.message})
	}
}
