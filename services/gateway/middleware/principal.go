// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware carries the gin middleware chain: principal
// resolution and the maintenance gate.
package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/gateway/auth"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

const principalKey = "anchorage.principal"

// Authenticate resolves the request principal and aborts with the
// mapped status when resolution fails. Handlers downstream read the
// principal via PrincipalFrom.
func Authenticate(resolver auth.Resolver, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		principal, err := resolver.Resolve(c.Request.Context(), c.Request)
		if err != nil {
			logger.Debug("Authentication failed",
				"path", c.Request.URL.Path, "error", err)
			c.AbortWithStatusJSON(apperrors.HTTPStatus(err),
				gin.H{"error": apperrors.Message(err)})
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by Authenticate.
func PrincipalFrom(c *gin.Context) (datatypes.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return datatypes.Principal{}, false
	}
	p, ok := v.(datatypes.Principal)
	return p, ok
}

// SetPrincipal injects a principal directly. Test helper.
func SetPrincipal(c *gin.Context, p datatypes.Principal) {
	c.Set(principalKey, p)
}
