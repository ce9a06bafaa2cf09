// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers maps HTTP requests onto the gateway's core
// operations. Handlers hold no business logic: they resolve the
// principal, bind and validate input, call one service, and translate
// the result.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
	"github.com/anchorage-ai/anchorage/services/gateway/middleware"
	"github.com/anchorage-ai/anchorage/services/llm"
)

// respondErr writes the mapped status and client-safe message for any
// error that escapes a core operation. Provider errors are translated
// to the public taxonomy first.
func respondErr(c *gin.Context, err error) {
	err = mapProviderErr(err)
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": apperrors.Message(err)})
}

// mapProviderErr converts provider failures into the public taxonomy.
// Credential and connectivity problems are the operator's fault, not
// the caller's, so they surface as 503 rather than 401.
func mapProviderErr(err error) error {
	var le *llm.Error
	if !errors.As(err, &le) {
		return err
	}
	switch le.Kind {
	case llm.KindRateLimit:
		return apperrors.Wrap(apperrors.KindTooManyRequests, "provider rate limit exceeded", err)
	case llm.KindContextLength:
		return apperrors.Wrap(apperrors.KindUnprocessable, "prompt exceeds the model context window", err)
	case llm.KindInvalidRequest:
		return apperrors.Wrap(apperrors.KindBadRequest, le.Msg, err)
	case llm.KindModelNotFound:
		return apperrors.Wrap(apperrors.KindNotFound, "model not found", err)
	case llm.KindAuthentication, llm.KindTimeout, llm.KindConnection, llm.KindStreaming:
		return apperrors.Wrap(apperrors.KindServiceUnavailable, "provider unavailable", err)
	default:
		return apperrors.Wrap(apperrors.KindInternal, "provider error", err)
	}
}

// requirePrincipal pulls the authenticated principal out of the gin
// context. Reaching a handler without one is a routing bug; the 401
// keeps the failure visible instead of panicking.
func requirePrincipal(c *gin.Context) (datatypes.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no authenticated principal"})
		return datatypes.Principal{}, false
	}
	return p, true
}

// bindJSON binds the request body and reports binding failures as 400.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}
