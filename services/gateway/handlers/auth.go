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

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/pkg/config"
	"github.com/anchorage-ai/anchorage/services/gateway/auth"
)

// AuthHandler serves registration and login. Both endpoints exist only
// in local auth mode; in any other mode they answer with a policy
// denial so the mode mismatch is visible to the client.
type AuthHandler struct {
	local *auth.LocalService
	mode  string
}

func NewAuthHandler(local *auth.LocalService, mode string) *AuthHandler {
	return &AuthHandler{local: local, mode: mode}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password_hash" binding:"required,len=64,hexadecimal"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password_hash" binding:"required,len=64,hexadecimal"`
}

// Register creates a local account. The password field carries the
// client-side SHA-256 digest, never the plaintext.
func (h *AuthHandler) Register(c *gin.Context) {
	if err := h.requireLocalMode(); err != nil {
		respondErr(c, err)
		return
	}
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.local.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user.Sanitized()})
}

// Login verifies credentials and returns a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	if err := h.requireLocalMode(); err != nil {
		respondErr(c, err)
		return
	}
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	token, user, err := h.local.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user.Sanitized(),
	})
}

func (h *AuthHandler) requireLocalMode() error {
	if h.mode != config.AuthModeLocal {
		return apperrors.Newf(apperrors.KindForbidden,
			"endpoint not available in auth mode %q", h.mode)
	}
	return nil
}
