// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/gateway/auth"
	"github.com/anchorage-ai/anchorage/services/gateway/authz"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
	"github.com/anchorage-ai/anchorage/services/gateway/store"
)

// UsersHandler serves account administration.
type UsersHandler struct {
	users *store.Users
}

func NewUsersHandler(users *store.Users) *UsersHandler {
	return &UsersHandler{users: users}
}

type createUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Role     string `json:"role"`
	Password string `json:"password_hash" binding:"omitempty,len=64,hexadecimal"`
}

// Create provisions an account. Root only; unlike self-registration it
// may set an elevated role directly.
func (h *UsersHandler) Create(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := authz.CanCreateUser(p); err != nil {
		respondErr(c, err)
		return
	}
	var req createUserRequest
	if !bindJSON(c, &req) {
		return
	}
	role := req.Role
	if role == "" {
		role = datatypes.RoleUser
	}
	if !datatypes.ValidRole(role) {
		respondErr(c, apperrors.Newf(apperrors.KindBadRequest, "unknown role %q", role))
		return
	}
	user := &datatypes.User{
		Name:      req.Name,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Role:      role,
		Status:    datatypes.StatusActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if req.Password != "" {
		hash, err := auth.HashDigest(req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}
		user.PasswordHash = hash
	}
	created, err := h.users.Create(c.Request.Context(), user)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": created.Sanitized()})
}

// List returns all accounts, sanitized. Managers and root only.
func (h *UsersHandler) List(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := authz.CanListUsers(p); err != nil {
		respondErr(c, err)
		return
	}
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	out := make([]datatypes.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Sanitized())
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// Get returns one account. Self or elevated.
func (h *UsersHandler) Get(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := authz.CanReadUser(p, id); err != nil {
		respondErr(c, err)
		return
	}
	user, err := h.users.MustGet(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user.Sanitized()})
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Password *string `json:"password_hash" binding:"omitempty,len=64,hexadecimal"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
}

// Update patches an account. Profile fields are self-or-elevated;
// role and status changes require an elevated caller.
func (h *UsersHandler) Update(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id := c.Param("id")
	var req updateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	patch := map[string]any{}
	if req.Name != nil || req.Email != nil || req.Password != nil {
		if err := authz.CanUpdateUserProfile(p, id); err != nil {
			respondErr(c, err)
			return
		}
	}
	if req.Name != nil {
		patch["name"] = *req.Name
	}
	if req.Email != nil {
		patch["email"] = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Password != nil {
		hash, err := auth.HashDigest(*req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}
		patch["password_hash"] = hash
	}
	if req.Role != nil {
		if err := authz.CanUpdateUserRole(p); err != nil {
			respondErr(c, err)
			return
		}
		if !datatypes.ValidRole(*req.Role) {
			respondErr(c, apperrors.Newf(apperrors.KindBadRequest, "unknown role %q", *req.Role))
			return
		}
		patch["role"] = *req.Role
	}
	if req.Status != nil {
		if err := authz.CanUpdateUserStatus(p); err != nil {
			respondErr(c, err)
			return
		}
		if *req.Status != datatypes.StatusActive && *req.Status != datatypes.StatusDisabled {
			respondErr(c, apperrors.Newf(apperrors.KindBadRequest, "unknown status %q", *req.Status))
			return
		}
		patch["status"] = *req.Status
	}
	if len(patch) == 0 {
		respondErr(c, apperrors.New(apperrors.KindBadRequest, "no fields to update"))
		return
	}

	updated, err := h.users.Update(c.Request.Context(), id, patch)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": updated.Sanitized()})
}

// Delete removes an account. Root only, and never the caller's own.
func (h *UsersHandler) Delete(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := authz.CanDeleteUser(p, id); err != nil {
		respondErr(c, err)
		return
	}
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
