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

	"github.com/anchorage-ai/anchorage/services/gateway/authz"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
	"github.com/anchorage-ai/anchorage/services/gateway/store"
)

// UserGroupsHandler serves user-group administration: CRUD, membership,
// and manager assignment. Membership writes go through the Memberships
// coordinator so both sides of the bidirectional index stay in sync.
type UserGroupsHandler struct {
	groups      *store.UserGroups
	users       *store.Users
	memberships *store.Memberships
}

func NewUserGroupsHandler(groups *store.UserGroups, users *store.Users, memberships *store.Memberships) *UserGroupsHandler {
	return &UserGroupsHandler{groups: groups, users: users, memberships: memberships}
}

type createGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create makes a new user group. Root only.
func (h *UserGroupsHandler) Create(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := authz.CanCreateUserGroup(p); err != nil {
		respondErr(c, err)
		return
	}
	var req createGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	group, err := h.groups.Create(c.Request.Context(), &datatypes.UserGroup{
		Name:      req.Name,
		Status:    datatypes.StatusActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"group": group})
}

// List returns the groups visible to the caller: all for root, managed
// groups for managers, active membership groups for plain users.
func (h *UserGroupsHandler) List(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	all, err := h.groups.List(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	visible := make([]datatypes.UserGroup, 0, len(all))
	for i := range all {
		if authz.CanSeeUserGroup(p, &all[i]) {
			visible = append(visible, all[i])
		}
	}
	c.JSON(http.StatusOK, gin.H{"groups": visible})
}

// Get returns one group, subject to the same visibility rule as List.
func (h *UserGroupsHandler) Get(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	group, err := h.groups.MustGet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if !authz.CanSeeUserGroup(p, group) {
		// Hidden groups read as absent, not as forbidden.
		c.JSON(http.StatusNotFound, gin.H{"error": "user group not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// Delete removes a group and strips it from every member. Root only.
func (h *UserGroupsHandler) Delete(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := authz.CanDeleteUserGroup(p); err != nil {
		respondErr(c, err)
		return
	}
	id := c.Param("id")
	if err := h.memberships.DeleteGroup(c.Request.Context(), id); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

type groupStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetStatus toggles a group between active and disabled. Root or a
// manager of that group.
func (h *UserGroupsHandler) SetStatus(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	group, err := h.groups.MustGet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := authz.CanToggleUserGroupStatus(p, group); err != nil {
		respondErr(c, err)
		return
	}
	var req groupStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.memberships.SetStatus(c.Request.Context(), group.ID, req.Status)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": updated})
}

type memberRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// AddMember adds a user to a group, updating both sides of the index.
func (h *UserGroupsHandler) AddMember(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	group, err := h.groups.MustGet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := authz.CanEditUserGroupMembers(p, group); err != nil {
		respondErr(c, err)
		return
	}
	var req memberRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.memberships.AddMember(c.Request.Context(), group.ID, req.UserID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": updated})
}

// RemoveMember removes a user from a group, updating both sides.
func (h *UserGroupsHandler) RemoveMember(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	group, err := h.groups.MustGet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := authz.CanEditUserGroupMembers(p, group); err != nil {
		respondErr(c, err)
		return
	}
	updated, err := h.memberships.RemoveMember(c.Request.Context(), group.ID, c.Param("userId"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": updated})
}

// AssignManager appoints a group manager. Root only; the appointee must
// already hold the manager or root role.
func (h *UserGroupsHandler) AssignManager(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req memberRequest
	if !bindJSON(c, &req) {
		return
	}
	appointee, err := h.users.MustGet(c.Request.Context(), req.UserID)
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := authz.CanAssignGroupManager(p, appointee); err != nil {
		respondErr(c, err)
		return
	}
	updated, err := h.memberships.AssignManager(c.Request.Context(), c.Param("id"), appointee.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": updated})
}

// RemoveManager revokes a manager appointment. Root only.
func (h *UserGroupsHandler) RemoveManager(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := authz.CanRevokeGroupManager(p); err != nil {
		respondErr(c, err)
		return
	}
	updated, err := h.memberships.RemoveManager(c.Request.Context(), c.Param("id"), c.Param("userId"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": updated})
}
