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
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
	"github.com/anchorage-ai/anchorage/services/gateway/store"
)

// ConversationGroupsHandler serves the sidebar folders a user sorts
// their conversations into. Folders are strictly private to their
// owner; there is no sharing at this level.
type ConversationGroupsHandler struct {
	folders *store.ConversationGroups
	convs   *store.Conversations
}

func NewConversationGroupsHandler(folders *store.ConversationGroups, convs *store.Conversations) *ConversationGroupsHandler {
	return &ConversationGroupsHandler{folders: folders, convs: convs}
}

// ownedFolder resolves the folder and enforces ownership. Someone
// else's folder reads as absent.
func (h *ConversationGroupsHandler) ownedFolder(c *gin.Context, p datatypes.Principal) (*datatypes.ConversationGroup, bool) {
	folder, err := h.folders.MustGet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return nil, false
	}
	if folder.OwnerID != p.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation group not found"})
		return nil, false
	}
	return folder, true
}

type folderRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create makes a new folder for the caller.
func (h *ConversationGroupsHandler) Create(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req folderRequest
	if !bindJSON(c, &req) {
		return
	}
	folder, err := h.folders.Create(c.Request.Context(), &datatypes.ConversationGroup{
		Name:      req.Name,
		OwnerID:   p.ID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"group": folder})
}

// List returns the caller's folders.
func (h *ConversationGroupsHandler) List(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	folders, err := h.folders.ListByOwner(c.Request.Context(), p.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": folders})
}

// Rename changes a folder's name.
func (h *ConversationGroupsHandler) Rename(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	folder, ok := h.ownedFolder(c, p)
	if !ok {
		return
	}
	var req folderRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.folders.Rename(c.Request.Context(), folder.ID, req.Name)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": updated})
}

type assignConversationRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

// Assign moves a conversation into this folder, removing it from any
// other folder it was in. The conversation must belong to the caller.
func (h *ConversationGroupsHandler) Assign(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	folder, ok := h.ownedFolder(c, p)
	if !ok {
		return
	}
	var req assignConversationRequest
	if !bindJSON(c, &req) {
		return
	}
	conv, err := h.convs.MustGet(c.Request.Context(), req.ConversationID)
	if err != nil {
		respondErr(c, err)
		return
	}
	if conv.OwnerID != p.ID {
		respondErr(c, apperrors.New(apperrors.KindForbidden, "only the owner can organize a conversation"))
		return
	}
	updated, err := h.folders.Assign(c.Request.Context(), h.convs, p.ID, folder.ID, conv.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": updated})
}

// Unassign takes a conversation out of this folder.
func (h *ConversationGroupsHandler) Unassign(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	folder, ok := h.ownedFolder(c, p)
	if !ok {
		return
	}
	updated, err := h.folders.Unassign(c.Request.Context(), h.convs, folder.ID, c.Param("conversationId"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": updated})
}

// Delete removes a folder. Contained conversations survive with their
// folder link cleared.
func (h *ConversationGroupsHandler) Delete(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	folder, ok := h.ownedFolder(c, p)
	if !ok {
		return
	}
	if err := h.folders.Delete(c.Request.Context(), h.convs, folder.ID); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": folder.ID})
}
