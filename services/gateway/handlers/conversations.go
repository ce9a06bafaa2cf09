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
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
	"github.com/anchorage-ai/anchorage/services/gateway/store"
)

// ConversationsHandler serves conversation CRUD, sharing, and the
// message listing. Sharing grants group members read access only; every
// write stays owner-gated.
type ConversationsHandler struct {
	convs *store.Conversations
	msgs  *store.Messages
}

func NewConversationsHandler(convs *store.Conversations, msgs *store.Messages) *ConversationsHandler {
	return &ConversationsHandler{convs: convs, msgs: msgs}
}

type createConversationRequest struct {
	Title string `json:"title" binding:"required"`
}

// Create starts an empty conversation owned by the caller.
func (h *ConversationsHandler) Create(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req createConversationRequest
	if !bindJSON(c, &req) {
		return
	}
	now := time.Now().UTC()
	conv, err := h.convs.Create(c.Request.Context(), &datatypes.Conversation{
		Title:     req.Title,
		OwnerID:   p.ID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

// List returns the caller's own conversations, most recent first.
func (h *ConversationsHandler) List(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	convs, err := h.convs.ListByOwner(c.Request.Context(), p.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// ListShared returns conversations other users shared with any of the
// caller's groups.
func (h *ConversationsHandler) ListShared(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	convs, err := h.convs.ListSharedWith(c.Request.Context(), p.GroupIDs, p.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// Get returns one conversation: owner or shared reader.
func (h *ConversationsHandler) Get(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conv, err := h.convs.MustGet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := authz.CanReadConversation(p, conv); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

type updateConversationRequest struct {
	Title string `json:"title" binding:"required"`
}

// Update renames a conversation. Owner only.
func (h *ConversationsHandler) Update(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conv, err := h.convs.MustGet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := authz.CanWriteConversation(p, conv); err != nil {
		respondErr(c, err)
		return
	}
	var req updateConversationRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.convs.Update(c.Request.Context(), conv.ID, map[string]any{
		"title":      req.Title,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": updated})
}

// Delete removes a conversation and its messages. Owner only.
func (h *ConversationsHandler) Delete(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conv, err := h.convs.MustGet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := authz.CanWriteConversation(p, conv); err != nil {
		respondErr(c, err)
		return
	}
	if err := h.convs.Delete(c.Request.Context(), conv.ID, h.msgs); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": conv.ID})
}

type shareRequest struct {
	GroupIDs []string `json:"group_ids"`
}

// Share replaces the conversation's share list. Owner only. An empty
// list unshares entirely.
func (h *ConversationsHandler) Share(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conv, err := h.convs.MustGet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := authz.CanWriteConversation(p, conv); err != nil {
		respondErr(c, err)
		return
	}
	var req shareRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.GroupIDs == nil {
		respondErr(c, apperrors.New(apperrors.KindBadRequest, "group_ids is required; use [] to unshare"))
		return
	}
	updated, err := h.convs.SetShares(c.Request.Context(), conv.ID, req.GroupIDs)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": updated})
}

// Messages returns the full transcript in chronological order. Same
// access rule as reading the conversation.
func (h *ConversationsHandler) Messages(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conv, err := h.convs.MustGet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := authz.CanReadConversation(p, conv); err != nil {
		respondErr(c, err)
		return
	}
	msgs, err := h.msgs.ListByConversation(c.Request.Context(), conv.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
