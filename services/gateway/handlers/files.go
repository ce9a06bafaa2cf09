// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/gateway/authz"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
	"github.com/anchorage-ai/anchorage/services/gateway/files"
)

// FilesHandler serves uploads, downloads, and catalog administration.
type FilesHandler struct {
	catalog *files.Catalog
}

func NewFilesHandler(catalog *files.Catalog) *FilesHandler {
	return &FilesHandler{catalog: catalog}
}

// Upload ingests one multipart file. Form fields:
//
//	file       the content (required)
//	scope      system | user_global | user_project (default user_global)
//	project_id required when scope is user_project
//
// A content match against an existing file is reported in duplicate_of
// but never blocks the upload.
func (h *FilesHandler) Upload(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	scope := c.PostForm("scope")
	if scope == "" {
		scope = datatypes.ScopeUserGlobal
	}
	projectID := c.PostForm("project_id")
	if err := authz.CanUploadFile(p, scope, projectID); err != nil {
		respondErr(c, err)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		respondErr(c, apperrors.Wrap(apperrors.KindBadRequest, "missing file part", err))
		return
	}
	src, err := header.Open()
	if err != nil {
		respondErr(c, apperrors.Wrap(apperrors.KindBadRequest, "unreadable file part", err))
		return
	}
	defer src.Close()

	result, err := h.catalog.Upload(c.Request.Context(), p, files.UploadRequest{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Scope:       scope,
		ProjectID:   projectID,
		Body:        src,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	resp := gin.H{"file": result.File}
	if result.DuplicateOf != "" {
		resp["duplicate_of"] = result.DuplicateOf
	}
	c.JSON(http.StatusCreated, resp)
}

// List returns the files visible to the caller, optionally filtered by
// a case-insensitive name substring via ?q=.
func (h *FilesHandler) List(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	visible, err := h.catalog.VisibleTo(c.Request.Context(), p, c.Query("q"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": visible})
}

// Get returns one file record.
func (h *FilesHandler) Get(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	f, err := h.readable(c, p)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": f})
}

// Download streams the original content back to the caller.
func (h *FilesHandler) Download(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	f, err := h.readable(c, p)
	if err != nil {
		respondErr(c, err)
		return
	}
	r, info, err := h.catalog.Download(c.Request.Context(), f)
	if err != nil {
		respondErr(c, err)
		return
	}
	defer r.Close()
	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, r, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", f.Name),
	})
}

// PresignURL returns a time-limited direct download URL.
func (h *FilesHandler) PresignURL(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	f, err := h.readable(c, p)
	if err != nil {
		respondErr(c, err)
		return
	}
	url, expires, err := h.catalog.PresignDownload(c.Request.Context(), f)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":        url,
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
}

// Delete removes the record and every object under its prefix,
// derived pipeline outputs included.
func (h *FilesHandler) Delete(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	f, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := authz.CanDeleteFile(p, f); err != nil {
		respondErr(c, err)
		return
	}
	if err := h.catalog.Delete(c.Request.Context(), f); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": f.ID})
}

// Promote copies a personal file into system scope so every user can
// read it. The original stays where it is.
func (h *FilesHandler) Promote(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := authz.CanPromoteFile(p); err != nil {
		respondErr(c, err)
		return
	}
	src, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	promoted, err := h.catalog.Promote(c.Request.Context(), p, src)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file": promoted})
}

func (h *FilesHandler) readable(c *gin.Context, p datatypes.Principal) (*datatypes.File, error) {
	f, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if err := authz.CanReadFile(p, f); err != nil {
		return nil, err
	}
	return f, nil
}
