// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package files owns the upload catalog: the object layout, checksum
// pipeline, and the pairing between catalog records and stored objects.
package files

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/pkg/config"
	"github.com/anchorage-ai/anchorage/services/docstore"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
	"github.com/anchorage-ai/anchorage/services/gateway/store"
	"github.com/anchorage-ai/anchorage/services/objectstore"
)

var tracer = otel.Tracer("anchorage.gateway.files")

const (
	defaultPresignTTL = 7 * 24 * time.Hour
	// Parallelism for prefix deletion. Uploads leave a handful of objects
	// per file, so a small fan-out is plenty.
	deleteWorkers = 4
)

// Catalog pairs catalog records in the document store with objects in the
// object store.
type Catalog struct {
	records *store.Files
	objects objectstore.Store
	bucket  string
	upload  config.UploadConfig
	logger  *slog.Logger
}

func NewCatalog(records *store.Files, objects objectstore.Store, bucket string, upload config.UploadConfig, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		records: records,
		objects: objects,
		bucket:  bucket,
		upload:  upload,
		logger:  logger,
	}
}

// UploadRequest describes one incoming upload.
type UploadRequest struct {
	Name        string
	ContentType string
	Size        int64
	Scope       string
	ProjectID   string
	Body        io.Reader
}

// UploadResult carries the new record plus the duplicate flag. A content
// match with an existing file is informational, never an error.
type UploadResult struct {
	File        *datatypes.File
	DuplicateOf string
}

// Upload streams the body into the object store, computing checksums on
// the way through, then writes the catalog record and metadata snapshot.
func (c *Catalog) Upload(ctx context.Context, principal datatypes.Principal, req UploadRequest) (*UploadResult, error) {
	ctx, span := tracer.Start(ctx, "Catalog.Upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("file.scope", req.Scope),
		attribute.Int64("file.size", req.Size),
	)

	name, err := sanitizeName(req.Name)
	if err != nil {
		return nil, err
	}
	if err := validateUpload(name, req.ContentType, req.Size, c.upload.MaxSizeBytes,
		c.upload.AllowedExtensions, c.upload.AllowedContentTypes); err != nil {
		return nil, err
	}

	uploader := principal.ID
	fileID := uuid.NewString()
	base, err := BasePrefix(req.Scope, uploader, req.ProjectID, fileID)
	if err != nil {
		return nil, err
	}
	key := OriginalKey(base, name)

	digests := newDigestWriter()
	body := io.TeeReader(io.LimitReader(req.Body, req.Size), digests)
	if err := c.objects.Put(ctx, c.bucket, key, body, req.Size, req.ContentType); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, mapObjectErr(err)
	}
	checksums := digests.Checksums()

	var duplicateOf string
	if existing, err := c.records.FindBySHA256(ctx, checksums.SHA256); err == nil && existing != nil {
		duplicateOf = existing.ID
	}

	now := time.Now().UTC()
	record := &datatypes.File{
		ID:         fileID,
		Name:       name,
		Size:       req.Size,
		Type:       req.ContentType,
		ObjectPath: base,
		Scope:      req.Scope,
		ProjectID:  req.ProjectID,
		Checksums:  checksums,
		Processing: datatypes.FileProcessing{Status: datatypes.ProcessingPending},
		UploadedBy: uploader,
		UploadedAt: now,
	}
	created, err := c.records.CreateWithID(ctx, record)
	if err != nil {
		// The object is orphaned without its record; best-effort cleanup.
		if derr := c.objects.Delete(ctx, c.bucket, key); derr != nil {
			c.logger.Warn("Failed to clean up orphaned upload", "key", key, "error", derr)
		}
		return nil, err
	}

	if err := c.writeMetadata(ctx, created); err != nil {
		c.logger.Warn("Failed to write metadata snapshot", "file_id", created.ID, "error", err)
	}

	c.logger.Info("Uploaded file",
		"file_id", created.ID, "scope", created.Scope, "size", created.Size,
		"duplicate_of", duplicateOf)
	return &UploadResult{File: created, DuplicateOf: duplicateOf}, nil
}

// Download opens the original object for a catalog record.
func (c *Catalog) Download(ctx context.Context, f *datatypes.File) (io.ReadCloser, *objectstore.ObjectInfo, error) {
	r, info, err := c.objects.Get(ctx, c.bucket, OriginalKey(f.ObjectPath, f.Name))
	if err != nil {
		return nil, nil, mapObjectErr(err)
	}
	return r, info, nil
}

// PresignDownload returns a time-limited URL for the original object.
func (c *Catalog) PresignDownload(ctx context.Context, f *datatypes.File) (string, time.Time, error) {
	ttl := c.upload.PresignTTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	url, err := c.objects.PresignGet(ctx, c.bucket, OriginalKey(f.ObjectPath, f.Name), ttl)
	if err != nil {
		return "", time.Time{}, mapObjectErr(err)
	}
	return url, time.Now().Add(ttl), nil
}

// Delete removes the catalog record and every object under the file's
// base prefix, derived pipeline outputs included.
func (c *Catalog) Delete(ctx context.Context, f *datatypes.File) error {
	ctx, span := tracer.Start(ctx, "Catalog.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("file.id", f.ID))

	infos, err := c.objects.List(ctx, c.bucket, f.ObjectPath+"/")
	if err != nil {
		return mapObjectErr(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteWorkers)
	for _, info := range infos {
		key := info.Key
		g.Go(func() error {
			return c.objects.Delete(gctx, c.bucket, key)
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return mapObjectErr(err)
	}

	if err := c.records.Delete(ctx, f.ID); err != nil {
		return err
	}
	c.logger.Info("Deleted file", "file_id", f.ID, "objects", len(infos))
	return nil
}

// Promote copies a personal file into system scope as a new record. The
// source record and objects are left untouched.
func (c *Catalog) Promote(ctx context.Context, principal datatypes.Principal, src *datatypes.File) (*datatypes.File, error) {
	if src.Scope == datatypes.ScopeSystem {
		return nil, apperrors.New(apperrors.KindBadRequest, "file is already system-scoped")
	}

	newID := uuid.NewString()
	newBase, err := BasePrefix(datatypes.ScopeSystem, "", "", newID)
	if err != nil {
		return nil, err
	}
	srcKey := OriginalKey(src.ObjectPath, src.Name)
	dstKey := OriginalKey(newBase, src.Name)
	if err := c.objects.Copy(ctx, c.bucket, srcKey, dstKey); err != nil {
		return nil, mapObjectErr(err)
	}

	now := time.Now().UTC()
	record := &datatypes.File{
		ID:         newID,
		Name:       src.Name,
		Size:       src.Size,
		Type:       src.Type,
		ObjectPath: newBase,
		Scope:      datatypes.ScopeSystem,
		Checksums:  src.Checksums,
		Processing: src.Processing,
		UploadedBy: src.UploadedBy,
		UploadedAt: src.UploadedAt,

		Promoted:     true,
		PromotedAt:   &now,
		PromotedBy:   principal.ID,
		PromotedFrom: src.ID,
	}
	created, err := c.records.CreateWithID(ctx, record)
	if err != nil {
		if derr := c.objects.Delete(ctx, c.bucket, dstKey); derr != nil {
			c.logger.Warn("Failed to clean up promoted copy", "key", dstKey, "error", derr)
		}
		return nil, err
	}
	if err := c.writeMetadata(ctx, created); err != nil {
		c.logger.Warn("Failed to write metadata snapshot", "file_id", created.ID, "error", err)
	}
	c.logger.Info("Promoted file", "source_id", src.ID, "file_id", created.ID, "by", principal.ID)
	return created, nil
}

// Get loads a catalog record; absence is NotFound.
func (c *Catalog) Get(ctx context.Context, id string) (*datatypes.File, error) {
	return c.records.MustGet(ctx, id)
}

// VisibleTo lists catalog records the principal may read, optionally
// narrowed by a case-insensitive name query.
func (c *Catalog) VisibleTo(ctx context.Context, p datatypes.Principal, query string) ([]datatypes.File, error) {
	system, err := c.records.SearchByName(ctx, docstore.Filter{"scope": datatypes.ScopeSystem}, query)
	if err != nil {
		return nil, err
	}
	own, err := c.records.SearchByName(ctx, docstore.Filter{"uploaded_by": p.ID}, query)
	if err != nil {
		return nil, err
	}

	out := system
	seen := make(map[string]bool, len(system))
	for _, f := range system {
		seen[f.ID] = true
	}
	for _, f := range own {
		if !seen[f.ID] {
			seen[f.ID] = true
			out = append(out, f)
		}
	}
	if p.IsElevated() {
		// Elevated roles also see project-scoped files from other users.
		project, err := c.records.SearchByName(ctx, docstore.Filter{"scope": datatypes.ScopeUserProject}, query)
		if err != nil {
			return nil, err
		}
		for _, f := range project {
			if !seen[f.ID] {
				seen[f.ID] = true
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// SetProcessing updates the pipeline state on a record.
func (c *Catalog) SetProcessing(ctx context.Context, id string, processing datatypes.FileProcessing) (*datatypes.File, error) {
	patch := map[string]any{
		"processing_status": map[string]any{
			"status":             processing.Status,
			"active_version":     processing.ActiveVersion,
			"available_versions": processing.AvailableVersions,
		},
	}
	updated, err := c.records.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if err := c.writeMetadata(ctx, updated); err != nil {
		c.logger.Warn("Failed to refresh metadata snapshot", "file_id", id, "error", err)
	}
	return updated, nil
}

func (c *Catalog) writeMetadata(ctx context.Context, f *datatypes.File) error {
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return c.objects.Put(ctx, c.bucket, MetadataKey(f.ObjectPath),
		bytes.NewReader(raw), int64(len(raw)), "application/json")
}

// mapObjectErr translates object-store errors into the public taxonomy.
func mapObjectErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, objectstore.ErrFileNotFound):
		return apperrors.Wrap(apperrors.KindNotFound, "object not found", err)
	case errors.Is(err, objectstore.ErrBucketNotFound):
		return apperrors.Wrap(apperrors.KindNotFound, "bucket not found", err)
	default:
		return apperrors.Wrap(apperrors.KindInternal, "object storage failed", err)
	}
}
