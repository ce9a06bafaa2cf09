// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package files

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/pkg/config"
	"github.com/anchorage-ai/anchorage/services/docstore"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
	"github.com/anchorage-ai/anchorage/services/gateway/store"
	"github.com/anchorage-ai/anchorage/services/objectstore"
)

const testBucket = "anchorage-test"

func newTestCatalog(t *testing.T, upload config.UploadConfig) (*Catalog, *objectstore.MemoryStore) {
	t.Helper()
	ds, err := docstore.OpenBadger(docstore.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	stores, err := store.New(context.Background(), ds)
	require.NoError(t, err)

	objects := objectstore.NewMemory()
	require.NoError(t, objects.EnsureBucket(context.Background(), testBucket))
	return NewCatalog(stores.Files, objects, testBucket, upload, nil), objects
}

func uploadText(t *testing.T, c *Catalog, p datatypes.Principal, name, scope, projectID, content string) *UploadResult {
	t.Helper()
	res, err := c.Upload(context.Background(), p, UploadRequest{
		Name:        name,
		ContentType: "text/plain",
		Size:        int64(len(content)),
		Scope:       scope,
		ProjectID:   projectID,
		Body:        strings.NewReader(content),
	})
	require.NoError(t, err)
	return res
}

var uploader = datatypes.Principal{ID: "u-1", Role: datatypes.RoleUser}

func TestUploadStoresObjectAndRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, objects := newTestCatalog(t, config.UploadConfig{})

	content := "the quick brown fox jumps over the lazy dog"
	res := uploadText(t, c, uploader, "fox.txt", datatypes.ScopeUserGlobal, "", content)
	f := res.File

	assert.Equal(t, "fox.txt", f.Name)
	assert.Equal(t, datatypes.ScopeUserGlobal, f.Scope)
	assert.Equal(t, "user/u-1/global/"+f.ID, f.ObjectPath)
	assert.Equal(t, datatypes.ProcessingPending, f.Processing.Status)
	assert.Empty(t, res.DuplicateOf)

	wantSHA := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(wantSHA[:]), f.Checksums.SHA256)
	assert.Len(t, f.Checksums.SimHash, 16)

	// The object and the metadata snapshot both landed under the prefix.
	r, info, err := objects.Get(ctx, testBucket, OriginalKey(f.ObjectPath, f.Name))
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
	assert.Equal(t, int64(len(content)), info.Size)

	ok, err := objects.Exists(ctx, testBucket, MetadataKey(f.ObjectPath))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUploadFlagsDuplicates(t *testing.T) {
	t.Parallel()
	c, _ := newTestCatalog(t, config.UploadConfig{})

	first := uploadText(t, c, uploader, "a.txt", datatypes.ScopeUserGlobal, "", "same bytes")
	second := uploadText(t, c, uploader, "b.txt", datatypes.ScopeUserGlobal, "", "same bytes")

	assert.Equal(t, first.File.ID, second.DuplicateOf,
		"a content match is flagged, not rejected")
	assert.NotEqual(t, first.File.ID, second.File.ID)
}

func TestUploadLimits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCatalog(t, config.UploadConfig{
		MaxSizeBytes:      16,
		AllowedExtensions: []string{"txt", "pdf"},
	})

	_, err := c.Upload(ctx, uploader, UploadRequest{
		Name: "big.txt", ContentType: "text/plain",
		Size: 64, Scope: datatypes.ScopeUserGlobal,
		Body: strings.NewReader(strings.Repeat("x", 64)),
	})
	assert.Equal(t, apperrors.KindPayloadTooLarge, apperrors.KindOf(err))

	_, err = c.Upload(ctx, uploader, UploadRequest{
		Name: "run.exe", ContentType: "application/octet-stream",
		Size: 4, Scope: datatypes.ScopeUserGlobal,
		Body: strings.NewReader("MZ.."),
	})
	assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err))

	_, err = c.Upload(ctx, uploader, UploadRequest{
		Name: "empty.txt", ContentType: "text/plain",
		Size: 0, Scope: datatypes.ScopeUserGlobal,
		Body: strings.NewReader(""),
	})
	assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err))
}

func TestUploadSanitizesName(t *testing.T) {
	t.Parallel()
	c, _ := newTestCatalog(t, config.UploadConfig{})

	res := uploadText(t, c, uploader, "../../etc/passwd.txt", datatypes.ScopeUserGlobal, "", "data")
	assert.Equal(t, "passwd.txt", res.File.Name)
}

func TestProjectScopeRequiresProjectID(t *testing.T) {
	t.Parallel()
	c, _ := newTestCatalog(t, config.UploadConfig{})

	_, err := c.Upload(context.Background(), uploader, UploadRequest{
		Name: "doc.txt", ContentType: "text/plain",
		Size: 4, Scope: datatypes.ScopeUserProject,
		Body: strings.NewReader("data"),
	})
	assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err))

	res := uploadText(t, c, uploader, "doc.txt", datatypes.ScopeUserProject, "proj-9", "data")
	assert.Equal(t, "user/u-1/project/proj-9/"+res.File.ID, res.File.ObjectPath)
}

func TestDeleteRemovesEverythingUnderPrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, objects := newTestCatalog(t, config.UploadConfig{})

	res := uploadText(t, c, uploader, "doc.txt", datatypes.ScopeUserGlobal, "", "data")
	f := res.File

	// Simulate a pipeline output under the same prefix.
	derived := f.ObjectPath + "/02-analysis/summary.json"
	require.NoError(t, objects.Put(ctx, testBucket, derived,
		bytes.NewReader([]byte("{}")), 2, "application/json"))

	require.NoError(t, c.Delete(ctx, f))

	left, err := objects.List(ctx, testBucket, f.ObjectPath+"/")
	require.NoError(t, err)
	assert.Empty(t, left, "derived artifacts are deleted with the file")

	_, err = c.Get(ctx, f.ID)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestPromoteCopiesIntoSystemScope(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, objects := newTestCatalog(t, config.UploadConfig{})
	manager := datatypes.Principal{ID: "mgr-1", Role: datatypes.RoleManager}

	res := uploadText(t, c, uploader, "doc.txt", datatypes.ScopeUserGlobal, "", "shared knowledge")
	src := res.File

	promoted, err := c.Promote(ctx, manager, src)
	require.NoError(t, err)
	assert.Equal(t, datatypes.ScopeSystem, promoted.Scope)
	assert.True(t, promoted.Promoted)
	assert.Equal(t, src.ID, promoted.PromotedFrom)
	assert.Equal(t, manager.ID, promoted.PromotedBy)
	assert.NotNil(t, promoted.PromotedAt)
	assert.Equal(t, src.Checksums.SHA256, promoted.Checksums.SHA256)

	// The original survives, and the copy is readable at the new path.
	_, err = c.Get(ctx, src.ID)
	require.NoError(t, err)
	ok, err := objects.Exists(ctx, testBucket, OriginalKey(promoted.ObjectPath, promoted.Name))
	require.NoError(t, err)
	assert.True(t, ok)

	// Promoting a system file is refused.
	_, err = c.Promote(ctx, manager, promoted)
	assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err))
}

func TestVisibleToScoping(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCatalog(t, config.UploadConfig{})
	other := datatypes.Principal{ID: "u-2", Role: datatypes.RoleUser}
	manager := datatypes.Principal{ID: "mgr-1", Role: datatypes.RoleManager}

	uploadText(t, c, manager, "handbook.txt", datatypes.ScopeSystem, "", "rules")
	uploadText(t, c, uploader, "private.txt", datatypes.ScopeUserGlobal, "", "mine")
	uploadText(t, c, uploader, "design.txt", datatypes.ScopeUserProject, "p-1", "plan")

	names := func(fs []datatypes.File) []string {
		out := make([]string, 0, len(fs))
		for _, f := range fs {
			out = append(out, f.Name)
		}
		return out
	}

	visible, err := c.VisibleTo(ctx, uploader, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"handbook.txt", "private.txt", "design.txt"}, names(visible))

	visible, err = c.VisibleTo(ctx, other, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"handbook.txt"}, names(visible),
		"another user sees only system files")

	visible, err = c.VisibleTo(ctx, manager, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"handbook.txt", "design.txt"}, names(visible),
		"managers additionally see project-scoped files")

	visible, err = c.VisibleTo(ctx, uploader, "design")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"design.txt"}, names(visible))
}

func TestSetProcessingRefreshesRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCatalog(t, config.UploadConfig{})

	res := uploadText(t, c, uploader, "doc.txt", datatypes.ScopeUserGlobal, "", "data")
	updated, err := c.SetProcessing(ctx, res.File.ID, datatypes.FileProcessing{
		Status:            datatypes.ProcessingCompleted,
		ActiveVersion:     "v2",
		AvailableVersions: []string{"v1", "v2"},
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.ProcessingCompleted, updated.Processing.Status)
	assert.Equal(t, "v2", updated.Processing.ActiveVersion)
	assert.Equal(t, []string{"v1", "v2"}, updated.Processing.AvailableVersions)
}
