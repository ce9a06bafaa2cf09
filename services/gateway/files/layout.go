// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package files

import (
	"path"
	"strings"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

// Object layout under a file's base prefix:
//
//	<base>/01-input_data/original.<ext>   the uploaded bytes
//	<base>/metadata.json                  catalog record snapshot
//
// where <base> encodes the scope:
//
//	system/<file_id>
//	user/<uploader>/global/<file_id>
//	user/<uploader>/project/<project_id>/<file_id>
//
// Later pipeline stages add their outputs as sibling numbered directories,
// so deleting the base prefix removes every derived artifact too.
const (
	inputDataDir     = "01-input_data"
	originalBaseName = "original"
	metadataName     = "metadata.json"
)

// BasePrefix computes the storage prefix for a catalog record.
func BasePrefix(scope, uploaderID, projectID, fileID string) (string, error) {
	switch scope {
	case datatypes.ScopeSystem:
		return path.Join("system", fileID), nil
	case datatypes.ScopeUserGlobal:
		if uploaderID == "" {
			return "", apperrors.New(apperrors.KindBadRequest, "uploader is required for user-scoped files")
		}
		return path.Join("user", uploaderID, "global", fileID), nil
	case datatypes.ScopeUserProject:
		if uploaderID == "" {
			return "", apperrors.New(apperrors.KindBadRequest, "uploader is required for user-scoped files")
		}
		if projectID == "" {
			return "", apperrors.New(apperrors.KindBadRequest, "project_id is required for project-scoped files")
		}
		return path.Join("user", uploaderID, "project", projectID, fileID), nil
	default:
		return "", apperrors.Newf(apperrors.KindBadRequest, "unknown file scope %q", scope)
	}
}

// OriginalKey is the object key of the uploaded bytes.
func OriginalKey(basePrefix, fileName string) string {
	return path.Join(basePrefix, inputDataDir, originalBaseName+extOf(fileName))
}

// MetadataKey is the object key of the catalog snapshot.
func MetadataKey(basePrefix string) string {
	return path.Join(basePrefix, metadataName)
}

func extOf(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "." {
		return ""
	}
	return ext
}

// sanitizeName strips any path components from a client-supplied file
// name. The name is display metadata; it never becomes a storage path,
// but a name like "../../etc/passwd" should still not round-trip.
func sanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "" || base == "." || base == "/" || base == ".." {
		return "", apperrors.New(apperrors.KindBadRequest, "invalid file name")
	}
	return base, nil
}

// validateUpload checks size and extension/content-type allow-lists.
func validateUpload(name, contentType string, size, maxSize int64, allowedExts, allowedTypes []string) error {
	if size <= 0 {
		return apperrors.New(apperrors.KindBadRequest, "file is empty")
	}
	if maxSize > 0 && size > maxSize {
		return apperrors.Newf(apperrors.KindPayloadTooLarge,
			"file exceeds the %d byte limit", maxSize)
	}
	if len(allowedExts) > 0 {
		ext := extOf(name)
		if !containsFold(allowedExts, strings.TrimPrefix(ext, ".")) && !containsFold(allowedExts, ext) {
			return apperrors.Newf(apperrors.KindBadRequest, "file extension %q is not allowed", ext)
		}
	}
	if len(allowedTypes) > 0 && contentType != "" {
		base := contentType
		if i := strings.IndexByte(base, ';'); i >= 0 {
			base = strings.TrimSpace(base[:i])
		}
		if !containsFold(allowedTypes, base) {
			return apperrors.Newf(apperrors.KindBadRequest, "content type %q is not allowed", base)
		}
	}
	return nil
}

func containsFold(xs []string, x string) bool {
	for _, v := range xs {
		if strings.EqualFold(v, x) {
			return true
		}
	}
	return false
}
