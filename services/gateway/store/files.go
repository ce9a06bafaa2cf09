// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"strings"

	"github.com/anchorage-ai/anchorage/services/docstore"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

// Files is the upload-catalog repository. The object_path field is
// unique: two catalog records never point at the same storage prefix.
type Files struct {
	ds docstore.Store
}

func (r *Files) Create(ctx context.Context, f *datatypes.File) (*datatypes.File, error) {
	doc, err := toDoc(f)
	if err != nil {
		return nil, err
	}
	delete(doc, "id")
	created, err := r.ds.Create(ctx, ColFiles, doc)
	if err != nil {
		return nil, mapErr(err, "create file record")
	}
	return fromDoc[datatypes.File](created)
}

// CreateWithID inserts a record under a caller-chosen id. The file
// pipeline allocates the id up front because the object path embeds it.
func (r *Files) CreateWithID(ctx context.Context, f *datatypes.File) (*datatypes.File, error) {
	doc, err := toDoc(f)
	if err != nil {
		return nil, err
	}
	created, err := r.ds.Create(ctx, ColFiles, doc)
	if err != nil {
		return nil, mapErr(err, "create file record")
	}
	return fromDoc[datatypes.File](created)
}

func (r *Files) GetByID(ctx context.Context, id string) (*datatypes.File, error) {
	doc, err := r.ds.GetByID(ctx, ColFiles, id)
	if err != nil {
		return nil, mapErr(err, "get file record")
	}
	return fromDoc[datatypes.File](doc)
}

func (r *Files) MustGet(ctx context.Context, id string) (*datatypes.File, error) {
	f, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return requireFound(f, "file", id)
}

// List returns catalog records matching the filter, newest first.
func (r *Files) List(ctx context.Context, filter docstore.Filter) ([]datatypes.File, error) {
	docs, err := r.ds.Query(ctx, ColFiles, filter, 0, 0,
		[]docstore.SortField{{Field: "uploaded_at", Desc: true}})
	if err != nil {
		return nil, mapErr(err, "list file records")
	}
	return fromDocs[datatypes.File](docs)
}

// SearchByName filters a candidate set by case-insensitive substring
// match on the display name. The docstore has no text index, so the
// filter narrows by scope first and the name match happens here.
func (r *Files) SearchByName(ctx context.Context, filter docstore.Filter, query string) ([]datatypes.File, error) {
	files, err := r.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return files, nil
	}
	out := files[:0]
	for _, f := range files {
		if strings.Contains(strings.ToLower(f.Name), q) {
			out = append(out, f)
		}
	}
	return out, nil
}

// FindBySHA256 returns any record with the same content digest, used to
// flag duplicate uploads.
func (r *Files) FindBySHA256(ctx context.Context, sha256hex string) (*datatypes.File, error) {
	doc, err := r.ds.FindOne(ctx, ColFiles, docstore.Filter{"checksums.sha256": sha256hex})
	if err != nil {
		return nil, mapErr(err, "find file by checksum")
	}
	return fromDoc[datatypes.File](doc)
}

func (r *Files) Update(ctx context.Context, id string, patch map[string]any) (*datatypes.File, error) {
	doc, err := r.ds.Update(ctx, ColFiles, id, patch)
	if err != nil {
		return nil, mapErr(err, "update file record")
	}
	return fromDoc[datatypes.File](doc)
}

func (r *Files) Delete(ctx context.Context, id string) error {
	removed, err := r.ds.Delete(ctx, ColFiles, id)
	if err != nil {
		return mapErr(err, "delete file record")
	}
	if !removed {
		return notFoundErr("file", id)
	}
	return nil
}
