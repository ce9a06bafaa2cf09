// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store holds the typed repositories over the document store.
// Repositories translate between entity structs and schemaless documents,
// map store errors into the public taxonomy, and own the index layout.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/docstore"
)

// Collection names. Renaming one orphans existing data.
const (
	ColUsers              = "users"
	ColUserGroups         = "user_groups"
	ColConversations      = "conversations"
	ColMessages           = "messages"
	ColConversationGroups = "conversation_groups"
	ColFiles              = "files"
	ColUserSettings       = "user_settings"
)

// Stores bundles every repository over one document store.
type Stores struct {
	Users              *Users
	UserGroups         *UserGroups
	Conversations      *Conversations
	Messages           *Messages
	ConversationGroups *ConversationGroups
	Files              *Files
	Memberships        *Memberships
}

// New builds the repositories and ensures collections and indexes exist.
func New(ctx context.Context, ds docstore.Store) (*Stores, error) {
	s := &Stores{
		Users:              &Users{ds: ds},
		UserGroups:         &UserGroups{ds: ds},
		Conversations:      &Conversations{ds: ds},
		Messages:           &Messages{ds: ds},
		ConversationGroups: &ConversationGroups{ds: ds},
		Files:              &Files{ds: ds},
	}
	s.Memberships = &Memberships{Groups: s.UserGroups, Users: s.Users}
	if err := s.ensureSchema(ctx, ds); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stores) ensureSchema(ctx context.Context, ds docstore.Store) error {
	for _, col := range []string{
		ColUsers, ColUserGroups, ColConversations, ColMessages,
		ColConversationGroups, ColFiles, ColUserSettings,
	} {
		if err := ds.CreateCollection(ctx, col); err != nil {
			return mapErr(err, "create collection "+col)
		}
	}
	indexes := []struct {
		col string
		idx docstore.Index
	}{
		{ColUsers, docstore.Index{Name: "email_unique", Fields: []string{"email"}, Unique: true}},
		{ColUserGroups, docstore.Index{Name: "name_unique", Fields: []string{"name"}, Unique: true}},
		{ColFiles, docstore.Index{Name: "object_path_unique", Fields: []string{"object_path"}, Unique: true}},
	}
	for _, e := range indexes {
		if err := ds.EnsureIndex(ctx, e.col, e.idx); err != nil {
			return mapErr(err, "ensure index "+e.idx.Name)
		}
	}
	return nil
}

// mapErr translates store-internal errors into the public taxonomy.
func mapErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrDuplicateKey):
		return apperrors.Wrap(apperrors.KindConflict, "already exists", err)
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, docstore.ErrCollectionNotFound):
		return apperrors.Wrap(apperrors.KindNotFound, "not found", err)
	case errors.Is(err, docstore.ErrConnection):
		return apperrors.Wrap(apperrors.KindServiceUnavailable, "storage unavailable", err)
	default:
		return apperrors.Wrap(apperrors.KindInternal, op+" failed", err)
	}
}

// toDoc converts an entity to a document via its JSON tags.
func toDoc(v any) (docstore.Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "encode record", err)
	}
	var doc docstore.Document
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "encode record", err)
	}
	return doc, nil
}

// fromDoc converts a document back into an entity.
func fromDoc[T any](doc docstore.Document) (*T, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "decode record", err)
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "decode record", err)
	}
	return out, nil
}

func fromDocs[T any](docs []docstore.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := fromDoc[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// requireFound converts a (nil, nil) read into a NotFound error for paths
// where absence is exceptional.
func requireFound[T any](v *T, what, id string) (*T, error) {
	if v == nil {
		return nil, notFoundErr(what, id)
	}
	return v, nil
}

func notFoundErr(what, id string) error {
	return apperrors.Newf(apperrors.KindNotFound, "%s %s not found", what, id)
}
