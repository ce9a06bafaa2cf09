// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"time"

	"github.com/anchorage-ai/anchorage/services/docstore"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

// Users is the account repository.
type Users struct {
	ds docstore.Store
}

// Create inserts a new account. A duplicate email surfaces as Conflict.
func (r *Users) Create(ctx context.Context, u *datatypes.User) (*datatypes.User, error) {
	doc, err := toDoc(u)
	if err != nil {
		return nil, err
	}
	if u.ID == "" {
		delete(doc, "id") // let the store assign identity
	}
	created, err := r.ds.Create(ctx, ColUsers, doc)
	if err != nil {
		return nil, mapErr(err, "create user")
	}
	return fromDoc[datatypes.User](created)
}

// GetByID returns (nil, nil) when the account does not exist.
func (r *Users) GetByID(ctx context.Context, id string) (*datatypes.User, error) {
	doc, err := r.ds.GetByID(ctx, ColUsers, id)
	if err != nil {
		return nil, mapErr(err, "get user")
	}
	return fromDoc[datatypes.User](doc)
}

func (r *Users) GetByEmail(ctx context.Context, email string) (*datatypes.User, error) {
	doc, err := r.ds.FindOne(ctx, ColUsers, docstore.Filter{"email": email})
	if err != nil {
		return nil, mapErr(err, "find user by email")
	}
	return fromDoc[datatypes.User](doc)
}

// MustGet is GetByID with absence promoted to NotFound.
func (r *Users) MustGet(ctx context.Context, id string) (*datatypes.User, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return requireFound(u, "user", id)
}

// List returns every account ordered by creation time.
func (r *Users) List(ctx context.Context) ([]datatypes.User, error) {
	docs, err := r.ds.Query(ctx, ColUsers, nil, 0, 0,
		[]docstore.SortField{{Field: "created_at"}})
	if err != nil {
		return nil, mapErr(err, "list users")
	}
	return fromDocs[datatypes.User](docs)
}

// Update applies a partial patch and bumps updated_at.
func (r *Users) Update(ctx context.Context, id string, patch map[string]any) (*datatypes.User, error) {
	patch["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	doc, err := r.ds.Update(ctx, ColUsers, id, patch)
	if err != nil {
		return nil, mapErr(err, "update user")
	}
	return fromDoc[datatypes.User](doc)
}

// SetGroupIDs rewrites the denormalized group membership list.
func (r *Users) SetGroupIDs(ctx context.Context, id string, groupIDs []string) (*datatypes.User, error) {
	if groupIDs == nil {
		groupIDs = []string{}
	}
	return r.Update(ctx, id, map[string]any{"group_ids": groupIDs})
}

// Delete removes the account record only. Conversations, files, and group
// membership entries are deliberately left in place so shared history
// survives the departure of its author.
func (r *Users) Delete(ctx context.Context, id string) error {
	removed, err := r.ds.Delete(ctx, ColUsers, id)
	if err != nil {
		return mapErr(err, "delete user")
	}
	if !removed {
		return notFoundErr("user", id)
	}
	return nil
}
