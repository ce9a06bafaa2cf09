// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"sort"
	"time"

	"github.com/anchorage-ai/anchorage/services/docstore"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

// Conversations is the chat-thread repository.
type Conversations struct {
	ds docstore.Store
}

func (r *Conversations) Create(ctx context.Context, c *datatypes.Conversation) (*datatypes.Conversation, error) {
	if c.SharedWithGroupIDs == nil {
		c.SharedWithGroupIDs = []string{}
	}
	doc, err := toDoc(c)
	if err != nil {
		return nil, err
	}
	delete(doc, "id")
	created, err := r.ds.Create(ctx, ColConversations, doc)
	if err != nil {
		return nil, mapErr(err, "create conversation")
	}
	return fromDoc[datatypes.Conversation](created)
}

func (r *Conversations) GetByID(ctx context.Context, id string) (*datatypes.Conversation, error) {
	doc, err := r.ds.GetByID(ctx, ColConversations, id)
	if err != nil {
		return nil, mapErr(err, "get conversation")
	}
	return fromDoc[datatypes.Conversation](doc)
}

func (r *Conversations) MustGet(ctx context.Context, id string) (*datatypes.Conversation, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return requireFound(c, "conversation", id)
}

// ListByOwner returns the caller's own conversations, most recently
// updated first.
func (r *Conversations) ListByOwner(ctx context.Context, ownerID string) ([]datatypes.Conversation, error) {
	docs, err := r.ds.Query(ctx, ColConversations,
		docstore.Filter{"owner_id": ownerID}, 0, 0,
		[]docstore.SortField{{Field: "updated_at", Desc: true}})
	if err != nil {
		return nil, mapErr(err, "list conversations")
	}
	return fromDocs[datatypes.Conversation](docs)
}

// ListSharedWith returns conversations shared with any of the given user
// groups, excluding those the user already owns. Results are merged across
// groups, deduplicated, and ordered by recency.
func (r *Conversations) ListSharedWith(ctx context.Context, groupIDs []string, excludeOwnerID string) ([]datatypes.Conversation, error) {
	seen := make(map[string]bool)
	var out []datatypes.Conversation
	for _, gid := range groupIDs {
		docs, err := r.ds.Query(ctx, ColConversations,
			docstore.Filter{"shared_with_group_ids": gid}, 0, 0, nil)
		if err != nil {
			return nil, mapErr(err, "list shared conversations")
		}
		convs, err := fromDocs[datatypes.Conversation](docs)
		if err != nil {
			return nil, err
		}
		for _, c := range convs {
			if seen[c.ID] || c.OwnerID == excludeOwnerID {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *Conversations) Update(ctx context.Context, id string, patch map[string]any) (*datatypes.Conversation, error) {
	patch["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	doc, err := r.ds.Update(ctx, ColConversations, id, patch)
	if err != nil {
		return nil, mapErr(err, "update conversation")
	}
	return fromDoc[datatypes.Conversation](doc)
}

// Touch refreshes updated_at and recomputes message_count from the
// message collection, keeping the denormalized counter honest.
func (r *Conversations) Touch(ctx context.Context, id string, messages *Messages) (*datatypes.Conversation, error) {
	count, err := messages.CountByConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Update(ctx, id, map[string]any{"message_count": count})
}

// SetShares replaces the share list.
func (r *Conversations) SetShares(ctx context.Context, id string, groupIDs []string) (*datatypes.Conversation, error) {
	if groupIDs == nil {
		groupIDs = []string{}
	}
	return r.Update(ctx, id, map[string]any{"shared_with_group_ids": groupIDs})
}

// Delete removes the conversation and its messages.
func (r *Conversations) Delete(ctx context.Context, id string, messages *Messages) error {
	removed, err := r.ds.Delete(ctx, ColConversations, id)
	if err != nil {
		return mapErr(err, "delete conversation")
	}
	if !removed {
		return notFoundErr("conversation", id)
	}
	return messages.DeleteByConversation(ctx, id)
}
