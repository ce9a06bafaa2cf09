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

	"github.com/anchorage-ai/anchorage/services/docstore"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

// Messages is the transcript repository. Messages are append-only: there
// is no update path, and deletion only happens as part of conversation
// deletion.
type Messages struct {
	ds docstore.Store
}

// Append persists one message.
func (r *Messages) Append(ctx context.Context, m *datatypes.Message) (*datatypes.Message, error) {
	doc, err := toDoc(m)
	if err != nil {
		return nil, err
	}
	delete(doc, "id")
	created, err := r.ds.Create(ctx, ColMessages, doc)
	if err != nil {
		return nil, mapErr(err, "append message")
	}
	return fromDoc[datatypes.Message](created)
}

// ListByConversation returns the transcript in chronological order:
// created_at ascending, ties broken by id so the order is total and
// stable across reads.
func (r *Messages) ListByConversation(ctx context.Context, conversationID string) ([]datatypes.Message, error) {
	docs, err := r.ds.Query(ctx, ColMessages,
		docstore.Filter{"conversation_id": conversationID}, 0, 0, nil)
	if err != nil {
		return nil, mapErr(err, "list messages")
	}
	msgs, err := fromDocs[datatypes.Message](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}

// Tail returns the last n messages of the transcript in chronological
// order.
func (r *Messages) Tail(ctx context.Context, conversationID string, n int) ([]datatypes.Message, error) {
	msgs, err := r.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

func (r *Messages) CountByConversation(ctx context.Context, conversationID string) (int, error) {
	n, err := r.ds.Count(ctx, ColMessages, docstore.Filter{"conversation_id": conversationID})
	if err != nil {
		return 0, mapErr(err, "count messages")
	}
	return n, nil
}

// DeleteByConversation removes the whole transcript.
func (r *Messages) DeleteByConversation(ctx context.Context, conversationID string) error {
	docs, err := r.ds.Query(ctx, ColMessages,
		docstore.Filter{"conversation_id": conversationID}, 0, 0, nil)
	if err != nil {
		return mapErr(err, "list messages for delete")
	}
	for _, d := range docs {
		id, _ := d["id"].(string)
		if id == "" {
			continue
		}
		if _, err := r.ds.Delete(ctx, ColMessages, id); err != nil {
			return mapErr(err, "delete message")
		}
	}
	return nil
}
