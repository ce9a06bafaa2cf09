// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"

	"github.com/anchorage-ai/anchorage/services/docstore"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

// ConversationGroups is the sidebar-folder repository. A conversation
// belongs to at most one folder; assigning it to a second folder moves it
// (latest write wins).
type ConversationGroups struct {
	ds docstore.Store
}

func (r *ConversationGroups) Create(ctx context.Context, g *datatypes.ConversationGroup) (*datatypes.ConversationGroup, error) {
	if g.ConversationIDs == nil {
		g.ConversationIDs = []string{}
	}
	doc, err := toDoc(g)
	if err != nil {
		return nil, err
	}
	delete(doc, "id")
	created, err := r.ds.Create(ctx, ColConversationGroups, doc)
	if err != nil {
		return nil, mapErr(err, "create conversation group")
	}
	return fromDoc[datatypes.ConversationGroup](created)
}

func (r *ConversationGroups) GetByID(ctx context.Context, id string) (*datatypes.ConversationGroup, error) {
	doc, err := r.ds.GetByID(ctx, ColConversationGroups, id)
	if err != nil {
		return nil, mapErr(err, "get conversation group")
	}
	return fromDoc[datatypes.ConversationGroup](doc)
}

func (r *ConversationGroups) MustGet(ctx context.Context, id string) (*datatypes.ConversationGroup, error) {
	g, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return requireFound(g, "conversation group", id)
}

// ListByOwner returns the caller's folders ordered by creation time.
func (r *ConversationGroups) ListByOwner(ctx context.Context, ownerID string) ([]datatypes.ConversationGroup, error) {
	docs, err := r.ds.Query(ctx, ColConversationGroups,
		docstore.Filter{"owner_id": ownerID}, 0, 0,
		[]docstore.SortField{{Field: "created_at"}})
	if err != nil {
		return nil, mapErr(err, "list conversation groups")
	}
	return fromDocs[datatypes.ConversationGroup](docs)
}

// Rename updates the folder name.
func (r *ConversationGroups) Rename(ctx context.Context, id, name string) (*datatypes.ConversationGroup, error) {
	doc, err := r.ds.Update(ctx, ColConversationGroups, id, docstore.Document{"name": name})
	if err != nil {
		return nil, mapErr(err, "rename conversation group")
	}
	return fromDoc[datatypes.ConversationGroup](doc)
}

// Assign places conversationID into the folder, removing it from whatever
// folder of the same owner held it before, and mirrors the assignment on
// the conversation's group_id field.
func (r *ConversationGroups) Assign(ctx context.Context, convs *Conversations, ownerID, groupID, conversationID string) (*datatypes.ConversationGroup, error) {
	target, err := r.MustGet(ctx, groupID)
	if err != nil {
		return nil, err
	}

	folders, err := r.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, f := range folders {
		if f.ID == groupID || !contains(f.ConversationIDs, conversationID) {
			continue
		}
		if _, err := r.ds.Update(ctx, ColConversationGroups, f.ID, docstore.Document{
			"conversation_ids": remove(f.ConversationIDs, conversationID),
		}); err != nil {
			return nil, mapErr(err, "move conversation between groups")
		}
	}

	if !contains(target.ConversationIDs, conversationID) {
		doc, err := r.ds.Update(ctx, ColConversationGroups, groupID, docstore.Document{
			"conversation_ids": append(target.ConversationIDs, conversationID),
		})
		if err != nil {
			return nil, mapErr(err, "assign conversation to group")
		}
		target, err = fromDoc[datatypes.ConversationGroup](doc)
		if err != nil {
			return nil, err
		}
	}

	if _, err := convs.Update(ctx, conversationID, map[string]any{"group_id": groupID}); err != nil {
		return nil, err
	}
	return target, nil
}

// Unassign removes the conversation from the folder and clears its
// group_id.
func (r *ConversationGroups) Unassign(ctx context.Context, convs *Conversations, groupID, conversationID string) (*datatypes.ConversationGroup, error) {
	g, err := r.MustGet(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if contains(g.ConversationIDs, conversationID) {
		doc, err := r.ds.Update(ctx, ColConversationGroups, groupID, docstore.Document{
			"conversation_ids": remove(g.ConversationIDs, conversationID),
		})
		if err != nil {
			return nil, mapErr(err, "unassign conversation from group")
		}
		g, err = fromDoc[datatypes.ConversationGroup](doc)
		if err != nil {
			return nil, err
		}
	}
	if _, err := convs.Update(ctx, conversationID, map[string]any{"group_id": ""}); err != nil {
		return nil, err
	}
	return g, nil
}

// Delete removes the folder. Conversations inside keep existing; their
// group_id is cleared so they fall back to the top level.
func (r *ConversationGroups) Delete(ctx context.Context, convs *Conversations, id string) error {
	g, err := r.MustGet(ctx, id)
	if err != nil {
		return err
	}
	for _, cid := range g.ConversationIDs {
		if _, err := convs.Update(ctx, cid, map[string]any{"group_id": ""}); err != nil {
			// The conversation may have been deleted independently.
			continue
		}
	}
	removed, err := r.ds.Delete(ctx, ColConversationGroups, id)
	if err != nil {
		return mapErr(err, "delete conversation group")
	}
	if !removed {
		return notFoundErr("conversation group", id)
	}
	return nil
}
