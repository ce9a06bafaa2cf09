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

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/docstore"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

// UserGroups is the sharing-group repository. Membership is denormalized
// on both sides (group.member_ids and user.group_ids); the membership
// mutators here write the group first, then the user, so a crash between
// the two leaves a group that lists a user who does not list it back.
// Readers treat the user side as authoritative for access checks and
// tolerate the stale group side.
type UserGroups struct {
	ds docstore.Store
}

// Create inserts a group. A duplicate name surfaces as Conflict.
func (r *UserGroups) Create(ctx context.Context, g *datatypes.UserGroup) (*datatypes.UserGroup, error) {
	if g.ManagerIDs == nil {
		g.ManagerIDs = []string{}
	}
	if g.MemberIDs == nil {
		g.MemberIDs = []string{}
	}
	doc, err := toDoc(g)
	if err != nil {
		return nil, err
	}
	delete(doc, "id")
	created, err := r.ds.Create(ctx, ColUserGroups, doc)
	if err != nil {
		return nil, mapErr(err, "create user group")
	}
	return fromDoc[datatypes.UserGroup](created)
}

func (r *UserGroups) GetByID(ctx context.Context, id string) (*datatypes.UserGroup, error) {
	doc, err := r.ds.GetByID(ctx, ColUserGroups, id)
	if err != nil {
		return nil, mapErr(err, "get user group")
	}
	return fromDoc[datatypes.UserGroup](doc)
}

func (r *UserGroups) MustGet(ctx context.Context, id string) (*datatypes.UserGroup, error) {
	g, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return requireFound(g, "user group", id)
}

// List returns every group ordered by name.
func (r *UserGroups) List(ctx context.Context) ([]datatypes.UserGroup, error) {
	docs, err := r.ds.Query(ctx, ColUserGroups, nil, 0, 0,
		[]docstore.SortField{{Field: "name"}})
	if err != nil {
		return nil, mapErr(err, "list user groups")
	}
	return fromDocs[datatypes.UserGroup](docs)
}

// ResolveMany loads the named groups, silently skipping ids that no longer
// resolve. Stale ids accumulate on user records when a group is deleted.
func (r *UserGroups) ResolveMany(ctx context.Context, ids []string) ([]datatypes.UserGroup, error) {
	out := make([]datatypes.UserGroup, 0, len(ids))
	for _, id := range ids {
		g, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if g != nil {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (r *UserGroups) Update(ctx context.Context, id string, patch map[string]any) (*datatypes.UserGroup, error) {
	patch["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	doc, err := r.ds.Update(ctx, ColUserGroups, id, patch)
	if err != nil {
		return nil, mapErr(err, "update user group")
	}
	return fromDoc[datatypes.UserGroup](doc)
}

// Delete removes the group record. Stale references on user records are
// tolerated by readers rather than swept here.
func (r *UserGroups) Delete(ctx context.Context, id string) error {
	removed, err := r.ds.Delete(ctx, ColUserGroups, id)
	if err != nil {
		return mapErr(err, "delete user group")
	}
	if !removed {
		return notFoundErr("user group", id)
	}
	return nil
}

// Memberships coordinates the two-sided membership writes between groups
// and users.
type Memberships struct {
	Groups *UserGroups
	Users  *Users
}

// AddMember adds userID to the group and mirrors the membership on the
// user record. Adding an existing member is a no-op.
func (m *Memberships) AddMember(ctx context.Context, groupID, userID string) (*datatypes.UserGroup, error) {
	g, err := m.Groups.MustGet(ctx, groupID)
	if err != nil {
		return nil, err
	}
	u, err := m.Users.MustGet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if g.HasMember(userID) {
		return g, nil
	}

	g, err = m.Groups.Update(ctx, groupID, map[string]any{
		"member_ids": append(g.MemberIDs, userID),
	})
	if err != nil {
		return nil, err
	}
	if !contains(u.GroupIDs, groupID) {
		if _, err := m.Users.SetGroupIDs(ctx, userID, append(u.GroupIDs, groupID)); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// RemoveMember removes userID from both sides. Removing a non-member is a
// no-op.
func (m *Memberships) RemoveMember(ctx context.Context, groupID, userID string) (*datatypes.UserGroup, error) {
	g, err := m.Groups.MustGet(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.HasMember(userID) {
		g, err = m.Groups.Update(ctx, groupID, map[string]any{
			"member_ids": remove(g.MemberIDs, userID),
		})
		if err != nil {
			return nil, err
		}
	}
	u, err := m.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u != nil && contains(u.GroupIDs, groupID) {
		if _, err := m.Users.SetGroupIDs(ctx, userID, remove(u.GroupIDs, groupID)); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AssignManager appoints userID as a manager of the group. The caller has
// already verified the appointee's role. Managers are not automatically
// members.
func (m *Memberships) AssignManager(ctx context.Context, groupID, userID string) (*datatypes.UserGroup, error) {
	g, err := m.Groups.MustGet(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.HasManager(userID) {
		return g, nil
	}
	return m.Groups.Update(ctx, groupID, map[string]any{
		"manager_ids": append(g.ManagerIDs, userID),
	})
}

// RemoveManager withdraws a management appointment.
func (m *Memberships) RemoveManager(ctx context.Context, groupID, userID string) (*datatypes.UserGroup, error) {
	g, err := m.Groups.MustGet(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.HasManager(userID) {
		return g, nil
	}
	return m.Groups.Update(ctx, groupID, map[string]any{
		"manager_ids": remove(g.ManagerIDs, userID),
	})
}

// DeleteGroup removes the group and strips the membership reference from
// every current member.
func (m *Memberships) DeleteGroup(ctx context.Context, groupID string) error {
	g, err := m.Groups.MustGet(ctx, groupID)
	if err != nil {
		return err
	}
	for _, userID := range g.MemberIDs {
		u, err := m.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil || !contains(u.GroupIDs, groupID) {
			continue
		}
		if _, err := m.Users.SetGroupIDs(ctx, userID, remove(u.GroupIDs, groupID)); err != nil {
			return err
		}
	}
	return m.Groups.Delete(ctx, groupID)
}

// SetStatus toggles the group between active and disabled.
func (m *Memberships) SetStatus(ctx context.Context, groupID, status string) (*datatypes.UserGroup, error) {
	if status != datatypes.StatusActive && status != datatypes.StatusDisabled {
		return nil, apperrors.Newf(apperrors.KindBadRequest, "unknown group status %q", status)
	}
	if _, err := m.Groups.MustGet(ctx, groupID); err != nil {
		return nil, err
	}
	return m.Groups.Update(ctx, groupID, map[string]any{"status": status})
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func remove(xs []string, x string) []string {
	out := make([]string, 0, len(xs))
	for _, v := range xs {
		if v != x {
			out = append(out, v)
		}
	}
	return out
}
