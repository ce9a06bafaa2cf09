// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package authz centralizes every access decision in the gateway. Handlers
// load the entities involved and call a predicate; predicates are pure and
// never touch storage, so the whole policy is testable in isolation.
//
// Decisions return nil on allow and a Forbidden (or BadRequest) error on
// deny. Denials carry a reason safe to show to the caller.
package authz

import (
	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

func deny(msg string) error { return apperrors.New(apperrors.KindForbidden, msg) }

// --- User administration ---

// CanCreateUser: only root creates accounts directly (self-registration in
// local mode bypasses this path by design).
func CanCreateUser(p datatypes.Principal) error {
	if !p.IsRoot() {
		return deny("only root can create users")
	}
	return nil
}

// CanDeleteUser: root only, and never the caller's own account.
func CanDeleteUser(p datatypes.Principal, targetID string) error {
	if !p.IsRoot() {
		return deny("only root can delete users")
	}
	if targetID == p.ID {
		return deny("cannot delete your own account")
	}
	return nil
}

// CanUpdateUserRole: managers and root change roles.
func CanUpdateUserRole(p datatypes.Principal) error {
	if !p.IsElevated() {
		return deny("only managers and root can change roles")
	}
	return nil
}

// CanUpdateUserStatus: managers and root enable or disable accounts.
func CanUpdateUserStatus(p datatypes.Principal) error {
	if !p.IsElevated() {
		return deny("only managers and root can change account status")
	}
	return nil
}

// CanUpdateUserProfile covers name, email, and password: the account owner
// or an elevated role.
func CanUpdateUserProfile(p datatypes.Principal, targetID string) error {
	if p.ID == targetID || p.IsElevated() {
		return nil
	}
	return deny("cannot modify another user's profile")
}

// CanListUsers: the full account list is administrative.
func CanListUsers(p datatypes.Principal) error {
	if !p.IsElevated() {
		return deny("only managers and root can list users")
	}
	return nil
}

// CanReadUser: self or elevated.
func CanReadUser(p datatypes.Principal, targetID string) error {
	if p.ID == targetID || p.IsElevated() {
		return nil
	}
	return deny("cannot read another user's account")
}

// --- User groups ---

// CanCreateUserGroup / CanDeleteUserGroup: root only.
func CanCreateUserGroup(p datatypes.Principal) error {
	if !p.IsRoot() {
		return deny("only root can create user groups")
	}
	return nil
}

func CanDeleteUserGroup(p datatypes.Principal) error {
	if !p.IsRoot() {
		return deny("only root can delete user groups")
	}
	return nil
}

// CanToggleUserGroupStatus: root or a manager of that group.
func CanToggleUserGroupStatus(p datatypes.Principal, g *datatypes.UserGroup) error {
	if p.IsRoot() || g.HasManager(p.ID) {
		return nil
	}
	return deny("only root or a group manager can change group status")
}

// CanEditUserGroupMembers covers adding and removing members: root or a
// manager of that group.
func CanEditUserGroupMembers(p datatypes.Principal, g *datatypes.UserGroup) error {
	if p.IsRoot() || g.HasManager(p.ID) {
		return nil
	}
	return deny("only root or a group manager can edit membership")
}

// CanAssignGroupManager: root only, and the appointee must already hold
// the manager or root role.
func CanAssignGroupManager(p datatypes.Principal, appointee *datatypes.User) error {
	if !p.IsRoot() {
		return deny("only root can assign group managers")
	}
	if appointee.Role != datatypes.RoleManager && appointee.Role != datatypes.RoleRoot {
		return apperrors.New(apperrors.KindBadRequest,
			"group managers must hold the manager or root role")
	}
	return nil
}

// CanRevokeGroupManager: root only. No role constraint on the way out.
func CanRevokeGroupManager(p datatypes.Principal) error {
	if p.IsRoot() {
		return nil
	}
	return deny("only root can revoke group managers")
}

// CanSeeUserGroup governs listing visibility: root sees everything,
// managers see groups they manage (disabled included, so they can turn
// them back on), plain members see only their active groups.
func CanSeeUserGroup(p datatypes.Principal, g *datatypes.UserGroup) bool {
	if p.IsRoot() {
		return true
	}
	if g.HasManager(p.ID) {
		return true
	}
	return g.HasMember(p.ID) && g.Status == datatypes.StatusActive
}

// --- Conversations ---

// CanReadConversation: the owner, or anyone sharing a user group with the
// conversation's share list.
func CanReadConversation(p datatypes.Principal, c *datatypes.Conversation) error {
	if c.OwnerID == p.ID {
		return nil
	}
	for _, gid := range c.SharedWithGroupIDs {
		if p.InGroup(gid) {
			return nil
		}
	}
	return deny("no access to this conversation")
}

// CanWriteConversation: record mutations (rename, share, delete) are
// owner-only. Streaming a turn follows the read rule instead, so shared
// readers can continue a conversation they can see.
func CanWriteConversation(p datatypes.Principal, c *datatypes.Conversation) error {
	if c.OwnerID != p.ID {
		return deny("only the owner can modify this conversation")
	}
	return nil
}

// --- Files ---

// CanUploadFile checks the scope rules: system uploads are administrative,
// and project-scoped uploads must name their project.
func CanUploadFile(p datatypes.Principal, scope, projectID string) error {
	switch scope {
	case datatypes.ScopeSystem:
		if !p.IsElevated() {
			return deny("only managers and root can upload system files")
		}
	case datatypes.ScopeUserGlobal:
		// Any authenticated user.
	case datatypes.ScopeUserProject:
		if projectID == "" {
			return apperrors.New(apperrors.KindBadRequest,
				"project_id is required for project-scoped files")
		}
	default:
		return apperrors.Newf(apperrors.KindBadRequest, "unknown file scope %q", scope)
	}
	return nil
}

// CanReadFile: system files are readable by anyone authenticated; global
// personal files only by their uploader; project files by the uploader or
// an elevated role.
func CanReadFile(p datatypes.Principal, f *datatypes.File) error {
	switch f.Scope {
	case datatypes.ScopeSystem:
		return nil
	case datatypes.ScopeUserGlobal:
		if f.UploadedBy == p.ID {
			return nil
		}
		return deny("no access to this file")
	case datatypes.ScopeUserProject:
		if f.UploadedBy == p.ID || p.IsElevated() {
			return nil
		}
		return deny("no access to this file")
	default:
		return deny("no access to this file")
	}
}

// CanDeleteFile: the uploader or an elevated role.
func CanDeleteFile(p datatypes.Principal, f *datatypes.File) error {
	if f.UploadedBy == p.ID || p.IsElevated() {
		return nil
	}
	return deny("only the uploader or a manager can delete this file")
}

// CanPromoteFile lifts a personal file into system scope; administrative.
func CanPromoteFile(p datatypes.Principal) error {
	if !p.IsElevated() {
		return deny("only managers and root can promote files")
	}
	return nil
}

// --- Administration ---

// CanToggleMaintenance: root only.
func CanToggleMaintenance(p datatypes.Principal) error {
	if !p.IsRoot() {
		return deny("only root can toggle maintenance mode")
	}
	return nil
}

// CanManageModels covers pulling models into the local registry.
func CanManageModels(p datatypes.Principal) error {
	if !p.IsElevated() {
		return deny("only managers and root can manage models")
	}
	return nil
}
