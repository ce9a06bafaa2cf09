// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

var (
	rootP    = datatypes.Principal{ID: "root-1", Role: datatypes.RoleRoot}
	managerP = datatypes.Principal{ID: "mgr-1", Role: datatypes.RoleManager}
	userP    = datatypes.Principal{ID: "usr-1", Role: datatypes.RoleUser, GroupIDs: []string{"g-alpha"}}
	otherP   = datatypes.Principal{ID: "usr-2", Role: datatypes.RoleUser, GroupIDs: []string{"g-beta"}}
)

func TestUserAdministration(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CanCreateUser(rootP))
	assert.Error(t, CanCreateUser(managerP))
	assert.Error(t, CanCreateUser(userP))

	assert.NoError(t, CanDeleteUser(rootP, "usr-1"))
	assert.Error(t, CanDeleteUser(rootP, rootP.ID), "root cannot delete itself")
	assert.Error(t, CanDeleteUser(managerP, "usr-1"))

	assert.NoError(t, CanUpdateUserRole(managerP))
	assert.NoError(t, CanUpdateUserRole(rootP))
	assert.Error(t, CanUpdateUserRole(userP))

	assert.NoError(t, CanUpdateUserStatus(managerP))
	assert.Error(t, CanUpdateUserStatus(userP))

	assert.NoError(t, CanUpdateUserProfile(userP, userP.ID), "self-service profile edit")
	assert.NoError(t, CanUpdateUserProfile(managerP, userP.ID))
	assert.Error(t, CanUpdateUserProfile(userP, otherP.ID))

	assert.NoError(t, CanListUsers(managerP))
	assert.Error(t, CanListUsers(userP))

	assert.NoError(t, CanReadUser(userP, userP.ID))
	assert.Error(t, CanReadUser(userP, otherP.ID))
}

func TestUserGroupAdministration(t *testing.T) {
	t.Parallel()

	group := &datatypes.UserGroup{
		ID:         "g-alpha",
		ManagerIDs: []string{managerP.ID},
		MemberIDs:  []string{userP.ID},
	}

	assert.NoError(t, CanCreateUserGroup(rootP))
	assert.Error(t, CanCreateUserGroup(managerP), "group creation is root-only even for managers")
	assert.Error(t, CanDeleteUserGroup(managerP))

	assert.NoError(t, CanToggleUserGroupStatus(rootP, group))
	assert.NoError(t, CanToggleUserGroupStatus(managerP, group))
	assert.Error(t, CanToggleUserGroupStatus(userP, group))

	assert.NoError(t, CanEditUserGroupMembers(managerP, group))
	assert.Error(t, CanEditUserGroupMembers(otherP, group))

	// A manager of a different group gets no say here.
	stranger := datatypes.Principal{ID: "mgr-2", Role: datatypes.RoleManager}
	assert.Error(t, CanToggleUserGroupStatus(stranger, group))
	assert.Error(t, CanEditUserGroupMembers(stranger, group))
}

func TestAssignGroupManager(t *testing.T) {
	t.Parallel()

	manager := &datatypes.User{ID: "mgr-1", Role: datatypes.RoleManager}
	plain := &datatypes.User{ID: "usr-1", Role: datatypes.RoleUser}

	assert.NoError(t, CanAssignGroupManager(rootP, manager))
	assert.Error(t, CanAssignGroupManager(managerP, manager), "assignment is root-only")

	err := CanAssignGroupManager(rootP, plain)
	assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err),
		"appointing a plain user is a request error, not a permission error")
}

func TestUserGroupVisibility(t *testing.T) {
	t.Parallel()

	group := &datatypes.UserGroup{
		ID:         "g-alpha",
		Status:     datatypes.StatusActive,
		ManagerIDs: []string{managerP.ID},
		MemberIDs:  []string{userP.ID},
	}

	assert.True(t, CanSeeUserGroup(rootP, group))
	assert.True(t, CanSeeUserGroup(managerP, group))
	assert.True(t, CanSeeUserGroup(userP, group))
	assert.False(t, CanSeeUserGroup(otherP, group))

	// Disabling hides the group from plain members but not from the
	// people who can re-enable it.
	group.Status = datatypes.StatusDisabled
	assert.False(t, CanSeeUserGroup(userP, group))
	assert.True(t, CanSeeUserGroup(managerP, group))
	assert.True(t, CanSeeUserGroup(rootP, group))
}

func TestConversationAccess(t *testing.T) {
	t.Parallel()

	conv := &datatypes.Conversation{
		ID:                 "c-1",
		OwnerID:            otherP.ID,
		SharedWithGroupIDs: []string{"g-alpha"},
	}

	assert.NoError(t, CanReadConversation(otherP, conv), "owner reads")
	assert.NoError(t, CanReadConversation(userP, conv), "group member reads via share")
	assert.Error(t, CanReadConversation(managerP, conv), "manager role alone grants nothing")

	assert.NoError(t, CanWriteConversation(otherP, conv))
	assert.Error(t, CanWriteConversation(userP, conv), "record mutations stay owner-only")

	private := &datatypes.Conversation{ID: "c-2", OwnerID: otherP.ID}
	assert.Error(t, CanReadConversation(userP, private))
}

func TestFileUpload(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CanUploadFile(managerP, datatypes.ScopeSystem, ""))
	assert.NoError(t, CanUploadFile(rootP, datatypes.ScopeSystem, ""))
	assert.Error(t, CanUploadFile(userP, datatypes.ScopeSystem, ""))

	assert.NoError(t, CanUploadFile(userP, datatypes.ScopeUserGlobal, ""))

	assert.NoError(t, CanUploadFile(userP, datatypes.ScopeUserProject, "proj-1"))
	err := CanUploadFile(userP, datatypes.ScopeUserProject, "")
	assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err))

	err = CanUploadFile(userP, "bogus", "")
	assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err))
}

func TestFileReadAndDelete(t *testing.T) {
	t.Parallel()

	system := &datatypes.File{Scope: datatypes.ScopeSystem}
	global := &datatypes.File{Scope: datatypes.ScopeUserGlobal, UploadedBy: userP.ID}
	project := &datatypes.File{Scope: datatypes.ScopeUserProject, UploadedBy: userP.ID, ProjectID: "p-1"}

	assert.NoError(t, CanReadFile(userP, system))
	assert.NoError(t, CanReadFile(otherP, system))

	assert.NoError(t, CanReadFile(userP, global))
	assert.Error(t, CanReadFile(otherP, global))
	assert.Error(t, CanReadFile(managerP, global), "global personal files stay private even from managers")

	assert.NoError(t, CanReadFile(userP, project))
	assert.NoError(t, CanReadFile(managerP, project))
	assert.Error(t, CanReadFile(otherP, project))

	assert.NoError(t, CanDeleteFile(userP, global))
	assert.NoError(t, CanDeleteFile(managerP, global))
	assert.Error(t, CanDeleteFile(otherP, global))
}

func TestAdministrativeToggles(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CanToggleMaintenance(rootP))
	assert.Error(t, CanToggleMaintenance(managerP))
	assert.Error(t, CanToggleMaintenance(userP))

	assert.NoError(t, CanManageModels(managerP))
	assert.Error(t, CanManageModels(userP))

	assert.NoError(t, CanPromoteFile(managerP))
	assert.Error(t, CanPromoteFile(userP))
}
