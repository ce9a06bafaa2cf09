// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/docstore"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	ds, err := docstore.OpenBadger(docstore.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return NewService(ds)
}

func strPtr(s string) *string { return &s }

func TestDefaultsWhenUnset(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)

	got, err := svc.Get(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "", got.PromptCustomization)
	assert.Equal(t, datatypes.ThemeLight, got.Theme)
	assert.Equal(t, "en", got.Language)
}

func TestPartialMergePreservesOtherFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Update(ctx, "u-1", Patch{
		PromptCustomization: strPtr("Be concise."),
		Theme:               strPtr(datatypes.ThemeDark),
	})
	require.NoError(t, err)

	// Updating only the language must not clobber the other fields.
	got, err := svc.Update(ctx, "u-1", Patch{Language: strPtr("fr")})
	require.NoError(t, err)
	assert.Equal(t, "Be concise.", got.PromptCustomization)
	assert.Equal(t, datatypes.ThemeDark, got.Theme)
	assert.Equal(t, "fr", got.Language)

	// And the merge is persisted, not just returned.
	stored, err := svc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Be concise.", stored.PromptCustomization)
	assert.Equal(t, datatypes.ThemeDark, stored.Theme)
	assert.Equal(t, "fr", stored.Language)
}

func TestClearingPromptCustomization(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Update(ctx, "u-1", Patch{PromptCustomization: strPtr("Be concise.")})
	require.NoError(t, err)

	// An explicit empty string clears; a nil field would have preserved.
	got, err := svc.Update(ctx, "u-1", Patch{PromptCustomization: strPtr("")})
	require.NoError(t, err)
	assert.Equal(t, "", got.PromptCustomization)
}

func TestEnumValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Update(ctx, "u-1", Patch{Theme: strPtr("solarized")})
	assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err))

	_, err = svc.Update(ctx, "u-1", Patch{Language: strPtr("tlh")})
	assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err))

	// A rejected patch must not leave partial writes behind.
	got, err := svc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.ThemeLight, got.Theme)
}

func TestPerUserIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Update(ctx, "u-1", Patch{Theme: strPtr(datatypes.ThemeDark)})
	require.NoError(t, err)

	other, err := svc.Get(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, datatypes.ThemeLight, other.Theme)
}
