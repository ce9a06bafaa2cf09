// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package settings stores per-user preferences. A user with no stored
// record reads as the defaults; updates are partial merges, so omitted
// fields keep their current values.
package settings

import (
	"context"
	"time"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/docstore"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

const collection = "user_settings"

// Patch is a partial settings update. Nil fields are left untouched.
type Patch struct {
	PromptCustomization *string `json:"prompt_customization"`
	Theme               *string `json:"theme"`
	Language            *string `json:"language"`
}

// Service reads and merges user settings.
type Service struct {
	ds docstore.Store
}

func NewService(ds docstore.Store) *Service {
	return &Service{ds: ds}
}

// Get returns the stored settings, or the defaults when none exist.
// Absence is not an error.
func (s *Service) Get(ctx context.Context, userID string) (*datatypes.UserSettings, error) {
	doc, err := s.ds.FindOne(ctx, collection, docstore.Filter{"user_id": userID})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "read settings", err)
	}
	if doc == nil {
		out := datatypes.DefaultSettings(userID)
		return &out, nil
	}
	return decode(doc, userID)
}

// Update applies a partial patch and returns the merged record. Enum
// fields are validated before anything is written.
func (s *Service) Update(ctx context.Context, userID string, patch Patch) (*datatypes.UserSettings, error) {
	if patch.Theme != nil && !datatypes.ValidTheme(*patch.Theme) {
		return nil, apperrors.Newf(apperrors.KindBadRequest, "unknown theme %q", *patch.Theme)
	}
	if patch.Language != nil && !datatypes.ValidLanguage(*patch.Language) {
		return nil, apperrors.Newf(apperrors.KindBadRequest, "unknown language %q", *patch.Language)
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if patch.PromptCustomization != nil {
		current.PromptCustomization = *patch.PromptCustomization
	}
	if patch.Theme != nil {
		current.Theme = *patch.Theme
	}
	if patch.Language != nil {
		current.Language = *patch.Language
	}
	current.UpdatedAt = time.Now().UTC()

	doc := docstore.Document{
		"user_id":              current.UserID,
		"prompt_customization": current.PromptCustomization,
		"theme":                current.Theme,
		"language":             current.Language,
		"updated_at":           current.UpdatedAt.Format(time.RFC3339Nano),
	}

	existing, err := s.ds.FindOne(ctx, collection, docstore.Filter{"user_id": userID})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "read settings", err)
	}
	if existing == nil {
		if _, err := s.ds.Create(ctx, collection, doc); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "write settings", err)
		}
		return current, nil
	}
	id, _ := existing["id"].(string)
	if _, err := s.ds.Update(ctx, collection, id, doc); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "write settings", err)
	}
	return current, nil
}

// PromptCustomization is the chat engine's view: just the preference
// string, defaults folded in.
func (s *Service) PromptCustomization(ctx context.Context, userID string) (string, error) {
	st, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return st.PromptCustomization, nil
}

func decode(doc docstore.Document, userID string) (*datatypes.UserSettings, error) {
	out := datatypes.DefaultSettings(userID)
	if v, ok := doc["prompt_customization"].(string); ok {
		out.PromptCustomization = v
	}
	if v, ok := doc["theme"].(string); ok && datatypes.ValidTheme(v) {
		out.Theme = v
	}
	if v, ok := doc["language"].(string); ok && datatypes.ValidLanguage(v) {
		out.Language = v
	}
	if v, ok := doc["updated_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			out.UpdatedAt = ts
		}
	}
	return &out, nil
}
