// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/pkg/config"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

// SSOResolver trusts identity headers injected by an authenticating reverse
// proxy. It only makes sense when the app is unreachable except through
// that proxy. Unknown identities are provisioned on first sight.
type SSOResolver struct {
	users  UserDirectory
	cfg    config.SSOConfig
	logger *slog.Logger
}

func NewSSOResolver(users UserDirectory, cfg config.SSOConfig, logger *slog.Logger) *SSOResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSOResolver{users: users, cfg: cfg, logger: logger}
}

func (s *SSOResolver) Resolve(ctx context.Context, r *http.Request) (datatypes.Principal, error) {
	email := normalizeEmail(r.Header.Get(s.cfg.EmailHeader))
	if email == "" {
		// The proxy always sets this header for authenticated traffic, so a
		// missing value means the request bypassed the proxy.
		return datatypes.Principal{}, apperrors.New(apperrors.KindUnauthorized,
			"missing identity header")
	}
	name := strings.TrimSpace(r.Header.Get(s.cfg.NameHeader))

	user, err := s.ensureUser(ctx, email, name)
	if err != nil {
		return datatypes.Principal{}, err
	}
	if user.Status != datatypes.StatusActive {
		return datatypes.Principal{}, apperrors.New(apperrors.KindForbidden, "account is disabled")
	}
	return user.Principal(), nil
}

// ensureUser reads or provisions the account. Concurrent first requests
// for the same identity race on the unique email index; the loser of the
// race re-reads the winner's record.
func (s *SSOResolver) ensureUser(ctx context.Context, email, name string) (*datatypes.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	if name == "" {
		name = localPart(email)
	}
	now := time.Now().UTC()
	created, err := s.users.Create(ctx, &datatypes.User{
		Name:      name,
		Email:     email,
		Role:      datatypes.RoleUser,
		Status:    datatypes.StatusActive,
		GroupIDs:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if apperrors.KindOf(err) == apperrors.KindConflict {
		user, err = s.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, apperrors.New(apperrors.KindInternal, "account provisioning race left no record")
		}
		return user, nil
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("Provisioned SSO user", "user_id", created.ID, "email", email)
	return created, nil
}

var _ Resolver = (*SSOResolver)(nil)
var _ Resolver = (*TokenResolver)(nil)
