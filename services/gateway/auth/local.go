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
	"net/mail"
	"strings"
	"time"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

// LocalService implements self-service registration and credential login.
type LocalService struct {
	users  UserDirectory
	issuer *TokenIssuer
	logger *slog.Logger
}

func NewLocalService(users UserDirectory, issuer *TokenIssuer, logger *slog.Logger) *LocalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalService{users: users, issuer: issuer, logger: logger}
}

// Register creates a new account with the user role. The digest is the
// client-side SHA-256 hex of the password.
func (s *LocalService) Register(ctx context.Context, name, email, digest string) (*datatypes.User, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		name = localPart(email)
	}
	hash, err := HashDigest(digest)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &datatypes.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         datatypes.RoleUser,
		Status:       datatypes.StatusActive,
		GroupIDs:     []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := s.users.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Registered local user", "user_id", created.ID, "email", email)
	return created, nil
}

// Login verifies credentials and issues a session token.
func (s *LocalService) Login(ctx context.Context, email, digest string) (string, *datatypes.User, error) {
	email = normalizeEmail(email)
	if err := ValidateDigest(digest); err != nil {
		return "", nil, err
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		// Same failure as a wrong password; do not leak which accounts exist.
		return "", nil, apperrors.New(apperrors.KindUnauthorized, "invalid credentials")
	}
	if err := CompareDigest(user.PasswordHash, digest); err != nil {
		return "", nil, err
	}
	if user.Status != datatypes.StatusActive {
		return "", nil, apperrors.New(apperrors.KindForbidden, "account is disabled")
	}
	token, err := s.issuer.Issue(user.ID, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// EnsureRoot creates the bootstrap root account if it does not exist yet.
// The credentials come from deployment configuration; without them local
// mode refuses to start rather than shipping a default password.
func (s *LocalService) EnsureRoot(ctx context.Context, name, email, digest string) error {
	email = normalizeEmail(email)
	if email == "" || digest == "" {
		return apperrors.New(apperrors.KindInternal,
			"root user email and password digest must be configured in local auth mode")
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	hash, err := HashDigest(digest)
	if err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		name = "root"
	}
	now := time.Now().UTC()
	_, err = s.users.Create(ctx, &datatypes.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         datatypes.RoleRoot,
		Status:       datatypes.StatusActive,
		GroupIDs:     []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if apperrors.KindOf(err) == apperrors.KindConflict {
		// Another replica won the bootstrap race.
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Info("Bootstrapped root user", "email", email)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return apperrors.New(apperrors.KindBadRequest, "email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperrors.New(apperrors.KindBadRequest, "invalid email address")
	}
	return nil
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
