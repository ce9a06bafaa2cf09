// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

// UserDirectory is the slice of the user store the auth layer needs.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*datatypes.User, error)
	GetByEmail(ctx context.Context, email string) (*datatypes.User, error)
	Create(ctx context.Context, u *datatypes.User) (*datatypes.User, error)
}

// Resolver turns an incoming request into a Principal. The resolver never
// trusts request-carried role or group claims: it re-reads the account
// record on every request.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (datatypes.Principal, error)
}

// TokenResolver resolves principals from Bearer tokens (local auth mode).
type TokenResolver struct {
	issuer *TokenIssuer
	users  UserDirectory
}

func NewTokenResolver(issuer *TokenIssuer, users UserDirectory) *TokenResolver {
	return &TokenResolver{issuer: issuer, users: users}
}

func (t *TokenResolver) Resolve(ctx context.Context, r *http.Request) (datatypes.Principal, error) {
	raw := bearerToken(r)
	if raw == "" {
		return datatypes.Principal{}, apperrors.New(apperrors.KindUnauthorized, "missing bearer token")
	}
	claims, err := t.issuer.Parse(raw)
	if err != nil {
		return datatypes.Principal{}, err
	}
	user, err := t.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return datatypes.Principal{}, err
	}
	if user == nil {
		return datatypes.Principal{}, apperrors.New(apperrors.KindUnauthorized, "account no longer exists")
	}
	if user.Status != datatypes.StatusActive {
		return datatypes.Principal{}, apperrors.New(apperrors.KindForbidden, "account is disabled")
	}
	return user.Principal(), nil
}

// StaticResolver hands every request the same principal. Used for
// auth mode "none", where the deployment trusts its network boundary
// and runs single-tenant.
type StaticResolver struct {
	Principal datatypes.Principal
}

func (s StaticResolver) Resolve(context.Context, *http.Request) (datatypes.Principal, error) {
	return s.Principal, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
