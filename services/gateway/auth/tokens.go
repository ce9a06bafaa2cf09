// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
)

// Claims is the payload of an issued token. Role is a convenience for
// clients; authorization always re-reads the account record, so a stale
// role claim cannot grant anything.
type Claims struct {
	Subject string
	Role    string
}

// TokenIssuer signs and verifies HS256 session tokens for local auth mode.
type TokenIssuer struct {
	secret []byte
	expiry time.Duration
}

// NewTokenIssuer builds an issuer. The secret must come from deployment
// configuration; an empty secret is a startup error, not a default.
func NewTokenIssuer(secret string, expiry time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, apperrors.New(apperrors.KindInternal, "token secret is not configured")
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), expiry: expiry}, nil
}

// Issue creates a signed token for the given account.
func (t *TokenIssuer) Issue(userID, role string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(t.expiry).Unix(),
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, "failed to sign token", err)
	}
	return signed, nil
}

// Parse verifies a token and extracts its claims. Every failure mode maps
// to Unauthorized; callers should not distinguish expiry from forgery.
func (t *TokenIssuer) Parse(raw string) (Claims, error) {
	token, err := jwt.Parse(raw, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.Newf(apperrors.KindUnauthorized,
				"unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Claims{}, apperrors.Wrap(apperrors.KindUnauthorized, "invalid or expired token", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, apperrors.New(apperrors.KindUnauthorized, "invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" {
		return Claims{}, apperrors.New(apperrors.KindUnauthorized, "token has no subject")
	}
	return Claims{Subject: sub, Role: role}, nil
}
