// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package auth implements principal resolution for the gateway: local
// credential auth with signed tokens, and header-trusting SSO behind a
// reverse proxy. The two modes are mutually exclusive per deployment.
package auth

import (
	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"golang.org/x/crypto/bcrypt"
)

// Clients never send plaintext passwords. They send the lowercase hex
// SHA-256 digest of the password, and the server stores a bcrypt hash of
// that digest. The plaintext never transits or rests anywhere.
const digestLength = 64

// ValidateDigest rejects anything that is not a 64-character lowercase hex
// SHA-256 digest. A plaintext password sent by a misbehaving client fails
// here instead of being silently hashed.
func ValidateDigest(digest string) error {
	if len(digest) != digestLength {
		return apperrors.New(apperrors.KindBadRequest,
			"password must be the hex SHA-256 digest of the password")
	}
	for i := 0; i < len(digest); i++ {
		c := digest[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return apperrors.New(apperrors.KindBadRequest,
				"password digest must be lowercase hexadecimal")
		}
	}
	return nil
}

// HashDigest applies the server-side adaptive hash to a client digest.
func HashDigest(digest string) (string, error) {
	if err := ValidateDigest(digest); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(digest), bcrypt.DefaultCost)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, "failed to hash credential", err)
	}
	return string(hash), nil
}

// CompareDigest checks a client digest against the stored hash. The error
// is deliberately indistinguishable from an unknown account.
func CompareDigest(storedHash, digest string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(digest)); err != nil {
		return apperrors.New(apperrors.KindUnauthorized, "invalid credentials")
	}
	return nil
}
