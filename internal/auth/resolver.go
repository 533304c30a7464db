// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// SessionResolver resolves an inbound token string into a user identity.
// The boundary layer calls Resolve before any core operation runs and rejects
// the request on ErrInvalidToken; on success it attaches the returned user ID
// to the request context. The caller identity handed to privileged operations
// must come from here, never from client-supplied input.
type SessionResolver interface {
	// Resolve returns the user ID a token authenticates as, or an error
	// matching ErrInvalidToken.
	Resolve(ctx context.Context, token string) (ulid.ULID, error)
}

// tokenSessionResolver adapts TokenService to the SessionResolver contract.
type tokenSessionResolver struct {
	tokens *TokenService
}

// NewSessionResolver creates a SessionResolver backed by the token service.
func NewSessionResolver(tokens *TokenService) SessionResolver {
	return &tokenSessionResolver{tokens: tokens}
}

func (r *tokenSessionResolver) Resolve(ctx context.Context, token string) (ulid.ULID, error) {
	return r.tokens.Resolve(ctx, token)
}

var _ SessionResolver = (*tokenSessionResolver)(nil)
