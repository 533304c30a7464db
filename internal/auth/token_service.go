// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenService issues, resolves, and invalidates session tokens.
type TokenService struct {
	tokens TokenRepository
	ttl    time.Duration
}

// NewTokenService creates a TokenService. If ttl is zero, DefaultTokenTTL
// is used.
func NewTokenService(tokens TokenRepository, ttl time.Duration) (*TokenService, error) {
	if tokens == nil {
		return nil, oops.Code("TOKEN_SERVICE_INVALID").Errorf("token repository is required")
	}
	if ttl < 0 {
		return nil, oops.Code("TOKEN_SERVICE_INVALID").Errorf("ttl cannot be negative")
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{tokens: tokens, ttl: ttl}, nil
}

// Create issues a new token bound to userID and returns the plaintext value.
// Token values carry 256 bits of entropy, so collision between concurrent
// creates is negligible and needs no coordination.
func (s *TokenService) Create(ctx context.Context, userID ulid.ULID) (string, error) {
	value, hash, err := GenerateToken()
	if err != nil {
		return "", oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "generate token").
			Wrap(err)
	}

	token, err := NewToken(userID, hash, time.Now().Add(s.ttl))
	if err != nil {
		return "", oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "build token").
			Wrap(err)
	}

	if err := s.tokens.Create(ctx, token); err != nil {
		return "", oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "persist token").
			With("user_id", userID.String()).
			Wrap(err)
	}

	recordTokenIssued()
	return value, nil
}

// Resolve maps a token value to the user it authenticates as. Unknown,
// invalidated, and expired tokens all fail with ErrInvalidToken so a caller
// cannot probe whether a token ever existed. The distinction is recorded in
// metrics only.
func (s *TokenService) Resolve(ctx context.Context, value string) (ulid.ULID, error) {
	if value == "" {
		recordTokenResolved("empty")
		return ulid.ULID{}, invalidToken()
	}

	token, err := s.tokens.GetByHash(ctx, HashToken(value))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			recordTokenResolved("unknown")
			return ulid.ULID{}, invalidToken()
		}
		return ulid.ULID{}, oops.Code("TOKEN_RESOLVE_FAILED").
			With("operation", "get token by hash").
			Wrap(err)
	}

	if token.IsInvalidated() {
		recordTokenResolved("invalidated")
		return ulid.ULID{}, invalidToken()
	}
	if token.IsExpired() {
		recordTokenResolved("expired")
		return ulid.ULID{}, invalidToken()
	}

	recordTokenResolved("ok")
	return token.UserID, nil
}

// Invalidate permanently rejects a token. Invalidating an already-invalidated
// or unknown token fails with ErrInvalidToken; a double invalidation signals
// misuse rather than being silently absorbed.
func (s *TokenService) Invalidate(ctx context.Context, value string) error {
	if value == "" {
		return invalidToken()
	}

	err := s.tokens.Invalidate(ctx, HashToken(value), time.Now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidToken()
		}
		return oops.Code("TOKEN_INVALIDATE_FAILED").
			With("operation", "invalidate token").
			Wrap(err)
	}
	return nil
}

// InvalidateAllForUser invalidates every active token for a user. Used by
// password change and account disable.
func (s *TokenService) InvalidateAllForUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	n, err := s.tokens.InvalidateAllForUser(ctx, userID, time.Now())
	if err != nil {
		return 0, oops.Code("TOKEN_INVALIDATE_ALL_FAILED").
			With("operation", "invalidate tokens for user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return n, nil
}

// PurgeExpired removes expired tokens from the store and returns the count.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpired(ctx)
	if err != nil {
		return 0, oops.Code("TOKEN_PURGE_FAILED").
			With("operation", "delete expired tokens").
			Wrap(err)
	}
	return n, nil
}

// invalidToken builds the uniform failure surfaced for any unusable token.
func invalidToken() error {
	return oops.Code("TOKEN_INVALID").Wrapf(ErrInvalidToken, "invalid token")
}
