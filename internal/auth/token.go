// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	TokenBytes      = 32             // 32 bytes = 64 hex chars, 256 bits of entropy
	DefaultTokenTTL = 24 * time.Hour // default session expiry
)

// Token represents a stored session token. Only the SHA-256 hash of the
// opaque value is persisted; the plaintext is returned to the caller once at
// issuance and never stored.
//
// A token value, once issued, is never reassigned to a different user.
// InvalidatedAt, once set, is never cleared.
type Token struct {
	ID            ulid.ULID
	UserID        ulid.ULID
	TokenHash     string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	InvalidatedAt *time.Time
}

// NewToken creates a validated Token bound to a user.
func NewToken(userID ulid.ULID, tokenHash string, expiresAt time.Time) (*Token, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("TOKEN_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &Token{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		IssuedAt:  time.Now(),
		ExpiresAt: expiresAt,
	}, nil
}

// IsExpired returns true if the token has expired.
func (t *Token) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsExpiredAt returns true if the token would be expired at the given time.
// Useful for testing with deterministic time values.
func (t *Token) IsExpiredAt(at time.Time) bool {
	return at.After(t.ExpiresAt)
}

// IsInvalidated returns true if the token has been permanently invalidated.
func (t *Token) IsInvalidated() bool {
	return t.InvalidatedAt != nil
}

// GenerateToken creates a secure random token value and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is handed to the caller; the hash is stored.
func GenerateToken() (token, hash string, err error) {
	raw := make([]byte, TokenBytes)
	if _, err = rand.Read(raw); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(raw)
	hash = HashToken(token)

	return token, hash, nil
}

// HashToken computes the SHA-256 hash of a token value. This is what gets
// persisted, so a leaked store does not leak usable tokens.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyTokenHash checks if the plaintext token matches the stored hash.
// Uses constant-time comparison to prevent timing attacks.
func VerifyTokenHash(token, hash string) (bool, error) {
	if token == "" {
		return false, oops.Code("TOKEN_EMPTY").Errorf("token cannot be empty")
	}
	if hash == "" {
		return false, oops.Code("TOKEN_HASH_EMPTY").Errorf("stored hash cannot be empty")
	}
	computed := HashToken(token)
	// Both are hex-encoded SHA-256 hashes (64 chars), use constant-time compare
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1, nil
}

// TokenRepository manages durable token persistence. Tokens are exclusively
// owned by the token service; no other component stores or derives them.
type TokenRepository interface {
	// Create stores a new token.
	Create(ctx context.Context, token *Token) error

	// GetByHash retrieves a token by its hash, whatever its state.
	GetByHash(ctx context.Context, tokenHash string) (*Token, error)

	// Invalidate marks an active token as invalidated. Returns ErrNotFound
	// if the token is unknown or already invalidated; the transition is
	// one-way and happens at most once.
	Invalidate(ctx context.Context, tokenHash string, at time.Time) error

	// InvalidateAllForUser invalidates every active token for a user and
	// returns the count affected.
	InvalidateAllForUser(ctx context.Context, userID ulid.ULID, at time.Time) (int64, error)

	// DeleteExpired removes tokens whose expiry has passed and returns the
	// count of deleted records. Invalidated rows are kept until expiry so an
	// invalidated token can never be re-issued meanwhile.
	DeleteExpired(ctx context.Context) (int64, error)
}
