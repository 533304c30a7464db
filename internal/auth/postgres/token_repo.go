// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// TokenRepository implements auth.TokenRepository using PostgreSQL.
//
// Invalidation is a one-way conditional update: the WHERE clause only
// matches active rows, so an already-invalidated token reports
// auth.ErrNotFound and the original invalidation timestamp is never
// overwritten.
type TokenRepository struct {
	db DB
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create stores a new token.
func (r *TokenRepository) Create(ctx context.Context, token *auth.Token) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tokens (id, user_id, token_hash, issued_at, expires_at, invalidated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		token.ID.String(),
		token.UserID.String(),
		token.TokenHash,
		token.IssuedAt,
		token.ExpiresAt,
		token.InvalidatedAt,
	)
	if err != nil {
		return wrapStoreErr("TOKEN_CREATE_FAILED", err)
	}
	return nil
}

// GetByHash retrieves a token by its hash, whatever its state.
func (r *TokenRepository) GetByHash(ctx context.Context, tokenHash string) (*auth.Token, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, token_hash, issued_at, expires_at, invalidated_at
		FROM tokens
		WHERE token_hash = $1
	`, tokenHash)

	token, err := r.scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, wrapStoreErr("TOKEN_GET_BY_HASH_FAILED", err)
	}
	return token, nil
}

// Invalidate marks an active token invalidated. Matching only active rows
// makes the transition one-shot; retries and replays surface ErrNotFound.
func (r *TokenRepository) Invalidate(ctx context.Context, tokenHash string, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE tokens SET invalidated_at = $2
		WHERE token_hash = $1 AND invalidated_at IS NULL
	`, tokenHash, at)
	if err != nil {
		return wrapStoreErr("TOKEN_INVALIDATE_FAILED", err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// InvalidateAllForUser invalidates every active token for a user.
func (r *TokenRepository) InvalidateAllForUser(ctx context.Context, userID ulid.ULID, at time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE tokens SET invalidated_at = $2
		WHERE user_id = $1 AND invalidated_at IS NULL
	`, userID.String(), at)
	if err != nil {
		return 0, wrapStoreErr("TOKEN_INVALIDATE_ALL_FAILED", err)
	}
	// No ErrNotFound when nothing matched - a user with no active tokens is
	// a valid state.
	return result.RowsAffected(), nil
}

// DeleteExpired removes tokens whose expiry has passed and returns the count.
func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM tokens WHERE expires_at < $1
	`, time.Now())
	if err != nil {
		return 0, wrapStoreErr("TOKEN_DELETE_EXPIRED_FAILED", err)
	}
	return result.RowsAffected(), nil
}

// scanToken scans a single row into a Token.
// Callers are responsible for handling pgx.ErrNoRows.
func (r *TokenRepository) scanToken(row pgx.Row) (*auth.Token, error) {
	var (
		idStr         string
		userIDStr     string
		tokenHash     string
		issuedAt      time.Time
		expiresAt     time.Time
		invalidatedAt *time.Time
	)

	err := row.Scan(&idStr, &userIDStr, &tokenHash, &issuedAt, &expiresAt, &invalidatedAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("TOKEN_SCAN_FAILED").
			With("operation", "scan token").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").
			With("operation", "parse token id").
			With("id", idStr).
			Wrap(err)
	}

	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	return &auth.Token{
		ID:            id,
		UserID:        userID,
		TokenHash:     tokenHash,
		IssuedAt:      issuedAt,
		ExpiresAt:     expiresAt,
		InvalidatedAt: invalidatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.TokenRepository = (*TokenRepository)(nil)
