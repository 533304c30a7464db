// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
)

func tokenColumnNames() []string {
	return []string{"id", "user_id", "token_hash", "issued_at", "expires_at", "invalidated_at"}
}

func sampleToken(t *testing.T) *auth.Token {
	t.Helper()
	token, err := auth.NewToken(ulid.Make(), auth.HashToken("value"), time.Now().Add(time.Hour))
	require.NoError(t, err)
	return token
}

func TestTokenRepository_Create(t *testing.T) {
	token := sampleToken(t)

	t.Run("successful insert", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO tokens`).
			WithArgs(token.ID.String(), token.UserID.String(), token.TokenHash,
				token.IssuedAt, token.ExpiresAt, token.InvalidatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := NewTokenRepository(mock)
		assert.NoError(t, repo.Create(context.Background(), token))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO tokens`).
			WithArgs(token.ID.String(), token.UserID.String(), token.TokenHash,
				token.IssuedAt, token.ExpiresAt, token.InvalidatedAt).
			WillReturnError(errors.New("connection refused"))

		repo := NewTokenRepository(mock)
		assert.Error(t, repo.Create(context.Background(), token))

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenRepository_GetByHash(t *testing.T) {
	token := sampleToken(t)

	t.Run("found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rows := pgxmock.NewRows(tokenColumnNames()).
			AddRow(token.ID.String(), token.UserID.String(), token.TokenHash,
				token.IssuedAt, token.ExpiresAt, token.InvalidatedAt)
		mock.ExpectQuery(`FROM tokens\s+WHERE token_hash = \$1`).
			WithArgs(token.TokenHash).
			WillReturnRows(rows)

		repo := NewTokenRepository(mock)
		got, err := repo.GetByHash(context.Background(), token.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, token.ID, got.ID)
		assert.Equal(t, token.UserID, got.UserID)
		assert.Nil(t, got.InvalidatedAt)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalidated token round-trips its timestamp", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		at := time.Now()
		rows := pgxmock.NewRows(tokenColumnNames()).
			AddRow(token.ID.String(), token.UserID.String(), token.TokenHash,
				token.IssuedAt, token.ExpiresAt, &at)
		mock.ExpectQuery(`FROM tokens\s+WHERE token_hash = \$1`).
			WithArgs(token.TokenHash).
			WillReturnRows(rows)

		repo := NewTokenRepository(mock)
		got, err := repo.GetByHash(context.Background(), token.TokenHash)
		require.NoError(t, err)
		require.NotNil(t, got.InvalidatedAt)
		assert.True(t, got.IsInvalidated())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM tokens\s+WHERE token_hash = \$1`).
			WithArgs("unknown").
			WillReturnRows(pgxmock.NewRows(tokenColumnNames()))

		repo := NewTokenRepository(mock)
		_, err = repo.GetByHash(context.Background(), "unknown")
		assert.ErrorIs(t, err, auth.ErrNotFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenRepository_Invalidate(t *testing.T) {
	hash := auth.HashToken("value")
	at := time.Now()

	tests := []struct {
		name    string
		rows    int64
		wantErr error
	}{
		{name: "active token invalidated", rows: 1},
		{name: "unknown or already invalidated", rows: 0, wantErr: auth.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(`UPDATE tokens SET invalidated_at = \$2\s+WHERE token_hash = \$1 AND invalidated_at IS NULL`).
				WithArgs(hash, at).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.rows))

			repo := NewTokenRepository(mock)
			err = repo.Invalidate(context.Background(), hash, at)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTokenRepository_InvalidateAllForUser(t *testing.T) {
	userID := ulid.Make()
	at := time.Now()

	t.Run("returns affected count", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE tokens SET invalidated_at = \$2\s+WHERE user_id = \$1 AND invalidated_at IS NULL`).
			WithArgs(userID.String(), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 3))

		repo := NewTokenRepository(mock)
		n, err := repo.InvalidateAllForUser(context.Background(), userID, at)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no active tokens is not an error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE tokens SET invalidated_at = \$2\s+WHERE user_id = \$1 AND invalidated_at IS NULL`).
			WithArgs(userID.String(), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewTokenRepository(mock)
		n, err := repo.InvalidateAllForUser(context.Background(), userID, at)
		require.NoError(t, err)
		assert.Zero(t, n)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenRepository_DeleteExpired(t *testing.T) {
	t.Run("returns deleted count", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`DELETE FROM tokens WHERE expires_at < \$1`).
			WithArgs(pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("DELETE", 5))

		repo := NewTokenRepository(mock)
		n, err := repo.DeleteExpired(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("timeout maps to transient", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`DELETE FROM tokens WHERE expires_at < \$1`).
			WithArgs(pgxmock.AnyArg()).
			WillReturnError(context.DeadlineExceeded)

		repo := NewTokenRepository(mock)
		_, err = repo.DeleteExpired(context.Background())
		assert.ErrorIs(t, err, auth.ErrTransient)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
