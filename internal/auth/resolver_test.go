// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/authtest"
)

func TestSessionResolver(t *testing.T) {
	ctx := context.Background()
	repo := authtest.NewMemoryTokenRepository()
	tokenSvc, err := auth.NewTokenService(repo, time.Hour)
	require.NoError(t, err)

	resolver := auth.NewSessionResolver(tokenSvc)

	t.Run("resolves issued token", func(t *testing.T) {
		userID := ulid.Make()
		value, err := tokenSvc.Create(ctx, userID)
		require.NoError(t, err)

		got, err := resolver.Resolve(ctx, value)
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	})

	t.Run("rejects unknown token", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "deadbeef")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
}
