// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

// Package authtest provides in-memory repository implementations for tests.
//
// The fakes reproduce the concurrency contracts of the real repositories:
// Create is an atomic check-and-insert on login, and permission grant/revoke
// apply set-deltas under the same lock, so service-level concurrency
// properties hold without a database.
package authtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/authgate/authgate/internal/auth"
)

// MemoryUserRepository is a mutex-guarded auth.UserRepository.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[ulid.ULID]*auth.User

	// NextErr, when non-nil, is returned by the next repository call and
	// then cleared. Used to exercise transient-failure retry paths.
	NextErr error
}

// NewMemoryUserRepository creates an empty MemoryUserRepository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[ulid.ULID]*auth.User)}
}

func (r *MemoryUserRepository) takeErr() error {
	err := r.NextErr
	r.NextErr = nil
	return err
}

// Create implements the atomic check-and-insert contract.
func (r *MemoryUserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return err
	}
	for _, existing := range r.users {
		if strings.EqualFold(existing.Login, user.Login) {
			return auth.ErrDuplicateLogin
		}
	}
	r.users[user.ID] = cloneUser(user)
	return nil
}

// GetByID returns a copy of the stored user.
func (r *MemoryUserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return nil, err
	}
	user, ok := r.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneUser(user), nil
}

// GetByLogin returns a copy of the stored user (case-insensitive login).
func (r *MemoryUserRepository) GetByLogin(_ context.Context, login string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return nil, err
	}
	for _, user := range r.users {
		if strings.EqualFold(user.Login, login) {
			return cloneUser(user), nil
		}
	}
	return nil, auth.ErrNotFound
}

// List returns a snapshot of all users ordered by ID.
func (r *MemoryUserRepository) List(_ context.Context) ([]*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return nil, err
	}
	out := make([]*auth.User, 0, len(r.users))
	for _, user := range r.users {
		out = append(out, cloneUser(user))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out, nil
}

// UpdatePassword replaces the password hash.
func (r *MemoryUserRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return err
	}
	user, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now()
	return nil
}

// GrantPermissions applies an additive set-delta under the repository lock.
func (r *MemoryUserRepository) GrantPermissions(_ context.Context, id ulid.ULID, names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return err
	}
	user, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.Permissions = auth.NormalizePermissions(append(user.Permissions, names...))
	user.UpdatedAt = time.Now()
	return nil
}

// RevokePermissions applies a subtractive set-delta under the repository lock.
func (r *MemoryUserRepository) RevokePermissions(_ context.Context, id ulid.ULID, names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return err
	}
	user, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	kept := user.Permissions[:0]
	for _, p := range user.Permissions {
		if _, ok := drop[p]; !ok {
			kept = append(kept, p)
		}
	}
	user.Permissions = kept
	user.UpdatedAt = time.Now()
	return nil
}

// SetEnabled updates the enabled flag.
func (r *MemoryUserRepository) SetEnabled(_ context.Context, id ulid.ULID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return err
	}
	user, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.Enabled = enabled
	user.UpdatedAt = time.Now()
	return nil
}

func cloneUser(u *auth.User) *auth.User {
	cp := *u
	cp.Permissions = append([]string(nil), u.Permissions...)
	return &cp
}

// MemoryTokenRepository is a mutex-guarded auth.TokenRepository.
type MemoryTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*auth.Token // keyed by token hash

	// NextErr, when non-nil, is returned by the next repository call and
	// then cleared.
	NextErr error
}

// NewMemoryTokenRepository creates an empty MemoryTokenRepository.
func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{tokens: make(map[string]*auth.Token)}
}

func (r *MemoryTokenRepository) takeErr() error {
	err := r.NextErr
	r.NextErr = nil
	return err
}

// Create stores a new token.
func (r *MemoryTokenRepository) Create(_ context.Context, token *auth.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return err
	}
	cp := *token
	r.tokens[token.TokenHash] = &cp
	return nil
}

// GetByHash retrieves a token by hash.
func (r *MemoryTokenRepository) GetByHash(_ context.Context, tokenHash string) (*auth.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return nil, err
	}
	token, ok := r.tokens[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *token
	return &cp, nil
}

// Invalidate marks an active token invalidated, once.
func (r *MemoryTokenRepository) Invalidate(_ context.Context, tokenHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return err
	}
	token, ok := r.tokens[tokenHash]
	if !ok || token.InvalidatedAt != nil {
		return auth.ErrNotFound
	}
	token.InvalidatedAt = &at
	return nil
}

// InvalidateAllForUser invalidates every active token for a user.
func (r *MemoryTokenRepository) InvalidateAllForUser(_ context.Context, userID ulid.ULID, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return 0, err
	}
	var n int64
	for _, token := range r.tokens {
		if token.UserID.Compare(userID) == 0 && token.InvalidatedAt == nil {
			token.InvalidatedAt = &at
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes expired tokens.
func (r *MemoryTokenRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return 0, err
	}
	var n int64
	now := time.Now()
	for hash, token := range r.tokens {
		if now.After(token.ExpiresAt) {
			delete(r.tokens, hash)
			n++
		}
	}
	return n, nil
}

// Verify interfaces are satisfied.
var (
	_ auth.UserRepository  = (*MemoryUserRepository)(nil)
	_ auth.TokenRepository = (*MemoryTokenRepository)(nil)
)
