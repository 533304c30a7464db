// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Login validation constraints.
const (
	MinLoginLength = 3
	MaxLoginLength = 30
)

// MinPasswordLength is the default password policy floor. Configurable via
// ServiceConfig.
const MinPasswordLength = 8

// loginRegex matches logins that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var loginRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// User represents an account in the security core.
//
// Login is unique across all live users (case-insensitive) and immutable
// after creation. PasswordHash is never the plaintext password and never
// empty once set.
type User struct {
	ID           ulid.ULID
	Login        string
	Name         string
	PasswordHash string
	Permissions  []string
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a validated User with an empty permission set.
// The passwordHash must already be produced by a PasswordHasher.
func NewUser(login, name, passwordHash string, enabled bool) (*User, error) {
	if err := ValidateLogin(login); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_EMPTY_HASH").
			Wrapf(ErrInvalidInput, "password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Login:        login,
		Name:         name,
		PasswordHash: passwordHash,
		Permissions:  []string{},
		Enabled:      enabled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasPermission reports whether the user holds the named permission.
// Membership is exact-match; no hierarchy, no wildcards.
func (u *User) HasPermission(name string) bool {
	for _, p := range u.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// ValidateLogin validates a login against rules.
// Login requirements:
// - Length: MinLoginLength to MaxLoginLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateLogin(login string) error {
	if login == "" {
		return oops.Code("AUTH_INVALID_LOGIN").
			Wrapf(ErrInvalidInput, "login cannot be empty")
	}
	if len(login) < MinLoginLength {
		return oops.Code("AUTH_INVALID_LOGIN").
			With("min", MinLoginLength).
			Wrapf(ErrInvalidInput, "login must be at least %d characters", MinLoginLength)
	}
	if len(login) > MaxLoginLength {
		return oops.Code("AUTH_INVALID_LOGIN").
			With("max", MaxLoginLength).
			Wrapf(ErrInvalidInput, "login must be at most %d characters", MaxLoginLength)
	}
	if !loginRegex.MatchString(login) {
		return oops.Code("AUTH_INVALID_LOGIN").
			Wrapf(ErrInvalidInput, "login must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// NormalizePermissions collapses duplicates and sorts the set. Insertion
// order is irrelevant by contract, so a canonical order keeps comparisons
// and storage stable.
func NormalizePermissions(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// UserRepository manages durable user persistence (the credential store).
type UserRepository interface {
	// Create stores a new user. The uniqueness check and insert are atomic:
	// two concurrent creates with the same login yield exactly one success
	// and one ErrDuplicateLogin.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByLogin retrieves a user by login (case-insensitive).
	GetByLogin(ctx context.Context, login string) (*User, error)

	// List returns a single consistent snapshot of all users, ordered by ID.
	List(ctx context.Context) ([]*User, error)

	// UpdatePassword replaces only the password hash for a user.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// GrantPermissions adds the named permissions to the user's set as an
	// atomic set-delta. Granting an already-held permission is a no-op.
	GrantPermissions(ctx context.Context, id ulid.ULID, names []string) error

	// RevokePermissions removes the named permissions from the user's set as
	// an atomic set-delta. Revoking an absent permission is a no-op.
	RevokePermissions(ctx context.Context, id ulid.ULID, names []string) error

	// SetEnabled updates the enabled flag.
	SetEnabled(ctx context.Context, id ulid.ULID, enabled bool) error
}
