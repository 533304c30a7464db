// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// PermissionAdmin gates privileged user-management operations.
const PermissionAdmin = "admin"

// Guard performs per-call permission checks against the credential store.
// Decisions are never cached; every call re-reads the user's current set.
type Guard struct {
	users UserRepository
}

// NewGuard creates a Guard.
func NewGuard(users UserRepository) (*Guard, error) {
	if users == nil {
		return nil, oops.Code("GUARD_INVALID").Errorf("user repository is required")
	}
	return &Guard{users: users}, nil
}

// RequirePermission fails with ErrNotFound if the user does not exist and
// ErrForbidden if the named permission is absent from the user's set.
// Succeeds with no observable side effect otherwise.
func (g *Guard) RequirePermission(ctx context.Context, userID ulid.ULID, permission string) error {
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			recordPermissionCheck("unknown_user")
			return oops.Code("GUARD_USER_NOT_FOUND").
				With("user_id", userID.String()).
				Wrap(err)
		}
		return oops.Code("GUARD_CHECK_FAILED").
			With("operation", "get user by id").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if !user.HasPermission(permission) {
		recordPermissionCheck("denied")
		return oops.Code("GUARD_FORBIDDEN").
			With("user_id", userID.String()).
			With("permission", permission).
			Wrapf(ErrForbidden, "missing permission %q", permission)
	}

	recordPermissionCheck("allowed")
	return nil
}
