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

// UserRepository implements auth.UserRepository using PostgreSQL.
//
// Login uniqueness is enforced by a unique index on LOWER(login), so the
// check and insert are a single atomic statement. Permission updates are
// single-statement set-deltas; concurrent grants and revokes of different
// names both apply.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user. A unique-index violation on login maps to
// auth.ErrDuplicateLogin.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, login, name, password_hash, permissions, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		user.ID.String(),
		user.Login,
		user.Name,
		user.PasswordHash,
		user.Permissions,
		user.Enabled,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_DUPLICATE_LOGIN").
				With("login", user.Login).
				Wrap(auth.ErrDuplicateLogin)
		}
		return wrapStoreErr("USER_CREATE_FAILED", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, login, name, password_hash, permissions, enabled, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, wrapStoreErr("USER_GET_BY_ID_FAILED", err)
	}
	return user, nil
}

// GetByLogin retrieves a user by login (case-insensitive).
func (r *UserRepository) GetByLogin(ctx context.Context, login string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, login, name, password_hash, permissions, enabled, created_at, updated_at
		FROM users
		WHERE LOWER(login) = LOWER($1)
	`, login)

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("login", login).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, wrapStoreErr("USER_GET_BY_LOGIN_FAILED", err)
	}
	return user, nil
}

// List returns all users ordered by ID.
func (r *UserRepository) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, login, name, password_hash, permissions, enabled, created_at, updated_at
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, wrapStoreErr("USER_LIST_FAILED", err)
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, oops.Code("USER_SCAN_FAILED").
				With("operation", "scan user row").
				Wrap(err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_ROWS_ERROR").
			With("operation", "iterate user rows").
			Wrap(err)
	}

	return users, nil
}

// UpdatePassword replaces only the password hash for a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, time.Now())
	if err != nil {
		return wrapStoreErr("USER_UPDATE_PASSWORD_FAILED", err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// GrantPermissions merges names into the user's set in one statement. The
// stored array stays deduplicated and sorted.
func (r *UserRepository) GrantPermissions(ctx context.Context, id ulid.ULID, names []string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET
			permissions = (
				SELECT COALESCE(array_agg(DISTINCT p ORDER BY p), '{}')
				FROM unnest(permissions || $2::text[]) AS p
			),
			updated_at = $3
		WHERE id = $1
	`, id.String(), names, time.Now())
	if err != nil {
		return wrapStoreErr("USER_GRANT_FAILED", err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RevokePermissions removes names from the user's set in one statement.
func (r *UserRepository) RevokePermissions(ctx context.Context, id ulid.ULID, names []string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET
			permissions = (
				SELECT COALESCE(array_agg(p ORDER BY p), '{}')
				FROM unnest(permissions) AS p
				WHERE p <> ALL($2::text[])
			),
			updated_at = $3
		WHERE id = $1
	`, id.String(), names, time.Now())
	if err != nil {
		return wrapStoreErr("USER_REVOKE_FAILED", err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetEnabled updates the enabled flag.
func (r *UserRepository) SetEnabled(ctx context.Context, id ulid.ULID, enabled bool) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET enabled = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), enabled, time.Now())
	if err != nil {
		return wrapStoreErr("USER_SET_ENABLED_FAILED", err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func (r *UserRepository) scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr        string
		login        string
		name         string
		passwordHash string
		permissions  []string
		enabled      bool
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(&idStr, &login, &name, &passwordHash, &permissions, &enabled, &createdAt, &updatedAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	if permissions == nil {
		permissions = []string{}
	}

	return &auth.User{
		ID:           id,
		Login:        login,
		Name:         name,
		PasswordHash: passwordHash,
		Permissions:  permissions,
		Enabled:      enabled,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
