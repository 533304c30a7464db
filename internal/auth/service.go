// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// transientRetryDelay is the pause before the single retry allowed on a
// transient store failure.
const transientRetryDelay = 100 * time.Millisecond

// UserServiceConfig tunes policy decisions.
type UserServiceConfig struct {
	// MinPasswordLength is the password policy floor, enforced before
	// hashing. Zero means MinPasswordLength (the package default).
	MinPasswordLength int

	// EnabledByDefault controls the enabled flag of newly registered users.
	EnabledByDefault bool
}

// DefaultUserServiceConfig returns the default policy: 8-character minimum
// passwords, accounts enabled at registration.
func DefaultUserServiceConfig() UserServiceConfig {
	return UserServiceConfig{
		MinPasswordLength: MinPasswordLength,
		EnabledByDefault:  true,
	}
}

// UserService orchestrates the credential store, password hasher, guard, and
// token service.
type UserService struct {
	users  UserRepository
	hasher PasswordHasher
	guard  *Guard
	tokens *TokenService
	cfg    UserServiceConfig
	logger *slog.Logger
}

// NewUserService creates a UserService.
func NewUserService(users UserRepository, hasher PasswordHasher, guard *Guard, tokens *TokenService, cfg UserServiceConfig) (*UserService, error) {
	return NewUserServiceWithLogger(users, hasher, guard, tokens, cfg, slog.Default())
}

// NewUserServiceWithLogger creates a UserService with an explicit logger.
func NewUserServiceWithLogger(users UserRepository, hasher PasswordHasher, guard *Guard, tokens *TokenService, cfg UserServiceConfig, logger *slog.Logger) (*UserService, error) {
	if users == nil {
		return nil, oops.Code("USER_SERVICE_INVALID").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("USER_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if guard == nil {
		return nil, oops.Code("USER_SERVICE_INVALID").Errorf("guard is required")
	}
	if tokens == nil {
		return nil, oops.Code("USER_SERVICE_INVALID").Errorf("token service is required")
	}
	if logger == nil {
		return nil, oops.Code("USER_SERVICE_INVALID").Errorf("logger is required")
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = MinPasswordLength
	}
	return &UserService{
		users:  users,
		hasher: hasher,
		guard:  guard,
		tokens: tokens,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// validatePassword enforces the password policy before hashing.
func (s *UserService) validatePassword(password string) error {
	if len(password) < s.cfg.MinPasswordLength {
		return oops.Code("AUTH_WEAK_PASSWORD").
			With("min", s.cfg.MinPasswordLength).
			Wrapf(ErrWeakPassword, "password must be at least %d characters", s.cfg.MinPasswordLength)
	}
	return nil
}

// Register creates a new user with an empty permission set and returns its
// ID. Policy checks happen before hashing. Token issuance is the caller's
// subsequent step, not part of registration.
//
// Uniqueness of the login is enforced by the store's atomic check-and-insert:
// of N concurrent registrations for the same login exactly one succeeds and
// the rest fail with ErrDuplicateLogin.
func (s *UserService) Register(ctx context.Context, login, name, password string) (ulid.ULID, error) {
	if err := ValidateLogin(login); err != nil {
		return ulid.ULID{}, err
	}
	if err := s.validatePassword(password); err != nil {
		return ulid.ULID{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return ulid.ULID{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(login, name, hash, s.cfg.EnabledByDefault)
	if err != nil {
		return ulid.ULID{}, err
	}

	// Create is safe to retry: a retried insert that raced its own first
	// attempt surfaces as ErrDuplicateLogin, never a double insert.
	if err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.users.Create(ctx, user)
	}); err != nil {
		if errors.Is(err, ErrDuplicateLogin) {
			return ulid.ULID{}, oops.Code("AUTH_DUPLICATE_LOGIN").
				With("login", login).
				Wrap(err)
		}
		return ulid.ULID{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			With("login", login).
			Wrap(err)
	}

	s.logger.Info("user registered", "user_id", user.ID.String(), "login", login)
	return user.ID, nil
}

// dummyPasswordHash is verified against when a login is unknown so response
// time does not reveal whether the login exists. It never matches any
// password.
//
//nolint:gosec // G101: intentionally fake hash for timing uniformity, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Login verifies credentials and returns the matched user's ID. Unknown
// login and wrong password both fail with ErrInvalidCredentials; a disabled
// account fails with ErrUserDisabled, checked only after the password
// verified. The caller mints a session token as a separate step.
func (s *UserService) Login(ctx context.Context, login, password string) (ulid.ULID, error) {
	var user *User
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var lookupErr error
		user, lookupErr = s.users.GetByLogin(ctx, login)
		return lookupErr
	})

	targetHash := dummyPasswordHash
	userExists := false

	switch {
	case err == nil:
		targetHash = user.PasswordHash
		userExists = true
	case errors.Is(err, ErrNotFound):
		// Keep verifying against the dummy hash below.
	default:
		return ulid.ULID{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by login").
			Wrap(err)
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			recordLogin("invalid_credentials")
			return ulid.ULID{}, invalidCredentials()
		}
		return ulid.ULID{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists || !valid {
		recordLogin("invalid_credentials")
		return ulid.ULID{}, invalidCredentials()
	}

	// Disabled is reported only after the password verified, so it cannot be
	// used to probe account existence without credentials.
	if !user.Enabled {
		recordLogin("disabled")
		return ulid.ULID{}, oops.Code("AUTH_USER_DISABLED").
			With("user_id", user.ID.String()).
			Wrap(ErrUserDisabled)
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			if err := s.users.UpdatePassword(ctx, user.ID, newHash); err != nil {
				s.logger.Warn("password hash upgrade failed",
					"user_id", user.ID.String(), "error", err)
			}
		}
	}

	recordLogin("ok")
	s.logger.Info("user logged in", "user_id", user.ID.String())
	return user.ID, nil
}

// ChangePassword verifies the current password and persists a hash of the
// new one. All outstanding sessions for the user are invalidated.
func (s *UserService) ChangePassword(ctx context.Context, userID ulid.ULID, current, updated string) error {
	user, err := s.getByID(ctx, userID)
	if err != nil {
		return err
	}

	valid, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "verify current password").
			Wrap(err)
	}
	if !valid {
		return invalidCredentials()
	}

	if err := s.validatePassword(updated); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(updated)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	if err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.users.UpdatePassword(ctx, userID, hash)
	}); err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "persist new hash").
			With("user_id", userID.String()).
			Wrap(err)
	}

	// A stolen session must not survive a password rotation.
	if n, err := s.tokens.InvalidateAllForUser(ctx, userID); err != nil {
		s.logger.Warn("session invalidation after password change failed",
			"user_id", userID.String(), "error", err)
	} else if n > 0 {
		s.logger.Info("sessions invalidated after password change",
			"user_id", userID.String(), "count", n)
	}

	return nil
}

// HasPermission delegates to the guard. Used as a precondition by privileged
// operations, not a query.
func (s *UserService) HasPermission(ctx context.Context, userID ulid.ULID, permission string) error {
	return s.guard.RequirePermission(ctx, userID, permission)
}

// Grant adds the named permissions to the user's set. Granting an
// already-held permission is a no-op.
func (s *UserService) Grant(ctx context.Context, userID ulid.ULID, names ...string) error {
	names = NormalizePermissions(names)
	if len(names) == 0 {
		return nil
	}
	if err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.users.GrantPermissions(ctx, userID, names)
	}); err != nil {
		return oops.Code("AUTH_GRANT_FAILED").
			With("user_id", userID.String()).
			With("permissions", names).
			Wrap(err)
	}
	s.logger.Info("permissions granted", "user_id", userID.String(), "permissions", names)
	return nil
}

// Revoke removes the named permissions from the user's set. Revoking an
// absent permission is a no-op.
func (s *UserService) Revoke(ctx context.Context, userID ulid.ULID, names ...string) error {
	names = NormalizePermissions(names)
	if len(names) == 0 {
		return nil
	}
	if err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.users.RevokePermissions(ctx, userID, names)
	}); err != nil {
		return oops.Code("AUTH_REVOKE_FAILED").
			With("user_id", userID.String()).
			With("permissions", names).
			Wrap(err)
	}
	s.logger.Info("permissions revoked", "user_id", userID.String(), "permissions", names)
	return nil
}

// Enable sets the enabled flag, making the account eligible for login again.
func (s *UserService) Enable(ctx context.Context, userID ulid.ULID) error {
	if err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.users.SetEnabled(ctx, userID, true)
	}); err != nil {
		return oops.Code("AUTH_ENABLE_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	s.logger.Info("user enabled", "user_id", userID.String())
	return nil
}

// Disable clears the enabled flag and invalidates every outstanding session
// for the user. Subsequent logins fail with ErrUserDisabled.
func (s *UserService) Disable(ctx context.Context, userID ulid.ULID) error {
	if err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.users.SetEnabled(ctx, userID, false)
	}); err != nil {
		return oops.Code("AUTH_DISABLE_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if n, err := s.tokens.InvalidateAllForUser(ctx, userID); err != nil {
		s.logger.Warn("session invalidation after disable failed",
			"user_id", userID.String(), "error", err)
	} else if n > 0 {
		s.logger.Info("sessions invalidated after disable",
			"user_id", userID.String(), "count", n)
	}

	s.logger.Info("user disabled", "user_id", userID.String())
	return nil
}

// FindByID returns a single user.
func (s *UserService) FindByID(ctx context.Context, userID ulid.ULID) (*User, error) {
	return s.getByID(ctx, userID)
}

// FindByLogin returns a single user by login, case-insensitively.
func (s *UserService) FindByLogin(ctx context.Context, login string) (*User, error) {
	var user *User
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var getErr error
		user, getErr = s.users.GetByLogin(ctx, login)
		return getErr
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_USER_NOT_FOUND").
				With("login", login).
				Wrap(err)
		}
		return nil, oops.Code("AUTH_GET_USER_FAILED").
			With("operation", "get user by login").
			With("login", login).
			Wrap(err)
	}
	return user, nil
}

// FindAll returns a snapshot of all users.
func (s *UserService) FindAll(ctx context.Context) ([]*User, error) {
	var users []*User
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var listErr error
		users, listErr = s.users.List(ctx)
		return listErr
	})
	if err != nil {
		return nil, oops.Code("AUTH_LIST_FAILED").
			With("operation", "list users").
			Wrap(err)
	}
	return users, nil
}

func (s *UserService) getByID(ctx context.Context, userID ulid.ULID) (*User, error) {
	var user *User
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var getErr error
		user, getErr = s.users.GetByID(ctx, userID)
		return getErr
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_USER_NOT_FOUND").
				With("user_id", userID.String()).
				Wrap(err)
		}
		return nil, oops.Code("AUTH_GET_USER_FAILED").
			With("operation", "get user by id").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return user, nil
}

// withRetry runs fn, allowing a single retry when the failure is transient.
// Only operations that are side-effect safe under a retry go through here:
// reads, the atomic check-and-insert, and single-statement set-deltas.
func (s *UserService) withRetry(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, retry.WithMaxRetries(1, retry.NewConstant(transientRetryDelay)), func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, ErrTransient) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").
		Wrapf(ErrInvalidCredentials, "invalid login or password")
}
