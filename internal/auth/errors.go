// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth

import "errors"

// Sentinel errors for the security core. Services wrap these with oops codes
// and context; callers match with errors.Is.
var (
	// ErrNotFound is returned when a referenced user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateLogin is returned when registration collides on login.
	ErrDuplicateLogin = errors.New("login already taken")

	// ErrInvalidCredentials is returned on login or password-change credential
	// mismatch. Unknown login and wrong password are indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserDisabled is returned when login is attempted against a disabled
	// account.
	ErrUserDisabled = errors.New("user disabled")

	// ErrInvalidToken is returned for unknown, invalidated, or expired tokens.
	// The three cases are indistinguishable to the caller.
	ErrInvalidToken = errors.New("invalid token")

	// ErrForbidden is returned when an authenticated user lacks a required
	// permission.
	ErrForbidden = errors.New("forbidden")

	// ErrWeakPassword is returned when a password fails policy before hashing.
	ErrWeakPassword = errors.New("weak password")

	// ErrInvalidInput is returned for malformed input detected before any
	// domain logic runs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient is returned when the underlying store is unavailable or
	// timed out. Safe to retry.
	ErrTransient = errors.New("transient failure")
)
