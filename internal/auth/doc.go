// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

// Package auth is the security core of AuthGate.
//
// # Domain Types
//
// Domain types (User, Token) should be created using their constructors:
//   - NewUser - creates a User with validated login and password hash
//   - NewToken - creates a Token bound to a user with an expiry
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from these
// constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - UserService - registration, login, password change, permissions,
//     enable/disable lifecycle
//   - TokenService - session token issuance, resolution, invalidation
//   - Guard - per-call permission checks
//   - SessionResolver - boundary adapter resolving inbound tokens to user IDs
//
// Services are created with New* constructors that validate dependencies.
package auth
