// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package main

import (
	"bufio"
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/postgres"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/store"
)

// Default timeout for administrative user commands.
const defaultUserCmdTimeout = 30 * time.Second

// NewUserCmd creates the user subcommand and its administrative actions.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		Long:  `Create, inspect, and administer user accounts and their permissions.`,
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserGrantCmd())
	cmd.AddCommand(newUserRevokeCmd())
	cmd.AddCommand(newUserEnableCmd())
	cmd.AddCommand(newUserDisableCmd())

	return cmd
}

// withUserService loads configuration, connects to the database, and runs
// fn with a ready UserService. The connection is closed before returning.
func withUserService(cmd *cobra.Command, fn func(ctx context.Context, svc *auth.UserService) error) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), defaultUserCmdTimeout)
	defer cancel()

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	userRepo := postgres.NewUserRepository(pool)
	tokenRepo := postgres.NewTokenRepository(pool)

	tokenSvc, err := auth.NewTokenService(tokenRepo, cfg.Session.TTL)
	if err != nil {
		return err
	}
	guard, err := auth.NewGuard(userRepo)
	if err != nil {
		return err
	}
	svc, err := auth.NewUserService(userRepo, auth.NewArgon2idHasher(), guard, tokenSvc, auth.UserServiceConfig{
		MinPasswordLength: cfg.Password.MinLength,
		EnabledByDefault:  cfg.Registration.EnabledDefault,
	})
	if err != nil {
		return err
	}

	return fn(ctx, svc)
}

func newUserCreateCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create LOGIN",
		Short: "Create a user account",
		Long:  `Create a user account. The password is read from the first line of stdin.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			return withUserService(cmd, func(ctx context.Context, svc *auth.UserService) error {
				id, err := svc.Register(ctx, args[0], name, password)
				if err != nil {
					return err
				}
				cmd.Printf("created user %s (%s)\n", args[0], id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")

	return cmd
}

func newUserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUserService(cmd, func(ctx context.Context, svc *auth.UserService) error {
				users, err := svc.FindAll(ctx)
				if err != nil {
					return err
				}
				for _, u := range users {
					state := "enabled"
					if !u.Enabled {
						state = "disabled"
					}
					cmd.Printf("%s\t%s\t%s\t[%s]\n",
						u.ID, u.Login, state, strings.Join(u.Permissions, " "))
				}
				return nil
			})
		},
	}
}

func newUserGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant LOGIN PERMISSION...",
		Short: "Grant permissions to a user",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserService(cmd, func(ctx context.Context, svc *auth.UserService) error {
				user, err := svc.FindByLogin(ctx, args[0])
				if err != nil {
					return err
				}
				if err := svc.Grant(ctx, user.ID, args[1:]...); err != nil {
					return err
				}
				cmd.Printf("granted %s to %s\n", strings.Join(args[1:], " "), user.Login)
				return nil
			})
		},
	}
}

func newUserRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke LOGIN PERMISSION...",
		Short: "Revoke permissions from a user",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserService(cmd, func(ctx context.Context, svc *auth.UserService) error {
				user, err := svc.FindByLogin(ctx, args[0])
				if err != nil {
					return err
				}
				if err := svc.Revoke(ctx, user.ID, args[1:]...); err != nil {
					return err
				}
				cmd.Printf("revoked %s from %s\n", strings.Join(args[1:], " "), user.Login)
				return nil
			})
		},
	}
}

func newUserEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable LOGIN",
		Short: "Enable a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserService(cmd, func(ctx context.Context, svc *auth.UserService) error {
				user, err := svc.FindByLogin(ctx, args[0])
				if err != nil {
					return err
				}
				if err := svc.Enable(ctx, user.ID); err != nil {
					return err
				}
				cmd.Printf("enabled %s\n", user.Login)
				return nil
			})
		},
	}
}

func newUserDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable LOGIN",
		Short: "Disable a user account and invalidate its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserService(cmd, func(ctx context.Context, svc *auth.UserService) error {
				user, err := svc.FindByLogin(ctx, args[0])
				if err != nil {
					return err
				}
				if err := svc.Disable(ctx, user.ID); err != nil {
					return err
				}
				cmd.Printf("disabled %s\n", user.Login)
				return nil
			})
		},
	}
}

// readPassword reads the password from the first line of the command's stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", oops.Code("INPUT_READ_FAILED").Wrap(err)
		}
		return "", oops.Code("INPUT_READ_FAILED").Errorf("no password on stdin")
	}
	return strings.TrimRight(scanner.Text(), "\r\n"), nil
}
