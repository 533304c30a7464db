// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/config"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	subcommands := []string{"serve", "migrate", "user"}
	for _, sub := range subcommands {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--config", "/path/to/authgate.yaml", "--help"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "/path/to/authgate.yaml", configFile)

	configFile = ""
}

func TestMigrateCommand_HasActions(t *testing.T) {
	cmd := NewMigrateCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"up", "down", "status", "force"} {
		assert.Contains(t, output, sub)
	}
}

func TestUserCommand_HasActions(t *testing.T) {
	cmd := NewUserCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"create", "list", "grant", "revoke", "enable", "disable"} {
		assert.Contains(t, output, sub)
	}
}

func TestRunServe_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Database.URL = ""

	err := runServe(context.Background(), cfg, &ServeDeps{})
	assert.Error(t, err)
}
