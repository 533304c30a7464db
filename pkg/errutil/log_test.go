// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package errutil_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/pkg/errutil"
)

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func TestLogError(t *testing.T) {
	t.Run("oops error carries code and context", func(t *testing.T) {
		logger, buf := captureLogger()
		err := oops.Code("THING_FAILED").With("thing", "widget").Errorf("boom")

		errutil.LogError(logger, "operation failed", err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
		assert.Equal(t, "ERROR", m["level"])
		assert.Equal(t, "operation failed", m["msg"])
		assert.Equal(t, "THING_FAILED", m["code"])
		ctx, ok := m["context"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "widget", ctx["thing"])
	})

	t.Run("plain error logs message only", func(t *testing.T) {
		logger, buf := captureLogger()

		errutil.LogError(logger, "operation failed", errors.New("boom"))

		var m map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
		assert.Equal(t, "boom", m["error"])
		assert.NotContains(t, m, "code")
	})
}

func TestLogWarn(t *testing.T) {
	logger, buf := captureLogger()

	errutil.LogWarn(logger, "recovered", errors.New("boom"))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "WARN", m["level"])
}
