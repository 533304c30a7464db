// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/logging"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestSetup(t *testing.T) {
	t.Run("json output carries service identity", func(t *testing.T) {
		var buf bytes.Buffer
		logger := logging.Setup("authgate", "1.2.3", "json", slog.LevelInfo, &buf)

		logger.Info("hello", "key", "value")

		m := logLine(t, &buf)
		assert.Equal(t, "hello", m["msg"])
		assert.Equal(t, "authgate", m["service"])
		assert.Equal(t, "1.2.3", m["version"])
		assert.Equal(t, "value", m["key"])
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := logging.Setup("authgate", "dev", "text", slog.LevelInfo, &buf)

		logger.Info("hello")

		out := buf.String()
		assert.Contains(t, out, "msg=hello")
		assert.Contains(t, out, "service=authgate")
	})

	t.Run("level filters records", func(t *testing.T) {
		var buf bytes.Buffer
		logger := logging.Setup("authgate", "dev", "json", slog.LevelWarn, &buf)

		logger.Info("dropped")
		assert.Empty(t, buf.Bytes())

		logger.Warn("kept")
		assert.NotEmpty(t, buf.Bytes())
	})

	t.Run("no trace attrs without span context", func(t *testing.T) {
		var buf bytes.Buffer
		logger := logging.Setup("authgate", "dev", "json", slog.LevelInfo, &buf)

		logger.InfoContext(context.Background(), "hello")

		m := logLine(t, &buf)
		assert.NotContains(t, m, "trace_id")
		assert.NotContains(t, m, "span_id")
	})

	t.Run("WithAttrs and WithGroup preserve identity", func(t *testing.T) {
		var buf bytes.Buffer
		logger := logging.Setup("authgate", "dev", "json", slog.LevelInfo, &buf)

		logger.With("request", "r1").WithGroup("db").Info("hello", "rows", 3)

		m := logLine(t, &buf)
		assert.Equal(t, "authgate", m["service"])
		assert.Equal(t, "r1", m["request"])
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, logging.ParseLevel(tt.in), "ParseLevel(%q)", tt.in)
	}
}
