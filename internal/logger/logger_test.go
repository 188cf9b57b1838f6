package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{
			name:   "default config",
			config: nil,
		},
		{
			name: "custom json config",
			config: &Config{
				Level:  "debug",
				Format: "json",
				Output: io.Discard,
			},
		},
		{
			name: "console config",
			config: &Config{
				Level:  "info",
				Format: "console",
				Output: io.Discard,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.config)
			assert.NotNil(t, logger)
		})
	}
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	logger.Info("table reconciled")

	entry := decode(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "table reconciled", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	child := logger.With().
		Str("request_id", "req-1").
		Int("fields", 3).
		Logger()

	child.Info("schema stored")

	entry := decode(t, buf)
	assert.Equal(t, "req-1", entry[FieldRequestID])
	assert.Equal(t, float64(3), entry["fields"])
	assert.Equal(t, "schema stored", entry["message"])
}

func TestLogger_ForTable(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	logger.ForTable("tablesmith_abc", "users").Info("table reconciled")

	entry := decode(t, buf)
	assert.Equal(t, "tablesmith_abc", entry[FieldDatabase])
	assert.Equal(t, "users", entry[FieldTable])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel(" warn "))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("verbose"))
}

func TestLogger_ErrorWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "error", Format: "json", Output: buf})

	logger.ErrorWith("failed to provision", errors.New("connection refused"), map[string]any{
		"database": "tablesmith_abc",
		"port":     5432,
	})

	entry := decode(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "failed to provision", entry["message"])
	assert.Equal(t, "connection refused", entry["error"])
	assert.Equal(t, "tablesmith_abc", entry["database"])
	assert.Equal(t, float64(5432), entry["port"])
}

func TestLogger_WarnAndInfoWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	logger.WarnWith("generated tenant credentials collided", errors.New("duplicate key"), map[string]any{"attempt": 1})
	warn := decode(t, buf)
	assert.Equal(t, "warn", warn["level"])
	assert.Equal(t, "duplicate key", warn["error"])
	assert.Equal(t, float64(1), warn["attempt"])

	buf.Reset()
	logger.InfoWith("tablesmith starting", map[string]any{"driver": "postgres"})
	info := decode(t, buf)
	assert.Equal(t, "postgres", info["driver"])
}

func TestLogger_Context(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	ctx := logger.WithContext(context.Background())
	FromContext(ctx).Info("from context")

	entry := decode(t, buf)
	assert.Equal(t, "from context", entry["message"])
}

func TestLogger_FromEmptyContextIsSilent(t *testing.T) {
	assert.NotPanics(t, func() {
		FromContext(context.Background()).Info("dropped")
	})
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFunc  func(*Logger)
		expected bool
	}{
		{
			name:     "debug level logs debug",
			level:    "debug",
			logFunc:  func(l *Logger) { l.Debug("debug message") },
			expected: true,
		},
		{
			name:     "info level skips debug",
			level:    "info",
			logFunc:  func(l *Logger) { l.Debug("debug message") },
			expected: false,
		},
		{
			name:     "error level logs error",
			level:    "error",
			logFunc:  func(l *Logger) { l.Error("error message") },
			expected: true,
		},
		{
			name:     "error level skips warn",
			level:    "error",
			logFunc:  func(l *Logger) { l.Warn("warn message") },
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := New(&Config{Level: tt.level, Format: "json", Output: buf})

			tt.logFunc(logger)

			if tt.expected {
				assert.NotEmpty(t, buf.String(), "expected log output")
			} else {
				assert.Empty(t, buf.String(), "expected no log output")
			}
		})
	}
}

func BenchmarkLogger_WithFields(b *testing.B) {
	logger := New(&Config{Level: "info", Format: "json", Output: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.With().
			Int("request", i).
			Logger().
			ForTable("tablesmith_abc", "users").
			Info("benchmark message")
	}
}
