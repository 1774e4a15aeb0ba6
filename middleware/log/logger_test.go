package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Gopher0727/PropChat/config"
)

func fileLogger(t *testing.T, level string) (*Logger, string) {
	t.Helper()
	logFile := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(&config.LoggingConfig{
		Level:    level,
		Format:   "json",
		Output:   "file",
		FilePath: logFile,
	})
	require.NoError(t, err)
	return l, logFile
}

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(content), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	t.Run("creates logger with JSON format and stdout output", func(t *testing.T) {
		l, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"})
		require.NoError(t, err)
		require.NotNil(t, l)
		l.Info("test message")
		assert.NoError(t, l.Close())
	})

	t.Run("creates logger with text format", func(t *testing.T) {
		l, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "text", Output: "stdout"})
		require.NoError(t, err)
		l.Debug("test debug message")
		assert.NoError(t, l.Close())
	})

	t.Run("fails when the log file cannot be opened", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "file",
			FilePath: filepath.Join(t.TempDir(), "missing", "dir", "x.log"),
		})
		assert.Error(t, err)
	})
}

func TestLogLevels(t *testing.T) {
	l, logFile := fileLogger(t, "warn")

	l.Debug("debug message - should not appear")
	l.Info("info message - should not appear")
	l.Warn("warn message - should appear")
	l.Error("error message - should appear")
	require.NoError(t, l.Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	logContent := string(content)

	assert.NotContains(t, logContent, "debug message")
	assert.NotContains(t, logContent, "info message")
	assert.Contains(t, logContent, "warn message")
	assert.Contains(t, logContent, "error message")
}

func TestContextFieldsInLogs(t *testing.T) {
	l, logFile := fileLogger(t, "info")

	ctx := WithTraceID(context.Background(), "trace-abc-123")
	ctx = WithUserID(ctx, 42)
	ctx = WithSessionID(ctx, "sess-1")

	l.InfoContext(ctx, "message with context", zap.Int64("channel_id", 7))
	require.NoError(t, l.Close())

	entries := readEntries(t, logFile)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "message with context", entry["message"])
	assert.Equal(t, "trace-abc-123", entry["trace_id"])
	assert.Equal(t, "42", entry["user_id"])
	assert.Equal(t, "sess-1", entry["session_id"])
	assert.Equal(t, float64(7), entry["channel_id"])
	assert.NotEmpty(t, entry["timestamp"])
}

func TestWithContextWithoutValues(t *testing.T) {
	l := NewNop()
	assert.Same(t, l, l.WithContext(context.Background()))
	assert.Empty(t, ContextFields(nil))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"invalid", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, logFile := fileLogger(t, "info")

	var seenTrace string
	r := gin.New()
	r.Use(GinMiddleware(l))
	r.GET("/ping", func(c *gin.Context) {
		seenTrace = GetTraceID(c.Request.Context())
		c.String(http.StatusOK, "pong")
	})
	r.GET("/boom", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	t.Run("propagates client trace id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(TraceHeader, "client-trace")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "client-trace", seenTrace)
		assert.Equal(t, "client-trace", w.Header().Get(TraceHeader))
	})

	t.Run("generates trace id when absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Len(t, w.Header().Get(TraceHeader), 36)
	})

	require.NoError(t, l.Close())
	entries := readEntries(t, logFile)
	require.Len(t, entries, 2)
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "/ping", entries[0]["path"])
	assert.Equal(t, "error", entries[1]["level"])
	assert.True(t, strings.HasPrefix(entries[1]["path"].(string), "/boom"))
}
