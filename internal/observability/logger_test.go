// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// -- Test Helper Functions --

// bufferSink returns a WriteSyncer backed by an in-memory buffer.
func bufferSink() (*bytes.Buffer, zapcore.WriteSyncer) {
	var buf bytes.Buffer
	return &buf, zapcore.AddSync(&buf)
}

// -- Test Cases --

func TestNewLogger(t *testing.T) {

	t.Run("should build console logger with colors", func(t *testing.T) {
		buf, sink := bufferSink()
		cfg := config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors: config.ColorConfig{ // -- testing our color configuration --
				Info: "green",
			},
		}
		logger, err := NewLogger(cfg, sink)
		require.NoError(t, err)
		logger.Info("This is a test message.")
		Sync(logger)

		output := buf.String()
		assert.Contains(t, output, "INFO", "Output should contain the log level")
		assert.Contains(t, output, "This is a test message.", "Output should contain the message")
		assert.Contains(t, output, "TestService.", "Component name should carry the dot suffix")
		assert.Contains(t, output, colorGreen, "Info level should be colorized green")
		assert.Contains(t, output, colorReset, "Output should contain the reset color code")
	})

	t.Run("should build json logger", func(t *testing.T) {
		buf, sink := bufferSink()
		cfg := config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		}
		logger, err := NewLogger(cfg, sink)
		require.NoError(t, err)
		logger.Warn("This is a JSON message.", zap.String("key", "value"))
		Sync(logger)

		// -- the output should be a valid JSON object --
		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry), "Log output should be valid JSON")

		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("should respect level", func(t *testing.T) {
		buf, sink := bufferSink()
		logger, err := NewLogger(config.LoggerConfig{Level: "warn", Format: "json"}, sink)
		require.NoError(t, err)
		logger.Info("dropped")
		Sync(logger)
		assert.Empty(t, buf.String())
	})

	t.Run("should fall back to info on a bad level", func(t *testing.T) {
		buf, sink := bufferSink()
		logger, err := NewLogger(config.LoggerConfig{Level: "loud", Format: "json"}, sink)
		require.NoError(t, err)
		logger.Debug("dropped")
		logger.Info("kept")
		Sync(logger)
		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("should write to a log file if configured", func(t *testing.T) {
		_, sink := bufferSink()
		logPath := filepath.Join(t.TempDir(), "nested", "pilot.log")

		cfg := config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logPath,
			MaxSize: 1, // 1 MB
		}
		logger, err := NewLogger(cfg, sink)
		require.NoError(t, err)
		logger.Error("This should go to the file.")
		Sync(logger)

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.", "Log file should contain the message")
	})

	t.Run("independent loggers do not share configuration", func(t *testing.T) {
		buf1, sink1 := bufferSink()
		buf2, sink2 := bufferSink()

		first, err := NewLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, sink1)
		require.NoError(t, err)
		second, err := NewLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "Second"}, sink2)
		require.NoError(t, err)

		first.Info("one")
		second.Info("two")

		assert.Contains(t, buf1.String(), "First")
		assert.NotContains(t, buf1.String(), "Second")
		assert.Contains(t, buf2.String(), "Second")
	})
}

func TestSync_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() { Sync(nil) })
}
