package log

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	// Debug level
	logger, err := NewLogger(Options{Debug: true})
	assert.NoError(t, err)
	assert.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	// Info level
	logger, err = NewLogger(Options{})
	assert.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
}

func TestNewLogger_QuietWithoutFileIsNop(t *testing.T) {
	logger, err := NewLogger(Options{Quiet: true})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.ErrorLevel))
}

func TestNewLogger_FileReceivesDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	logger, err := NewLogger(Options{File: path, Quiet: true})
	require.NoError(t, err)
	logger.Debug("slot created", zap.Int("number", 3))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"slot created"`)
	assert.Contains(t, string(data), `"number":3`)
}

func TestNewLogger_BadFile(t *testing.T) {
	_, err := NewLogger(Options{File: filepath.Join(t.TempDir(), "missing", "run.log")})
	assert.Error(t, err)
}

func TestLogOutputs(t *testing.T) {
	var buf bytes.Buffer

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoder := zapcore.NewConsoleEncoder(encoderConfig)
	core := zapcore.NewCore(encoder, zapcore.AddSync(&buf), zap.DebugLevel)

	testLogger := zap.New(core)

	testLogger.Debug("debug message", zap.String("key", "value"))
	assert.Contains(t, buf.String(), "debug message")
	assert.Contains(t, buf.String(), "key")
	assert.Contains(t, buf.String(), "value")

	buf.Reset()

	testLogger.Info("info message", zap.Int("count", 42))
	assert.Contains(t, buf.String(), "info message")
	assert.Contains(t, buf.String(), "42")
}
