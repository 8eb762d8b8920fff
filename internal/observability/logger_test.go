package observability_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crucible-cli/internal/config"
	"github.com/xkilldash9x/crucible-cli/internal/observability"
)

func baseLoggerConfig() config.LoggerConfig {
	return config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "crucible-test",
	}
}

func TestInitializeAndGetLogger(t *testing.T) {
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	buf := &zaptest.Buffer{}
	observability.Initialize(baseLoggerConfig(), buf)

	logger := observability.GetLogger()
	require.NotNil(t, logger)
	logger.Info("hello from the tournament")

	out := buf.String()
	assert.Contains(t, out, "hello from the tournament")
	assert.Contains(t, out, "crucible-test")
}

func TestInitializeIsIdempotent(t *testing.T) {
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	first := &zaptest.Buffer{}
	second := &zaptest.Buffer{}
	observability.Initialize(baseLoggerConfig(), first)
	observability.Initialize(baseLoggerConfig(), second)

	observability.GetLogger().Info("only once")
	assert.Contains(t, first.String(), "only once")
	assert.Empty(t, second.String(), "second Initialize must be a no-op")
}

func TestInitializeWritesJSONFileCore(t *testing.T) {
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	logFile := filepath.Join(t.TempDir(), "crucible.log")
	cfg := baseLoggerConfig()
	cfg.LogFile = logFile

	observability.Initialize(cfg, &zaptest.Buffer{})
	observability.GetLogger().Info("persisted entry")
	observability.Sync()

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"persisted entry"`)
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	buf := &zaptest.Buffer{}
	cfg := baseLoggerConfig()
	cfg.Level = "not-a-level"
	observability.Initialize(cfg, buf)

	logger := observability.GetLogger()
	logger.Debug("too quiet")
	logger.Info("loud enough")

	out := buf.String()
	assert.NotContains(t, out, "too quiet")
	assert.Contains(t, out, "loud enough")
}

func TestGetLoggerBeforeInitializeReturnsFallback(t *testing.T) {
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	assert.NotNil(t, observability.GetLogger())
}
