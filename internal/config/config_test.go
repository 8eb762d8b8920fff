package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/crucible-cli/internal/config"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "console", cfg.Logger().Format)
	assert.Equal(t, "crucible", cfg.Logger().ServiceName)

	assert.Equal(t, "gemini-2.5-flash", cfg.Agent().LLM.DefaultFastModel)
	assert.Equal(t, "gemini-2.5-pro", cfg.Agent().LLM.DefaultPowerfulModel)
	assert.Equal(t, 30.0, cfg.Agent().LLM.RequestsPerMinute)

	tn := cfg.Tournament()
	assert.Equal(t, 10, tn.MaxIterations)
	assert.Equal(t, 3, tn.Patience)
	assert.Equal(t, 0.01, tn.MinImprovement)
	assert.Equal(t, 60*time.Second, tn.BuildTimeout)
	assert.Equal(t, 5*time.Minute, tn.TestTimeout)
	assert.Equal(t, 3*time.Minute, tn.LLMTimeout)
	assert.Equal(t, 65536, tn.MaxOutputBytes)
	assert.Equal(t, 12, tn.ContextFileLimit)
	assert.False(t, tn.Git.CommitApplied)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	yaml := `
logger:
  level: debug
tournament:
  max_iterations: 25
  patience: 5
  git:
    commit_applied: true
    author_name: improver
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.Equal(t, 25, cfg.Tournament().MaxIterations)
	assert.Equal(t, 5, cfg.Tournament().Patience)
	assert.True(t, cfg.Tournament().Git.CommitApplied)
	assert.Equal(t, "improver", cfg.Tournament().Git.AuthorName)

	// Untouched keys keep their defaults.
	assert.Equal(t, 0.01, cfg.Tournament().MinImprovement)
	assert.Equal(t, "gemini-2.5-pro", cfg.Agent().LLM.DefaultPowerfulModel)
}

func TestLoadEnvironmentBeatsFile(t *testing.T) {
	yaml := "tournament:\n  patience: 5\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("CRUCIBLE_TOURNAMENT_PATIENCE", "7")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Tournament().Patience)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger: [not: valid"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestTournamentSetters(t *testing.T) {
	cfg := config.NewDefaultConfig()

	cfg.SetTournamentMaxIterations(42)
	cfg.SetTournamentPatience(9)
	cfg.SetTournamentMinImprovement(0.05)

	assert.Equal(t, 42, cfg.Tournament().MaxIterations)
	assert.Equal(t, 9, cfg.Tournament().Patience)
	assert.Equal(t, 0.05, cfg.Tournament().MinImprovement)
}
