package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/config"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/mocks"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/models"
)

// fakeRunner captures the objective it was run with and returns a canned
// report.
type fakeRunner struct {
	report models.Report
	gotObj models.Objective
}

func (f *fakeRunner) Run(_ context.Context, obj models.Objective) models.Report {
	f.gotObj = obj
	return f.report
}

func fakeInitializer(runner TournamentRunner, err error) runnerInitializer {
	return func(*zap.Logger, config.Interface, schemas.LLMClient, string) (TournamentRunner, error) {
		return runner, err
	}
}

func validParams(root string) improveParams {
	return improveParams{
		Objective: "remove duplicated parsing logic",
		Files:     []string{"*.go"},
		BuildCmd:  "go build ./...",
		TestCmd:   "go test ./...",
		Root:      root,
	}
}

func TestRunImproveSuccess(t *testing.T) {
	cfg := config.NewDefaultConfig()
	runner := &fakeRunner{report: models.Report{Success: true, FinalState: models.StateConverged, Converged: true}}

	err := runImprove(context.Background(), cfg, zaptest.NewLogger(t),
		validParams(t.TempDir()), &mocks.ScriptedLLMClient{}, fakeInitializer(runner, nil))
	require.NoError(t, err)

	assert.Equal(t, "remove duplicated parsing logic", runner.gotObj.Goal)
	assert.NotEmpty(t, runner.gotObj.ID)
	assert.Equal(t, cfg.Tournament().MaxIterations, runner.gotObj.MaxIterations)
	assert.Equal(t, cfg.Tournament().Patience, runner.gotObj.Patience)
	assert.Equal(t, cfg.Tournament().MinImprovement, runner.gotObj.MinImprovement)
}

func TestRunImproveWritesReportFile(t *testing.T) {
	cfg := config.NewDefaultConfig()
	runner := &fakeRunner{report: models.Report{Success: true, FinalState: models.StateExhausted, BestScore: 0.42}}

	params := validParams(t.TempDir())
	params.ReportPath = filepath.Join(t.TempDir(), "report.json")

	err := runImprove(context.Background(), cfg, zaptest.NewLogger(t),
		params, &mocks.ScriptedLLMClient{}, fakeInitializer(runner, nil))
	require.NoError(t, err)

	raw, err := os.ReadFile(params.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"best_score": 0.42`)
}

func TestRunImproveValidatesParams(t *testing.T) {
	cfg := config.NewDefaultConfig()
	logger := zaptest.NewLogger(t)
	initFn := fakeInitializer(&fakeRunner{}, nil)
	llm := &mocks.ScriptedLLMClient{}

	missingObjective := validParams(t.TempDir())
	missingObjective.Objective = ""
	err := runImprove(context.Background(), cfg, logger, missingObjective, llm, initFn)
	assert.ErrorContains(t, err, "--objective")

	missingCmds := validParams(t.TempDir())
	missingCmds.BuildCmd = ""
	err = runImprove(context.Background(), cfg, logger, missingCmds, llm, initFn)
	assert.ErrorContains(t, err, "--build-cmd")

	badRoot := validParams(filepath.Join(t.TempDir(), "does-not-exist"))
	err = runImprove(context.Background(), cfg, logger, badRoot, llm, initFn)
	assert.ErrorContains(t, err, "not a usable directory")
}

func TestRunImproveInitializerFailure(t *testing.T) {
	cfg := config.NewDefaultConfig()

	err := runImprove(context.Background(), cfg, zaptest.NewLogger(t),
		validParams(t.TempDir()), &mocks.ScriptedLLMClient{},
		fakeInitializer(nil, errors.New("wiring failed")))
	require.ErrorContains(t, err, "wiring failed")
}

func TestRunImproveAbnormalTermination(t *testing.T) {
	cfg := config.NewDefaultConfig()
	runner := &fakeRunner{report: models.Report{
		Success:    false,
		FinalState: models.StateExhausted,
		Error:      "working tree unusable",
	}}

	err := runImprove(context.Background(), cfg, zaptest.NewLogger(t),
		validParams(t.TempDir()), &mocks.ScriptedLLMClient{}, fakeInitializer(runner, nil))
	require.ErrorContains(t, err, "working tree unusable")
}

func TestInitializeRunnerWiresFullStack(t *testing.T) {
	runner, err := initializeRunner(zaptest.NewLogger(t), config.NewDefaultConfig(),
		&mocks.ScriptedLLMClient{}, t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, runner)
}
