// File: cmd/improve.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/config"
	"github.com/xkilldash9x/crucible-cli/internal/llmclient"
	"github.com/xkilldash9x/crucible-cli/internal/observability"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/chronicle"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/evaluate"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/loop"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/match"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/models"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/patch"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/proposal"
)

// TournamentRunner executes a full improvement run and produces the final
// report. Using an interface allows for decoupling and easier testing by
// enabling mock implementations.
type TournamentRunner interface {
	Run(ctx context.Context, obj models.Objective) models.Report
}

// runnerInitializer is a function signature for creating a TournamentRunner.
// This allows for dependency injection of the initialization logic, primarily
// for testing purposes.
type runnerInitializer func(logger *zap.Logger, cfg config.Interface, llmClient schemas.LLMClient, root string) (TournamentRunner, error)

// initializeRunner is the default implementation of runnerInitializer. It
// wires the full component stack: parser, patch applier, evaluator, git
// committer, match runner and convergence loop.
func initializeRunner(logger *zap.Logger, cfg config.Interface, llmClient schemas.LLMClient, root string) (TournamentRunner, error) {
	tc := cfg.Tournament()

	parser := proposal.NewParser(logger, root)
	applier := patch.NewApplier(logger)
	evaluator := evaluate.NewEvaluator(logger, applier, root, evaluate.Options{
		BuildTimeout:   tc.BuildTimeout,
		TestTimeout:    tc.TestTimeout,
		MaxOutputBytes: tc.MaxOutputBytes,
	})
	committer := chronicle.NewCommitter(logger, root, tc.Git)
	runner := match.NewRunner(logger, llmClient, parser, applier, evaluator, committer, root, match.Options{
		LLMTimeout:       tc.LLMTimeout,
		ContextFileLimit: tc.ContextFileLimit,
	})

	return loop.NewLoop(logger, runner), nil
}

type improveParams struct {
	Objective  string
	Files      []string
	BuildCmd   string
	TestCmd    string
	Root       string
	ReportPath string
}

// newImproveCmd creates the 'improve' command: one full competitive
// improvement run against the project in the target directory.
func newImproveCmd() *cobra.Command {
	var params improveParams
	var maxIterations, patience int
	var minDelta float64

	// Use the default initializer for the application's runtime.
	initFn := initializeRunner

	cmd := &cobra.Command{
		Use:   "improve --objective <description> --build-cmd <cmd> --test-cmd <cmd>",
		Short: "Runs the competitive improvement loop against the target project.",
		Long: `The improve command pits an explorer policy against a refiner policy in
iterated matches. Each side's proposed edits are applied, verified against the
project's own build and test commands, reverted, and scored; the winning edits
are kept only when they beat the best score seen so far.
WARNING: This process modifies the local codebase. Ensure your working directory is clean.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appConfig

			// CLI flags override the config file where explicitly set.
			if cmd.Flags().Changed("max-iterations") {
				cfg.SetTournamentMaxIterations(maxIterations)
			}
			if cmd.Flags().Changed("patience") {
				cfg.SetTournamentPatience(patience)
			}
			if cmd.Flags().Changed("min-delta") {
				cfg.SetTournamentMinImprovement(minDelta)
			}

			llmClient, err := llmclient.NewClient(cfg.Agent(), logger)
			if err != nil {
				logger.Error("Failed to initialize LLM client.", zap.Error(err))
				return fmt.Errorf("failed to initialize LLM client: %w", err)
			}
			defer func() { _ = llmClient.Close() }()

			return runImprove(ctx, cfg, logger, params, llmClient, initFn)
		},
	}

	cmd.Flags().StringVarP(&params.Objective, "objective", "o", "", "The improvement goal (required).")
	cmd.Flags().StringSliceVarP(&params.Files, "files", "f", []string{"*"}, "Target file globs, relative to the project root.")
	cmd.Flags().StringVar(&params.BuildCmd, "build-cmd", "", "Shell command that builds the project (required).")
	cmd.Flags().StringVar(&params.TestCmd, "test-cmd", "", "Shell command that runs the project's tests (required).")
	cmd.Flags().StringVar(&params.Root, "root", ".", "Project root directory.")
	cmd.Flags().StringVar(&params.ReportPath, "report", "", "Write the final report as JSON to this path.")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Iteration cap (overrides config).")
	cmd.Flags().IntVar(&patience, "patience", 0, "Consecutive non-improving iterations before convergence (overrides config).")
	cmd.Flags().Float64Var(&minDelta, "min-delta", 0, "Minimum score delta counted as improvement (overrides config).")
	_ = cmd.MarkFlagRequired("objective")
	_ = cmd.MarkFlagRequired("build-cmd")
	_ = cmd.MarkFlagRequired("test-cmd")

	return cmd
}

// runImprove contains the core application logic for the improvement run.
// It is decoupled from cobra and accepts all dependencies as arguments.
func runImprove(
	ctx context.Context,
	cfg config.Interface,
	logger *zap.Logger,
	params improveParams,
	llmClient schemas.LLMClient,
	initFn runnerInitializer,
) error {
	if params.Objective == "" {
		return fmt.Errorf("--objective is required")
	}
	if params.BuildCmd == "" || params.TestCmd == "" {
		return fmt.Errorf("--build-cmd and --test-cmd are required")
	}

	root, err := filepath.Abs(params.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve project root: %w", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("project root %s is not a usable directory", root)
	}

	runner, err := initFn(logger, cfg, llmClient, root)
	if err != nil {
		logger.Error("Failed to initialize tournament runner", zap.Error(err))
		return fmt.Errorf("failed to initialize tournament runner: %w", err)
	}

	tc := cfg.Tournament()
	obj := models.Objective{
		ID:             uuid.New().String(),
		Goal:           params.Objective,
		TargetFiles:    params.Files,
		BuildCommand:   params.BuildCmd,
		TestCommand:    params.TestCmd,
		MaxIterations:  tc.MaxIterations,
		Patience:       tc.Patience,
		MinImprovement: tc.MinImprovement,
	}

	report := runner.Run(ctx, obj)

	if params.ReportPath != "" {
		if werr := chronicle.WriteReport(params.ReportPath, report); werr != nil {
			logger.Error("Failed to write report file.", zap.Error(werr))
		}
	}

	logger.Info("Improvement run complete.",
		zap.String("final_state", string(report.FinalState)),
		zap.Bool("converged", report.Converged),
		zap.Float64("best_score", report.BestScore),
		zap.Int("explorer_wins", report.ExplorerWins),
		zap.Int("refiner_wins", report.RefinerWins),
		zap.Int("ties", report.Ties),
		zap.Strings("modified_files", report.ModifiedFiles))

	if !report.Success {
		return fmt.Errorf("run terminated abnormally: %s", report.Error)
	}
	return nil
}
