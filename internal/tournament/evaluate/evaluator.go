// internal/tournament/evaluate/evaluator.go
package evaluate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/crucible-cli/internal/tournament/models"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/patch"
)

// Options bound the evaluator's subprocess invocations.
type Options struct {
	BuildTimeout   time.Duration
	TestTimeout    time.Duration
	MaxOutputBytes int
}

func (o Options) withDefaults() Options {
	if o.BuildTimeout <= 0 {
		o.BuildTimeout = 60 * time.Second
	}
	if o.TestTimeout <= 0 {
		o.TestTimeout = 5 * time.Minute
	}
	if o.MaxOutputBytes <= 0 {
		o.MaxOutputBytes = 64 * 1024
	}
	return o
}

// Evaluator scores a candidate's patch by applying it to the working tree,
// running the objective's build and test commands, and reverting. The
// apply->measure->revert sequence is a critical section over the shared
// working tree, serialized by a weight-1 semaphore: concurrent evaluation of
// two candidates against the same tree is forbidden because apply mutates
// shared files.
type Evaluator struct {
	logger   *zap.Logger
	applier  *patch.Applier
	root     string
	opts     Options
	worktree *semaphore.Weighted
}

var (
	passRegex = regexp.MustCompile(`(?i)\b(\d+)\s*(?:tests?\s+)?pass(?:ed|ing)?\b`)
	failRegex = regexp.MustCompile(`(?i)\b(\d+)\s*(?:tests?\s+)?fail(?:ed|ing|ures?)?\b`)
)

// NewEvaluator creates an evaluator for the project rooted at root.
func NewEvaluator(logger *zap.Logger, applier *patch.Applier, root string, opts Options) *Evaluator {
	return &Evaluator{
		logger:   logger.Named("evaluator"),
		applier:  applier,
		root:     root,
		opts:     opts.withDefaults(),
		worktree: semaphore.NewWeighted(1),
	}
}

// Evaluate applies the edits, measures them against the objective's build and
// test commands, and reverts unconditionally. Build or test invocation
// failures are captured in the outcome, never returned as errors; the
// returned error is reserved for fatal conditions (cancellation, filesystem
// failures during apply or revert).
func (e *Evaluator) Evaluate(ctx context.Context, edits []models.ProposedEdit, obj models.Objective) (outcome models.EvaluationOutcome, err error) {
	if err = e.worktree.Acquire(ctx, 1); err != nil {
		return outcome, fmt.Errorf("working tree unavailable: %w", err)
	}
	defer e.worktree.Release(1)

	if err = e.applier.Apply(edits); err != nil {
		// Unwind whatever portion applied before giving up.
		if rerr := e.applier.Revert(edits); rerr != nil {
			e.logger.Error("CRITICAL: failed to revert after partial apply.", zap.Error(rerr))
		}
		return outcome, fmt.Errorf("failed to apply candidate edits: %w", err)
	}

	// The revert must run no matter how measurement ends.
	defer func() {
		if rerr := e.applier.Revert(edits); rerr != nil {
			e.logger.Error("CRITICAL: failed to revert candidate edits.", zap.Error(rerr))
			if err == nil {
				err = fmt.Errorf("failed to revert candidate edits: %w", rerr)
			}
		}
	}()

	buildOut, buildErr := e.runCommand(ctx, obj.BuildCommand, e.opts.BuildTimeout)
	outcome.BuildSuccess = buildErr == nil
	outcome.BuildOutput = buildOut
	if buildErr != nil {
		outcome.BuildOutput = truncate(fmt.Sprintf("%v\n%s", buildErr, buildOut), e.opts.MaxOutputBytes)
	}

	if outcome.BuildSuccess {
		testOut, testErr := e.runCommand(ctx, obj.TestCommand, e.opts.TestTimeout)
		outcome.TestOutput = testOut
		if testErr != nil {
			outcome.TestOutput = truncate(fmt.Sprintf("%v\n%s", testErr, testOut), e.opts.MaxOutputBytes)
		}
		outcome.TestsPassed, outcome.TestsFailed = parseTestCounts(testOut)
		outcome.TestsTotal = outcome.TestsPassed + outcome.TestsFailed
	}

	e.scoreOutcome(&outcome, len(edits) > 0)

	e.logger.Debug("Evaluation complete.",
		zap.Bool("build_success", outcome.BuildSuccess),
		zap.Int("tests_passed", outcome.TestsPassed),
		zap.Int("tests_total", outcome.TestsTotal),
		zap.Float64("overall", outcome.OverallScore),
	)
	return outcome, nil
}

// scoreOutcome fills in the four component scores and the weighted overall.
// The quality score is a deliberately coarse stand-in for a full static
// analysis pass; the security score credits non-empty patches that build.
func (e *Evaluator) scoreOutcome(outcome *models.EvaluationOutcome, hasEdits bool) {
	if outcome.BuildSuccess {
		outcome.BuildScore = 1.0
		outcome.QualityScore = 0.8
	} else {
		outcome.QualityScore = 0.3
	}

	if outcome.TestsTotal > 0 {
		outcome.TestScore = float64(outcome.TestsPassed) / float64(outcome.TestsTotal)
	} else {
		// No recognizable test counts: scored neutrally.
		outcome.TestScore = 0.5
	}

	if outcome.BuildSuccess && hasEdits {
		outcome.SecurityScore = 0.7
	} else {
		outcome.SecurityScore = 0.5
	}

	outcome.OverallScore = models.WeightBuild*outcome.BuildScore +
		models.WeightTests*outcome.TestScore +
		models.WeightQuality*outcome.QualityScore +
		models.WeightSecurity*outcome.SecurityScore
}

// runCommand executes a shell command with the working directory set to the
// project root and a bounded timeout, returning the (truncated) combined
// output. A non-zero exit, timeout or spawn failure is returned as an error.
func (e *Evaluator) runCommand(ctx context.Context, command string, timeout time.Duration) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(cmdCtx, "cmd", "/C", command)
	} else {
		// Assume a POSIX-compliant shell.
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
		cmd = exec.CommandContext(cmdCtx, shell, "-c", command)
	}

	cmd.Dir = e.root
	cmd.Env = os.Environ()
	output, err := cmd.CombinedOutput()
	out := truncate(string(output), e.opts.MaxOutputBytes)

	if cmdCtx.Err() == context.DeadlineExceeded {
		return out, fmt.Errorf("command timed out after %s", timeout)
	}
	return out, err
}

// parseTestCounts scans command output for digit-adjacent pass/fail tokens
// (e.g. "12 passed, 3 failed"). Absent counts yield zeros.
func parseTestCounts(output string) (passed, failed int) {
	if m := passRegex.FindStringSubmatch(output); len(m) > 1 {
		passed, _ = strconv.Atoi(m[1])
	}
	if m := failRegex.FindStringSubmatch(output); len(m) > 1 {
		failed, _ = strconv.Atoi(m[1])
	}
	return passed, failed
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "\n... [output truncated]"
}
