// internal/tournament/loop/loop.go
package loop

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/tournament/models"
)

// MatchRunner plays one iteration's match. Implemented by match.Runner;
// an interface here so the loop can be driven by a fake in tests.
type MatchRunner interface {
	RunIteration(ctx context.Context, obj models.Objective, state *models.RunState, iteration int) (models.IterationRecord, error)
}

// Loop drives the outer convergence state machine: Running until either the
// no-improvement counter reaches the objective's patience (Converged) or the
// iteration cap is hit first (Exhausted). Both terminal states produce a
// final report; only Converged implies the two policies reached a genuine
// fixed point.
type Loop struct {
	logger *zap.Logger
	runner MatchRunner
	state  models.LoopState
}

// NewLoop creates a convergence loop over the given match runner.
func NewLoop(logger *zap.Logger, runner MatchRunner) *Loop {
	return &Loop{
		logger: logger.Named("convergence_loop"),
		runner: runner,
		state:  models.StateRunning,
	}
}

// State returns the loop's current state.
func (l *Loop) State() models.LoopState {
	return l.state
}

// Run executes matches until convergence, exhaustion, a fatal error or
// cancellation. The report always reflects how far the loop progressed;
// iteration history is never dropped.
func (l *Loop) Run(ctx context.Context, obj models.Objective) models.Report {
	state := models.NewRunState()
	report := models.Report{
		Objective:  obj.Goal,
		StartedAt:  time.Now().UTC(),
		FinalState: models.StateRunning,
	}

	l.state = models.StateRunning
	var fatal error

	for iteration := 1; iteration <= obj.MaxIterations; iteration++ {
		// Cancellation is honored between iterations so a permanent-apply
		// decision is always committed to disk before the run stops.
		if err := ctx.Err(); err != nil {
			l.logger.Warn("Run cancelled between iterations.", zap.Int("iteration", iteration))
			fatal = err
			break
		}

		l.logger.Info("Starting iteration.",
			zap.Int("iteration", iteration),
			zap.Float64("running_best", state.BestScore),
			zap.Int("no_improvement", state.NoImprovement))

		record, err := l.runner.RunIteration(ctx, obj, state, iteration)
		state.History = append(state.History, record)
		if err != nil {
			l.logger.Error("Iteration failed fatally; terminating run.",
				zap.Int("iteration", iteration), zap.Error(err))
			fatal = err
			break
		}

		if record.Applied {
			state.NoImprovement = 0
		} else {
			state.NoImprovement++
		}

		if state.NoImprovement >= obj.Patience {
			l.state = models.StateConverged
			report.Converged = true
			report.ConvergedAtIter = iteration
			l.logger.Info("Converged: no improvement for the full patience window.",
				zap.Int("iteration", iteration),
				zap.Int("patience", obj.Patience))
			break
		}
	}

	if l.state != models.StateConverged {
		l.state = models.StateExhausted
	}

	report.FinalState = l.state
	report.FinishedAt = time.Now().UTC()
	report.TotalIterations = len(state.History)
	report.BestScore = state.BestScore
	report.Success = fatal == nil
	if fatal != nil {
		report.Error = fatal.Error()
	}
	report.Iterations = state.History

	for _, record := range state.History {
		switch {
		case record.Outcome.Tie:
			report.Ties++
		case record.Winner == models.PolicyExplorer:
			report.ExplorerWins++
		case record.Winner == models.PolicyRefiner:
			report.RefinerWins++
		}
		if record.Applied {
			report.AppliedChanges += len(record.AppliedEdits)
		}
	}

	report.ModifiedFiles = make([]string, 0, len(state.ModifiedFiles))
	for path := range state.ModifiedFiles {
		report.ModifiedFiles = append(report.ModifiedFiles, path)
	}
	sort.Strings(report.ModifiedFiles)

	l.logger.Info("Run finished.",
		zap.String("final_state", string(l.state)),
		zap.Bool("success", report.Success),
		zap.Int("iterations", report.TotalIterations),
		zap.Float64("best_score", report.BestScore),
		zap.Int("applied_changes", report.AppliedChanges))

	return report
}
