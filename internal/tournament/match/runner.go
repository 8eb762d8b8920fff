// internal/tournament/match/runner.go
package match

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/evaluate"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/models"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/patch"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/proposal"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/score"
)

// Recorder observes permanently applied iterations (e.g. to commit them).
// Recording failures are logged by the implementation, never surfaced here.
type Recorder interface {
	RecordApplied(ctx context.Context, record models.IterationRecord)
}

// Options tune one match runner.
type Options struct {
	LLMTimeout       time.Duration
	ContextFileLimit int
	ContextByteLimit int
	ScanConcurrency  int
}

func (o Options) withDefaults() Options {
	if o.LLMTimeout <= 0 {
		o.LLMTimeout = 3 * time.Minute
	}
	if o.ContextFileLimit <= 0 {
		o.ContextFileLimit = 12
	}
	if o.ContextByteLimit <= 0 {
		o.ContextByteLimit = 8 * 1024
	}
	if o.ScanConcurrency <= 0 {
		o.ScanConcurrency = 8
	}
	return o
}

// Runner plays one iteration's head-to-head match between the explorer and
// refiner policies: prompt both sides, parse and evaluate each proposal, rank
// the candidates, and permanently apply the winner's edits when they beat the
// running best.
type Runner struct {
	logger    *zap.Logger
	llm       schemas.LLMClient
	parser    *proposal.Parser
	applier   *patch.Applier
	evaluator *evaluate.Evaluator
	recorder  Recorder // optional
	root      string
	opts      Options
}

// NewRunner wires a match runner over the given working tree root.
// recorder may be nil.
func NewRunner(
	logger *zap.Logger,
	llm schemas.LLMClient,
	parser *proposal.Parser,
	applier *patch.Applier,
	evaluator *evaluate.Evaluator,
	recorder Recorder,
	root string,
	opts Options,
) *Runner {
	return &Runner{
		logger:    logger.Named("match_runner"),
		llm:       llm,
		parser:    parser,
		applier:   applier,
		evaluator: evaluator,
		recorder:  recorder,
		root:      root,
		opts:      opts.withDefaults(),
	}
}

// RunIteration plays match number iteration. It mutates state's best score
// and modified-file set when a winner's edits are permanently applied; the
// caller owns the no-improvement counter and the history. The returned error
// is fatal (working tree unusable or cancellation) and should terminate the
// run.
func (r *Runner) RunIteration(ctx context.Context, obj models.Objective, state *models.RunState, iteration int) (models.IterationRecord, error) {
	record := models.IterationRecord{
		Iteration: iteration,
		Timestamp: time.Now().UTC(),
	}

	codeContext, err := r.gatherContext(ctx, obj)
	if err != nil {
		return record, fmt.Errorf("failed to scan target files: %w", err)
	}

	// The refiner's prompt embeds the explorer's proposal, so the two policy
	// invocations pipeline: explorer first, refiner second.
	explorerProp := r.invokePolicy(ctx, models.PolicyExplorer,
		explorerSystemPrompt(), buildUserPrompt(obj, codeContext, ""), 0.9)

	refinerProp := r.invokePolicy(ctx, models.PolicyRefiner,
		refinerSystemPrompt(), buildUserPrompt(obj, codeContext, summarizeProposal(explorerProp)), 0.2)

	// Evaluations share the working tree, so they run strictly sequentially.
	explorer, err := r.evaluateCandidate(ctx, models.PolicyExplorer, explorerProp, obj)
	if err != nil {
		return record, err
	}
	refiner, err := r.evaluateCandidate(ctx, models.PolicyRefiner, refinerProp, obj)
	if err != nil {
		return record, err
	}

	record.Explorer = explorer
	record.Refiner = refiner
	record.Outcome = score.Score([]models.CandidateResult{explorer, refiner})
	record.Winner = record.Outcome.Winner

	if record.Outcome.Tie {
		r.logger.Info("Match tied; nothing applied this iteration.",
			zap.Int("iteration", iteration),
			zap.Float64("top_aggregate", record.Outcome.Ranking[0].Aggregate))
		return record, nil
	}

	winner := explorer
	if record.Winner == models.PolicyRefiner {
		winner = refiner
	}
	winnerAggregate := record.Outcome.Ranking[0].Aggregate
	record.Improvement = winnerAggregate - state.BestScore

	if record.Improvement <= obj.MinImprovement || !winner.Evaluation.BuildSuccess {
		r.logger.Info("Winner did not beat the running best; nothing applied.",
			zap.Int("iteration", iteration),
			zap.String("winner", string(record.Winner)),
			zap.Float64("aggregate", winnerAggregate),
			zap.Float64("running_best", state.BestScore))
		return record, nil
	}

	// Permanent apply: no revert. The working tree now carries the edits into
	// the next iteration's scan.
	if err := r.applier.Apply(winner.Edits); err != nil {
		return record, fmt.Errorf("failed to permanently apply winning edits: %w", err)
	}

	state.BestScore = winnerAggregate
	record.Applied = true
	record.AppliedEdits = winner.Edits
	for _, edit := range winner.Edits {
		state.ModifiedFiles[r.relPath(edit.FilePath)] = struct{}{}
	}

	r.logger.Info("Winning edits permanently applied.",
		zap.Int("iteration", iteration),
		zap.String("winner", string(record.Winner)),
		zap.Int("edits", len(winner.Edits)),
		zap.Float64("new_best", state.BestScore))

	if r.recorder != nil {
		r.recorder.RecordApplied(ctx, record)
	}
	return record, nil
}

// invokePolicy calls the external completion collaborator once for one side.
// Any error or empty response degrades to a zero-confidence, zero-edit
// proposal rather than aborting the run.
func (r *Runner) invokePolicy(ctx context.Context, policy models.PolicyID, system, user string, temperature float64) models.Proposal {
	llmCtx, cancel := context.WithTimeout(ctx, r.opts.LLMTimeout)
	defer cancel()

	response, err := r.llm.Generate(llmCtx, schemas.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature: temperature,
		},
	})
	if err != nil || strings.TrimSpace(response) == "" {
		r.logger.Warn("Policy invocation failed or returned nothing; scoring an empty candidate.",
			zap.String("policy", string(policy)),
			zap.Error(err))
		return models.Proposal{}
	}

	return r.parser.Parse(response)
}

func (r *Runner) evaluateCandidate(ctx context.Context, policy models.PolicyID, prop models.Proposal, obj models.Objective) (models.CandidateResult, error) {
	candidate := models.CandidateResult{
		ID:         uuid.New().String(),
		Policy:     policy,
		Edits:      prop.Edits,
		Confidence: prop.Confidence,
		Reasoning:  prop.Reasoning,
	}

	outcome, err := r.evaluator.Evaluate(ctx, prop.Edits, obj)
	if err != nil {
		return candidate, fmt.Errorf("evaluation of %s candidate failed fatally: %w", policy, err)
	}
	candidate.Evaluation = outcome
	return candidate, nil
}

// gatherContext expands the objective's target-file globs against the project
// root and reads the matching files concurrently. Unreadable files are
// skipped; only cancellation is an error.
func (r *Runner) gatherContext(ctx context.Context, obj models.Objective) (string, error) {
	paths, err := r.expandScope(obj.TargetFiles)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "(no files matched the target scope)", nil
	}

	sections := make([]string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.ScanConcurrency)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				r.logger.Warn("Skipping unreadable target file.", zap.String("file", path), zap.Error(err))
				return nil
			}
			content := string(raw)
			if len(content) > r.opts.ContextByteLimit {
				content = content[:r.opts.ContextByteLimit] + "\n... [file truncated]"
			}
			sections[i] = fmt.Sprintf("### %s\n```\n%s\n```", r.relPath(path), content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var kept []string
	for _, s := range sections {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n"), nil
}

// expandScope resolves glob patterns to a sorted, de-duplicated, bounded list
// of regular files under the root.
func (r *Runner) expandScope(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var paths []string

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(r.root, pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid target pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
	}

	sort.Strings(paths)
	if len(paths) > r.opts.ContextFileLimit {
		paths = paths[:r.opts.ContextFileLimit]
	}
	return paths, nil
}

func (r *Runner) relPath(path string) string {
	if rel, err := filepath.Rel(r.root, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}
