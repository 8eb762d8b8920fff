// internal/tournament/models/models.go
package models

import (
	"time"
)

// PolicyID identifies one of the two competing proposal strategies.
type PolicyID string

const (
	PolicyExplorer PolicyID = "explorer"
	PolicyRefiner  PolicyID = "refiner"
)

// Fixed weights combining the Evaluator's four component scores into the
// overall evaluation score.
const (
	WeightBuild    = 0.35
	WeightTests    = 0.35
	WeightQuality  = 0.15
	WeightSecurity = 0.15
)

// Objective represents the high-level improvement goal for one run.
// It is immutable for the lifetime of the run.
type Objective struct {
	ID             string   `json:"id"`
	Goal           string   `json:"goal"`         // e.g. "reduce complexity of the parser"
	TargetFiles    []string `json:"target_files"` // path globs relative to the project root
	BuildCommand   string   `json:"build_command"`
	TestCommand    string   `json:"test_command"`
	MaxIterations  int      `json:"max_iterations"`
	Patience       int      `json:"patience"`        // consecutive non-improving iterations before convergence
	MinImprovement float64  `json:"min_improvement"` // minimum score delta that counts as improvement
}

// ProposedEdit is a single discrete file edit extracted from a policy's
// free-text proposal. A list of ProposedEdit forms one candidate's patch.
type ProposedEdit struct {
	FilePath     string `json:"file_path"` // absolute path within the working tree
	Original     string `json:"original"`
	Replacement  string `json:"replacement"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
}

// IsNoop reports whether the edit would leave the file byte-identical.
func (e ProposedEdit) IsNoop() bool {
	return e.Original == e.Replacement
}

// Proposal is the Proposal Parser's output for one policy response.
// Zero edits and empty reasoning is a valid "the policy proposed nothing"
// result, not an error.
type Proposal struct {
	Edits      []ProposedEdit `json:"edits"`
	Reasoning  string         `json:"reasoning"`
	Confidence float64        `json:"confidence"`
}

// EvaluationOutcome captures the result of applying a patch, running the
// project's build and test commands, and reverting. The working tree is
// byte-identical to its pre-evaluation state by the time one of these exists.
type EvaluationOutcome struct {
	BuildSuccess bool   `json:"build_success"`
	BuildOutput  string `json:"build_output"`
	TestsPassed  int    `json:"tests_passed"`
	TestsFailed  int    `json:"tests_failed"`
	TestsTotal   int    `json:"tests_total"`
	TestOutput   string `json:"test_output"`

	BuildScore    float64 `json:"build_score"`
	TestScore     float64 `json:"test_score"`
	QualityScore  float64 `json:"quality_score"`
	SecurityScore float64 `json:"security_score"`
	OverallScore  float64 `json:"overall_score"`
}

// CandidateResult is one policy's parsed proposal plus its evaluation
// outcome for a single iteration.
type CandidateResult struct {
	ID         string            `json:"id"`
	Policy     PolicyID          `json:"policy"`
	Edits      []ProposedEdit    `json:"edits"`
	Confidence float64           `json:"confidence"`
	Reasoning  string            `json:"reasoning"`
	Evaluation EvaluationOutcome `json:"evaluation"`
}

// RankedCandidate pairs a policy with its aggregate tournament score.
type RankedCandidate struct {
	Policy    PolicyID `json:"policy"`
	Aggregate float64  `json:"aggregate"`
}

// TournamentOutcome ranks a match's candidates by aggregate score and names
// the winner, or reports a tie when the top two scores are within epsilon.
type TournamentOutcome struct {
	Ranking []RankedCandidate `json:"ranking"` // descending by aggregate
	Winner  PolicyID          `json:"winner"`  // empty when Tie
	Tie     bool              `json:"tie"`
}

// IterationRecord is the immutable record of one match. Appended to the run
// history in strict iteration order.
type IterationRecord struct {
	Iteration    int               `json:"iteration"`
	Explorer     CandidateResult   `json:"explorer"`
	Refiner      CandidateResult   `json:"refiner"`
	Outcome      TournamentOutcome `json:"outcome"`
	Winner       PolicyID          `json:"winner"` // empty on a tie
	Improvement  float64           `json:"improvement"`
	Applied      bool              `json:"applied"`
	AppliedEdits []ProposedEdit    `json:"applied_edits,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// RunState is the mutable per-run state owned by the Convergence Loop.
// It is never shared across concurrent runs.
type RunState struct {
	BestScore     float64
	NoImprovement int
	ModifiedFiles map[string]struct{}
	History       []IterationRecord
}

// NewRunState returns a fresh run state with a zero best score.
func NewRunState() *RunState {
	return &RunState{
		ModifiedFiles: make(map[string]struct{}),
	}
}

// LoopState enumerates the Convergence Loop's states.
type LoopState string

const (
	StateRunning   LoopState = "Running"
	StateConverged LoopState = "Converged"
	StateExhausted LoopState = "Exhausted"
)

// Report is the final run report produced at both terminal states.
type Report struct {
	Objective       string            `json:"objective"`
	Success         bool              `json:"success"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
	TotalIterations int               `json:"total_iterations"`
	Converged       bool              `json:"converged"`
	ConvergedAtIter int               `json:"converged_at_iteration,omitempty"`
	FinalState      LoopState         `json:"final_state"`
	BestScore       float64           `json:"best_score"`
	ExplorerWins    int               `json:"explorer_wins"`
	RefinerWins     int               `json:"refiner_wins"`
	Ties            int               `json:"ties"`
	AppliedChanges  int               `json:"applied_changes"`
	ModifiedFiles   []string          `json:"modified_files"`
	Iterations      []IterationRecord `json:"iterations"`
	Error           string            `json:"error,omitempty"`
}
