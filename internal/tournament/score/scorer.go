// internal/tournament/score/scorer.go

// Package score ranks a match's candidates. Score is a pure function: no
// randomness, no I/O, identical inputs always produce the same ranking and
// the same winner/tie decision, which keeps the loop's decisions reproducible
// and testable in isolation.
package score

import (
	"sort"

	"github.com/xkilldash9x/crucible-cli/internal/tournament/models"
)

// TieEpsilon is the aggregate-score margin below which the match is a tie and
// no side is credited as winner.
const TieEpsilon = 0.01

// Blending weights for the aggregate score: the evaluation's overall score,
// the candidate's self-reported confidence, and two explicitly weighted
// evaluator checks.
const (
	weightOverall    = 2.0
	weightConfidence = 0.5
	weightBuildPass  = 1.5
	weightTestRatio  = 1.3
)

// Aggregate blends a candidate's evaluation with its self-reported confidence
// into a single weighted-average score in [0, 1].
func Aggregate(c models.CandidateResult) float64 {
	buildPass := 0.0
	if c.Evaluation.BuildSuccess {
		buildPass = 1.0
	}

	sum := weightOverall*c.Evaluation.OverallScore +
		weightConfidence*c.Confidence +
		weightBuildPass*buildPass +
		weightTestRatio*c.Evaluation.TestScore

	return sum / (weightOverall + weightConfidence + weightBuildPass + weightTestRatio)
}

// Score ranks the candidates descending by aggregate score and names the
// winner. When the top two aggregates differ by less than TieEpsilon the
// outcome is a tie.
func Score(candidates []models.CandidateResult) models.TournamentOutcome {
	outcome := models.TournamentOutcome{}
	if len(candidates) == 0 {
		return outcome
	}

	ranking := make([]models.RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		ranking = append(ranking, models.RankedCandidate{
			Policy:    c.Policy,
			Aggregate: Aggregate(c),
		})
	}

	// Stable sort with a policy-name tiebreak so equal scores rank identically
	// on every call.
	sort.SliceStable(ranking, func(i, j int) bool {
		if ranking[i].Aggregate != ranking[j].Aggregate {
			return ranking[i].Aggregate > ranking[j].Aggregate
		}
		return ranking[i].Policy < ranking[j].Policy
	})
	outcome.Ranking = ranking

	if len(ranking) == 1 {
		outcome.Winner = ranking[0].Policy
		return outcome
	}

	if ranking[0].Aggregate-ranking[1].Aggregate < TieEpsilon {
		outcome.Tie = true
		return outcome
	}

	outcome.Winner = ranking[0].Policy
	return outcome
}
