package activities

import (
	"context"
	"math"

	"go.temporal.io/sdk/activity"
)

// Baseline modes selected from the AST confidence score.
const (
	BaselineASTSymbolic        = "AST_SYMBOLIC"
	BaselineBlackBox           = "BLACK_BOX"
	BaselineExactSearchReplace = "EXACT_SEARCH_REPLACE"
)

// astConfidence computes the 0-100 AST confidence score from the source
// survey rates: 40% parse rate, 35% symbol rate, 25% snippet completeness.
func astConfidence(parseRate, symbolRate, snippetCompleteness float64) int {
	return int(math.Round(100 * (0.40*parseRate + 0.35*symbolRate + 0.25*snippetCompleteness)))
}

// baselineModeFor maps an AST confidence score to the baseline validation
// mode: >=40 symbolic, 20-39 black box, below that exact search/replace only.
func baselineModeFor(score int) string {
	switch {
	case score >= 40:
		return BaselineASTSymbolic
	case score >= 20:
		return BaselineBlackBox
	default:
		return BaselineExactSearchReplace
	}
}

// AssembleContext builds the execution context for a refactor job from the
// uploaded source survey. Deterministic: no LLM call is involved.
func (a *Activities) AssembleContext(ctx context.Context, in ContextInput) (ContextResult, error) {
	activity.RecordHeartbeat(ctx)
	logger := activity.GetLogger(ctx)
	logger.Info("Assembling context", "job_id", in.JobID, "tier", in.Tier)

	score := astConfidence(in.Stats.ParseRate, in.Stats.SymbolRate, in.Stats.SnippetCompleteness)
	result := ContextResult{
		JobID:        in.JobID,
		Tier:         in.Tier,
		FileCount:    in.Stats.FileCount,
		TotalTokens:  in.Stats.TotalTokens,
		ASTScore:     score,
		BaselineMode: baselineModeFor(score),
		TargetFiles:  in.Stats.TargetFiles,
	}

	activity.RecordHeartbeat(ctx)
	logger.Info("Context assembled",
		"job_id", in.JobID,
		"ast_score", score,
		"baseline_mode", result.BaselineMode,
		"file_count", result.FileCount)
	return result, nil
}
