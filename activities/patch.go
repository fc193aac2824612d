package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.temporal.io/sdk/activity"

	"github.com/c360studio/iama/llm"
	"github.com/c360studio/iama/metrics"
	"github.com/c360studio/iama/model"
	"github.com/c360studio/iama/store"
)

// patchSystemPrompt pins the output contract: patch-edit-schema operations
// only, never line-number unified diffs.
const patchSystemPrompt = "You are IAMA, a senior refactoring engineer. " +
	"Produce ONLY patch_edit_schema operations (symbolic_replace, exact_search_replace, " +
	"insert_after_symbol, delete_symbol, create_file, delete_file) as a JSON array. " +
	"NEVER produce line-number unified diffs."

// allowedPatchOps is the full patch-edit-schema vocabulary.
var allowedPatchOps = map[string]bool{
	"symbolic_replace":     true,
	"exact_search_replace": true,
	"insert_after_symbol":  true,
	"delete_symbol":        true,
	"create_file":          true,
	"delete_file":          true,
}

// parsePatchOperations extracts the JSON operations array from a completion,
// tolerating markdown fences and prose around the array. Operations outside
// the patch-edit-schema vocabulary are rejected.
func parsePatchOperations(content string) ([]PatchOperation, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no operations array in completion")
	}

	var ops []PatchOperation
	if err := json.Unmarshal([]byte(content[start:end+1]), &ops); err != nil {
		return nil, fmt.Errorf("decode operations: %w", err)
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("empty operations array")
	}
	for _, op := range ops {
		if !allowedPatchOps[op.Op] {
			return nil, fmt.Errorf("operation %q is not in the patch edit schema", op.Op)
		}
	}
	return ops, nil
}

// GeneratePatch streams a patch completion from the model class selected by
// phase and tier. The repair loop runs it without platform retries, so any
// error here surfaces directly as a failed attempt.
func (a *Activities) GeneratePatch(ctx context.Context, in PatchInput) (PatchResult, error) {
	activity.RecordHeartbeat(ctx)
	logger := activity.GetLogger(ctx)

	effectivePhase := model.EffectivePhase(in.Phase, in.Tier)
	routerModel := model.ForPhase(in.Phase, in.Tier)
	logger.Info("Generating patch",
		"job_id", in.JobID,
		"attempt", in.AttemptNumber,
		"phase", in.Phase,
		"effective_phase", effectivePhase,
		"model", routerModel,
		"deep_fix", in.IsDeepFix)

	prompt := fmt.Sprintf("Generate patch for job %s attempt %d.", in.JobID, in.AttemptNumber)
	if in.IsDeepFix {
		prompt += " Perform a deep fix: re-derive the approach from the spec instead of patching the previous attempt."
	}

	resp, err := a.gateway.Stream(ctx, llm.Request{
		Model: routerModel,
		Messages: []llm.Message{
			{Role: "system", Content: patchSystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens: 30000,
	}, func(string) error {
		metrics.LLMStreamChunks.WithLabelValues(routerModel).Inc()
		activity.RecordHeartbeat(ctx)
		return ctx.Err()
	})
	if err != nil {
		return PatchResult{}, gatewayError(
			fmt.Sprintf("generate patch for job %s attempt %d", in.JobID, in.AttemptNumber), err)
	}

	ops, err := parsePatchOperations(resp.Content)
	if err != nil {
		return PatchResult{}, fmt.Errorf("patch for job %s attempt %d: %w", in.JobID, in.AttemptNumber, err)
	}

	return PatchResult{
		JobID:          in.JobID,
		AttemptNumber:  in.AttemptNumber,
		ModelClass:     routerModel,
		EffectivePhase: effectivePhase,
		PatchOps:       ops,
	}, nil
}

// ApplyPatch records the patch attempt and its billable usage event. The
// filesystem application happens in the IDE extension; this is the
// persistence half. Both writes are conflict-ignore, keyed by
// (job_id, attempt_number) and "{job_id}:L{phase}:{attempt}" respectively.
func (a *Activities) ApplyPatch(ctx context.Context, in ApplyInput) (ApplyResult, error) {
	activity.RecordHeartbeat(ctx)

	modelClass := model.ClassForPhase(in.EffectivePhase, in.Tier)
	err := a.store.InsertPatchAttempt(ctx, store.PatchAttempt{
		JobID:         in.JobID,
		AttemptNumber: in.AttemptNumber,
		Phase:         in.EffectivePhase,
		ModelClass:    modelClass,
		Outcome:       "APPLIED",
	})
	if err != nil {
		return ApplyResult{}, err
	}

	err = a.store.RecordUsage(ctx, store.UsageEvent{
		JobID:          in.JobID,
		EventType:      fmt.Sprintf("phase_%d_call", in.EffectivePhase),
		Quantity:       1,
		Billable:       true,
		IdempotencyKey: fmt.Sprintf("%s:L%d:%d", in.JobID, in.EffectivePhase, in.AttemptNumber),
	})
	if err != nil {
		return ApplyResult{}, err
	}

	return ApplyResult{JobID: in.JobID, AttemptNumber: in.AttemptNumber, Applied: true}, nil
}
