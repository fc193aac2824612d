package workflows

import (
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/c360studio/iama/activities"
)

// RevertInput starts a RevertWorkflow.
type RevertInput struct {
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`
}

// RevertResult is the RevertWorkflow return payload.
type RevertResult struct {
	JobID    string `json:"job_id"`
	Reverted bool   `json:"reverted"`
}

// RevertWorkflow records the intent to revert a delivered job. The actual
// reverse patch is applied by the IDE extension, which holds both the
// patched files and the original backup; the workflow only writes the
// audit trail.
func RevertWorkflow(ctx workflow.Context, input RevertInput) (*RevertResult, error) {
	auditCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: persistTimeout,
		HeartbeatTimeout:    persistTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			BackoffCoefficient: 2.0,
		},
	})

	err := workflow.ExecuteActivity(auditCtx, acts.WriteAuditEvent, activities.AuditInput{
		JobID:     input.JobID,
		EventType: "delivery.revert.started",
		OldState:  StateDelivered,
		NewState:  StateDelivered,
		Metadata:  map[string]any{"user_id": input.UserID},
	}).Get(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &RevertResult{JobID: input.JobID, Reverted: true}, nil
}
