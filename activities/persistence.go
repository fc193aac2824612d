package activities

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/c360studio/iama/metrics"
	"github.com/c360studio/iama/store"
)

// WriteAuditEvent inserts one audit_events row and, for state changes,
// refreshes the refactor_jobs status projection. The workflow awaits this
// before scheduling any activity of the successor state.
func (a *Activities) WriteAuditEvent(ctx context.Context, in AuditInput) error {
	activity.RecordHeartbeat(ctx)

	if in.EventType == "job.state_change" && in.NewState != "" {
		metrics.StateTransitions.WithLabelValues(in.NewState).Inc()
	}

	return a.store.InsertAuditEvent(ctx, store.AuditEvent{
		JobID:     in.JobID,
		EventType: in.EventType,
		OldState:  in.OldState,
		NewState:  in.NewState,
		Surface:   in.Surface,
		Metadata:  in.Metadata,
	})
}

// RecordUsage writes one usage_ledger row (conflict-ignore on the
// idempotency key) or, for counter_update events, refreshes the job's
// attempt/failure counters.
func (a *Activities) RecordUsage(ctx context.Context, in UsageInput) error {
	activity.RecordHeartbeat(ctx)

	return a.store.RecordUsage(ctx, store.UsageEvent{
		JobID:          in.JobID,
		EventType:      in.EventType,
		Quantity:       in.Quantity,
		Billable:       in.Billable,
		IdempotencyKey: in.IdempotencyKey,
		Metadata:       in.Metadata,
	})
}

// WriteEntitlementSnapshot captures the job owner's entitlements. The
// workflow runs this before the first ANALYZING transition.
func (a *Activities) WriteEntitlementSnapshot(ctx context.Context, in EntitlementInput) error {
	activity.RecordHeartbeat(ctx)

	return a.store.WriteEntitlementSnapshot(ctx, in.JobID)
}
