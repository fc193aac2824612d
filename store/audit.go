package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Terminal job states. A state-change audit to one of these stamps
// refactor_jobs.completed_at.
var terminalStates = map[string]bool{
	"DELIVERED":         true,
	"FAILED":            true,
	"FALLBACK_REQUIRED": true,
}

// AuditEvent is one audit_events row.
type AuditEvent struct {
	JobID     string
	EventType string
	OldState  string // empty = NULL
	NewState  string // empty = NULL
	Surface   string // defaults to SYSTEM
	Metadata  map[string]any
}

// InsertAuditEvent writes one audit_events row. For job.state_change events
// with a new state it also refreshes the refactor_jobs status projection:
// status, updated_at, completed_at when the state is terminal, and
// failure_reason when the state is FAILED. The projection refresh is a
// single UPDATE; there is no read-modify-write.
func (s *Store) InsertAuditEvent(ctx context.Context, ev AuditEvent) error {
	surface := ev.Surface
	if surface == "" {
		surface = "SYSTEM"
	}
	meta := ev.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO audit_events (job_id, event_type, old_state, new_state, surface, metadata)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6::jsonb)`,
		ev.JobID, ev.EventType, ev.OldState, ev.NewState, surface, metaJSON)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	if ev.EventType != "job.state_change" || ev.NewState == "" {
		return nil
	}

	var failureReason string
	if ev.NewState == "FAILED" {
		if r, ok := meta["reason"].(string); ok {
			failureReason = r
		}
	}

	_, err = s.db.Exec(ctx,
		`UPDATE refactor_jobs
		 SET status = $1,
		     failure_reason = COALESCE(NULLIF($2, ''), failure_reason),
		     updated_at = NOW(),
		     completed_at = CASE WHEN $3 THEN NOW() ELSE completed_at END
		 WHERE id = $4`,
		ev.NewState, failureReason, terminalStates[ev.NewState], ev.JobID)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	s.logger.Debug("Recorded state change",
		slog.String("job_id", ev.JobID),
		slog.String("old_state", ev.OldState),
		slog.String("new_state", ev.NewState))
	return nil
}
