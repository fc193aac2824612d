package store

import (
	"context"
	"fmt"
	"log/slog"
)

// UsageEvent is one usage_ledger row, or a counter_update projection write.
type UsageEvent struct {
	JobID          string
	EventType      string
	Quantity       int
	Billable       bool
	IdempotencyKey string
	Metadata       map[string]any
}

// counterMetadata extracts the counter fields of a counter_update event.
func counterMetadata(meta map[string]any) (attempt, identical int, fingerprint string) {
	if meta == nil {
		return 0, 0, ""
	}
	// JSON round-trips land numbers as float64; direct calls pass int.
	asInt := func(v any) int {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
		return 0
	}
	attempt = asInt(meta["attempt_count"])
	identical = asInt(meta["identical_failure_count"])
	if fp, ok := meta["failure_pattern_fingerprint"].(string); ok {
		fingerprint = fp
	}
	return attempt, identical, fingerprint
}

// RecordUsage writes one usage_ledger row idempotently. counter_update
// events instead refresh the attempt/failure counters on refactor_jobs.
// Events without an idempotency key, or for jobs with no row, are no-ops.
func (s *Store) RecordUsage(ctx context.Context, ev UsageEvent) error {
	if ev.EventType == "counter_update" {
		attempt, identical, fingerprint := counterMetadata(ev.Metadata)
		_, err := s.db.Exec(ctx,
			`UPDATE refactor_jobs
			 SET attempt_count = $1,
			     identical_failure_count = $2,
			     failure_pattern_fingerprint = NULLIF($3, ''),
			     updated_at = NOW()
			 WHERE id = $4`,
			attempt, identical, fingerprint, ev.JobID)
		if err != nil {
			return fmt.Errorf("update job counters: %w", err)
		}
		return nil
	}

	if ev.IdempotencyKey == "" {
		s.logger.Warn("Dropping usage event without idempotency key",
			slog.String("job_id", ev.JobID),
			slog.String("event_type", ev.EventType))
		return nil
	}

	ownerID, _, ok, err := s.JobOwner(ctx, ev.JobID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO usage_ledger (user_id, job_id, event_type, quantity, billable, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		ownerID, ev.JobID, ev.EventType, ev.Quantity, ev.Billable, ev.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}
	return nil
}
