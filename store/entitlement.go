package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/c360studio/iama/model"
)

// Entitlement defaults applied when the owner has no ACTIVE subscription.
const (
	defaultTier          = model.TierFree
	defaultOperatingMode = "SIMPLE"
	defaultContextCap    = 128000
)

// WriteEntitlementSnapshot captures the job owner's entitlements as an
// immutable row. The snapshot is the source of truth for the rest of the
// run; conflict-ignore on job_id makes the capture exactly-once. No-op for
// jobs with no refactor_jobs row.
func (s *Store) WriteEntitlementSnapshot(ctx context.Context, jobID string) error {
	ownerID, executionMode, ok, err := s.JobOwner(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	tier := defaultTier
	operatingMode := defaultOperatingMode
	contextCap := defaultContextCap

	err = s.db.QueryRow(ctx,
		`SELECT tier, operating_mode, context_cap
		 FROM subscription_tiers
		 WHERE user_id = $1 AND status = 'ACTIVE'
		 ORDER BY created_at DESC
		 LIMIT 1`,
		ownerID).Scan(&tier, &operatingMode, &contextCap)
	if err != nil && err != pgx.ErrNoRows {
		return fmt.Errorf("query subscription tier: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO entitlement_snapshots
		   (job_id, user_id, tier, operating_mode, execution_mode,
		    phase_limits, web_github_enabled, context_cap)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
		 ON CONFLICT (job_id) DO NOTHING`,
		jobID, ownerID, tier, operatingMode, executionMode,
		`{"phase1":null,"phase2":null,"phase3":null}`,
		tier == model.TierEnterprise, contextCap)
	if err != nil {
		return fmt.Errorf("insert entitlement snapshot: %w", err)
	}
	return nil
}
