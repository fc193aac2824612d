package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jackc/pgx/v5"
)

// TestRun identifies one test_runs row by its natural key.
type TestRun struct {
	JobID          string
	AttemptNumber  int
	RunType        string // BASELINE or REPAIR
	Phase          int
	SpecRevisionID string
	ExecutionMode  string
}

// LatestSpecRevision returns the most recent spec_revisions id for a job,
// or false when the job has none.
func (s *Store) LatestSpecRevision(ctx context.Context, jobID string) (string, bool, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`SELECT id FROM spec_revisions WHERE job_id = $1 ORDER BY created_at DESC LIMIT 1`,
		jobID).Scan(&id)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query spec revision: %w", err)
	}
	return id, true, nil
}

// InsertTestRun writes one RUNNING test_runs row, conflict-ignore on
// (job_id, attempt_number, run_type). When no spec revision id is given the
// latest spec_revisions row is linked, or an opaque id is fabricated for
// jobs that never produced a revision. Returns the test run id.
func (s *Store) InsertTestRun(ctx context.Context, tr TestRun) (string, error) {
	specRevisionID := tr.SpecRevisionID
	if specRevisionID == "" {
		latest, ok, err := s.LatestSpecRevision(ctx, tr.JobID)
		if err != nil {
			return "", err
		}
		if ok {
			specRevisionID = latest
		} else {
			specRevisionID = uuid.New().String()
		}
	}

	id := uuid.New().String()
	_, err := s.db.Exec(ctx,
		`INSERT INTO test_runs
		   (id, job_id, spec_revision_id, attempt_number, phase, run_type, status, execution_mode)
		 VALUES ($1, $2, $3, $4, $5, $6, 'RUNNING', $7)
		 ON CONFLICT (job_id, attempt_number, run_type) DO NOTHING`,
		id, tr.JobID, specRevisionID, tr.AttemptNumber, tr.Phase, tr.RunType, tr.ExecutionMode)
	if err != nil {
		return "", fmt.Errorf("insert test run: %w", err)
	}
	return id, nil
}

// CompleteTestRun stamps the terminal status and completion time on a
// test_runs row identified by its natural key.
func (s *Store) CompleteTestRun(ctx context.Context, jobID string, attemptNumber int, runType, status string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE test_runs SET status = $1, completed_at = NOW()
		 WHERE job_id = $2 AND attempt_number = $3 AND run_type = $4`,
		status, jobID, attemptNumber, runType)
	if err != nil {
		return fmt.Errorf("complete test run: %w", err)
	}
	return nil
}
