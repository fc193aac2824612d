package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/c360studio/iama/model"
)

// PatchAttempt is one patch_attempts row.
type PatchAttempt struct {
	JobID         string
	AttemptNumber int
	Phase         int
	ModelClass    model.Class
	Outcome       string
}

// InsertPatchAttempt records one patch attempt, conflict-ignore on
// (job_id, attempt_number) so activity retries never duplicate the row.
func (s *Store) InsertPatchAttempt(ctx context.Context, pa PatchAttempt) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO patch_attempts (id, job_id, attempt_number, phase, model_class, outcome)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (job_id, attempt_number) DO NOTHING`,
		uuid.New().String(), pa.JobID, pa.AttemptNumber, pa.Phase, pa.ModelClass.String(), pa.Outcome)
	if err != nil {
		return fmt.Errorf("insert patch attempt: %w", err)
	}
	return nil
}
