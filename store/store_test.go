package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/iama/model"
)

// fakeDB records Exec calls and serves queued QueryRow results in order.
type fakeDB struct {
	execs   []sqlCall
	queries []sqlCall
	rows    []fakeRow
	execErr error
}

type sqlCall struct {
	sql  string
	args []any
}

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		if i >= len(r.vals) {
			break
		}
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sqlCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.queries = append(f.queries, sqlCall{sql: sql, args: args})
	if len(f.rows) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	row := f.rows[0]
	f.rows = f.rows[1:]
	return row
}

func TestInsertAuditEvent_PlainEvent(t *testing.T) {
	db := &fakeDB{}
	s := NewWithQuerier(db)

	err := s.InsertAuditEvent(context.Background(), AuditEvent{
		JobID:     "job-1",
		EventType: "delivery.revert.started",
		Metadata:  map[string]any{"user_id": "u-1"},
	})
	require.NoError(t, err)

	// One insert, no projection update for non-state-change events.
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "INSERT INTO audit_events")
	assert.Equal(t, "job-1", db.execs[0].args[0])
	assert.Equal(t, "SYSTEM", db.execs[0].args[4])
}

func TestInsertAuditEvent_StateChangeUpdatesProjection(t *testing.T) {
	db := &fakeDB{}
	s := NewWithQuerier(db)

	err := s.InsertAuditEvent(context.Background(), AuditEvent{
		JobID:     "job-1",
		EventType: "job.state_change",
		OldState:  "REFACTORING",
		NewState:  "SELF_HEALING",
	})
	require.NoError(t, err)

	require.Len(t, db.execs, 2)
	assert.Contains(t, db.execs[1].sql, "UPDATE refactor_jobs")
	assert.Equal(t, "SELF_HEALING", db.execs[1].args[0])
	assert.Equal(t, "", db.execs[1].args[1])    // no failure reason
	assert.Equal(t, false, db.execs[1].args[2]) // not terminal
}

func TestInsertAuditEvent_FailedStampsReasonAndCompletion(t *testing.T) {
	db := &fakeDB{}
	s := NewWithQuerier(db)

	err := s.InsertAuditEvent(context.Background(), AuditEvent{
		JobID:     "job-1",
		EventType: "job.state_change",
		OldState:  "WAITING_INTERVENTION",
		NewState:  "FAILED",
		Metadata:  map[string]any{"reason": "INTERVENTION_TIMEOUT"},
	})
	require.NoError(t, err)

	require.Len(t, db.execs, 2)
	update := db.execs[1]
	assert.Equal(t, "FAILED", update.args[0])
	assert.Equal(t, "INTERVENTION_TIMEOUT", update.args[1])
	assert.Equal(t, true, update.args[2]) // terminal → completed_at
}

func TestInsertAuditEvent_TerminalStates(t *testing.T) {
	for _, state := range []string{"DELIVERED", "FAILED", "FALLBACK_REQUIRED"} {
		db := &fakeDB{}
		s := NewWithQuerier(db)

		err := s.InsertAuditEvent(context.Background(), AuditEvent{
			JobID:     "job-1",
			EventType: "job.state_change",
			NewState:  state,
		})
		require.NoError(t, err)
		require.Len(t, db.execs, 2, "state %s", state)
		assert.Equal(t, true, db.execs[1].args[2], "state %s must stamp completed_at", state)
	}
}

func TestRecordUsage_CounterUpdate(t *testing.T) {
	db := &fakeDB{}
	s := NewWithQuerier(db)

	err := s.RecordUsage(context.Background(), UsageEvent{
		JobID:     "job-1",
		EventType: "counter_update",
		Metadata: map[string]any{
			"attempt_count":               2,
			"identical_failure_count":     1,
			"failure_pattern_fingerprint": "F",
		},
	})
	require.NoError(t, err)

	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "UPDATE refactor_jobs")
	assert.Equal(t, []any{2, 1, "F", "job-1"}, db.execs[0].args)
}

func TestRecordUsage_CounterUpdate_JSONNumbers(t *testing.T) {
	db := &fakeDB{}
	s := NewWithQuerier(db)

	// Metadata that round-tripped through the data converter carries float64.
	err := s.RecordUsage(context.Background(), UsageEvent{
		JobID:     "job-1",
		EventType: "counter_update",
		Metadata: map[string]any{
			"attempt_count":           float64(3),
			"identical_failure_count": float64(0),
		},
	})
	require.NoError(t, err)
	require.Len(t, db.execs, 1)
	assert.Equal(t, []any{3, 0, "", "job-1"}, db.execs[0].args)
}

func TestRecordUsage_RequiresIdempotencyKey(t *testing.T) {
	db := &fakeDB{}
	s := NewWithQuerier(db)

	err := s.RecordUsage(context.Background(), UsageEvent{
		JobID:     "job-1",
		EventType: "phase_1_call",
		Billable:  true,
	})
	require.NoError(t, err)
	assert.Empty(t, db.execs, "billable event without key must be dropped")
}

func TestRecordUsage_NoJobRowIsNoop(t *testing.T) {
	db := &fakeDB{} // QueryRow yields ErrNoRows
	s := NewWithQuerier(db)

	err := s.RecordUsage(context.Background(), UsageEvent{
		JobID:          "missing",
		EventType:      "phase_1_call",
		Quantity:       1,
		Billable:       true,
		IdempotencyKey: "missing:L1:1",
	})
	require.NoError(t, err)
	assert.Empty(t, db.execs)
}

func TestRecordUsage_BillableInsert(t *testing.T) {
	db := &fakeDB{rows: []fakeRow{{vals: []any{"owner-9", "LOCAL_NATIVE"}}}}
	s := NewWithQuerier(db)

	err := s.RecordUsage(context.Background(), UsageEvent{
		JobID:          "job-1",
		EventType:      "phase_1_call",
		Quantity:       1,
		Billable:       true,
		IdempotencyKey: "job-1:L1:1",
	})
	require.NoError(t, err)

	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "ON CONFLICT (idempotency_key) DO NOTHING")
	assert.Equal(t, []any{"owner-9", "job-1", "phase_1_call", 1, true, "job-1:L1:1"}, db.execs[0].args)
}

func TestWriteEntitlementSnapshot_Defaults(t *testing.T) {
	db := &fakeDB{rows: []fakeRow{
		{vals: []any{"owner-9", "LOCAL_NATIVE"}}, // refactor_jobs
		{err: pgx.ErrNoRows},                     // no active subscription
	}}
	s := NewWithQuerier(db)

	require.NoError(t, s.WriteEntitlementSnapshot(context.Background(), "job-1"))

	require.Len(t, db.execs, 1)
	insert := db.execs[0]
	assert.Contains(t, insert.sql, "ON CONFLICT (job_id) DO NOTHING")
	assert.Equal(t, "job-1", insert.args[0])
	assert.Equal(t, "owner-9", insert.args[1])
	assert.Equal(t, model.TierFree, insert.args[2])
	assert.Equal(t, "SIMPLE", insert.args[3])
	assert.Equal(t, "LOCAL_NATIVE", insert.args[4])
	assert.Equal(t, false, insert.args[6]) // web_github_enabled
	assert.Equal(t, 128000, insert.args[7])
}

func TestWriteEntitlementSnapshot_EnterpriseEnablesWebGithub(t *testing.T) {
	db := &fakeDB{rows: []fakeRow{
		{vals: []any{"owner-9", "LOCAL_NATIVE"}},
		{vals: []any{model.TierEnterprise, "DEEP", 1000000}},
	}}
	s := NewWithQuerier(db)

	require.NoError(t, s.WriteEntitlementSnapshot(context.Background(), "job-1"))

	require.Len(t, db.execs, 1)
	insert := db.execs[0]
	assert.Equal(t, model.TierEnterprise, insert.args[2])
	assert.Equal(t, true, insert.args[6])
	assert.Equal(t, 1000000, insert.args[7])
}

func TestWriteEntitlementSnapshot_NoJobRowIsNoop(t *testing.T) {
	db := &fakeDB{}
	s := NewWithQuerier(db)

	require.NoError(t, s.WriteEntitlementSnapshot(context.Background(), "missing"))
	assert.Empty(t, db.execs)
}

func TestInsertPatchAttempt(t *testing.T) {
	db := &fakeDB{}
	s := NewWithQuerier(db)

	err := s.InsertPatchAttempt(context.Background(), PatchAttempt{
		JobID:         "job-1",
		AttemptNumber: 2,
		Phase:         2,
		ModelClass:    model.ClassL2,
		Outcome:       "APPLIED",
	})
	require.NoError(t, err)

	require.Len(t, db.execs, 1)
	insert := db.execs[0]
	assert.Contains(t, insert.sql, "ON CONFLICT (job_id, attempt_number) DO NOTHING")
	assert.NotEmpty(t, insert.args[0]) // generated id
	assert.Equal(t, "job-1", insert.args[1])
	assert.Equal(t, 2, insert.args[2])
	assert.Equal(t, 2, insert.args[3])
	assert.Equal(t, "L2", insert.args[4])
	assert.Equal(t, "APPLIED", insert.args[5])
}

func TestInsertTestRun_LinksLatestSpecRevision(t *testing.T) {
	db := &fakeDB{rows: []fakeRow{{vals: []any{"rev-42"}}}}
	s := NewWithQuerier(db)

	id, err := s.InsertTestRun(context.Background(), TestRun{
		JobID:         "job-1",
		AttemptNumber: 1,
		RunType:       "REPAIR",
		Phase:         1,
		ExecutionMode: "LOCAL_NATIVE",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, db.execs, 1)
	insert := db.execs[0]
	assert.Contains(t, insert.sql, "ON CONFLICT (job_id, attempt_number, run_type) DO NOTHING")
	assert.Equal(t, "rev-42", insert.args[2])
	assert.Equal(t, "REPAIR", insert.args[5])
}

func TestInsertTestRun_FabricatesRevisionWhenAbsent(t *testing.T) {
	db := &fakeDB{} // spec_revisions lookup yields ErrNoRows
	s := NewWithQuerier(db)

	_, err := s.InsertTestRun(context.Background(), TestRun{
		JobID:         "job-1",
		AttemptNumber: 0,
		RunType:       "BASELINE",
		Phase:         1,
		ExecutionMode: "LOCAL_NATIVE",
	})
	require.NoError(t, err)

	require.Len(t, db.execs, 1)
	assert.NotEmpty(t, db.execs[0].args[2], "fabricated spec revision id")
}

func TestCompleteTestRun(t *testing.T) {
	db := &fakeDB{}
	s := NewWithQuerier(db)

	err := s.CompleteTestRun(context.Background(), "job-1", 1, "REPAIR", "FAILED")
	require.NoError(t, err)

	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "completed_at = NOW()")
	assert.Equal(t, []any{"FAILED", "job-1", 1, "REPAIR"}, db.execs[0].args)
}
