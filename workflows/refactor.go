package workflows

import (
	"fmt"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/c360studio/iama/activities"
)

// acts is a typed handle for activity method references; never invoked
// locally, only passed to ExecuteActivity.
var acts *activities.Activities

// JobInput starts a RefactorJobWorkflow.
type JobInput struct {
	JobID         string `json:"job_id"`
	UserID        string `json:"user_id"`
	Tier          string `json:"tier"`
	ExecutionMode string `json:"execution_mode"`
}

// JobResult is the workflow return payload.
type JobResult struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// RefactorJobWorkflow drives one refactor job from PENDING to a terminal
// state. Every state change is audited before the successor state schedules
// any activity, and every side effect runs through an idempotent activity,
// so the machine survives replay, retry, and cancellation.
func RefactorJobWorkflow(ctx workflow.Context, input JobInput) (*JobResult, error) {
	s := newJobState()
	if err := s.registerHandlers(ctx); err != nil {
		return nil, err
	}

	result, runErr := s.run(ctx, input)
	if runErr == nil {
		return result, nil
	}

	// Terminal bookkeeping runs on a disconnected context so the audit
	// write still goes through after platform cancellation.
	dctx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()

	reason := runErr.Error()
	if temporal.IsCanceledError(runErr) || ctx.Err() != nil {
		reason = ReasonUserCancelled
	} else if len(reason) > failureReasonLimit {
		reason = reason[:failureReasonLimit]
	}

	if terr := s.transition(dctx, input.JobID, StateFailed, map[string]any{"reason": reason}); terr != nil {
		workflow.GetLogger(ctx).Error("Failed to audit terminal failure",
			"job_id", input.JobID, "error", terr)
	}
	return nil, runErr
}

// run executes the prologue and repair loop. It returns an error only for
// uncaught failures; policy-defined terminal outcomes return a JobResult.
func (s *jobState) run(ctx workflow.Context, input JobInput) (*JobResult, error) {
	jobID := input.JobID
	logger := workflow.GetLogger(ctx)

	retryPolicy := &temporal.RetryPolicy{
		MaximumAttempts:    3,
		BackoffCoefficient: 2.0,
	}

	// Entitlement snapshot must exist before the job first enters
	// ANALYZING; it is the capability source of truth for the whole run.
	entCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: persistTimeout,
		HeartbeatTimeout:    persistTimeout,
		RetryPolicy:         retryPolicy,
	})
	if err := workflow.ExecuteActivity(entCtx, acts.WriteEntitlementSnapshot,
		activities.EntitlementInput{JobID: jobID}).Get(ctx, nil); err != nil {
		return nil, err
	}

	// ── ANALYZING: context assembly ───────────────────────────────────
	if err := s.transition(ctx, jobID, StateAnalyzing, nil); err != nil {
		return nil, err
	}

	var jobContext activities.ContextResult
	assembleCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: contextTimeout,
		HeartbeatTimeout:    llmHeartbeatTimeout,
		RetryPolicy:         retryPolicy,
	})
	if err := workflow.ExecuteActivity(assembleCtx, acts.AssembleContext,
		activities.ContextInput{JobID: jobID, Tier: input.Tier}).Get(ctx, &jobContext); err != nil {
		return nil, err
	}

	// ── WAITING_STRATEGY: generate proposals, await selection ─────────
	if err := s.transition(ctx, jobID, StateWaitingStrategy, nil); err != nil {
		return nil, err
	}

	llmCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: llmTimeout,
		HeartbeatTimeout:    llmHeartbeatTimeout,
		RetryPolicy:         retryPolicy,
	})
	var proposals []activities.Proposal
	if err := workflow.ExecuteActivity(llmCtx, acts.GenerateProposals,
		activities.ProposalInput{JobID: jobID, Context: jobContext, Tier: input.Tier}).Get(ctx, &proposals); err != nil {
		return nil, err
	}

	ok, err := workflow.AwaitWithTimeout(ctx, proposalWait, func() bool {
		return s.proposalSelected != ""
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no proposal selected within %s", proposalWait)
	}

	// ── WAITING_SPEC_APPROVAL ─────────────────────────────────────────
	if err := s.transition(ctx, jobID, StateWaitingSpecApproval, nil); err != nil {
		return nil, err
	}
	s.specApproved = false
	if err := s.awaitSpecApproval(ctx); err != nil {
		return nil, err
	}

	// ── GENERATING_TESTS / BASELINE_VALIDATION loop ───────────────────
	// A failed baseline loops back through spec approval and test
	// regeneration until the suite validates against the unmodified code.
	for {
		if err := s.transition(ctx, jobID, StateGeneratingTests, nil); err != nil {
			return nil, err
		}
		if err := workflow.ExecuteActivity(llmCtx, acts.GenerateTests,
			activities.TestGenInput{JobID: jobID, Tier: input.Tier}).Get(ctx, nil); err != nil {
			return nil, err
		}

		if err := s.transition(ctx, jobID, StateBaselineValidation, nil); err != nil {
			return nil, err
		}

		var baseline activities.RunTestsResult
		testCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: runTestsTimeout,
			HeartbeatTimeout:    llmHeartbeatTimeout,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
		})
		if err := workflow.ExecuteActivity(testCtx, acts.RunTests, activities.RunTestsInput{
			JobID:         jobID,
			RunType:       "BASELINE",
			AttemptNumber: 0,
			Phase:         s.phase,
			ExecutionMode: input.ExecutionMode,
		}).Get(ctx, &baseline); err != nil {
			return nil, err
		}
		if baseline.Passed {
			break
		}

		logger.Info("Baseline validation failed, returning to spec approval", "job_id", jobID)
		if err := s.transition(ctx, jobID, StateBaselineValidationFailed, nil); err != nil {
			return nil, err
		}
		s.specApproved = false
		if err := s.transition(ctx, jobID, StateWaitingSpecApproval, nil); err != nil {
			return nil, err
		}
		if err := s.awaitSpecApproval(ctx); err != nil {
			return nil, err
		}
		s.resetCounters()
		if err := s.persistCounters(ctx, jobID); err != nil {
			return nil, err
		}
	}

	// ── REFACTORING + SELF_HEALING repair loop ────────────────────────
	if err := s.transition(ctx, jobID, StateRefactoring, nil); err != nil {
		return nil, err
	}
	return s.repairLoop(ctx, input)
}

// repairLoop iterates patch generation, application, and test runs with
// bounded retries, phase escalation, and human intervention.
func (s *jobState) repairLoop(ctx workflow.Context, input JobInput) (*JobResult, error) {
	jobID := input.JobID
	logger := workflow.GetLogger(ctx)

	patchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: llmTimeout,
		HeartbeatTimeout:    llmHeartbeatTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	applyCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: applyPatchTimeout,
		HeartbeatTimeout:    persistTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	testCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: runTestsTimeout,
		HeartbeatTimeout:    llmHeartbeatTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	for {
		s.attemptCount++
		s.specUpdated = false

		var patch activities.PatchResult
		if err := workflow.ExecuteActivity(patchCtx, acts.GeneratePatch, activities.PatchInput{
			JobID:         jobID,
			AttemptNumber: s.attemptCount,
			Phase:         s.phase,
			Tier:          input.Tier,
			IsDeepFix:     s.interventionAction == ActionDeepFix,
		}).Get(ctx, &patch); err != nil {
			return nil, err
		}

		// A spec update during generation restarts the approval flow;
		// the in-flight patch result is discarded.
		if s.specUpdated {
			s.resetCounters()
			if err := s.persistCounters(ctx, jobID); err != nil {
				return nil, err
			}
			if err := s.transition(ctx, jobID, StateWaitingSpecApproval, nil); err != nil {
				return nil, err
			}
			s.specApproved = false
			if err := s.awaitSpecApproval(ctx); err != nil {
				return nil, err
			}
			if err := s.transition(ctx, jobID, StateRefactoring, nil); err != nil {
				return nil, err
			}
			continue
		}

		if err := workflow.ExecuteActivity(applyCtx, acts.ApplyPatch, activities.ApplyInput{
			JobID:          jobID,
			AttemptNumber:  s.attemptCount,
			EffectivePhase: patch.EffectivePhase,
			Tier:           input.Tier,
		}).Get(ctx, nil); err != nil {
			return nil, err
		}

		var testResult activities.RunTestsResult
		if err := workflow.ExecuteActivity(testCtx, acts.RunTests, activities.RunTestsInput{
			JobID:         jobID,
			RunType:       "REPAIR",
			AttemptNumber: s.attemptCount,
			Phase:         s.phase,
			ExecutionMode: input.ExecutionMode,
		}).Get(ctx, &testResult); err != nil {
			return nil, err
		}

		if testResult.Passed {
			if err := s.transition(ctx, jobID, StateDelivered, nil); err != nil {
				return nil, err
			}
			return &JobResult{JobID: jobID, Status: StateDelivered}, nil
		}

		// Accumulate failure tracking. An empty fingerprint never counts
		// as identical.
		fingerprint := testResult.FailurePatternFingerprint
		if fingerprint != "" && fingerprint == s.lastFingerprint {
			s.identicalFailureCount++
		} else {
			s.identicalFailureCount = 1
			s.lastFingerprint = fingerprint
		}
		if err := s.persistCounters(ctx, jobID); err != nil {
			return nil, err
		}

		if s.identicalFailureCount >= identicalFailureThreshold {
			result, done, err := s.awaitIntervention(ctx, input)
			if err != nil {
				return nil, err
			}
			if done {
				return result, nil
			}
			continue
		}

		if s.attemptCount >= attemptCap(s.phase) {
			if s.phase < maxPhase {
				result, done, err := s.awaitEscalationDecision(ctx, jobID)
				if err != nil {
					return nil, err
				}
				if done {
					return result, nil
				}
				continue
			}

			// Budget exhausted at the last phase.
			logger.Info("Repair budget exhausted, requesting fallback", "job_id", jobID)
			if err := s.transition(ctx, jobID, StateRecoveryPending, nil); err != nil {
				return nil, err
			}
			if err := s.transition(ctx, jobID, StateFallbackRequired, nil); err != nil {
				return nil, err
			}
			return &JobResult{JobID: jobID, Status: StateFallbackRequired}, nil
		}

		if err := s.transition(ctx, jobID, StateSelfHealing, nil); err != nil {
			return nil, err
		}
	}
}

// awaitIntervention handles three identical consecutive failures: the user
// chooses a deep fix, continues as-is, or takes over with manual commands.
// done reports a terminal outcome; otherwise the repair loop continues.
func (s *jobState) awaitIntervention(ctx workflow.Context, input JobInput) (result *JobResult, done bool, err error) {
	jobID := input.JobID

	if err := s.transition(ctx, jobID, StateWaitingIntervention, nil); err != nil {
		return nil, false, err
	}
	s.interventionAction = ""

	ok, err := workflow.AwaitWithTimeout(ctx, interventionWait, func() bool {
		return s.interventionAction != ""
	})
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if err := s.transition(ctx, jobID, StateFailed,
			map[string]any{"reason": ReasonInterventionTimeout}); err != nil {
			return nil, false, err
		}
		return &JobResult{JobID: jobID, Status: StateFailed, Reason: ReasonInterventionTimeout}, true, nil
	}

	switch s.interventionAction {
	case ActionDeepFix:
		if err := s.transition(ctx, jobID, StateDeepFixActive, nil); err != nil {
			return nil, false, err
		}
		s.resetCounters()
		if err := s.persistCounters(ctx, jobID); err != nil {
			return nil, false, err
		}
		if s.phase < maxPhase {
			s.phase++
		}
		if err := s.transition(ctx, jobID, StateSelfHealing, nil); err != nil {
			return nil, false, err
		}
		return nil, false, nil

	case ActionContinue:
		// Counters intentionally unchanged.
		if err := s.transition(ctx, jobID, StateSelfHealing, nil); err != nil {
			return nil, false, err
		}
		return nil, false, nil

	case ActionCommand:
		if err := s.transition(ctx, jobID, StateUserIntervening, nil); err != nil {
			return nil, false, err
		}
		s.interventionAction = ""
		ok, err := workflow.AwaitWithTimeout(ctx, commandWait, func() bool {
			return s.interventionAction == ActionTestsPassed
		})
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("user command session did not confirm tests within %s", commandWait)
		}
		if err := s.transition(ctx, jobID, StateDelivered, nil); err != nil {
			return nil, false, err
		}
		return &JobResult{JobID: jobID, Status: StateDelivered}, true, nil

	default:
		// Unknown actions are treated as CONTINUE rather than failing a
		// job a user is actively trying to save.
		workflow.GetLogger(ctx).Warn("Unknown intervention action, continuing",
			"job_id", jobID, "action", s.interventionAction)
		if err := s.transition(ctx, jobID, StateSelfHealing, nil); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
}

// awaitEscalationDecision handles an exhausted attempt budget below the
// last phase: the user either escalates to the next model class or cancels.
func (s *jobState) awaitEscalationDecision(ctx workflow.Context, jobID string) (result *JobResult, done bool, err error) {
	if err := s.transition(ctx, jobID, StateWaitingEscalationDecision, nil); err != nil {
		return nil, false, err
	}
	s.interventionAction = ""

	ok, err := workflow.AwaitWithTimeout(ctx, escalationWait, func() bool {
		return s.interventionAction == ActionEscalate || s.interventionAction == ActionCancel
	})
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if err := s.transition(ctx, jobID, StateFailed,
			map[string]any{"reason": ReasonEscalationTimeout}); err != nil {
			return nil, false, err
		}
		return &JobResult{JobID: jobID, Status: StateFailed, Reason: ReasonEscalationTimeout}, true, nil
	}

	if s.interventionAction == ActionCancel {
		if err := s.transition(ctx, jobID, StateFailed,
			map[string]any{"reason": ReasonEscalationCancelled}); err != nil {
			return nil, false, err
		}
		return &JobResult{JobID: jobID, Status: StateFailed, Reason: ReasonEscalationCancelled}, true, nil
	}

	s.phase++
	s.attemptCount = 0
	if err := s.persistCounters(ctx, jobID); err != nil {
		return nil, false, err
	}
	if err := s.transition(ctx, jobID, StateSelfHealing, nil); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

// awaitSpecApproval waits for the specApproved signal; the 24 h timeout is
// an uncaught failure per policy.
func (s *jobState) awaitSpecApproval(ctx workflow.Context) error {
	ok, err := workflow.AwaitWithTimeout(ctx, specApprovalWait, func() bool {
		return s.specApproved
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("spec not approved within %s", specApprovalWait)
	}
	return nil
}

// resetCounters clears the attempt and identical-failure tracking. Called
// atomically with a persistCounters follow-up on deep fix, spec update, and
// baseline re-validation.
func (s *jobState) resetCounters() {
	s.attemptCount = 0
	s.identicalFailureCount = 0
	s.lastFingerprint = ""
}

// transition mutates the state and audits the change. The audit write must
// complete before the workflow proceeds: it is the happens-before edge
// between a state change and any activity of the successor state.
func (s *jobState) transition(ctx workflow.Context, jobID, newState string, metadata map[string]any) error {
	oldState := s.state
	s.state = newState
	workflow.GetLogger(ctx).Info("Job state change",
		"job_id", jobID, "old_state", oldState, "new_state", newState)

	auditCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: persistTimeout,
		HeartbeatTimeout:    persistTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    5,
			BackoffCoefficient: 2.0,
		},
	})
	return workflow.ExecuteActivity(auditCtx, acts.WriteAuditEvent, activities.AuditInput{
		JobID:     jobID,
		EventType: "job.state_change",
		OldState:  oldState,
		NewState:  newState,
		Metadata:  metadata,
	}).Get(ctx, nil)
}

// persistCounters projects the attempt/failure counters onto refactor_jobs.
func (s *jobState) persistCounters(ctx workflow.Context, jobID string) error {
	usageCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: persistTimeout,
		HeartbeatTimeout:    persistTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			BackoffCoefficient: 2.0,
		},
	})
	return workflow.ExecuteActivity(usageCtx, acts.RecordUsage, activities.UsageInput{
		JobID:     jobID,
		EventType: "counter_update",
		Metadata: map[string]any{
			"attempt_count":               s.attemptCount,
			"identical_failure_count":     s.identicalFailureCount,
			"failure_pattern_fingerprint": s.lastFingerprint,
		},
	}).Get(ctx, nil)
}
