// Package workflows implements the durable orchestrators of the IAMA core:
// RefactorJobWorkflow, the per-job state machine with its retry, escalation,
// and intervention policy, and the audit-only RevertWorkflow. Workflow code
// is deterministic; every side effect goes through the activities package.
package workflows

import "time"

// Job states. Terminal: DELIVERED, FAILED, FALLBACK_REQUIRED.
const (
	StatePending                   = "PENDING"
	StateAnalyzing                 = "ANALYZING"
	StateWaitingStrategy           = "WAITING_STRATEGY"
	StateWaitingSpecApproval       = "WAITING_SPEC_APPROVAL"
	StateGeneratingTests           = "GENERATING_TESTS"
	StateBaselineValidation        = "BASELINE_VALIDATION"
	StateBaselineValidationFailed  = "BASELINE_VALIDATION_FAILED"
	StateRefactoring               = "REFACTORING"
	StateSelfHealing               = "SELF_HEALING"
	StateWaitingIntervention       = "WAITING_INTERVENTION"
	StateDeepFixActive             = "DEEP_FIX_ACTIVE"
	StateUserIntervening           = "USER_INTERVENING"
	StateWaitingEscalationDecision = "WAITING_ESCALATION_DECISION"
	StateRecoveryPending           = "RECOVERY_PENDING"
	StateDelivered                 = "DELIVERED"
	StateFailed                    = "FAILED"
	StateFallbackRequired          = "FALLBACK_REQUIRED"
)

// Intervention actions accepted while waiting for the user.
const (
	ActionDeepFix     = "DEEP_FIX"
	ActionContinue    = "CONTINUE"
	ActionCommand     = "COMMAND"
	ActionEscalate    = "ESCALATE"
	ActionCancel      = "CANCEL"
	ActionTestsPassed = "TESTS_PASSED"
)

// Named terminal failure reasons.
const (
	ReasonInterventionTimeout = "INTERVENTION_TIMEOUT"
	ReasonEscalationTimeout   = "ESCALATION_CONFIRMATION_TIMEOUT"
	ReasonEscalationCancelled = "ESCALATION_CANCELLED"
	ReasonUserCancelled       = "USER_CANCELLED"
)

// maxAttemptsPerPhase caps repair attempts per escalation phase.
var maxAttemptsPerPhase = map[int]int{1: 3, 2: 2, 3: 1}

// attemptCap returns the attempt budget for a phase, defaulting to 1.
func attemptCap(phase int) int {
	if cap, ok := maxAttemptsPerPhase[phase]; ok {
		return cap
	}
	return 1
}

// identicalFailureThreshold triggers WAITING_INTERVENTION.
const identicalFailureThreshold = 3

// maxPhase is the last escalation phase; exhaustion there is fallback.
const maxPhase = 3

// failureReasonLimit truncates error strings persisted as failure reasons.
const failureReasonLimit = 200

// Activity and user-wait timeouts. Authoritative values; the user waits are
// generous because a human is on the other end.
const (
	contextTimeout      = 5 * time.Minute
	llmTimeout          = 30 * time.Minute
	llmHeartbeatTimeout = 90 * time.Second
	runTestsTimeout     = 20 * time.Minute
	applyPatchTimeout   = 10 * time.Minute
	persistTimeout      = 10 * time.Second

	proposalWait     = 24 * time.Hour
	specApprovalWait = 24 * time.Hour
	interventionWait = 30 * time.Minute
	escalationWait   = 1 * time.Hour
	commandWait      = 4 * time.Hour
)
