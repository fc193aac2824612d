package workflows

import (
	"encoding/json"

	"go.temporal.io/sdk/workflow"
)

// Signal and query names. The intake API and the IDE extension address the
// workflow by these exact strings.
const (
	SignalProposalSelected   = "proposalSelected"
	SignalSpecApproved       = "specApproved"
	SignalInterventionAction = "interventionAction"
	SignalSpecUpdated        = "specUpdatedDuringExecution"
	SignalHeartbeatReceived  = "heartbeatReceived"
	SignalNLConvertRequested = "nlConvertRequested"

	QueryCurrentState = "currentState"
)

// ProposalSelectedSignal carries the user's strategy choice.
type ProposalSelectedSignal struct {
	ProposalID string `json:"proposalId"`
}

// InterventionActionSignal carries the user's intervention or escalation
// decision. Valid actions depend on the state awaiting them.
type InterventionActionSignal struct {
	Action string `json:"action"`
}

// jobState is the workflow-local job record, materialized by event-sourced
// replay. Signal pumps mutate it; the main loop only reads it at await
// points, so no synchronization is needed beyond workflow determinism.
type jobState struct {
	state                 string
	proposalSelected      string
	specApproved          bool
	interventionAction    string
	specUpdated           bool
	heartbeatReceived     bool
	nlConvertRequested    json.RawMessage
	attemptCount          int
	phase                 int
	identicalFailureCount int
	lastFingerprint       string
}

func newJobState() *jobState {
	return &jobState{
		state:             StatePending,
		phase:             1,
		heartbeatReceived: true,
	}
}

// registerHandlers wires the query handler and one drain loop per signal.
// Handlers only assign workflow-local fields and never block, so signals
// accumulate idempotently between suspension points.
func (s *jobState) registerHandlers(ctx workflow.Context) error {
	if err := workflow.SetQueryHandler(ctx, QueryCurrentState, func() (string, error) {
		return s.state, nil
	}); err != nil {
		return err
	}

	workflow.Go(ctx, func(ctx workflow.Context) {
		ch := workflow.GetSignalChannel(ctx, SignalProposalSelected)
		for {
			var sig ProposalSelectedSignal
			if !ch.Receive(ctx, &sig) {
				return
			}
			s.proposalSelected = sig.ProposalID
		}
	})

	workflow.Go(ctx, func(ctx workflow.Context) {
		ch := workflow.GetSignalChannel(ctx, SignalSpecApproved)
		for {
			if !ch.Receive(ctx, nil) {
				return
			}
			s.specApproved = true
		}
	})

	workflow.Go(ctx, func(ctx workflow.Context) {
		ch := workflow.GetSignalChannel(ctx, SignalInterventionAction)
		for {
			var sig InterventionActionSignal
			if !ch.Receive(ctx, &sig) {
				return
			}
			s.interventionAction = sig.Action
		}
	})

	workflow.Go(ctx, func(ctx workflow.Context) {
		ch := workflow.GetSignalChannel(ctx, SignalSpecUpdated)
		for {
			if !ch.Receive(ctx, nil) {
				return
			}
			s.specUpdated = true
		}
	})

	workflow.Go(ctx, func(ctx workflow.Context) {
		ch := workflow.GetSignalChannel(ctx, SignalHeartbeatReceived)
		for {
			if !ch.Receive(ctx, nil) {
				return
			}
			s.heartbeatReceived = true
		}
	})

	// Reserved for the NL-convert preview flow; the core loop never
	// consumes it.
	workflow.Go(ctx, func(ctx workflow.Context) {
		ch := workflow.GetSignalChannel(ctx, SignalNLConvertRequested)
		for {
			var payload json.RawMessage
			if !ch.Receive(ctx, &payload) {
				return
			}
			s.nlConvertRequested = payload
		}
	})

	return nil
}
