package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/c360studio/iama/llm"
	"github.com/c360studio/iama/metrics"
	"github.com/c360studio/iama/model"
)

// proposalPreviewLen bounds the description carried into workflow history.
const proposalPreviewLen = 500

// GenerateProposals streams an L1 completion and turns it into strategy
// proposal records. Heartbeats on every chunk; platform cancellation is
// observed between chunks and closes the gateway connection.
func (a *Activities) GenerateProposals(ctx context.Context, in ProposalInput) ([]Proposal, error) {
	activity.RecordHeartbeat(ctx)
	logger := activity.GetLogger(ctx)
	logger.Info("Generating proposals", "job_id", in.JobID)

	resp, err := a.gateway.Stream(ctx, llm.Request{
		Model: model.RouterL1,
		Messages: []llm.Message{
			{Role: "system", Content: "You are IAMA, a senior refactoring strategist."},
			{Role: "user", Content: fmt.Sprintf(
				"Generate 3 refactoring strategy proposals for job %s (baseline mode %s, %d files).",
				in.JobID, in.Context.BaselineMode, in.Context.FileCount)},
		},
		MaxTokens: 2000,
	}, func(string) error {
		metrics.LLMStreamChunks.WithLabelValues(model.RouterL1).Inc()
		activity.RecordHeartbeat(ctx)
		return ctx.Err()
	})
	if err != nil {
		return nil, gatewayError(fmt.Sprintf("generate proposals for job %s", in.JobID), err)
	}

	description := resp.Content
	if len(description) > proposalPreviewLen {
		description = description[:proposalPreviewLen]
	}

	logger.Info("Proposals generated", "job_id", in.JobID, "chunks", resp.Chunks)
	return []Proposal{
		{
			ID:          in.JobID + "-p1",
			Title:       "Proposal 1 (LLM)",
			Description: description,
		},
	}, nil
}
