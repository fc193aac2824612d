// Package activities implements the Temporal activities of the IAMA
// orchestration core: idempotent persistence writes, streaming LLM calls
// with per-chunk heartbeat and cancellation, and test-run bookkeeping.
// Workflows never touch the database or the gateway directly; everything
// observable flows through this package.
package activities

import (
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/c360studio/iama/llm"
	"github.com/c360studio/iama/store"
)

// Activities bundles the shared dependencies of all activity methods.
// One instance is registered on the worker; Temporal invokes methods by
// their method name.
type Activities struct {
	store    *store.Store
	gateway  *llm.Client
	executor TestExecutor
	logger   *slog.Logger
}

// TestExecutor runs a job's test suite. The production executor delegates
// to the IDE extension sandbox; tests inject fakes.
type TestExecutor interface {
	// Execute runs the suite for one attempt and reports the outcome.
	// An empty fingerprint means no failure pattern was extracted, which
	// disables identical-failure accumulation for the attempt.
	Execute(jobID string, attemptNumber int, runType string) (passed bool, fingerprint string, err error)
}

// Option configures an Activities instance.
type Option func(*Activities)

// WithLogger sets the logger used outside activity contexts.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Activities) {
		a.logger = logger
	}
}

// WithTestExecutor replaces the sandbox delegation executor.
func WithTestExecutor(e TestExecutor) Option {
	return func(a *Activities) {
		a.executor = e
	}
}

// gatewayError maps gateway client failures onto activity retry semantics:
// fatal gateway responses (4xx, malformed requests) never retry, transient
// ones follow the activity retry policy.
func gatewayError(op string, err error) error {
	if llm.IsFatal(err) {
		return temporal.NewNonRetryableApplicationError(op+": "+err.Error(), "GatewayFatal", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// New creates the activity set backed by the given store and gateway client.
func New(st *store.Store, gateway *llm.Client, opts ...Option) *Activities {
	a := &Activities{
		store:    st,
		gateway:  gateway,
		executor: sandboxExecutor{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}
