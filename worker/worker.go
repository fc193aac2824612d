// Package worker hosts the IAMA Temporal worker: one process, one task
// queue, both workflows and every activity, bounded concurrency.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/c360studio/iama/activities"
	"github.com/c360studio/iama/config"
	"github.com/c360studio/iama/metrics"
	"github.com/c360studio/iama/workflows"
)

// Workflow registration names shared with the intake API.
const (
	RefactorJobWorkflowName = "RefactorJobWorkflow"
	RevertWorkflowName      = "RevertWorkflow"
)

// Host runs the worker and its metrics endpoint.
type Host struct {
	cfg           *config.Config
	temporal      client.Client
	worker        sdkworker.Worker
	metricsServer *http.Server
	logger        *slog.Logger
}

// NewHost connects to Temporal and registers the IAMA workflows and
// activities on the configured task queue.
func NewHost(cfg *config.Config, acts *activities.Activities, logger *slog.Logger) (*Host, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Address,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to temporal at %s: %w", cfg.Temporal.Address, err)
	}

	w := sdkworker.New(c, cfg.Temporal.TaskQueue, sdkworker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.Worker.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.Worker.MaxConcurrentWorkflowTasks,
	})

	w.RegisterWorkflowWithOptions(workflows.RefactorJobWorkflow,
		workflow.RegisterOptions{Name: RefactorJobWorkflowName})
	w.RegisterWorkflowWithOptions(workflows.RevertWorkflow,
		workflow.RegisterOptions{Name: RevertWorkflowName})

	// Registers every exported method by its method name; the workflow
	// references activities by those names.
	w.RegisterActivity(acts)

	h := &Host{
		cfg:      cfg,
		temporal: c,
		worker:   w,
		logger:   logger,
	}
	if addr := cfg.Worker.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		h.metricsServer = &http.Server{Addr: addr, Handler: mux}
	}
	return h, nil
}

// Run blocks until the interrupt channel closes or the worker stops.
func (h *Host) Run() error {
	if h.metricsServer != nil {
		go func() {
			h.logger.Info("Serving metrics", slog.String("addr", h.metricsServer.Addr))
			if err := h.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				h.logger.Error("Metrics server stopped", slog.String("error", err.Error()))
			}
		}()
	}

	h.logger.Info("Worker starting",
		slog.String("task_queue", h.cfg.Temporal.TaskQueue),
		slog.Int("max_activities", h.cfg.Worker.MaxConcurrentActivities),
		slog.Int("max_workflow_tasks", h.cfg.Worker.MaxConcurrentWorkflowTasks))

	return h.worker.Run(sdkworker.InterruptCh())
}

// Shutdown stops the metrics endpoint and closes the Temporal connection.
func (h *Host) Shutdown(ctx context.Context) error {
	if h.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := h.metricsServer.Shutdown(shutdownCtx); err != nil {
			h.logger.Warn("Metrics shutdown failed", slog.String("error", err.Error()))
		}
	}
	h.temporal.Close()
	return nil
}
