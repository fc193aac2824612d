// Package main provides the iama-worker binary entry point.
// The worker hosts the IAMA durable orchestration core: the refactor
// job workflow, the revert workflow, and every activity they call.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/iama/activities"
	"github.com/c360studio/iama/config"
	"github.com/c360studio/iama/llm"
	"github.com/c360studio/iama/store"
	"github.com/c360studio/iama/worker"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "iama-worker"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "IAMA orchestration worker",
		Long: `The IAMA worker drives AI-assisted refactoring jobs as durable
workflows: strategy analysis, spec approval, test generation, the
patch/test repair loop, escalation, and delivery.

It connects to Temporal for orchestration, Postgres for audit and
billing persistence, and the LLM gateway for model calls.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func run(configPath, logLevel string) error {
	cfg, err := config.NewLoader(nil).Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx := context.Background()

	st, err := store.New(ctx, cfg.Database.URL, store.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer st.Close()

	gateway := llm.NewClient(cfg.Gateway.BaseURL,
		llm.WithHTTPClient(&http.Client{Timeout: cfg.Gateway.RequestTimeout}),
		llm.WithLogger(logger))

	acts := activities.New(st, gateway, activities.WithLogger(logger))

	host, err := worker.NewHost(cfg, acts, logger)
	if err != nil {
		return fmt.Errorf("create worker host: %w", err)
	}

	logger.Info("IAMA worker ready",
		"version", Version,
		"temporal", cfg.Temporal.Address,
		"task_queue", cfg.Temporal.TaskQueue)

	runErr := host.Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := host.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("worker stopped: %w", runErr)
	}
	logger.Info("IAMA worker shutdown complete")
	return nil
}
