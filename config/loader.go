package config

import (
	"log/slog"
	"os"
	"time"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. Overlay file (path if given, otherwise iama.yaml in the working
//    directory when present)
// 3. Environment variables
// A missing implicit overlay is fine; a missing explicit path is an error.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = WorkerOverlayFile
	}
	if overlay, err := LoadFromFile(path); err == nil {
		l.logger.Debug("Loaded config overlay", slog.String("path", path))
		cfg.Merge(overlay)
	} else if explicit {
		return nil, err
	} else if !os.IsNotExist(err) {
		l.logger.Warn("Failed to load config overlay",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from the environment contract shared with
// the intake API and deployment manifests.
func (l *Loader) applyEnv(cfg *Config) {
	setString(&cfg.Temporal.Address, "TEMPORAL_ADDRESS")
	setString(&cfg.Temporal.Namespace, "TEMPORAL_NAMESPACE")
	setString(&cfg.Temporal.TaskQueue, "TEMPORAL_TASK_QUEUE")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Gateway.BaseURL, "LITELLM_API_BASE")
	setString(&cfg.Worker.MetricsAddr, "METRICS_ADDR")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("LITELLM_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Gateway.RequestTimeout = d
		} else {
			l.logger.Warn("Invalid LITELLM_REQUEST_TIMEOUT, keeping default",
				slog.String("value", v))
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
