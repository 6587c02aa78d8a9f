package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if slices.Contains(validLevels, level) {
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateHistoryBackend validates the history store selection
func (v *Validator) ValidateHistoryBackend(backend string) error {
	if backend == HistoryMemory || backend == HistorySQLite {
		return nil
	}
	return fmt.Errorf("invalid history backend: %s (must be one of: %s, %s)", backend, HistoryMemory, HistorySQLite)
}

// ValidateApprovalTimeout validates the approval wait in seconds
func (v *Validator) ValidateApprovalTimeout(seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("approval timeout must be positive, got %d", seconds)
	}
	if seconds > 86400 {
		return fmt.Errorf("approval timeout too large (max 86400), got %d", seconds)
	}
	return nil
}

// ValidateSchedule validates a cron expression for audit purging
func (v *Validator) ValidateSchedule(schedule string) error {
	if schedule == "" {
		return nil // Use default
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	return nil
}

// ValidateMatrixPath checks that a configured permission matrix exists
func (v *Validator) ValidateMatrixPath(path string) error {
	if path == "" {
		return nil // Built-in roles only
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("permission matrix %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("permission matrix %s is a directory", path)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateHistoryBackend(cfg.History.Backend); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateApprovalTimeout(cfg.Approvals.TimeoutSeconds); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateSchedule(cfg.Audit.PurgeSchedule); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateMatrixPath(cfg.Permissions.MatrixPath); err != nil {
		errors = append(errors, err)
	}

	if cfg.Audit.RetentionDays < 0 {
		errors = append(errors, fmt.Errorf("audit.retention_days must be >= 0"))
	}
	if cfg.Bus.HistorySize <= 0 {
		errors = append(errors, fmt.Errorf("bus.history_size must be > 0"))
	}
	if cfg.Bus.QueueSize < 0 {
		errors = append(errors, fmt.Errorf("bus.queue_size must be >= 0"))
	}
	if cfg.Logging.MaxSize < 0 {
		errors = append(errors, fmt.Errorf("logging.max_size must be >= 0"))
	}

	for i, dir := range cfg.Tools.Dirs {
		if strings.TrimSpace(dir) == "" {
			errors = append(errors, fmt.Errorf("tools.dirs[%d]: path is empty", i))
		}
	}

	return errors
}
