package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// History backends.
const (
	HistoryMemory = "memory"
	HistorySQLite = "sqlite"
)

// Config represents the main opsframe configuration
type Config struct {
	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Tools
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Permissions
	Permissions PermissionsConfig `json:"permissions" mapstructure:"permissions"`

	// Approvals
	Approvals ApprovalsConfig `json:"approvals" mapstructure:"approvals"`

	// Message bus
	Bus BusConfig `json:"bus" mapstructure:"bus"`

	// Audit log
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// Execution history
	History HistoryConfig `json:"history" mapstructure:"history"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// ToolsConfig controls where tools come from
type ToolsConfig struct {
	Dirs    []string `json:"dirs" mapstructure:"dirs"`
	Builtin bool     `json:"builtin" mapstructure:"builtin"`
	Watch   bool     `json:"watch" mapstructure:"watch"`
}

// PermissionsConfig points at the permission matrix
type PermissionsConfig struct {
	MatrixPath string `json:"matrix_path" mapstructure:"matrix_path"`
}

// ApprovalsConfig holds approval workflow settings
type ApprovalsConfig struct {
	TimeoutSeconds int  `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Interactive    bool `json:"interactive" mapstructure:"interactive"`
}

// Timeout returns the approval wait as a duration.
func (a ApprovalsConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// BusConfig holds message bus sizing
type BusConfig struct {
	HistorySize int `json:"history_size" mapstructure:"history_size"`
	QueueSize   int `json:"queue_size" mapstructure:"queue_size"`
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	Path          string `json:"path" mapstructure:"path"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"` // 0 keeps everything
	PurgeSchedule string `json:"purge_schedule" mapstructure:"purge_schedule"`
}

// HistoryConfig selects the execution history store
type HistoryConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // memory, sqlite
	Path    string `json:"path" mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds prometheus settings
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Tools: ToolsConfig{
			Dirs:    []string{},
			Builtin: true,
			Watch:   false,
		},
		Approvals: ApprovalsConfig{
			TimeoutSeconds: 300,
			Interactive:    true,
		},
		Bus: BusConfig{
			HistorySize: 1000,
			QueueSize:   256,
		},
		Audit: AuditConfig{
			RetentionDays: 90,
			PurgeSchedule: "0 3 * * *",
		},
		History: HistoryConfig{
			Backend: HistoryMemory,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "opsframe",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "opsframe",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Approvals.TimeoutSeconds <= 0 {
		return fmt.Errorf("approvals.timeout_seconds must be positive")
	}
	if c.Bus.HistorySize <= 0 {
		return fmt.Errorf("bus.history_size must be positive")
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days cannot be negative")
	}
	switch c.History.Backend {
	case HistoryMemory:
	case HistorySQLite:
		if c.History.Path == "" {
			return fmt.Errorf("history.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid history backend %q (must be: memory, sqlite)", c.History.Backend)
	}
	return nil
}
