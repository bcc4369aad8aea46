// Package config defines the daemon configuration: model catalog and
// credentials, quiet hours, storage paths, and logging.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config is the full daemon configuration.
type Config struct {
	// Workspace identifies the operator and where things get posted.
	Workspace WorkspaceConfig `json:"workspace" mapstructure:"workspace"`

	// Models holds the alias catalog and the fallback chain.
	Models ModelsConfig `json:"models" mapstructure:"models"`

	// AI holds the provider credential.
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// QuietHours gates reminder delivery.
	QuietHours QuietHoursConfig `json:"quiet_hours" mapstructure:"quiet_hours"`

	// Logging configures sinks and redaction.
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// DataDir anchors the database, roster, and log defaults.
	DataDir      string `json:"data_dir" mapstructure:"data_dir"`
	DatabasePath string `json:"database_path" mapstructure:"database_path"`
	RosterPath   string `json:"roster_path" mapstructure:"roster_path"`
	AuditLogPath string `json:"audit_log_path" mapstructure:"audit_log_path"`
}

// WorkspaceConfig identifies the operator's workspace.
type WorkspaceConfig struct {
	FounderUserID string `json:"founder_user_id" mapstructure:"founder_user_id"`
	Timezone      string `json:"timezone" mapstructure:"timezone"`
}

// ModelsConfig holds the model catalog.
type ModelsConfig struct {
	Default  string            `json:"default" mapstructure:"default"`
	Aliases  map[string]string `json:"aliases" mapstructure:"aliases"`
	Fallback []string          `json:"fallback" mapstructure:"fallback"`
}

// AIConfig holds the provider credential.
type AIConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
}

// QuietHoursConfig gates reminder delivery inside daily windows.
type QuietHoursConfig struct {
	Windows       []string `json:"windows" mapstructure:"windows"` // "HH:MM-HH:MM"
	BufferMinutes int      `json:"buffer_minutes" mapstructure:"buffer_minutes"`
	DeferMinutes  int      `json:"defer_minutes" mapstructure:"defer_minutes"`
}

// LoggingConfig mirrors the logger package's knobs.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a config with sensible defaults. The model
// catalog ships with the standard capability tiers.
func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Timezone: "Asia/Jakarta",
		},
		Models: ModelsConfig{
			Default: "claude-sonnet-4-20250514",
			Aliases: map[string]string{
				"sonnet": "claude-sonnet-4-20250514",
				"opus":   "claude-opus-4-20250514",
				"haiku":  "claude-haiku-4-5-20251001",
			},
			Fallback: []string{"claude-sonnet-4-20250514", "claude-haiku-4-5-20251001"},
		},
		AI: AIConfig{
			Provider: "anthropic",
		},
		QuietHours: QuietHoursConfig{
			Windows:       []string{},
			BufferMinutes: 15,
			DeferMinutes:  30,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
	}
}

// String returns a JSON rendering of the config. The API key is
// masked so the config can be logged.
func (c *Config) String() string {
	clone := *c
	if clone.AI.APIKey != "" {
		clone.AI.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(&clone, "", "  ")
	return string(data)
}

// Validate checks the configuration for startup.
func (c *Config) Validate() error {
	if c.AI.APIKey == "" {
		return fmt.Errorf("no AI credential configured: ai.api_key is required")
	}
	switch c.AI.Provider {
	case "anthropic":
		if !strings.HasPrefix(c.AI.APIKey, "sk-ant-") {
			return fmt.Errorf("anthropic API keys start with sk-ant-")
		}
	case "openai":
		if !strings.HasPrefix(c.AI.APIKey, "sk-") {
			return fmt.Errorf("openai API keys start with sk-")
		}
	default:
		return fmt.Errorf("invalid provider %q (must be: anthropic, openai)", c.AI.Provider)
	}

	if c.Models.Default == "" {
		return fmt.Errorf("models.default is required")
	}
	found := false
	for _, id := range c.Models.Aliases {
		if id == c.Models.Default {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("models.default %q has no alias entry", c.Models.Default)
	}

	if c.Workspace.FounderUserID == "" {
		return fmt.Errorf("workspace.founder_user_id is required")
	}

	for _, w := range c.QuietHours.Windows {
		if !strings.Contains(w, "-") {
			return fmt.Errorf("quiet_hours window %q is not HH:MM-HH:MM", w)
		}
	}

	return nil
}
