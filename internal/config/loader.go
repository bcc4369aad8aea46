package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	defaultDirName  = ".supportbot"
	defaultFileName = "supportbot.json"
)

// Loader handles configuration loading and saving.
type Loader struct {
	configPath string
}

// NewLoader creates a config loader. An empty path means the default
// location under the user's home directory.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the configuration file, layering SUPPORTBOT_* environment
// variables over it. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("could not determine config path")
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("SUPPORTBOT")
	v.AutomaticEnv()

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshalling config: %w", err)
		}
	}

	// The API key usually arrives via environment, never the file
	if key := v.GetString("api_key"); key != "" && cfg.AI.APIKey == "" {
		cfg.AI.APIKey = key
	}

	l.fillPathDefaults(cfg)
	return cfg, nil
}

func (l *Loader) fillPathDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DataDir = filepath.Join(home, defaultDirName)
		}
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "supportbot.db")
	}
	if cfg.RosterPath == "" {
		cfg.RosterPath = filepath.Join(cfg.DataDir, "roster.json")
	}
	if cfg.AuditLogPath == "" {
		cfg.AuditLogPath = filepath.Join(cfg.DataDir, "audit.log")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "supportbot.log")
	}
}

// Save writes the configuration to the config file.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("could not determine config path")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("workspace", cfg.Workspace)
	v.Set("models", cfg.Models)
	v.Set("ai", cfg.AI)
	v.Set("quiet_hours", cfg.QuietHours)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("data_dir", cfg.DataDir)
	v.Set("database_path", cfg.DatabasePath)
	v.Set("roster_path", cfg.RosterPath)
	v.Set("audit_log_path", cfg.AuditLogPath)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("writing config file: %w", err)
			}
			return nil
		}
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the effective config file path.
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultDirName, defaultFileName)
}

// Load is a convenience wrapper for one-shot loading.
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
