package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.AI.APIKey = "sk-ant-REDACTED"
	cfg.Workspace.FounderUserID = "U_FOUNDER"
	return cfg
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := validConfig()
		cfg.AI.APIKey = ""
		assert.ErrorContains(t, cfg.Validate(), "api_key")
	})

	t.Run("wrong key prefix for provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.AI.APIKey = "sk-plain-openai-key"
		assert.ErrorContains(t, cfg.Validate(), "sk-ant-")
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.AI.Provider = "cohere"
		assert.ErrorContains(t, cfg.Validate(), "invalid provider")
	})

	t.Run("default model must have an alias", func(t *testing.T) {
		cfg := validConfig()
		cfg.Models.Default = "claude-nonexistent"
		assert.ErrorContains(t, cfg.Validate(), "no alias entry")
	})

	t.Run("missing founder", func(t *testing.T) {
		cfg := validConfig()
		cfg.Workspace.FounderUserID = ""
		assert.ErrorContains(t, cfg.Validate(), "founder_user_id")
	})

	t.Run("malformed quiet window", func(t *testing.T) {
		cfg := validConfig()
		cfg.QuietHours.Windows = []string{"13:00"}
		assert.ErrorContains(t, cfg.Validate(), "HH:MM-HH:MM")
	})
}

func TestStringMasksAPIKey(t *testing.T) {
	cfg := validConfig()
	s := cfg.String()
	assert.NotContains(t, s, "sk-ant-test-key")
	assert.Contains(t, s, "[REDACTED]")
}

func TestLoaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "supportbot.json")
	loader := NewLoader(path)

	cfg := validConfig()
	cfg.DataDir = t.TempDir()
	cfg.QuietHours.Windows = []string{"13:00-15:00"}
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg.Workspace.FounderUserID, loaded.Workspace.FounderUserID)
	assert.Equal(t, cfg.Models.Default, loaded.Models.Default)
	assert.Equal(t, []string{"13:00-15:00"}, loaded.QuietHours.Windows)
	assert.Equal(t, "claude-haiku-4-5-20251001", loaded.Models.Aliases["haiku"])
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.json")
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Models.Default)
	assert.Equal(t, "anthropic", cfg.AI.Provider)
	assert.NotEmpty(t, cfg.DatabasePath)
}

func TestLoadFillsPathDefaultsFromDataDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_dir": "`+dir+`"}`), 0o644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "supportbot.db"), cfg.DatabasePath)
	assert.Equal(t, filepath.Join(dir, "roster.json"), cfg.RosterPath)
	assert.Equal(t, filepath.Join(dir, "supportbot.log"), cfg.Logging.File)
}
