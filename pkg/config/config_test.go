package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/diffapply/pkg/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DIFFAPPLY_OPENROUTER_API_KEY", "OPENROUTER_API_KEY",
		"DIFFAPPLY_MORPH_API_KEY", "MORPH_API_KEY",
		"DIFFAPPLY_SUGGESTION_MODEL", "DIFFAPPLY_SUGGESTION_BASE_URL",
		"DIFFAPPLY_REWRITE_MODEL", "DIFFAPPLY_REWRITE_BASE_URL",
		"DIFFAPPLY_SCRATCH_DIR", "DIFFAPPLY_LOG_DIR", "DIFFAPPLY_LOG_LEVEL",
		"DIFFAPPLY_NETWORK_LOGS", "DIFFAPPLY_TRACE", "DIFFAPPLY_METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, "qwen/qwen3-coder", cfg.Suggestion.Model)
	assert.Equal(t, 1024, cfg.Suggestion.MaxTokens)
	assert.Equal(t, 0.7, cfg.Suggestion.Temperature)
	assert.Equal(t, 30*time.Second, cfg.Suggestion.Timeout)
	assert.Equal(t, "morph-v3-large", cfg.Rewrite.Model)
	assert.Equal(t, 30*time.Second, cfg.Rewrite.Timeout)
	assert.Equal(t, 300*time.Second, cfg.Cache.TTL)
	assert.NotEmpty(t, cfg.Preview.ScratchDir)
	require.NoError(t, cfg.Validate())
}

func TestLoadHierarchy(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)

	userCfgDir := filepath.Join(home, ".diffapply")
	require.NoError(t, os.MkdirAll(userCfgDir, 0o755))
	userCfg := `
suggestion:
  api_key: user-or-key
  model: user/model
  temperature: 0
rewrite:
  api_key: user-morph-key
`
	require.NoError(t, os.WriteFile(filepath.Join(userCfgDir, "config.yaml"), []byte(userCfg), 0o644))

	projectCfgDir := filepath.Join(project, ".diffapply")
	require.NoError(t, os.MkdirAll(projectCfgDir, 0o755))
	projectCfg := `
suggestion:
  model: project/model
  timeout: 10s
cache:
  ttl: 1m
diagnostics:
  network_logs: true
`
	require.NoError(t, os.WriteFile(filepath.Join(projectCfgDir, "config.yaml"), []byte(projectCfg), 0o644))

	oldWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(project))
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "user-or-key", cfg.Suggestion.APIKey)
	assert.Equal(t, "project/model", cfg.Suggestion.Model)
	assert.Equal(t, 0.0, cfg.Suggestion.Temperature, "explicit zero temperature must be honored")
	assert.Equal(t, 10*time.Second, cfg.Suggestion.Timeout)
	assert.Equal(t, "user-morph-key", cfg.Rewrite.APIKey)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.Diagnostics.NetworkLogs)
}

func TestEnvOverridesWin(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("suggestion:\n  api_key: file-key\n"), 0o644))

	t.Setenv("OPENROUTER_API_KEY", "env-key")
	t.Setenv("MORPH_API_KEY", "morph-env")
	t.Setenv("DIFFAPPLY_NETWORK_LOGS", "true")
	t.Setenv("DIFFAPPLY_SCRATCH_DIR", "~/scratch")

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Suggestion.APIKey)
	assert.Equal(t, "morph-env", cfg.Rewrite.APIKey)
	assert.True(t, cfg.Diagnostics.NetworkLogs)
	assert.Equal(t, filepath.Join(home, "scratch"), cfg.Preview.ScratchDir)
}

func TestPrefixedEnvBeatsGenericEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	t.Setenv("OPENROUTER_API_KEY", "generic")
	t.Setenv("DIFFAPPLY_OPENROUTER_API_KEY", "specific")

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "specific", cfg.Suggestion.APIKey)
}

func TestConfigEnvFile(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".diffapply"), 0o755))
	envFile := "# keys\nexport MORPH_API_KEY=\"from-file\"\nOPENROUTER_API_KEY='or-file'\nnot a pair\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, ".diffapply", "config.env"), []byte(envFile), 0o600))

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Rewrite.APIKey)
	assert.Equal(t, "or-file", cfg.Suggestion.APIKey)

	t.Setenv("MORPH_API_KEY", "process-env")
	cfg, err = config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "process-env", cfg.Rewrite.APIKey)
}

func TestLoadFromPath_Errors(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	_, err := config.LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("suggestion: [unclosed"), 0o644))
	_, err = config.LoadFromPath(bad)
	assert.Error(t, err)

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("suggestion:\n  temperature: 3.5\n"), 0o644))
	_, err = config.LoadFromPath(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temperature")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty suggestion model", func(c *config.Config) { c.Suggestion.Model = "" }},
		{"zero max tokens", func(c *config.Config) { c.Suggestion.MaxTokens = 0 }},
		{"negative temperature", func(c *config.Config) { c.Suggestion.Temperature = -1 }},
		{"zero suggestion timeout", func(c *config.Config) { c.Suggestion.Timeout = 0 }},
		{"empty rewrite url", func(c *config.Config) { c.Rewrite.BaseURL = " " }},
		{"zero rewrite timeout", func(c *config.Config) { c.Rewrite.Timeout = 0 }},
		{"negative ttl", func(c *config.Config) { c.Cache.TTL = -time.Second }},
		{"empty scratch dir", func(c *config.Config) { c.Preview.ScratchDir = "" }},
		{"bad log level", func(c *config.Config) { c.Diagnostics.LogLevel = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_MissingKeysAreWarningsOnly(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())

	warnings := cfg.ValidationWarnings()
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], config.SettingSuggestionKey)
	assert.Contains(t, warnings[1], config.SettingRewriteKey)

	cfg.Suggestion.APIKey = "a"
	cfg.Rewrite.APIKey = "b"
	assert.Empty(t, cfg.ValidationWarnings())
}
