package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/diffapply/pkg/logging"
	"github.com/odvcencio/diffapply/pkg/paths"
)

// Default configuration values exported for documentation and validation
const (
	DefaultSuggestionBaseURL = "https://openrouter.ai/api/v1"
	DefaultSuggestionModel   = "qwen/qwen3-coder"
	DefaultMaxTokens         = 1024
	DefaultTemperature       = 0.7

	DefaultRewriteBaseURL = "https://api.morphllm.com/v1"
	DefaultRewriteModel   = "morph-v3-large"

	DefaultRequestTimeout = 30 * time.Second
	DefaultCacheTTL       = 300000 * time.Millisecond
	DefaultLogLevel       = "info"
)

// Setting names surfaced to users when a credential is missing.
const (
	SettingSuggestionKey = "suggestion.api_key"
	SettingRewriteKey    = "rewrite.api_key"
)

// Config represents the complete diffapply configuration
type Config struct {
	Suggestion  SuggestionConfig  `yaml:"suggestion"`
	Rewrite     RewriteConfig     `yaml:"rewrite"`
	Cache       CacheConfig       `yaml:"cache"`
	Preview     PreviewConfig     `yaml:"preview"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// SuggestionConfig configures the remote service that proposes edits.
type SuggestionConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RewriteConfig configures the remote service that applies edits.
type RewriteConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig controls analysis memoization.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// PreviewConfig controls where scratch files are staged.
type PreviewConfig struct {
	ScratchDir string `yaml:"scratch_dir"`
}

// DiagnosticsConfig controls logging, tracing and metrics.
type DiagnosticsConfig struct {
	LogDir      string `yaml:"log_dir"`
	LogLevel    string `yaml:"log_level"`
	NetworkLogs bool   `yaml:"network_logs"`
	Trace       bool   `yaml:"trace"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns a configuration with every default filled in.
func DefaultConfig() *Config {
	return &Config{
		Suggestion: SuggestionConfig{
			BaseURL:     DefaultSuggestionBaseURL,
			Model:       DefaultSuggestionModel,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
			Timeout:     DefaultRequestTimeout,
		},
		Rewrite: RewriteConfig{
			BaseURL: DefaultRewriteBaseURL,
			Model:   DefaultRewriteModel,
			Timeout: DefaultRequestTimeout,
		},
		Cache: CacheConfig{
			TTL: DefaultCacheTTL,
		},
		Preview: PreviewConfig{
			ScratchDir: paths.ScratchDir(),
		},
		Diagnostics: DiagnosticsConfig{
			LogDir:   paths.LogsBaseDir(),
			LogLevel: DefaultLogLevel,
		},
	}
}

// Load loads configuration: defaults, then ~/.diffapply/config.yaml, then
// ./.diffapply/config.yaml, then environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configEnv := loadConfigEnvVars()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".diffapply", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	projectConfigPath := filepath.Join(".", ".diffapply", "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	applyEnvOverrides(cfg, configEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	configEnv := loadConfigEnvVars()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	applyEnvOverrides(cfg, configEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Values from the
// process environment win over ~/.diffapply/config.env.
func applyEnvOverrides(cfg *Config, configEnv map[string]string) {
	lookup := func(keys ...string) string {
		for _, key := range keys {
			if v := strings.TrimSpace(os.Getenv(key)); v != "" {
				return v
			}
		}
		for _, key := range keys {
			if v := strings.TrimSpace(configEnv[key]); v != "" {
				return v
			}
		}
		return ""
	}

	if v := lookup("DIFFAPPLY_OPENROUTER_API_KEY", "OPENROUTER_API_KEY"); v != "" {
		cfg.Suggestion.APIKey = v
	}
	if v := lookup("DIFFAPPLY_SUGGESTION_MODEL"); v != "" {
		cfg.Suggestion.Model = v
	}
	if v := lookup("DIFFAPPLY_SUGGESTION_BASE_URL"); v != "" {
		cfg.Suggestion.BaseURL = v
	}
	if v := lookup("DIFFAPPLY_MORPH_API_KEY", "MORPH_API_KEY"); v != "" {
		cfg.Rewrite.APIKey = v
	}
	if v := lookup("DIFFAPPLY_REWRITE_MODEL"); v != "" {
		cfg.Rewrite.Model = v
	}
	if v := lookup("DIFFAPPLY_REWRITE_BASE_URL"); v != "" {
		cfg.Rewrite.BaseURL = v
	}
	if v := lookup(paths.EnvScratchDir); v != "" {
		cfg.Preview.ScratchDir = filepath.Clean(paths.ExpandHome(v))
	}
	if v := lookup(paths.EnvLogDir); v != "" {
		cfg.Diagnostics.LogDir = filepath.Clean(paths.ExpandHome(v))
	}
	if v := lookup("DIFFAPPLY_LOG_LEVEL"); v != "" {
		cfg.Diagnostics.LogLevel = v
	}
	if v, ok := envBool(lookup("DIFFAPPLY_NETWORK_LOGS")); ok {
		cfg.Diagnostics.NetworkLogs = v
	}
	if v, ok := envBool(lookup("DIFFAPPLY_TRACE")); ok {
		cfg.Diagnostics.Trace = v
	}
	if v := lookup("DIFFAPPLY_METRICS_ADDR"); v != "" {
		cfg.Diagnostics.MetricsAddr = v
	}
}

func envBool(raw string) (bool, bool) {
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// Validate rejects values the clients cannot work with. Missing API keys are
// not validation errors; they surface as configuration errors when a remote
// call is attempted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Suggestion.BaseURL) == "" {
		return fmt.Errorf("suggestion.base_url must not be empty")
	}
	if strings.TrimSpace(c.Suggestion.Model) == "" {
		return fmt.Errorf("suggestion.model must not be empty")
	}
	if c.Suggestion.MaxTokens <= 0 {
		return fmt.Errorf("invalid suggestion.max_tokens: %d (must be positive)", c.Suggestion.MaxTokens)
	}
	if c.Suggestion.Temperature < 0 || c.Suggestion.Temperature > 2 {
		return fmt.Errorf("invalid suggestion.temperature: %v (must be between 0 and 2)", c.Suggestion.Temperature)
	}
	if c.Suggestion.Timeout <= 0 {
		return fmt.Errorf("invalid suggestion.timeout: %s (must be positive)", c.Suggestion.Timeout)
	}
	if strings.TrimSpace(c.Rewrite.BaseURL) == "" {
		return fmt.Errorf("rewrite.base_url must not be empty")
	}
	if strings.TrimSpace(c.Rewrite.Model) == "" {
		return fmt.Errorf("rewrite.model must not be empty")
	}
	if c.Rewrite.Timeout <= 0 {
		return fmt.Errorf("invalid rewrite.timeout: %s (must be positive)", c.Rewrite.Timeout)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("invalid cache.ttl: %s (must not be negative)", c.Cache.TTL)
	}
	if strings.TrimSpace(c.Preview.ScratchDir) == "" {
		return fmt.Errorf("preview.scratch_dir must not be empty")
	}
	if _, err := logging.ParseLevel(c.Diagnostics.LogLevel); err != nil {
		return fmt.Errorf("invalid diagnostics.log_level: %w", err)
	}
	return nil
}

// ValidationWarnings lists non-fatal problems worth showing in `config check`.
func (c *Config) ValidationWarnings() []string {
	var warnings []string
	if strings.TrimSpace(c.Suggestion.APIKey) == "" {
		warnings = append(warnings, fmt.Sprintf("%s is not set (OPENROUTER_API_KEY); analysis will fail", SettingSuggestionKey))
	}
	if strings.TrimSpace(c.Rewrite.APIKey) == "" {
		warnings = append(warnings, fmt.Sprintf("%s is not set (MORPH_API_KEY); rewrites will fail", SettingRewriteKey))
	}
	if c.Cache.TTL == 0 {
		warnings = append(warnings, "cache.ttl is 0; every analysis will hit the suggestion service")
	}
	return warnings
}

func loadConfigEnvVars() map[string]string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(home, ".diffapply", "config.env"))
	if err != nil {
		return nil
	}

	vars := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		vars[key] = strings.Trim(strings.TrimSpace(parts[1]), "\"'")
	}
	return vars
}
