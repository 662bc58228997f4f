package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/diffapply/pkg/paths"
	"gopkg.in/yaml.v3"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Zero values only win when the key
// is present in the raw document.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if override.Suggestion.APIKey != "" {
		base.Suggestion.APIKey = override.Suggestion.APIKey
	}
	if override.Suggestion.BaseURL != "" {
		base.Suggestion.BaseURL = strings.TrimRight(override.Suggestion.BaseURL, "/")
	}
	if override.Suggestion.Model != "" {
		base.Suggestion.Model = override.Suggestion.Model
	}
	if override.Suggestion.MaxTokens != 0 {
		base.Suggestion.MaxTokens = override.Suggestion.MaxTokens
	}
	if fieldSet(raw, "suggestion", "temperature") {
		base.Suggestion.Temperature = override.Suggestion.Temperature
	}
	if override.Suggestion.Timeout != 0 {
		base.Suggestion.Timeout = override.Suggestion.Timeout
	}

	if override.Rewrite.APIKey != "" {
		base.Rewrite.APIKey = override.Rewrite.APIKey
	}
	if override.Rewrite.BaseURL != "" {
		base.Rewrite.BaseURL = strings.TrimRight(override.Rewrite.BaseURL, "/")
	}
	if override.Rewrite.Model != "" {
		base.Rewrite.Model = override.Rewrite.Model
	}
	if override.Rewrite.Timeout != 0 {
		base.Rewrite.Timeout = override.Rewrite.Timeout
	}

	if fieldSet(raw, "cache", "ttl") {
		base.Cache.TTL = override.Cache.TTL
	}

	if override.Preview.ScratchDir != "" {
		base.Preview.ScratchDir = filepath.Clean(paths.ExpandHome(override.Preview.ScratchDir))
	}

	if override.Diagnostics.LogDir != "" {
		base.Diagnostics.LogDir = filepath.Clean(paths.ExpandHome(override.Diagnostics.LogDir))
	}
	if override.Diagnostics.LogLevel != "" {
		base.Diagnostics.LogLevel = override.Diagnostics.LogLevel
	}
	if fieldSet(raw, "diagnostics", "network_logs") {
		base.Diagnostics.NetworkLogs = override.Diagnostics.NetworkLogs
	}
	if fieldSet(raw, "diagnostics", "trace") {
		base.Diagnostics.Trace = override.Diagnostics.Trace
	}
	if override.Diagnostics.MetricsAddr != "" {
		base.Diagnostics.MetricsAddr = override.Diagnostics.MetricsAddr
	}
}

func fieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}
