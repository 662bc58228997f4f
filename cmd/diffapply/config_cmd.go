package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/diffapply/pkg/config"
)

func runConfigCommand(args []string) error {
	subCmd := "show"
	if len(args) > 0 {
		subCmd = args[0]
	}

	switch subCmd {
	case "check":
		return runConfigCheck(os.Stdout)
	case "show":
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return writeConfig(os.Stdout, cfg)
	case "path":
		return runConfigPath(os.Stdout)
	default:
		return fmt.Errorf("unknown config command: %s (use check, show, or path)", subCmd)
	}
}

func runConfigCheck(out io.Writer) error {
	fmt.Fprintln(out, "Checking diffapply configuration...")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Configuration files:")
	for _, f := range configFiles() {
		if _, err := os.Stat(f.path); err == nil {
			fmt.Fprintf(out, "  ✓ %-8s %s\n", f.label+":", f.path)
		} else {
			fmt.Fprintf(out, "  - %-8s %s (not found)\n", f.label+":", f.path)
		}
	}
	fmt.Fprintln(out)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return reportConfig(out, cfg)
}

// reportConfig prints credential status and warnings. Missing credentials
// fail the check.
func reportConfig(out io.Writer, cfg *config.Config) error {
	fmt.Fprintln(out, "API keys:")
	missing := 0
	for _, k := range []struct{ name, value string }{
		{"OpenRouter (suggestion)", cfg.Suggestion.APIKey},
		{"Morph (rewrite)", cfg.Rewrite.APIKey},
	} {
		if strings.TrimSpace(k.value) != "" {
			fmt.Fprintf(out, "  ✓ %s: configured\n", k.name)
		} else {
			fmt.Fprintf(out, "  - %s: not set\n", k.name)
			missing++
		}
	}
	fmt.Fprintln(out)

	if warnings := cfg.ValidationWarnings(); len(warnings) > 0 {
		fmt.Fprintln(out, "Warnings:")
		for _, w := range warnings {
			fmt.Fprintf(out, "  ⚠ %s\n", w)
		}
		fmt.Fprintln(out)
	}

	if missing > 0 {
		fmt.Fprintln(out, "✗ Configuration is incomplete")
		return withExitCode(fmt.Errorf("%d API key(s) missing", missing), exitConfig)
	}
	fmt.Fprintln(out, "✓ Configuration is valid")
	return nil
}

// writeConfig prints the effective configuration as YAML with keys redacted.
func writeConfig(out io.Writer, cfg *config.Config) error {
	redacted := *cfg
	redacted.Suggestion.APIKey = redact(cfg.Suggestion.APIKey)
	redacted.Rewrite.APIKey = redact(cfg.Rewrite.APIKey)

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&redacted); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func redact(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

type configFile struct {
	label string
	path  string
}

func configFiles() []configFile {
	files := []configFile{}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		files = append(files,
			configFile{"User", filepath.Join(home, ".diffapply", "config.yaml")},
			configFile{"Env", filepath.Join(home, ".diffapply", "config.env")},
		)
	}
	files = append(files, configFile{"Project", filepath.Join(".diffapply", "config.yaml")})
	if configPath != "" {
		files = append(files, configFile{"Flag", configPath})
	}
	return files
}

func runConfigPath(out io.Writer) error {
	fmt.Fprintln(out, "Configuration file locations:")
	for _, f := range configFiles() {
		fmt.Fprintf(out, "  %-8s %s\n", f.label+":", f.path)
	}
	return nil
}
