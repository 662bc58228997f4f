package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/odvcencio/diffapply/pkg/config"
	apperrors "github.com/odvcencio/diffapply/pkg/errors"
)

// Version information - set via ldflags during build
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}
	os.Exit(dispatchSubcommand(args))
}

// parseGlobalFlags consumes flags that precede the subcommand.
func parseGlobalFlags(raw []string) ([]string, error) {
	args := raw
	for len(args) > 0 {
		switch arg := args[0]; {
		case arg == "-c" || arg == "--config":
			if len(args) < 2 {
				return nil, fmt.Errorf("%s requires a path", arg)
			}
			configPath = args[1]
			args = args[2:]
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
			args = args[1:]
		default:
			return args, nil
		}
	}
	return args, nil
}

func dispatchSubcommand(args []string) int {
	if len(args) == 0 {
		printHelp()
		return exitFailure
	}
	switch args[0] {
	case "--version", "-v", "version":
		printVersion()
		return 0
	case "--help", "-h", "help":
		printHelp()
		return 0
	case "optimize":
		return runCommand(runOptimizeCommand, args[1:])
	case "serve":
		return runCommand(runServeCommand, args[1:])
	case "cleanup":
		return runCommand(runCleanupCommand, args[1:])
	case "config":
		return runCommand(runConfigCommand, args[1:])
	case "doctor":
		return runCommand(runConfigCommand, []string{"check"})
	default:
		if strings.HasPrefix(args[0], "-") {
			fmt.Fprintf(os.Stderr, "Error: unknown flag: %s\n", args[0])
		} else {
			fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", args[0])
		}
		fmt.Fprintln(os.Stderr, "Run 'diffapply --help' for usage.")
		return exitFailure
	}
}

func runCommand(handler func([]string) error, args []string) int {
	if err := handler(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", apperrors.UserMessage(err))
		if e, ok := apperrors.As(err); ok && len(e.Remediation) > 0 {
			for _, tip := range e.Remediation {
				fmt.Fprintf(os.Stderr, "  hint: %s\n", tip)
			}
		}
		return exitCodeForError(err)
	}
	return 0
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, withExitCode(apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, "failed to load config"), exitConfig)
	}
	return cfg, nil
}

func printHelp() {
	fmt.Println("diffapply - LLM-suggested code optimizations, previewed before they land")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  diffapply [FLAGS] COMMAND")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  optimize [--yes] [--language id] FILE")
	fmt.Println("                                   Analyze FILE, show the optimized diff, apply on confirmation")
	fmt.Println("  serve [--metrics addr]           JSON-RPC server on stdio for editor plugins")
	fmt.Println("  cleanup                          Delete leftover preview scratch files")
	fmt.Println("  config [check|show|path]         Inspect configuration")
	fmt.Println("  doctor                           Alias for config check")
	fmt.Println("  version                          Show version information")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -c, --config <path>              Use a specific config file")
	fmt.Println("  -h, --help                       Show this help")
	fmt.Println()
	fmt.Println("ENVIRONMENT:")
	fmt.Println("  OPENROUTER_API_KEY               Suggestion service key (DIFFAPPLY_OPENROUTER_API_KEY wins)")
	fmt.Println("  MORPH_API_KEY                    Rewrite service key (DIFFAPPLY_MORPH_API_KEY wins)")
	fmt.Println("  DIFFAPPLY_SCRATCH_DIR            Directory for preview files")
	fmt.Println("  DIFFAPPLY_LOG_DIR                Directory for diagnostic logs")
	fmt.Println("  DIFFAPPLY_LOG_LEVEL              debug, info, warn or error")
	fmt.Println("  DIFFAPPLY_NETWORK_LOGS           Record request/response logs (keys redacted)")
	fmt.Println("  DIFFAPPLY_TRACE                  Export OpenTelemetry spans to the log directory")
	fmt.Println("  DIFFAPPLY_METRICS_ADDR           Serve Prometheus metrics on this address (serve only)")
	fmt.Println()
	fmt.Println("CONFIGURATION:")
	fmt.Println("  User config:    ~/.diffapply/config.yaml")
	fmt.Println("  Project config: ./.diffapply/config.yaml")
	fmt.Println("  Env fallback:   ~/.diffapply/config.env")
}

func printVersion() {
	fmt.Printf("diffapply %s\n", version)
	if commit != "unknown" {
		fmt.Printf("  Commit:     %s\n", commit)
	}
	if buildDate != "unknown" {
		fmt.Printf("  Built:      %s\n", buildDate)
	}
	fmt.Printf("  Go version: %s\n", runtime.Version())
}
