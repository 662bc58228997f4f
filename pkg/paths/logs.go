package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvLogDir     = "DIFFAPPLY_LOG_DIR"
	EnvScratchDir = "DIFFAPPLY_SCRATCH_DIR"

	scratchDirName = "diffapply"
)

// LogsBaseDir returns the directory diagnostic logs are written to.
func LogsBaseDir() string {
	if dir := strings.TrimSpace(os.Getenv(EnvLogDir)); dir != "" {
		return filepath.Clean(ExpandHome(dir))
	}
	return filepath.Join(".diffapply", "logs")
}

// ScratchDir returns the shared base directory for preview files. Each
// process stages its files in its own subdirectory.
func ScratchDir() string {
	if dir := strings.TrimSpace(os.Getenv(EnvScratchDir)); dir != "" {
		return filepath.Clean(ExpandHome(dir))
	}
	return filepath.Join(os.TempDir(), scratchDirName)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return path
}
