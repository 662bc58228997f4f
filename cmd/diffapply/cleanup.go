package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/odvcencio/diffapply/pkg/config"
	"github.com/odvcencio/diffapply/pkg/preview"
)

func runCleanupCommand(args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cleanupScratch(cfg, os.Stdout)
	return nil
}

// cleanupScratch removes preview files left by exited processes and reports
// how many.
func cleanupScratch(cfg *config.Config, out io.Writer) int {
	logger := openLogger(cfg)
	defer logger.Close()

	removed := preview.NewRenderer(cfg.Preview.ScratchDir, nil, logger).SweepStale()
	noun := "files"
	if removed == 1 {
		noun = "file"
	}
	fmt.Fprintf(out, "Removed %d scratch %s from %s\n", removed, noun, cfg.Preview.ScratchDir)
	return removed
}
