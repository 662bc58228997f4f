package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/diffapply/pkg/analysis"
	"github.com/odvcencio/diffapply/pkg/cache"
	"github.com/odvcencio/diffapply/pkg/config"
	"github.com/odvcencio/diffapply/pkg/host"
	"github.com/odvcencio/diffapply/pkg/logging"
	"github.com/odvcencio/diffapply/pkg/observability"
	"github.com/odvcencio/diffapply/pkg/preview"
	"github.com/odvcencio/diffapply/pkg/rewrite"
	"github.com/odvcencio/diffapply/pkg/session"
)

const traceFileName = "traces.jsonl"

// engine owns everything one process needs to run optimization sessions.
type engine struct {
	logger     *logging.Logger
	tracer     *observability.TracerProvider
	traceFile  io.Closer
	analyzer   *analysis.Analyzer
	rewriter   *rewrite.Rewriter
	renderer   *preview.Renderer
	controller *session.Controller
}

type hostDeps struct {
	notifier host.Notifier
	viewer   host.DiffViewer
	editor   host.Editor
}

// newEngine takes ownership of logger and closes it in Close.
func newEngine(cfg *config.Config, logger *logging.Logger, h hostDeps) *engine {
	e := &engine{logger: logger}

	if cfg.Diagnostics.Trace {
		if err := e.startTracing(cfg.Diagnostics.LogDir); err != nil {
			fmt.Fprintf(os.Stderr, "warning: tracing disabled: %v\n", err)
		}
	}

	networkLogDir := ""
	if cfg.Diagnostics.NetworkLogs {
		networkLogDir = cfg.Diagnostics.LogDir
	}

	e.analyzer = analysis.New(cfg.Suggestion, analysis.Options{Logger: e.logger, NetworkLogDir: networkLogDir})
	e.rewriter = rewrite.New(cfg.Rewrite, rewrite.Options{Logger: e.logger, NetworkLogDir: networkLogDir})
	e.renderer = preview.NewRenderer(cfg.Preview.ScratchDir, h.viewer, e.logger)
	e.controller = session.NewController(session.Deps{
		Suggester: e.analyzer,
		Applier:   e.rewriter,
		Previewer: e.renderer,
		Notifier:  h.notifier,
		Editor:    h.editor,
		Cache:     cache.New(),
		CacheTTL:  cfg.Cache.TTL,
		Logger:    e.logger,
	})
	return e
}

// openLogger returns nil when the log directory is unusable; a nil logger
// discards events.
func openLogger(cfg *config.Config) *logging.Logger {
	logger, err := logging.NewLogger(cfg.Diagnostics.LogDir, ulid.Make().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: diagnostics disabled: %v\n", err)
		return nil
	}
	if level, err := logging.ParseLevel(cfg.Diagnostics.LogLevel); err == nil {
		logger.SetMinLevel(level)
	}
	return logger
}

func (e *engine) startTracing(logDir string) error {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(logDir, traceFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	tp, err := observability.NewTracerProvider("diffapply", version, f)
	if err != nil {
		f.Close()
		return err
	}
	e.tracer, e.traceFile = tp, f
	return nil
}

// Close cancels any open session, removes scratch files and flushes
// diagnostics.
func (e *engine) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e.controller.Shutdown(ctx)
	_ = e.analyzer.Close()
	_ = e.rewriter.Close()
	if err := e.tracer.Shutdown(ctx); err != nil {
		_ = e.logger.Warn(logging.CategorySession, "trace.shutdown_failed", err.Error(), nil)
	}
	if e.traceFile != nil {
		_ = e.traceFile.Close()
	}
	_ = e.logger.Close()
}
