package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/diffapply/pkg/logging"
	"github.com/odvcencio/diffapply/pkg/rpc"
)

// runServeCommand speaks JSON-RPC on stdio. Stdout carries protocol frames
// only; warnings go to stderr and events to the log directory.
func runServeCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	metricsAddr := fs.String("metrics", "", "Serve Prometheus metrics on this address (overrides diagnostics.metrics_addr)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := cfg.Diagnostics.MetricsAddr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := openLogger(cfg)
	server := rpc.NewServer(os.Stdout, version, logger)
	eng := newEngine(cfg, logger, hostDeps{notifier: server, viewer: server, editor: server})
	defer eng.Close()
	server.Bind(eng.controller)
	server.Monitor(eng.analyzer, eng.rewriter)
	eng.renderer.SweepStale()

	_ = eng.logger.Info(logging.CategorySession, "serve.started", "", map[string]any{
		"version":      version,
		"metrics_addr": addr,
		"scratch_dir":  eng.renderer.Dir(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		err := server.Serve(gctx, os.Stdin)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		// unblocks a pending read after a signal
		_ = os.Stdin.Close()
		return nil
	})

	if addr != "" {
		metrics := newMetricsServer(addr)
		g.Go(func() error {
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return metrics.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	_ = eng.logger.Info(logging.CategorySession, "serve.stopped", "", nil)
	return err
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
