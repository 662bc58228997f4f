package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/odvcencio/diffapply/pkg/config"
	apperrors "github.com/odvcencio/diffapply/pkg/errors"
	hostterm "github.com/odvcencio/diffapply/pkg/host/terminal"
	"github.com/odvcencio/diffapply/pkg/logging"
	"github.com/odvcencio/diffapply/pkg/session"
	termui "github.com/odvcencio/diffapply/pkg/terminal"
)

type optimizeOptions struct {
	language     string
	yes          bool
	contextLines int
	spinner      bool
	suggestion   bool
}

func runOptimizeCommand(args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "Apply the optimization without asking")
	language := fs.String("language", "", "Language id (detected from the file when empty)")
	contextLines := fs.Int("context", 3, "Lines of context around each diff hunk")
	suggestion := fs.Bool("suggestion", true, "Print the suggested edit snippet before asking")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: diffapply optimize [--yes] [--language id] FILE")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	_, err = optimizeFile(ctx, cfg, fs.Arg(0), optimizeOptions{
		language:     *language,
		yes:          *yes,
		contextLines: *contextLines,
		spinner:      termui.IsInteractive(os.Stdout),
		suggestion:   *suggestion,
	}, termui.New())
	return err
}

// optimizeFile runs one optimization cycle on path and asks w for the
// decision unless opts.yes is set.
func optimizeFile(ctx context.Context, cfg *config.Config, path string, opts optimizeOptions, w *termui.Writer) (session.Outcome, error) {
	doc, err := hostterm.OpenFile(path, opts.language)
	if err != nil {
		return session.OutcomeNoDocument, err
	}

	notifier := hostterm.NewNotifier(w)
	eng := newEngine(cfg, openLogger(cfg), hostDeps{
		notifier: notifier,
		viewer:   hostterm.NewDiffViewer(w, opts.contextLines).Via(notifier),
		editor:   hostterm.Editor{},
	})
	defer eng.Close()
	eng.renderer.SweepStale()

	var spinner *termui.Spinner
	if opts.spinner {
		spinner = termui.NewSpinner(w.Out(), "Analyzing code... Please wait.")
		notifier.Attach(spinner)
		spinner.Start()
	}
	outcome, err := eng.controller.Optimize(ctx, doc)
	if spinner != nil {
		switch {
		case err != nil:
			spinner.StopWithError("Optimization failed")
		case outcome == session.OutcomePreviewing:
			spinner.StopWithSuccess("Analysis complete")
		default:
			spinner.Stop()
		}
		notifier.Detach()
	}
	if err != nil || outcome != session.OutcomePreviewing {
		return outcome, err
	}

	if sess, ok := eng.controller.Current(); ok && opts.suggestion {
		w.Header("Suggested changes")
		if err := w.CodeBlock(sess.Diff, doc.Language()); err != nil {
			_ = eng.logger.Warn(logging.CategorySession, "optimize.render_failed", err.Error(), nil)
		}
	}

	name := filepath.Base(doc.Path())
	if !opts.yes {
		ok, err := confirm(ctx, w, fmt.Sprintf("Apply optimization to %s?", name))
		if err != nil || !ok {
			// the signal context is already done when err is set
			return eng.controller.Cancel(context.WithoutCancel(ctx))
		}
	}

	if err := doc.Reload(); err != nil {
		if _, cancelErr := eng.controller.Cancel(ctx); cancelErr != nil {
			err = errors.Join(err, cancelErr)
		}
		return session.OutcomeApplyFailed, apperrors.NewApplyError(name, err)
	}
	return eng.controller.Accept(ctx)
}

// confirm asks w for a decision and gives up when ctx ends. The pending read
// is abandoned in that case.
func confirm(ctx context.Context, w *termui.Writer, prompt string) (bool, error) {
	answer := make(chan bool, 1)
	go func() { answer <- w.Confirm(prompt, false) }()
	select {
	case ok := <-answer:
		return ok, nil
	case <-ctx.Done():
		w.Println("")
		return false, ctx.Err()
	}
}
