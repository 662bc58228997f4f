// Package session runs the analyze, rewrite, preview and apply cycle for one
// document at a time.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/diffapply/pkg/analysis"
	"github.com/odvcencio/diffapply/pkg/cache"
	apperrors "github.com/odvcencio/diffapply/pkg/errors"
	"github.com/odvcencio/diffapply/pkg/host"
	"github.com/odvcencio/diffapply/pkg/logging"
	"github.com/odvcencio/diffapply/pkg/observability"
	"github.com/odvcencio/diffapply/pkg/preview"
)

//go:generate mockgen -package=session -destination=mock_collaborators_test.go github.com/odvcencio/diffapply/pkg/session Suggester,Applier

// Suggester proposes a marker-based edit for source. "" means no suggestion.
type Suggester interface {
	Analyze(ctx context.Context, source, language string) (string, error)
}

// Applier turns the original text and a suggestion into the full new text.
type Applier interface {
	Rewrite(ctx context.Context, original, diff string) (string, error)
}

// Previewer stages rewritten text for review.
type Previewer interface {
	Open(ctx context.Context, originalPath, rendered string) (*preview.Handle, error)
	Close(ctx context.Context, h *preview.Handle) error
	CleanupAll() int
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Suggester Suggester
	Applier   Applier
	Previewer Previewer
	Notifier  host.Notifier
	Editor    host.Editor
	Cache     *cache.Cache
	// CacheTTL bounds how old a cached analysis may be; zero uses cache.DefaultTTL.
	CacheTTL time.Duration
	Logger   *logging.Logger
}

// Controller owns at most one open session. Operations are serialized;
// State and Current never wait on a remote call.
type Controller struct {
	suggester Suggester
	applier   Applier
	previewer Previewer
	notifier  host.Notifier
	editor    host.Editor
	cache     *cache.Cache
	ttl       time.Duration
	logger    *logging.Logger
	now       func() time.Time

	opMu sync.Mutex

	stateMu sync.RWMutex
	state   State
	current *Session
}

// NewController wires a controller from deps.
func NewController(deps Deps) *Controller {
	c := deps.Cache
	if c == nil {
		c = cache.New()
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Controller{
		suggester: deps.Suggester,
		applier:   deps.Applier,
		previewer: deps.Previewer,
		notifier:  deps.Notifier,
		editor:    deps.Editor,
		cache:     c,
		ttl:       ttl,
		logger:    deps.Logger,
		now:       time.Now,
		state:     StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Current returns a copy of the open session, if any.
func (c *Controller) Current() (Session, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.current == nil {
		return Session{}, false
	}
	return *c.current, true
}

func (c *Controller) setState(s State, sess *Session) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = s
	c.current = sess
}

func (c *Controller) openSession() *Session {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.current
}

// ClearCache drops every memoized analysis.
func (c *Controller) ClearCache() int {
	n := c.cache.Len()
	c.cache.Clear()
	_ = c.logger.Info(logging.CategoryCache, "cache.cleared", "", map[string]any{"entries": n})
	return n
}

// Optimize analyzes doc, requests the rewrite and opens the preview. On
// OutcomePreviewing the session stays open until Accept or Cancel. An open
// session is cancelled first.
func (c *Controller) Optimize(ctx context.Context, doc host.Document) (Outcome, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if prev := c.openSession(); prev != nil {
		_ = c.logger.Info(logging.CategorySession, "session.superseded", "", map[string]any{
			"session":  prev.ID,
			"document": prev.Document.URI(),
		})
		c.cancelLocked(ctx, prev, "superseded")
	}

	if doc == nil {
		c.notifier.Warn(ctx, "No active editor found.")
		return c.finish(OutcomeNoDocument), apperrors.New(apperrors.ErrCodeInvalidInput, "no active document")
	}

	text := doc.Text()
	sess := &Session{
		ID:          ulid.Make().String(),
		Document:    doc,
		Original:    text,
		Fingerprint: cache.Compute(text),
		StartedAt:   c.now(),
	}
	c.logger.SetSessionID(sess.ID)
	_ = c.logger.Info(logging.CategorySession, "session.started", "", map[string]any{
		"document":    doc.URI(),
		"language":    doc.Language(),
		"size":        len(text),
		"fingerprint": sess.Fingerprint.String(),
	})

	c.setState(StateAnalyzing, nil)
	c.notifier.Info(ctx, "Analyzing code... Please wait.")

	diff, err := c.analyze(ctx, sess)
	if err != nil {
		c.notifier.Error(ctx, "Analysis failed: "+apperrors.UserMessage(err))
		c.logFailure(sess, OutcomeAnalysisFailed, err)
		return c.finish(OutcomeAnalysisFailed), err
	}
	if strings.TrimSpace(diff) == "" {
		c.notifier.Info(ctx, "No optimization opportunities found.")
		return c.finish(OutcomeNoSuggestions), nil
	}
	sess.Diff = diff
	sess.Edits = analysis.CountEdits(diff)

	c.setState(StateAwaitingRewrite, nil)
	c.notifier.Info(ctx, fmt.Sprintf("Analysis complete. Applying %s...", plural(sess.Edits, "suggested edit")))

	rewritten, err := c.applier.Rewrite(ctx, sess.Original, sess.Diff)
	if err == nil && rewritten == "" {
		err = apperrors.NewEmptyResultError("rewrite")
	}
	if err != nil {
		c.notifier.Error(ctx, "Rewrite failed: "+apperrors.UserMessage(err))
		c.logFailure(sess, OutcomeRewriteFailed, err)
		return c.finish(OutcomeRewriteFailed), err
	}
	sess.Rewritten = rewritten
	sess.Stats = ComputeStats(sess.Original, rewritten)

	h, err := c.previewer.Open(ctx, doc.Path(), rewritten)
	if err != nil {
		c.notifier.Error(ctx, "Could not open preview: "+apperrors.UserMessage(err))
		c.logFailure(sess, OutcomePreviewFailed, err)
		return c.finish(OutcomePreviewFailed), err
	}
	sess.Preview = h

	c.setState(StatePreviewing, sess)
	_ = c.logger.Info(logging.CategorySession, "session.previewing", "", map[string]any{
		"scratch": h.ScratchPath,
		"edits":   sess.Edits,
		"added":   sess.Stats.Added,
		"removed": sess.Stats.Removed,
	})
	c.notifier.Info(ctx, fmt.Sprintf("Review the optimization for %s (%s lines), then accept or cancel.",
		filepath.Base(doc.Path()), sess.Stats))
	observability.SessionOutcomes.WithLabelValues(string(OutcomePreviewing)).Inc()
	return OutcomePreviewing, nil
}

// analyze returns the suggestion for sess, from cache when fresh.
func (c *Controller) analyze(ctx context.Context, sess *Session) (string, error) {
	if res, ok := c.cache.Get(sess.Fingerprint); ok {
		if res.Fresh(c.now(), c.ttl) {
			observability.CacheLookups.WithLabelValues("hit").Inc()
			_ = c.logger.Info(logging.CategoryCache, "cache.hit", "", map[string]any{"fingerprint": sess.Fingerprint.String()})
			sess.CacheHit = true
			return res.DiffContent, nil
		}
		observability.CacheLookups.WithLabelValues("stale").Inc()
	} else {
		observability.CacheLookups.WithLabelValues("miss").Inc()
	}

	diff, err := c.suggester.Analyze(ctx, sess.Original, sess.Document.Language())
	if err != nil {
		return "", err
	}
	if diff != "" {
		c.cache.Put(sess.Fingerprint, cache.Result{
			DiffContent: diff,
			Fingerprint: sess.Fingerprint,
			CreatedAt:   c.now(),
		})
	}
	return diff, nil
}

// Accept writes the rewritten text into the session's document and closes
// the preview. The document must still hold the text that was analyzed.
func (c *Controller) Accept(ctx context.Context) (Outcome, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	sess := c.openSession()
	if sess == nil {
		return OutcomeNothingPending, apperrors.New(apperrors.ErrCodeInvalidState, "no optimization is awaiting a decision")
	}
	c.setState(StateApplying, sess)

	name := filepath.Base(sess.Document.Path())
	live := sess.Document.Text()
	if cache.Compute(live) != sess.Fingerprint || live != sess.Original {
		err := apperrors.NewApplyError(name, fmt.Errorf("document changed since it was analyzed"))
		c.closePreview(ctx, sess)
		c.notifier.Error(ctx, fmt.Sprintf("%s changed since it was analyzed; optimization not applied.", name))
		c.logFailure(sess, OutcomeApplyFailed, err)
		return c.finish(OutcomeApplyFailed), err
	}

	if err := c.editor.ReplaceAndSave(ctx, sess.Document, sess.Rewritten); err != nil {
		applyErr := apperrors.NewApplyError(name, err)
		c.closePreview(ctx, sess)
		c.notifier.Error(ctx, "Failed to apply optimization: "+err.Error())
		c.logFailure(sess, OutcomeApplyFailed, applyErr)
		return c.finish(OutcomeApplyFailed), applyErr
	}

	c.closePreview(ctx, sess)
	c.notifier.Info(ctx, "Optimization applied to "+name)
	_ = c.logger.Info(logging.CategorySession, "session.applied", "", map[string]any{
		"document": sess.Document.URI(),
		"size":     len(sess.Rewritten),
	})
	return c.finish(OutcomeApplied), nil
}

// Cancel discards the open session. The document is not touched.
func (c *Controller) Cancel(ctx context.Context) (Outcome, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	sess := c.openSession()
	if sess == nil {
		return OutcomeNothingPending, apperrors.New(apperrors.ErrCodeInvalidState, "no optimization is awaiting a decision")
	}
	c.cancelLocked(ctx, sess, "user")
	c.notifier.Info(ctx, "Optimization discarded.")
	return OutcomeCancelled, nil
}

// cancelLocked must be called with opMu held.
func (c *Controller) cancelLocked(ctx context.Context, sess *Session, reason string) {
	c.setState(StateCancelled, sess)
	c.closePreview(ctx, sess)
	_ = c.logger.Info(logging.CategorySession, "session.cancelled", "", map[string]any{
		"session": sess.ID,
		"reason":  reason,
	})
	c.finish(OutcomeCancelled)
}

// Shutdown cancels any open session and removes every scratch file.
func (c *Controller) Shutdown(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if sess := c.openSession(); sess != nil {
		c.cancelLocked(ctx, sess, "shutdown")
	}
	c.previewer.CleanupAll()
}

func (c *Controller) closePreview(ctx context.Context, sess *Session) {
	if sess.Preview == nil {
		return
	}
	if err := c.previewer.Close(ctx, sess.Preview); err != nil {
		c.notifier.Warn(ctx, "Could not remove preview file: "+apperrors.UserMessage(err))
		_ = c.logger.Error(logging.CategoryPreview, "preview.close_failed", err.Error(), map[string]any{
			"session": sess.ID,
		})
	}
}

// finish returns the controller to Idle and records outcome.
func (c *Controller) finish(outcome Outcome) Outcome {
	c.setState(StateIdle, nil)
	observability.SessionOutcomes.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (c *Controller) logFailure(sess *Session, outcome Outcome, err error) {
	details := map[string]any{
		"outcome":  string(outcome),
		"document": sess.Document.URI(),
		"code":     string(apperrors.GetCode(err)),
	}
	if e, ok := apperrors.As(err); ok {
		for k, v := range e.Context {
			details[k] = v
		}
	}
	_ = c.logger.Error(logging.CategorySession, "session."+string(outcome), err.Error(), details)
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
