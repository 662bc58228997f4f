package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/diffapply/pkg/analysis"
	"github.com/odvcencio/diffapply/pkg/config"
	apperrors "github.com/odvcencio/diffapply/pkg/errors"
	"github.com/odvcencio/diffapply/pkg/host/hosttest"
	"github.com/odvcencio/diffapply/pkg/preview"
	"github.com/odvcencio/diffapply/pkg/rewrite"
)

const suggestion = analysis.Marker + "\nfor (const x of xs) sum += x;\n" + analysis.Marker

type fakeSuggester struct {
	mu      sync.Mutex
	payload string
	err     error
	calls   int
	started chan struct{}
	release chan struct{}
}

func (f *fakeSuggester) Analyze(ctx context.Context, source, language string) (string, error) {
	f.mu.Lock()
	f.calls++
	started, release := f.started, f.release
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	return f.payload, f.err
}

func (f *fakeSuggester) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeApplier struct {
	mu     sync.Mutex
	result string
	err    error
	calls  int
	gotOrig, gotDiff string
}

func (f *fakeApplier) Rewrite(ctx context.Context, original, diff string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotOrig, f.gotDiff = original, diff
	return f.result, f.err
}

type harness struct {
	ctrl      *Controller
	suggester *fakeSuggester
	applier   *fakeApplier
	notifier  *hosttest.Notifier
	viewer    *hosttest.DiffViewer
	editor    *hosttest.Editor
	renderer  *preview.Renderer
	dir       string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		suggester: &fakeSuggester{payload: suggestion},
		applier:   &fakeApplier{result: "function f(){ fast() }"},
		notifier:  &hosttest.Notifier{},
		viewer:    &hosttest.DiffViewer{},
		editor:    &hosttest.Editor{},
		dir:       t.TempDir(),
	}
	h.renderer = preview.NewRenderer(h.dir, h.viewer, nil)
	h.ctrl = NewController(Deps{
		Suggester: h.suggester,
		Applier:   h.applier,
		Previewer: h.renderer,
		Notifier:  h.notifier,
		Editor:    h.editor,
	})
	return h
}

func (h *harness) scratchCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(h.renderer.Dir())
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), preview.ScratchPrefix) {
			n++
		}
	}
	return n
}

func newDoc() *hosttest.Document {
	return hosttest.NewDocument("/work/f.js", "function f(){ for(...) {...} }", "javascript")
}

func TestController_EndToEndAccept(t *testing.T) {
	suggest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Try this:\n// ... existing code ...\nfast()\n// ... existing code ..."}}]}`))
	}))
	defer suggest.Close()
	apply := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"function f(){ fast() }"}}]}`))
	}))
	defer apply.Close()

	cfg := config.DefaultConfig()
	cfg.Suggestion.APIKey, cfg.Suggestion.BaseURL = "k1", suggest.URL
	cfg.Rewrite.APIKey, cfg.Rewrite.BaseURL = "k2", apply.URL

	h := newHarness(t)
	h.ctrl = NewController(Deps{
		Suggester: analysis.New(cfg.Suggestion, analysis.Options{}),
		Applier:   rewrite.New(cfg.Rewrite, rewrite.Options{}),
		Previewer: h.renderer,
		Notifier:  h.notifier,
		Editor:    h.editor,
	})
	doc := newDoc()
	ctx := context.Background()

	outcome, err := h.ctrl.Optimize(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, OutcomePreviewing, outcome)
	assert.Equal(t, StatePreviewing, h.ctrl.State())

	sess, ok := h.ctrl.Current()
	require.True(t, ok)
	assert.Equal(t, 1, sess.Edits)
	assert.Equal(t, "function f(){ fast() }", sess.Rewritten)
	assert.FileExists(t, sess.Preview.ScratchPath)

	outcome, err = h.ctrl.Accept(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, "function f(){ fast() }", doc.Text())
	assert.Equal(t, 1, doc.Saves())
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.NoFileExists(t, sess.Preview.ScratchPath)
	assert.Contains(t, h.notifier.Texts("info"), "Optimization applied to f.js")

	_, ok = h.ctrl.Current()
	assert.False(t, ok)
}

func TestController_NoSuggestions(t *testing.T) {
	h := newHarness(t)
	h.suggester.payload = ""
	doc := newDoc()

	outcome, err := h.ctrl.Optimize(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoSuggestions, outcome)
	assert.Zero(t, h.applier.calls)
	assert.Equal(t, "function f(){ for(...) {...} }", doc.Text())
	assert.Contains(t, h.notifier.Texts("info"), "No optimization opportunities found.")
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Zero(t, h.ctrl.cache.Len(), "empty payloads are not cached")
}

func TestController_EmptyRewrite(t *testing.T) {
	h := newHarness(t)
	h.applier.result = ""
	doc := newDoc()

	outcome, err := h.ctrl.Optimize(context.Background(), doc)
	require.Error(t, err)
	assert.Equal(t, OutcomeRewriteFailed, outcome)
	assert.True(t, apperrors.IsEmptyResult(err))
	assert.Empty(t, h.viewer.Shown())
	assert.Zero(t, h.scratchCount(t))
	assert.Equal(t, "function f(){ for(...) {...} }", doc.Text())
	assert.Len(t, h.notifier.Texts("error"), 1)
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestController_Cancel(t *testing.T) {
	h := newHarness(t)
	doc := newDoc()
	ctx := context.Background()

	_, err := h.ctrl.Optimize(ctx, doc)
	require.NoError(t, err)
	require.Equal(t, 1, h.scratchCount(t))

	outcome, err := h.ctrl.Cancel(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, outcome)
	assert.Zero(t, h.scratchCount(t))
	assert.Equal(t, "function f(){ for(...) {...} }", doc.Text())
	assert.Zero(t, doc.Saves())
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Empty(t, h.viewer.Open())
}

func TestController_MissingCredential(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Suggestion.BaseURL = server.URL
	cfg.Rewrite.BaseURL = server.URL

	t.Run("suggestion", func(t *testing.T) {
		h := newHarness(t)
		h.ctrl.suggester = analysis.New(cfg.Suggestion, analysis.Options{})

		outcome, err := h.ctrl.Optimize(context.Background(), newDoc())
		assert.Equal(t, OutcomeAnalysisFailed, outcome)
		assert.True(t, apperrors.IsConfigurationError(err))
		assert.Contains(t, h.notifier.Texts("error"), "Analysis failed: OpenRouter API key is not configured.")
	})

	t.Run("rewrite", func(t *testing.T) {
		h := newHarness(t)
		h.ctrl.applier = rewrite.New(cfg.Rewrite, rewrite.Options{})

		outcome, err := h.ctrl.Optimize(context.Background(), newDoc())
		assert.Equal(t, OutcomeRewriteFailed, outcome)
		assert.True(t, apperrors.IsConfigurationError(err))
		assert.Zero(t, h.scratchCount(t))
	})

	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestController_AnalysisFailure(t *testing.T) {
	h := newHarness(t)
	h.suggester.err = apperrors.NewRemoteServiceError("OpenRouter", errors.New("HTTP 502"))

	outcome, err := h.ctrl.Optimize(context.Background(), newDoc())
	assert.Equal(t, OutcomeAnalysisFailed, outcome)
	assert.True(t, apperrors.IsRemoteServiceError(err))
	assert.Zero(t, h.applier.calls)
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestController_PreviewFailure(t *testing.T) {
	h := newHarness(t)
	h.viewer.ShowErr = errors.New("no window")

	outcome, err := h.ctrl.Optimize(context.Background(), newDoc())
	assert.Equal(t, OutcomePreviewFailed, outcome)
	assert.Error(t, err)
	assert.Zero(t, h.scratchCount(t))
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestController_Supersede(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ctrl.Optimize(ctx, newDoc())
	require.NoError(t, err)
	first, _ := h.ctrl.Current()

	other := hosttest.NewDocument("/work/g.js", "function g(){}", "javascript")
	outcome, err := h.ctrl.Optimize(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, OutcomePreviewing, outcome)

	second, ok := h.ctrl.Current()
	require.True(t, ok)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Same(t, other, second.Document)
	assert.Equal(t, []string{first.Preview.ScratchPath}, h.viewer.Closed())
	assert.NoFileExists(t, first.Preview.ScratchPath)
	assert.Equal(t, 1, h.scratchCount(t))
	assert.Len(t, h.viewer.Open(), 1)
}

func TestController_CacheReuse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.ctrl.now = func() time.Time { return now }

	_, err := h.ctrl.Optimize(ctx, newDoc())
	require.NoError(t, err)
	_, err = h.ctrl.Cancel(ctx)
	require.NoError(t, err)

	now = now.Add(4 * time.Minute)
	_, err = h.ctrl.Optimize(ctx, newDoc())
	require.NoError(t, err)
	sess, _ := h.ctrl.Current()
	assert.True(t, sess.CacheHit)
	assert.Equal(t, 1, h.suggester.Calls())
	_, _ = h.ctrl.Cancel(ctx)

	now = now.Add(2 * time.Minute)
	_, err = h.ctrl.Optimize(ctx, newDoc())
	require.NoError(t, err)
	assert.Equal(t, 2, h.suggester.Calls(), "stale entries are refreshed")

	assert.Equal(t, 1, h.ctrl.ClearCache())
	assert.Zero(t, h.ctrl.cache.Len())
}

func TestController_AcceptRejectsChangedDocument(t *testing.T) {
	h := newHarness(t)
	doc := newDoc()
	ctx := context.Background()

	_, err := h.ctrl.Optimize(ctx, doc)
	require.NoError(t, err)
	doc.SetText("edited meanwhile")

	outcome, err := h.ctrl.Accept(ctx)
	assert.Equal(t, OutcomeApplyFailed, outcome)
	assert.True(t, apperrors.IsApplyError(err))
	assert.Equal(t, "edited meanwhile", doc.Text())
	assert.Empty(t, h.editor.Applied())
	assert.Zero(t, h.scratchCount(t))
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestController_AcceptEditorFailure(t *testing.T) {
	h := newHarness(t)
	h.editor.Err = errors.New("read-only file")
	doc := newDoc()
	ctx := context.Background()

	_, err := h.ctrl.Optimize(ctx, doc)
	require.NoError(t, err)

	outcome, err := h.ctrl.Accept(ctx)
	assert.Equal(t, OutcomeApplyFailed, outcome)
	assert.True(t, apperrors.IsApplyError(err))
	assert.Contains(t, h.notifier.Texts("error"), "Failed to apply optimization: read-only file")
	assert.Zero(t, h.scratchCount(t))
}

func TestController_NothingPending(t *testing.T) {
	h := newHarness(t)

	outcome, err := h.ctrl.Accept(context.Background())
	assert.Equal(t, OutcomeNothingPending, outcome)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidState))

	outcome, err = h.ctrl.Cancel(context.Background())
	assert.Equal(t, OutcomeNothingPending, outcome)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidState))
}

func TestController_NoDocument(t *testing.T) {
	h := newHarness(t)
	outcome, err := h.ctrl.Optimize(context.Background(), nil)
	assert.Equal(t, OutcomeNoDocument, outcome)
	assert.Error(t, err)
	assert.Equal(t, []string{"No active editor found."}, h.notifier.Texts("warn"))
}

func TestController_StateReadableDuringAnalysis(t *testing.T) {
	h := newHarness(t)
	h.suggester.started = make(chan struct{})
	h.suggester.release = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.ctrl.Optimize(context.Background(), newDoc())
	}()

	<-h.suggester.started
	assert.Equal(t, StateAnalyzing, h.ctrl.State())
	close(h.suggester.release)
	<-done
	assert.Equal(t, StatePreviewing, h.ctrl.State())
}

func TestController_Shutdown(t *testing.T) {
	h := newHarness(t)
	foreign := filepath.Join(h.dir, "optimized_0_other_x.go")
	require.NoError(t, os.WriteFile(foreign, []byte("x"), 0o600))

	_, err := h.ctrl.Optimize(context.Background(), newDoc())
	require.NoError(t, err)
	assert.Equal(t, 1, h.scratchCount(t))

	h.ctrl.Shutdown(context.Background())
	assert.Zero(t, h.scratchCount(t))
	assert.NoDirExists(t, h.renderer.Dir())
	assert.FileExists(t, foreign, "files outside this renderer's directory are left alone")
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats("a\nb\nc\n", "a\nB\nc\nd\n")
	assert.Equal(t, DiffStats{Added: 2, Removed: 1}, stats)
	assert.Equal(t, "+2 -1", stats.String())
	assert.Equal(t, DiffStats{}, ComputeStats("same\n", "same\n"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting_rewrite", StateAwaitingRewrite.String())
	assert.Equal(t, "unknown", State(42).String())
}
