// Package preview stages rewritten text in scratch files and drives the
// host's side-by-side comparison view.
package preview

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	apperrors "github.com/odvcencio/diffapply/pkg/errors"
	"github.com/odvcencio/diffapply/pkg/host"
	"github.com/odvcencio/diffapply/pkg/logging"
	"github.com/odvcencio/diffapply/pkg/observability"
)

// ScratchPrefix starts every scratch file name.
const ScratchPrefix = "optimized_"

// ownerFile holds the pid of the process that owns a scratch subdirectory.
const ownerFile = ".owner"

// orphanAge is how old an ownerless subdirectory must be before a sweep
// removes it. Younger ones may belong to a process still creating them.
const orphanAge = time.Hour

// Handle identifies one open comparison.
type Handle struct {
	OriginalPath string
	ScratchPath  string
	Title        string
	CreatedAt    time.Time

	closed bool
}

// Closed reports whether the handle has been torn down.
func (h *Handle) Closed() bool {
	return h == nil || h.closed
}

// Renderer stages files in its own subdirectory of a shared base directory,
// so that concurrent processes never touch each other's previews.
type Renderer struct {
	base   string
	dir    string
	viewer host.DiffViewer
	logger *logging.Logger
	now    func() time.Time
	alive  func(pid int) bool

	mu      sync.Mutex
	open    map[string]*Handle
	claimed bool
}

// NewRenderer creates a renderer staging files under base. Its subdirectory
// is created lazily on the first Open.
func NewRenderer(base string, viewer host.DiffViewer, logger *logging.Logger) *Renderer {
	return &Renderer{
		base:   base,
		dir:    filepath.Join(base, ulid.Make().String()),
		viewer: viewer,
		logger: logger,
		now:    time.Now,
		alive:  processAlive,
		open:   make(map[string]*Handle),
	}
}

// Dir returns this renderer's own scratch subdirectory.
func (r *Renderer) Dir() string {
	return r.dir
}

// claim creates the subdirectory and records the owning pid in it.
func (r *Renderer) claim() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimed {
		if _, err := os.Stat(r.dir); err == nil {
			return nil
		}
	}
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}
	owner := filepath.Join(r.dir, ownerFile)
	if err := os.WriteFile(owner, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return err
	}
	r.claimed = true
	return nil
}

// Title returns the comparison title for originalPath.
func Title(originalPath string) string {
	return filepath.Base(originalPath) + " ↔ Optimized"
}

// Open writes rendered to a fresh scratch file and shows it next to
// originalPath. The scratch file is removed again if the view cannot be shown.
func (r *Renderer) Open(ctx context.Context, originalPath, rendered string) (*Handle, error) {
	if err := r.claim(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePreviewFailed, "failed to create scratch directory").
			WithContext("dir", r.dir)
	}

	created := r.now()
	base := filepath.Base(originalPath)
	name := fmt.Sprintf("%s%d_%s_%s", ScratchPrefix, created.UnixMilli(), ulid.Make().String(), base)
	scratch := filepath.Join(r.dir, name)

	if err := writeScratch(scratch, rendered); err != nil {
		_ = os.Remove(scratch)
		return nil, apperrors.Wrap(err, apperrors.ErrCodePreviewFailed, "failed to write scratch file").
			WithContext("path", scratch)
	}

	h := &Handle{
		OriginalPath: originalPath,
		ScratchPath:  scratch,
		Title:        Title(originalPath),
		CreatedAt:    created,
	}

	if err := r.viewer.ShowDiff(ctx, originalPath, scratch, h.Title); err != nil {
		if rmErr := os.Remove(scratch); rmErr != nil && !os.IsNotExist(rmErr) {
			_ = r.logger.Warn(logging.CategoryPreview, "preview.remove_failed", rmErr.Error(), map[string]any{"path": scratch})
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodePreviewFailed, "failed to show comparison").
			WithContext("document", originalPath)
	}

	r.mu.Lock()
	r.open[scratch] = h
	r.mu.Unlock()
	observability.OpenPreviews.Inc()

	_ = r.logger.Info(logging.CategoryPreview, "preview.opened", "", map[string]any{
		"document": originalPath,
		"scratch":  scratch,
		"size":     len(rendered),
	})
	return h, nil
}

func writeScratch(path, content string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close tears down the comparison for h, refocuses the original document
// and deletes the scratch file. Closing a closed or nil handle is a no-op.
func (r *Renderer) Close(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	r.mu.Lock()
	if h.closed {
		r.mu.Unlock()
		return nil
	}
	h.closed = true
	delete(r.open, h.ScratchPath)
	r.mu.Unlock()
	observability.OpenPreviews.Dec()

	if err := r.viewer.CloseDiff(ctx, h.ScratchPath); err != nil {
		_ = r.logger.Warn(logging.CategoryPreview, "preview.close_view_failed", err.Error(), map[string]any{"scratch": h.ScratchPath})
	}
	if err := r.viewer.ShowDocument(ctx, h.OriginalPath); err != nil {
		_ = r.logger.Warn(logging.CategoryPreview, "preview.refocus_failed", err.Error(), map[string]any{"document": h.OriginalPath})
	}

	if err := os.Remove(h.ScratchPath); err != nil && !os.IsNotExist(err) {
		_ = r.logger.Error(logging.CategoryPreview, "preview.remove_failed", err.Error(), map[string]any{"path": h.ScratchPath})
		return apperrors.Wrap(err, apperrors.ErrCodePreviewFailed, "failed to delete scratch file").
			WithContext("path", h.ScratchPath)
	}

	_ = r.logger.Info(logging.CategoryPreview, "preview.closed", "", map[string]any{"scratch": h.ScratchPath})
	return nil
}

// IsOpen reports whether any comparison is open.
func (r *Renderer) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open) > 0
}

// CleanupAll deletes every scratch file this renderer created by removing
// its subdirectory, and invalidates open handles. Other processes' files are
// left alone. Failures are logged, never returned.
func (r *Renderer) CleanupAll() int {
	removed := countScratch(r.dir)
	if err := os.RemoveAll(r.dir); err != nil {
		_ = r.logger.Warn(logging.CategoryPreview, "preview.cleanup_failed", err.Error(), map[string]any{"dir": r.dir})
		removed = 0
	}

	r.mu.Lock()
	r.claimed = false
	for path, h := range r.open {
		h.closed = true
		delete(r.open, path)
		observability.OpenPreviews.Dec()
	}
	r.mu.Unlock()

	if removed > 0 {
		_ = r.logger.Info(logging.CategoryPreview, "preview.cleanup", "", map[string]any{"removed": removed, "dir": r.dir})
	}
	return removed
}

// SweepStale removes subdirectories of the base directory whose owning
// process has exited, plus loose scratch files left in the base by older
// layouts. It returns the number of scratch files deleted.
func (r *Renderer) SweepStale() int {
	entries, err := os.ReadDir(r.base)
	if err != nil {
		if !os.IsNotExist(err) {
			_ = r.logger.Warn(logging.CategoryPreview, "preview.sweep_failed", err.Error(), map[string]any{"dir": r.base})
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		path := filepath.Join(r.base, entry.Name())
		switch {
		case entry.IsDir():
			if path == r.dir || !r.stale(path) {
				continue
			}
			n := countScratch(path)
			if err := os.RemoveAll(path); err != nil {
				_ = r.logger.Warn(logging.CategoryPreview, "preview.sweep_failed", err.Error(), map[string]any{"path": path})
				continue
			}
			removed += n
		case strings.HasPrefix(entry.Name(), ScratchPrefix):
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				_ = r.logger.Warn(logging.CategoryPreview, "preview.sweep_failed", err.Error(), map[string]any{"path": path})
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		_ = r.logger.Info(logging.CategoryPreview, "preview.sweep", "", map[string]any{"removed": removed, "dir": r.base})
	}
	return removed
}

// stale reports whether the subdirectory at path belongs to no live process.
func (r *Renderer) stale(path string) bool {
	data, err := os.ReadFile(filepath.Join(path, ownerFile))
	if err != nil {
		info, statErr := os.Stat(path)
		return statErr == nil && r.now().Sub(info.ModTime()) > orphanAge
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return true
	}
	return !r.alive(pid)
}

func countScratch(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), ScratchPrefix) {
			n++
		}
	}
	return n
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess only succeeds for live processes on Windows.
	if runtime.GOOS == "windows" {
		return true
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
