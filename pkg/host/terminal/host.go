package terminal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/odvcencio/diffapply/pkg/host"
	termui "github.com/odvcencio/diffapply/pkg/terminal"
)

// Notifier prints notifications through a Writer. While a spinner is
// attached, info messages update the spinner instead of printing.
type Notifier struct {
	w       *termui.Writer
	spinner *termui.Spinner
}

// NewNotifier creates a notifier on w.
func NewNotifier(w *termui.Writer) *Notifier {
	return &Notifier{w: w}
}

// Attach routes info messages to s until Detach.
func (n *Notifier) Attach(s *termui.Spinner) { n.spinner = s }

// Detach stops routing to the spinner.
func (n *Notifier) Detach() { n.spinner = nil }

func (n *Notifier) Info(_ context.Context, message string) {
	if n.spinner != nil && n.spinner.Running() {
		n.spinner.SetMessage(message)
		return
	}
	n.w.Info("%s", message)
}

func (n *Notifier) Warn(_ context.Context, message string) {
	n.print(func() { n.w.Warn("%s", message) })
}

func (n *Notifier) Error(_ context.Context, message string) {
	n.print(func() { n.w.Error("%s", message) })
}

func (n *Notifier) print(fn func()) {
	if n.spinner != nil {
		n.spinner.Interrupt(fn)
		return
	}
	fn()
}

// DiffViewer prints a unified diff between the original file and the
// scratch file.
type DiffViewer struct {
	w        *termui.Writer
	context  int
	notifier *Notifier
}

// NewDiffViewer creates a viewer printing contextLines around each hunk.
func NewDiffViewer(w *termui.Writer, contextLines int) *DiffViewer {
	if contextLines < 0 {
		contextLines = 3
	}
	return &DiffViewer{w: w, context: contextLines}
}

// Via prints through n so output interleaves with its spinner.
func (v *DiffViewer) Via(n *Notifier) *DiffViewer {
	v.notifier = n
	return v
}

// UnifiedDiff renders the difference between two texts.
func UnifiedDiff(fromName, toName, from, to string, contextLines int) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(to),
		FromFile: fromName,
		ToFile:   toName,
		Context:  contextLines,
	})
}

func (v *DiffViewer) ShowDiff(_ context.Context, originalPath, modifiedPath, title string) error {
	original, err := os.ReadFile(originalPath)
	if err != nil {
		return fmt.Errorf("read original: %w", err)
	}
	modified, err := os.ReadFile(modifiedPath)
	if err != nil {
		return fmt.Errorf("read scratch file: %w", err)
	}

	base := filepath.Base(originalPath)
	diff, err := UnifiedDiff(base, base+" (optimized)", string(original), string(modified), v.context)
	if err != nil {
		return err
	}

	show := func() {
		v.w.Header(title)
		if diff == "" {
			v.w.Dim("(no textual changes)")
		} else {
			v.w.Diff(diff)
		}
		v.w.Divider()
	}
	if v.notifier != nil {
		v.notifier.print(show)
	} else {
		show()
	}
	return nil
}

func (v *DiffViewer) CloseDiff(context.Context, string) error {
	return nil
}

func (v *DiffViewer) ShowDocument(context.Context, string) error {
	return nil
}

// Editor writes documents back to disk atomically.
type Editor struct{}

// ReplaceAndSave writes text to a temp file beside the document and renames
// it into place, keeping the original permissions.
func (Editor) ReplaceAndSave(_ context.Context, doc host.Document, text string) error {
	path := doc.Path()
	mode := os.FileMode(0o644)
	if fd, ok := doc.(*FileDocument); ok && fd.mode != 0 {
		mode = fd.mode
	} else if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".diffapply-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}

	if fd, ok := doc.(*FileDocument); ok {
		fd.text = text
	}
	return nil
}

var (
	_ host.Document   = (*FileDocument)(nil)
	_ host.Notifier   = (*Notifier)(nil)
	_ host.DiffViewer = (*DiffViewer)(nil)
	_ host.Editor     = Editor{}
)
