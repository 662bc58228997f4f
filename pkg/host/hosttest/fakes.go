// Package hosttest provides in-memory host collaborators for tests.
package hosttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/odvcencio/diffapply/pkg/host"
)

// Document is a mutable in-memory document.
type Document struct {
	mu       sync.Mutex
	uri      string
	path     string
	text     string
	language string
	saves    int
}

// NewDocument creates a document at path.
func NewDocument(path, text, language string) *Document {
	return &Document{uri: "file://" + path, path: path, text: text, language: language}
}

func (d *Document) URI() string      { return d.uri }
func (d *Document) Path() string     { return d.path }
func (d *Document) Language() string { return d.language }

func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// SetText simulates the user editing the document.
func (d *Document) SetText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
}

// Saves reports how many times the document was saved.
func (d *Document) Saves() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saves
}

// Message is one recorded notification.
type Message struct {
	Level string
	Text  string
}

// Notifier records notifications.
type Notifier struct {
	mu       sync.Mutex
	messages []Message
}

func (n *Notifier) record(level, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, Message{Level: level, Text: text})
}

func (n *Notifier) Info(_ context.Context, message string)  { n.record("info", message) }
func (n *Notifier) Warn(_ context.Context, message string)  { n.record("warn", message) }
func (n *Notifier) Error(_ context.Context, message string) { n.record("error", message) }

// Messages returns a copy of everything recorded.
func (n *Notifier) Messages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.messages...)
}

// Texts returns the recorded texts at level, or all texts when level is "".
func (n *Notifier) Texts(level string) []string {
	var out []string
	for _, m := range n.Messages() {
		if level == "" || m.Level == level {
			out = append(out, m.Text)
		}
	}
	return out
}

// DiffView is one comparison the viewer was asked to show.
type DiffView struct {
	Original string
	Modified string
	Title    string
}

// DiffViewer records views and can be told to fail.
type DiffViewer struct {
	mu        sync.Mutex
	open      map[string]DiffView
	shown     []DiffView
	closed    []string
	refocused []string

	ShowErr  error
	CloseErr error
}

func (v *DiffViewer) ShowDiff(_ context.Context, original, modified, title string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ShowErr != nil {
		return v.ShowErr
	}
	if v.open == nil {
		v.open = make(map[string]DiffView)
	}
	view := DiffView{Original: original, Modified: modified, Title: title}
	v.open[modified] = view
	v.shown = append(v.shown, view)
	return nil
}

func (v *DiffViewer) CloseDiff(_ context.Context, modified string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.open, modified)
	v.closed = append(v.closed, modified)
	return v.CloseErr
}

func (v *DiffViewer) ShowDocument(_ context.Context, path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refocused = append(v.refocused, path)
	return nil
}

// Open returns the views currently open.
func (v *DiffViewer) Open() []DiffView {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]DiffView, 0, len(v.open))
	for _, view := range v.open {
		out = append(out, view)
	}
	return out
}

// Shown returns every view ever shown, in order.
func (v *DiffViewer) Shown() []DiffView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]DiffView(nil), v.shown...)
}

// Closed returns the modified paths whose views were closed.
func (v *DiffViewer) Closed() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.closed...)
}

// Refocused returns the paths passed to ShowDocument.
func (v *DiffViewer) Refocused() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.refocused...)
}

// Editor writes into *Document values.
type Editor struct {
	mu      sync.Mutex
	applied []string
	Err     error
}

func (e *Editor) ReplaceAndSave(_ context.Context, doc host.Document, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	d, ok := doc.(*Document)
	if !ok {
		return fmt.Errorf("hosttest: unsupported document type %T", doc)
	}
	d.mu.Lock()
	d.text = text
	d.saves++
	d.mu.Unlock()
	e.applied = append(e.applied, text)
	return nil
}

// Applied returns every text written.
func (e *Editor) Applied() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.applied...)
}

var (
	_ host.Document   = (*Document)(nil)
	_ host.Notifier   = (*Notifier)(nil)
	_ host.DiffViewer = (*DiffViewer)(nil)
	_ host.Editor     = (*Editor)(nil)
)
