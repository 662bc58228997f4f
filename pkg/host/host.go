// Package host defines what the optimization core needs from the editor it
// runs inside. Concrete hosts live in subpackages (terminal) and in pkg/rpc.
package host

import "context"

// Document is a read-only view of the active document.
type Document interface {
	// URI identifies the document to the host.
	URI() string
	// Path is the on-disk location used to name scratch files.
	Path() string
	Text() string
	// Language is the host's language tag, e.g. "go" or "javascript".
	Language() string
}

// Notifier shows short messages to the user.
type Notifier interface {
	Info(ctx context.Context, message string)
	Warn(ctx context.Context, message string)
	Error(ctx context.Context, message string)
}

// DiffViewer presents side-by-side comparisons.
type DiffViewer interface {
	ShowDiff(ctx context.Context, originalPath, modifiedPath, title string) error
	CloseDiff(ctx context.Context, modifiedPath string) error
	// ShowDocument brings the original document back into focus.
	ShowDocument(ctx context.Context, path string) error
}

// Editor commits text to a document.
type Editor interface {
	// ReplaceAndSave replaces the whole document text and persists it.
	ReplaceAndSave(ctx context.Context, doc Document, text string) error
}
