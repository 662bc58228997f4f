package session

import (
	"fmt"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/odvcencio/diffapply/pkg/cache"
	"github.com/odvcencio/diffapply/pkg/host"
	"github.com/odvcencio/diffapply/pkg/preview"
)

// State is the controller's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateAnalyzing
	StateAwaitingRewrite
	StatePreviewing
	StateApplying
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnalyzing:
		return "analyzing"
	case StateAwaitingRewrite:
		return "awaiting_rewrite"
	case StatePreviewing:
		return "previewing"
	case StateApplying:
		return "applying"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the result of one controller operation.
type Outcome string

const (
	OutcomePreviewing     Outcome = "previewing"
	OutcomeNoSuggestions  Outcome = "no_suggestions"
	OutcomeAnalysisFailed Outcome = "analysis_failed"
	OutcomeRewriteFailed  Outcome = "rewrite_failed"
	OutcomePreviewFailed  Outcome = "preview_failed"
	OutcomeApplied        Outcome = "applied"
	OutcomeApplyFailed    Outcome = "apply_failed"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeNothingPending Outcome = "nothing_pending"
	OutcomeNoDocument     Outcome = "no_document"
)

// Session is one optimize cycle over one document. The rewritten text is
// only ever applied to the document the session was started for, and only
// while that document still holds Original.
type Session struct {
	ID          string
	Document    host.Document
	Original    string
	Fingerprint cache.Fingerprint
	Diff        string
	Edits       int
	Rewritten   string
	Stats       DiffStats
	Preview     *preview.Handle
	StartedAt   time.Time
	CacheHit    bool
}

// DiffStats counts changed lines between the original and rewritten text.
type DiffStats struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// ComputeStats compares a and b line by line.
func ComputeStats(a, b string) DiffStats {
	matcher := difflib.NewMatcher(difflib.SplitLines(a), difflib.SplitLines(b))
	var stats DiffStats
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'r':
			stats.Removed += op.I2 - op.I1
			stats.Added += op.J2 - op.J1
		case 'd':
			stats.Removed += op.I2 - op.I1
		case 'i':
			stats.Added += op.J2 - op.J1
		}
	}
	return stats
}

func (s DiffStats) String() string {
	return fmt.Sprintf("+%d -%d", s.Added, s.Removed)
}
