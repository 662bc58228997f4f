package analysis

import "strings"

// ExtractPayload returns the usable part of a suggestion reply: everything
// from the first Marker to the end, trimmed, with runs of three or more
// blank lines collapsed to one. A reply without the marker yields "".
func ExtractPayload(raw string) string {
	idx := strings.Index(raw, Marker)
	if idx < 0 {
		return ""
	}
	return collapseBlankRuns(strings.TrimSpace(raw[idx:]))
}

func collapseBlankRuns(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	run := 0
	flush := func() {
		switch {
		case run >= 3:
			out = append(out, "")
		case run > 0:
			for i := 0; i < run; i++ {
				out = append(out, "")
			}
		}
		run = 0
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			run++
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()
	return strings.Join(out, "\n")
}

// SegmentKind distinguishes elided original code from literal edits.
type SegmentKind int

const (
	SegmentContext SegmentKind = iota
	SegmentEdit
)

func (k SegmentKind) String() string {
	if k == SegmentContext {
		return "context"
	}
	return "edit"
}

// Segment is one piece of a suggestion payload. Context segments hold a
// single marker line exactly as written; edit segments hold the literal
// lines between markers.
type Segment struct {
	Kind SegmentKind
	Text string
}

// ParseSegments splits a payload into alternating context and edit
// segments. RenderSegments(ParseSegments(p)) == p for every p.
func ParseSegments(payload string) []Segment {
	if payload == "" {
		return nil
	}
	var (
		segments []Segment
		edit     []string
		inEdit   bool
	)
	flushEdit := func() {
		if inEdit {
			segments = append(segments, Segment{Kind: SegmentEdit, Text: strings.Join(edit, "\n")})
		}
		edit = nil
		inEdit = false
	}
	for _, line := range strings.Split(payload, "\n") {
		if strings.TrimSpace(line) == Marker {
			flushEdit()
			segments = append(segments, Segment{Kind: SegmentContext, Text: line})
			continue
		}
		edit = append(edit, line)
		inEdit = true
	}
	flushEdit()
	return segments
}

// RenderSegments flattens segments back into marker form.
func RenderSegments(segments []Segment) string {
	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = seg.Text
	}
	return strings.Join(parts, "\n")
}

// CountEdits reports how many edit blocks a payload carries.
func CountEdits(payload string) int {
	n := 0
	for _, seg := range ParseSegments(payload) {
		if seg.Kind == SegmentEdit && strings.TrimSpace(seg.Text) != "" {
			n++
		}
	}
	return n
}
