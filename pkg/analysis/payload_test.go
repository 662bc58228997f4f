package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "no marker",
			raw:  "Looks fine to me.",
			want: "",
		},
		{
			name: "empty",
			raw:  "",
			want: "",
		},
		{
			name: "prose before marker is dropped",
			raw:  "Here is the edit:\n\n" + Marker + "\nreturn x\n" + Marker + "\n\n",
			want: Marker + "\nreturn x\n" + Marker,
		},
		{
			name: "four blank lines collapse to one",
			raw:  Marker + "\na\n\n\n\n\nb",
			want: Marker + "\na\n\nb",
		},
		{
			name: "whitespace-only lines count as blank",
			raw:  Marker + "\na\n  \n\t\n \nb",
			want: Marker + "\na\n\nb",
		},
		{
			name: "two blank lines are kept",
			raw:  Marker + "\na\n\n\nb",
			want: Marker + "\na\n\n\nb",
		},
		{
			name: "uses first marker occurrence",
			raw:  "x " + Marker + " y\n" + Marker,
			want: Marker + " y\n" + Marker,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPayload(tt.raw))
		})
	}
}

func TestExtractPayload_Idempotent(t *testing.T) {
	raw := "intro\n" + Marker + "\nfor i := range xs {\n\n\n\n\tsum += xs[i]\n}\n" + Marker + "\n"
	once := ExtractPayload(raw)
	assert.Equal(t, once, ExtractPayload(once))
}

func TestSegments_RoundTrip(t *testing.T) {
	payloads := []string{
		"",
		Marker,
		Marker + "\nFIRST_EDIT\n" + Marker + "\nSECOND_EDIT\n" + Marker,
		"  " + Marker + "\n\tindented\n\n" + Marker + "\n",
		"no markers at all\nsecond line",
		Marker + "\n" + Marker,
	}
	for _, p := range payloads {
		assert.Equal(t, p, RenderSegments(ParseSegments(p)), "payload %q", p)
	}
}

func TestParseSegments(t *testing.T) {
	payload := Marker + "\nFIRST_EDIT\nmore\n" + Marker + "\nSECOND_EDIT\n" + Marker
	segs := ParseSegments(payload)

	kinds := make([]string, len(segs))
	for i, s := range segs {
		kinds[i] = s.Kind.String()
	}
	assert.Equal(t, "context,edit,context,edit,context", strings.Join(kinds, ","))
	assert.Equal(t, "FIRST_EDIT\nmore", segs[1].Text)
	assert.Equal(t, 2, CountEdits(payload))
	assert.Equal(t, 0, CountEdits(""))
}
