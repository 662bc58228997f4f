package terminal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/diffapply/pkg/host/hosttest"
	termui "github.com/odvcencio/diffapply/pkg/terminal"
)

func writeFile(t *testing.T, dir, name, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	return path
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.go", "package main\n", 0o644)

	doc, err := OpenFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, path, doc.Path())
	assert.Equal(t, "package main\n", doc.Text())
	assert.Equal(t, "go", doc.Language())
	assert.True(t, strings.HasPrefix(doc.URI(), "file://"))

	override, err := OpenFile(path, "golang")
	require.NoError(t, err)
	assert.Equal(t, "golang", override.Language())

	_, err = OpenFile(dir, "")
	assert.Error(t, err)
	_, err = OpenFile(filepath.Join(dir, "missing.go"), "")
	assert.Error(t, err)
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a.go", "go"},
		{"a.js", "javascript"},
		{"a.py", "python"},
		{"a.cpp", "cpp"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.path, ""))
		})
	}
	assert.Equal(t, "plaintext", DetectLanguage("noext", ""))
}

func TestFileDocument_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "one", 0o644)
	doc, err := OpenFile(path, "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("two"), 0o644))
	require.NoError(t, doc.Reload())
	assert.Equal(t, "two", doc.Text())
}

func TestEditor_ReplaceAndSave(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run.sh", "echo slow\n", 0o755)
	doc, err := OpenFile(path, "")
	require.NoError(t, err)

	require.NoError(t, Editor{}.ReplaceAndSave(context.Background(), doc, "echo fast\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "echo fast\n", string(data))
	assert.Equal(t, "echo fast\n", doc.Text())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestEditor_ReplaceAndSaveOtherDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x.txt", "a", 0o600)
	doc := hosttest.NewDocument(path, "a", "")

	require.NoError(t, Editor{}.ReplaceAndSave(context.Background(), doc, "b"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

func TestEditor_MissingDirectory(t *testing.T) {
	doc := hosttest.NewDocument(filepath.Join(t.TempDir(), "gone", "x.txt"), "", "")
	assert.Error(t, Editor{}.ReplaceAndSave(context.Background(), doc, "b"))
}

func TestDiffViewer_ShowDiff(t *testing.T) {
	dir := t.TempDir()
	orig := writeFile(t, dir, "f.js", "a\nslow()\nc\n", 0o644)
	scratch := writeFile(t, dir, "optimized_1_x_f.js", "a\nfast()\nc\n", 0o600)

	var out bytes.Buffer
	v := NewDiffViewer(termui.NewWithIO(&out, strings.NewReader("")), 3)
	require.NoError(t, v.ShowDiff(context.Background(), orig, scratch, "f.js ↔ Optimized"))

	got := out.String()
	assert.Contains(t, got, "f.js ↔ Optimized")
	assert.Contains(t, got, "-slow()")
	assert.Contains(t, got, "+fast()")
	assert.Contains(t, got, "+++ f.js (optimized)")

	assert.Error(t, v.ShowDiff(context.Background(), orig, filepath.Join(dir, "missing"), "t"))
	assert.NoError(t, v.CloseDiff(context.Background(), scratch))
	assert.NoError(t, v.ShowDocument(context.Background(), orig))
}

func TestUnifiedDiff_NoChanges(t *testing.T) {
	diff, err := UnifiedDiff("a", "b", "same\n", "same\n", 3)
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestNotifier(t *testing.T) {
	var out bytes.Buffer
	n := NewNotifier(termui.NewWithIO(&out, strings.NewReader("")))
	ctx := context.Background()

	n.Info(ctx, "hello")
	n.Warn(ctx, "careful")
	n.Error(ctx, "broken")

	got := out.String()
	assert.Contains(t, got, "hello")
	assert.Contains(t, got, "warning: careful")
	assert.Contains(t, got, "error: broken")
}
