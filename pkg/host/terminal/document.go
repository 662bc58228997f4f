// Package terminal is a host for running optimizations from a shell: the
// document is a file on disk, the comparison view is a unified diff printed
// to the terminal, and the decision comes from a y/N prompt.
package terminal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// FileDocument is a snapshot of a file read from disk.
type FileDocument struct {
	path     string
	text     string
	language string
	mode     os.FileMode
}

// OpenFile reads path. language overrides detection when non-empty.
func OpenFile(path, language string) (*FileDocument, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	text := string(data)
	if language == "" {
		language = DetectLanguage(abs, text)
	}
	return &FileDocument{path: abs, text: text, language: language, mode: info.Mode().Perm()}, nil
}

func (d *FileDocument) URI() string      { return "file://" + filepath.ToSlash(d.path) }
func (d *FileDocument) Path() string     { return d.path }
func (d *FileDocument) Text() string     { return d.text }
func (d *FileDocument) Language() string { return d.language }

// Reload re-reads the file so Text reflects edits made since OpenFile.
func (d *FileDocument) Reload() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return err
	}
	d.text = string(data)
	return nil
}

var languageIDs = map[string]string{
	"c++":         "cpp",
	"c#":          "csharp",
	"objective-c": "objective-c",
	"plaintext":   "plaintext",
}

// DetectLanguage guesses a language tag from the file name, falling back to
// content analysis and then "plaintext".
func DetectLanguage(path, text string) string {
	lexer := lexers.Match(filepath.Base(path))
	if lexer == nil && text != "" {
		lexer = lexers.Analyse(text)
	}
	if lexer == nil {
		return "plaintext"
	}
	name := strings.ToLower(lexer.Config().Name)
	if id, ok := languageIDs[name]; ok {
		return id
	}
	return strings.ReplaceAll(name, " ", "")
}
