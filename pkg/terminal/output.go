// Package terminal provides styled terminal output: colored status lines,
// markdown via glamour, unified diff blocks and simple prompts.
package terminal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Writer provides styled terminal output.
type Writer struct {
	out      io.Writer
	in       *bufio.Reader
	renderer *glamour.TermRenderer
	mu       sync.Mutex
	inMu     sync.Mutex

	errorStyle  lipgloss.Style
	warnStyle   lipgloss.Style
	infoStyle   lipgloss.Style
	dimStyle    lipgloss.Style
	boldStyle   lipgloss.Style
	headerStyle lipgloss.Style
	addStyle    lipgloss.Style
	delStyle    lipgloss.Style
	hunkStyle   lipgloss.Style
}

// New creates a Writer on stdout reading answers from stdin.
func New() *Writer {
	return NewWithIO(os.Stdout, os.Stdin)
}

// NewWithIO creates a Writer with custom output and input.
func NewWithIO(out io.Writer, in io.Reader) *Writer {
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(min(TerminalWidth(), 100)),
	)

	// lipgloss resolves AdaptiveColor against the detected profile
	_ = termenv.ColorProfile()

	return &Writer{
		out:      out,
		in:       bufio.NewReader(in),
		renderer: renderer,

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}).
			Bold(true),
		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#FFAA00"}),
		infoStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#5599FF"}),
		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),
		boldStyle: lipgloss.NewStyle().Bold(true),
		headerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#FFFFFF"}).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#CCCCCC", Dark: "#444444"}),
		addStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#008000", Dark: "#55FF55"}),
		delStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}),
		hunkStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#8B008B", Dark: "#FF79C6"}),
	}
}

// Out returns the underlying output.
func (w *Writer) Out() io.Writer {
	return w.out
}

// Print writes text to the terminal.
func (w *Writer) Print(format string, args ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}

// Println writes text with a newline.
func (w *Writer) Println(format string, args ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, format+"\n", args...)
}

// Markdown renders markdown with syntax highlighting.
func (w *Writer) Markdown(md string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.renderer == nil {
		fmt.Fprintln(w.out, md)
		return nil
	}

	rendered, err := w.renderer.Render(md)
	if err != nil {
		fmt.Fprintln(w.out, md)
		return err
	}

	fmt.Fprint(w.out, rendered)
	return nil
}

// Error prints an error message in red.
func (w *Writer) Error(format string, args ...interface{}) {
	w.styled(w.errorStyle, "error: ", format, args...)
}

// Warn prints a warning message in yellow.
func (w *Writer) Warn(format string, args ...interface{}) {
	w.styled(w.warnStyle, "warning: ", format, args...)
}

// Info prints an info message in blue.
func (w *Writer) Info(format string, args ...interface{}) {
	w.styled(w.infoStyle, "", format, args...)
}

// Dim prints dimmed/secondary text.
func (w *Writer) Dim(format string, args ...interface{}) {
	w.styled(w.dimStyle, "", format, args...)
}

func (w *Writer) styled(style lipgloss.Style, prefix, format string, args ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, style.Render(prefix+fmt.Sprintf(format, args...)))
}

// Header prints a section header.
func (w *Writer) Header(title string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, w.headerStyle.Render(title))
}

// CodeBlock prints a fenced code block highlighted for language.
func (w *Writer) CodeBlock(code, language string) error {
	return w.Markdown(fmt.Sprintf("```%s\n%s\n```", language, code))
}

// Diff prints a unified diff, coloring added, removed and hunk lines.
func (w *Writer) Diff(unified string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, line := range strings.Split(strings.TrimRight(unified, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprintln(w.out, w.boldStyle.Render(line))
		case strings.HasPrefix(line, "@@"):
			fmt.Fprintln(w.out, w.hunkStyle.Render(line))
		case strings.HasPrefix(line, "+"):
			fmt.Fprintln(w.out, w.addStyle.Render(line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprintln(w.out, w.delStyle.Render(line))
		default:
			fmt.Fprintln(w.out, line)
		}
	}
}

// Divider prints a horizontal divider.
func (w *Writer) Divider() {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, w.dimStyle.Render(strings.Repeat("─", 60)))
}

// TerminalWidth returns the stdout width, defaulting to 80.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width == 0 {
		return 80
	}
	return width
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Confirm prompts for yes/no confirmation. End of input counts as the default.
// The output lock is released while waiting for the answer.
func (w *Writer) Confirm(prompt string, defaultYes bool) bool {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}

	w.mu.Lock()
	fmt.Fprintf(w.out, "%s [%s]: ", prompt, hint)
	w.mu.Unlock()

	w.inMu.Lock()
	input, _ := w.in.ReadString('\n')
	w.inMu.Unlock()
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultYes
	}
	return input == "y" || input == "yes"
}
