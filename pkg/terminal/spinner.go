package terminal

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Spinner shows progress while a remote call is outstanding.
type Spinner struct {
	out       io.Writer
	message   string
	frames    []string
	current   int
	done      chan struct{}
	stopOnce  sync.Once
	mu        sync.Mutex
	style     lipgloss.Style
	startTime time.Time
	running   bool
}

// SpinnerFrames are the default spinner animation frames.
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewSpinner creates a spinner writing to out.
func NewSpinner(out io.Writer, message string) *Spinner {
	return &Spinner{
		out:      out,
		message:  message,
		frames:   SpinnerFrames,
		done:     make(chan struct{}),
		style: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#5599FF"}),
	}
}

// SetMessage updates the spinner message.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Running reports whether the animation is active.
func (s *Spinner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	s.startTime = time.Now()
	s.running = true
	s.mu.Unlock()
	go s.run()
}

func (s *Spinner) run() {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.running {
				s.draw()
			}
			s.mu.Unlock()
		}
	}
}

// draw must be called with mu held.
func (s *Spinner) draw() {
	frame := s.style.Render(s.frames[s.current%len(s.frames)])
	s.current++
	if !s.startTime.IsZero() {
		fmt.Fprintf(s.out, "\r\033[K%s %s (%s)", frame, s.message, time.Since(s.startTime).Round(time.Second))
		return
	}
	fmt.Fprintf(s.out, "\r\033[K%s %s", frame, s.message)
}

// Interrupt clears the spinner line, runs fn, and lets the animation resume
// on the next tick. Use it to print between frames.
func (s *Spinner) Interrupt(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		fmt.Fprint(s.out, "\r\033[K")
	}
	fn()
}

// Elapsed returns the time since the spinner started.
func (s *Spinner) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// Stop stops the spinner and clears the line. Safe to call more than once.
func (s *Spinner) Stop() {
	s.stop("")
}

// StopWithSuccess stops and prints a success line.
func (s *Spinner) StopWithSuccess(message string) {
	mark := lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#008000", Dark: "#55FF55"}).
		Render("✓")
	s.stop(s.final(mark, message))
}

// StopWithError stops and prints a failure line.
func (s *Spinner) StopWithError(message string) {
	mark := lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}).
		Bold(true).
		Render("✗")
	s.stop(s.final(mark, message))
}

func (s *Spinner) final(mark, message string) string {
	elapsed := s.Elapsed().Round(time.Millisecond)
	if elapsed > 0 {
		return fmt.Sprintf("%s %s (%s)", mark, message, elapsed)
	}
	return fmt.Sprintf("%s %s", mark, message)
}

func (s *Spinner) stop(line string) {
	s.stopOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.running = false
		fmt.Fprint(s.out, "\r\033[K")
		if line != "" {
			fmt.Fprintln(s.out, line)
		}
	})
}
