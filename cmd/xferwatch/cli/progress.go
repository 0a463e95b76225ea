package cli

import (
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/meigma/xferwatch"
)

// progressMode returns the configured progress mode: "auto", "tty", or "plain".
func progressMode() string {
	mode := viper.GetString("progress")
	switch mode {
	case "auto", "tty", "plain":
		return mode
	default:
		return "auto"
	}
}

// shouldShowProgress returns true if progress bars should be displayed.
func shouldShowProgress() bool {
	mode := progressMode()

	// Plain mode disables progress
	if mode == "plain" {
		return false
	}

	// TTY mode forces progress regardless of terminal detection
	if mode == "tty" {
		return true
	}

	// Auto mode: show progress only if connected to a TTY
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// recordWriter prints records as they arrive. Records come from the
// goroutines running each fetch.
type recordWriter interface {
	Record(rec xferwatch.Record)
}

// newRecordWriter picks the styled writer on a terminal and the plain one
// otherwise.
func newRecordWriter(w io.Writer) recordWriter {
	if shouldShowProgress() {
		return newStyledWriter(w)
	}
	return &plainWriter{w: w}
}

// plainWriter prints one "[key] Label: value" line per record.
type plainWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *plainWriter) Record(rec xferwatch.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%s] %s: %s\n", rec.Key, rec.Label, rec.Value)
}

// styledWriter prints a title per transfer, then styled records with a
// progress bar in front of each throttled progress line.
type styledWriter struct {
	mu     sync.Mutex
	w      io.Writer
	bar    progress.Model
	titled map[string]bool

	title lipgloss.Style
	name  lipgloss.Style
	label lipgloss.Style
	done  lipgloss.Style
}

func newStyledWriter(w io.Writer) *styledWriter {
	return &styledWriter{
		w:      w,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		titled: make(map[string]bool),
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		name:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		label:  lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		done:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
	}
}

func (s *styledWriter) Record(rec xferwatch.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.titled[rec.Key] {
		s.titled[rec.Key] = true
		fmt.Fprintln(s.w, s.title.Render(rec.Title))
	}

	name := s.name.Render(shortName(rec.Key))
	switch {
	case rec.Label == xferwatch.LabelProgress && rec.Percent >= 0:
		pct := min(float64(rec.Percent)/100, 1)
		fmt.Fprintf(s.w, "%s %s %s\n", name, s.bar.ViewAs(pct), rec.Value)
	case rec.Label == xferwatch.LabelCompleted:
		fmt.Fprintf(s.w, "%s %s %s\n", name, s.done.Render(rec.Label+":"), rec.Value)
	default:
		fmt.Fprintf(s.w, "%s %s %s\n", name, s.label.Render(rec.Label+":"), rec.Value)
	}
}

// shortName returns the last path element of a transfer key.
func shortName(key string) string {
	base := path.Base(key)
	if base == "." || base == "/" {
		return key
	}
	return base
}
