// Package progress renders the live progress of a sync run.
package progress

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"barsync/internal/domain"
	"barsync/internal/gather"
)

var (
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	countStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

var (
	_ gather.ProgressSink = (*Terminal)(nil)
	_ gather.ProgressSink = (*Log)(nil)
	_ gather.ProgressSink = Nop{}
	_ gather.ProgressSink = Multi(nil)
)

// ---------------------------------------------------------------------------
// Terminal
// ---------------------------------------------------------------------------

// Terminal draws a single self-overwriting progress line.
type Terminal struct {
	mu       sync.Mutex
	w        io.Writer
	bar      progress.Model
	interval time.Duration
	last     time.Time
	max      int // longest line printed, for clearing
}

// NewTerminal creates a Terminal sink writing to w. Redraws are throttled
// to one per interval; the final update always draws.
func NewTerminal(w io.Writer, interval time.Duration) *Terminal {
	return &Terminal{
		w:        w,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		interval: interval,
	}
}

// Update redraws the progress line.
func (t *Terminal) Update(p domain.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if p.Done < p.Total && now.Sub(t.last) < t.interval {
		return
	}
	t.last = now
	t.print(t.line(p) + "\r")
}

// Done prints the final summary and moves to the next line.
func (t *Terminal) Done(s domain.Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.print(t.line(domain.Progress{
		Total:     s.Total,
		Done:      s.Succeeded + s.Failed,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
	}) + "\r")
	fmt.Fprintln(t.w)
	fmt.Fprintln(t.w, dimStyle.Render(fmt.Sprintf("last trade date %s, elapsed %s",
		s.LastTradeDate.Format(domain.DateLayout),
		s.Finished.Sub(s.Started).Round(time.Second),
	)))
}

func (t *Terminal) line(p domain.Progress) string {
	pct := 1.0
	if p.Total > 0 {
		pct = float64(p.Done) / float64(p.Total)
	}
	return fmt.Sprintf("%s %s  %s  %s",
		t.bar.ViewAs(pct),
		countStyle.Render(fmt.Sprintf("%d/%d", p.Done, p.Total)),
		okStyle.Render(fmt.Sprintf("ok %d", p.Succeeded)),
		failStyle.Render(fmt.Sprintf("failed %d", p.Failed)),
	)
}

// print writes msg padded with spaces to cover the previous line.
func (t *Terminal) print(msg string) {
	n := lipgloss.Width(msg)
	fmt.Fprint(t.w, msg+strings.Repeat(" ", max(0, t.max-n)))
	t.max = max(t.max, n)
}

// ---------------------------------------------------------------------------
// Log
// ---------------------------------------------------------------------------

// Log reports progress through slog at every tenth of the run.
type Log struct {
	mu   sync.Mutex
	log  *slog.Logger
	step int // last reported tenth
}

// NewLog creates a Log sink. A nil logger uses slog.Default.
func NewLog(log *slog.Logger) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{log: log.With("component", "progress")}
}

// Update logs when the run crosses a new tenth.
func (l *Log) Update(p domain.Progress) {
	if p.Total <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	step := p.Done * 10 / p.Total
	if step <= l.step {
		return
	}
	l.step = step
	l.log.Info("progress",
		"done", p.Done,
		"total", p.Total,
		"succeeded", p.Succeeded,
		"failed", p.Failed,
	)
}

// Done is a no-op; the run summary is logged by the aggregator.
func (l *Log) Done(domain.Summary) {}

// ---------------------------------------------------------------------------
// Combinators
// ---------------------------------------------------------------------------

// Nop discards everything.
type Nop struct{}

func (Nop) Update(domain.Progress) {}
func (Nop) Done(domain.Summary)    {}

// Multi forwards to every sink in order.
type Multi []gather.ProgressSink

func (m Multi) Update(p domain.Progress) {
	for _, s := range m {
		s.Update(p)
	}
}

func (m Multi) Done(sum domain.Summary) {
	for _, s := range m {
		s.Done(sum)
	}
}
