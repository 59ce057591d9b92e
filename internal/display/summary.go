// Package display renders run progress and results for the terminal.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/forkrunner/internal/orchestrator/progress"
	"github.com/Iron-Ham/forkrunner/internal/runner"
	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// PoolRow is the display state of one pool.
type PoolRow struct {
	Name           string  `json:"name"`
	Devices        int     `json:"devices"`
	Planned        int     `json:"planned"`
	Completed      int     `json:"completed"`
	FailedTests    int     `json:"failed_tests"`
	FailedTestRuns int     `json:"failed_test_runs"`
	Requeued       int     `json:"requeued"`
	Progress       float64 `json:"progress"`
}

// Summary is the display state of a run, read from the reporter.
type Summary struct {
	ElapsedMillis   int64     `json:"elapsed_ms"`
	OverallProgress float64   `json:"overall_progress"`
	FailedTests     int       `json:"failed_tests"`
	FailedTestRuns  int       `json:"failed_test_runs"`
	RetriesGranted  int       `json:"retries_granted"`
	RetriesLeft     int       `json:"retries_left"`
	Pools           []PoolRow `json:"pools"`
}

// Snapshot reads the current state of r.
func Snapshot(r *progress.Reporter) Summary {
	s := Summary{
		ElapsedMillis:   r.ElapsedMillis(),
		OverallProgress: r.OverallProgress(),
		FailedTests:     r.TotalFailedTests(),
		FailedTestRuns:  r.TotalFailedTestRuns(),
		RetriesGranted:  r.RetriesGranted(),
		RetriesLeft:     r.RemainingRetries(),
	}
	for _, ps := range r.PoolSummaries() {
		s.Pools = append(s.Pools, PoolRow{
			Name:           ps.Pool.Name,
			Devices:        len(ps.Pool.Devices),
			Planned:        ps.Counts.Planned,
			Completed:      ps.Counts.Completed,
			FailedTests:    ps.Counts.FailedTests,
			FailedTestRuns: ps.Counts.FailedTestRuns,
			Requeued:       ps.Counts.Requeued,
			Progress:       ps.Progress,
		})
	}
	return s
}

// Options controls rendering.
type Options struct {
	BarWidth  int
	ShowPools bool
}

// View renders summaries as styled text.
type View struct {
	opts Options
	bar  progressbar.Model
}

// NewView creates a view rendering bars opts.BarWidth columns wide.
func NewView(opts Options) *View {
	if opts.BarWidth <= 0 {
		opts.BarWidth = 30
	}
	return &View{
		opts: opts,
		bar:  progressbar.New(progressbar.WithDefaultGradient(), progressbar.WithWidth(opts.BarWidth)),
	}
}

// Render renders the run header followed by a row per pool when enabled.
func (v *View) Render(s Summary) string {
	var b strings.Builder

	b.WriteString(Title.Render("forkrunner"))
	b.WriteString(Muted.Render(fmt.Sprintf("  %s elapsed", FormatDuration(time.Duration(s.ElapsedMillis)*time.Millisecond))))
	b.WriteString("\n")

	b.WriteString(Label.Render("Overall  "))
	b.WriteString(v.bar.ViewAs(clamp(s.OverallProgress)))
	b.WriteString("\n")

	b.WriteString(Label.Render("Failed tests: "))
	b.WriteString(countStyle(s.FailedTests, Error).Render(fmt.Sprintf("%d", s.FailedTests)))
	b.WriteString(Label.Render("  Failed runs: "))
	b.WriteString(countStyle(s.FailedTestRuns, Error).Render(fmt.Sprintf("%d", s.FailedTestRuns)))
	b.WriteString(Label.Render("  Retries: "))
	b.WriteString(countStyle(s.RetriesGranted, Warning).Render(fmt.Sprintf("%d used", s.RetriesGranted)))
	b.WriteString(Label.Render(fmt.Sprintf(", %d left", s.RetriesLeft)))

	if v.opts.ShowPools && len(s.Pools) > 0 {
		b.WriteString("\n\n")
		for i, row := range s.Pools {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(v.renderPool(row))
		}
	}

	return Box.Render(b.String())
}

func (v *View) renderPool(row PoolRow) string {
	var b strings.Builder
	b.WriteString(PoolName.Render(truncate(row.Name, 15)))
	b.WriteString(v.bar.ViewAs(clamp(row.Progress)))
	b.WriteString(Muted.Render(fmt.Sprintf("  %d/%d", row.Completed, row.Planned)))
	if failed := row.FailedTests + row.FailedTestRuns; failed > 0 {
		b.WriteString(Error.Render(fmt.Sprintf("  %d failed", failed)))
	}
	if row.Requeued > 0 {
		b.WriteString(Warning.Render(fmt.Sprintf("  %d retried", row.Requeued)))
	}
	return b.String()
}

// RenderResult lists the test cases that ended failing, or a success line.
func (v *View) RenderResult(result *runner.Result) string {
	failed := result.Failed()
	if len(failed) == 0 {
		return Success.Render(fmt.Sprintf("✓ %d tests passed", len(result.Tests)))
	}

	var b strings.Builder
	b.WriteString(Error.Render(fmt.Sprintf("✗ %d of %d tests failed", len(failed), len(result.Tests))))
	for _, t := range failed {
		b.WriteString("\n  ")
		b.WriteString(Muted.Render(fmt.Sprintf("[%s] ", t.Pool)))
		b.WriteString(t.TestCase.String())
		b.WriteString(Muted.Render(fmt.Sprintf(" (%s after %d attempts)", t.Outcome, t.Attempts)))
	}
	return b.String()
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func clamp(p float64) float64 {
	return min(max(p, 0), 1)
}

// truncate shortens s to maxWidth terminal columns, keeping escape sequences intact.
func truncate(s string, maxWidth int) string {
	if maxWidth <= 3 || lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}
