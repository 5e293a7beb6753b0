package reporter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/trajrun/internal/task"
)

// TextReporter writes human-readable batch progress to a writer.
type TextReporter struct {
	w     io.Writer
	color bool
}

// NewTextReporter creates a text reporter.
// If w is nil, defaults to os.Stdout.
// color enables lipgloss styling.
func NewTextReporter(w io.Writer, color bool) *TextReporter {
	if w == nil {
		w = os.Stdout
	}
	return &TextReporter{w: w, color: color}
}

// PrintHeader writes the initial banner.
func (r *TextReporter) PrintHeader(total int, s task.BatchSettings) {
	fmt.Fprintln(r.w, r.style(headerStyle, fmt.Sprintf("trajrun — %d tasks from %s", total, s.TasksFile)))
	fmt.Fprintf(r.w, "%s\n\n", r.style(dimStyle, fmt.Sprintf("model %s  endpoint %s  max steps %d  delay %s",
		s.Model, s.Endpoint, s.MaxSteps, s.InterTaskDelay)))
}

// PrintStart announces a record just before its agent is spawned.
func (r *TextReporter) PrintStart(inv *task.Invocation) {
	fmt.Fprintln(r.w, r.style(runStyle, fmt.Sprintf("▶ Task %d: %s", inv.Index, inv.Task)))
	fmt.Fprintf(r.w, "  url:    %s\n", inv.URL)
	fmt.Fprintf(r.w, "  output: %s\n", inv.Output)
}

// PrintDone announces that a record finished, whatever its outcome.
func (r *TextReporter) PrintDone(res *task.TaskResult) {
	dur := res.Duration.Truncate(time.Second)
	switch res.State {
	case task.StateCompleted:
		fmt.Fprintln(r.w, r.style(doneStyle, fmt.Sprintf("✓ Task %d completed in %s", res.Index, dur)))
	case task.StateRateLimited:
		fmt.Fprintln(r.w, r.style(rlStyle, fmt.Sprintf("⏸ Task %d finished rate limited in %s%s", res.Index, dur, resetInfo(res.ResetsAt))))
	case task.StateSkipped:
		fmt.Fprintln(r.w, r.style(rlStyle, fmt.Sprintf("⊘ Task %d skipped: %s", res.Index, res.Error)))
		return
	default:
		msg := res.Error
		if res.ConnectivityError != "" {
			msg = res.ConnectivityError
		}
		fmt.Fprintln(r.w, r.style(failedStyle, fmt.Sprintf("✗ Task %d failed in %s: %s", res.Index, dur, msg)))
	}
	fmt.Fprintln(r.w)
}

// PrintSkippedByFilter writes the records left out by --only, --missing or --resume.
func (r *TextReporter) PrintSkippedByFilter(skipped []*task.TaskResult) {
	if len(skipped) == 0 {
		return
	}
	fmt.Fprintln(r.w, r.style(dimStyle, "Skipped by filter:"))
	for _, res := range skipped {
		fmt.Fprintln(r.w, r.style(dimStyle, fmt.Sprintf("  %-18s  %s", task.OutputName(res.Index), res.Error)))
	}
	fmt.Fprintln(r.w)
}

// PrintNotStarted writes the records the batch never reached because it was
// interrupted or stopped early.
func (r *TextReporter) PrintNotStarted(results []*task.TaskResult) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(r.w, r.style(rlStyle, fmt.Sprintf("Not started (%s):", results[0].Error)))
	for _, res := range results {
		fmt.Fprintln(r.w, r.style(dimStyle, "  "+task.OutputName(res.Index)))
	}
	fmt.Fprintln(r.w)
}

// PrintSummary writes the final summary line and the completion notice.
func (r *TextReporter) PrintSummary(report *task.RunReport) {
	fmt.Fprintf(r.w, "\n%s\n", r.style(runStyle, "--- Summary ---"))
	parts := []string{
		fmt.Sprintf("Total: %d", report.TotalTasks),
		r.style(doneStyle, fmt.Sprintf("Completed: %d", report.Completed)),
		r.style(failedStyle, fmt.Sprintf("Failed: %d", report.Failed)),
		r.style(rlStyle, fmt.Sprintf("Skipped: %d", report.Skipped)),
	}
	if report.RateLimited > 0 {
		parts = append(parts, r.style(rlStyle, fmt.Sprintf("Rate limited: %d", report.RateLimited)))
	}
	parts = append(parts, fmt.Sprintf("Duration: %s", report.TotalDuration.Truncate(time.Second)))
	fmt.Fprintln(r.w, strings.Join(parts, "  "))

	if report.Interrupted {
		fmt.Fprintln(r.w, r.style(failedStyle, "Batch interrupted"))
		return
	}
	fmt.Fprintln(r.w, r.style(headerStyle, "All tasks complete"))
}

// PrintDryRun writes the invocation plan without running anything.
func (r *TextReporter) PrintDryRun(entries []task.Entry, s task.BatchSettings, argv func(*task.Invocation) []string) {
	fmt.Fprint(r.w, "Execution plan (dry-run):\n\n")
	for _, e := range entries {
		if e.Malformed() {
			fmt.Fprintln(r.w, r.style(rlStyle, fmt.Sprintf("  %d. malformed: %v", e.Index, e.Err)))
			continue
		}
		inv := &task.Invocation{
			Index:    e.Index,
			URL:      e.Record.URL,
			Task:     e.Record.Task,
			Model:    s.Model,
			Endpoint: s.Endpoint,
			MaxSteps: s.MaxSteps,
			Output:   task.OutputPath(s.OutputDir, e.Index),
		}
		fmt.Fprintf(r.w, "  %d. %s\n", e.Index, truncate(oneLine(e.Record.Task), 100))
		fmt.Fprintf(r.w, "     %s\n\n", strings.Join(argv(inv), " "))
	}
}

// PrintStatus writes one line per row of an output directory snapshot.
func (r *TextReporter) PrintStatus(snap *Snapshot) {
	fmt.Fprintf(r.w, "%s\n\n", r.style(headerStyle, fmt.Sprintf("%s — %d records", snap.OutputDir, len(snap.Rows))))
	fmt.Fprintf(r.w, "  %-5s %-18s %-12s %6s  %-8s %s\n", "INDEX", "OUTPUT", "STATE", "STEPS", "FINISHED", "TASK")
	for _, row := range snap.Rows {
		steps, finished := "-", "-"
		if row.Summary != nil {
			steps = fmt.Sprintf("%d", row.Summary.Steps)
			finished = fmt.Sprintf("%v", row.Summary.Finished)
		}
		line := fmt.Sprintf("  %-5d %-18s %-12s %6s  %-8s %s",
			row.Index, task.OutputName(row.Index), row.Label(), steps, finished, truncate(oneLine(row.Task), 50))
		fmt.Fprintln(r.w, r.style(rowStyle(row), line))
	}
	fmt.Fprintln(r.w)

	counts := snap.Counts()
	fmt.Fprintf(r.w, "outputs present: %d/%d  failed: %d  running: %d\n",
		counts.Present, len(snap.Rows), counts.Failed, counts.Running)
}

func (r *TextReporter) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

func resetInfo(at time.Time) string {
	if at.IsZero() {
		return ""
	}
	if remaining := time.Until(at).Truncate(time.Second); remaining > 0 {
		return fmt.Sprintf(" (resets in %s)", remaining)
	}
	return ""
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func rowStyle(row Row) lipgloss.Style {
	switch row.Label() {
	case "done":
		return doneStyle
	case "running":
		return runStyle
	case "failed", "interrupted", "malformed":
		return failedStyle
	default:
		return dimStyle
	}
}
