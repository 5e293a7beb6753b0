package reporter

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type tickMsg time.Time

type changeMsg struct{}

// WatchModel is the Bubbletea model for the trajectories live view.
type WatchModel struct {
	collect func() *Snapshot
	changes <-chan struct{}
	cancel  func()

	snap         *Snapshot
	scrollOffset int
	paused       bool
	frame        int
	width        int
	height       int
}

// NewWatchModel creates a watch model. collect is called on every change
// signalled on changes; cancel stops the watcher when the user quits.
func NewWatchModel(collect func() *Snapshot, changes <-chan struct{}, cancel func()) WatchModel {
	return WatchModel{
		collect: collect,
		changes: changes,
		cancel:  cancel,
		snap:    collect(),
	}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitForChange(m.changes))
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changeMsg{}
	}
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit

		case "p", " ":
			m.paused = !m.paused
			if !m.paused {
				m.snap = m.collect()
			}

		case "j", "down":
			m.scrollDown(1)

		case "k", "up":
			m.scrollUp(1)

		case "g", "home":
			m.scrollOffset = 0

		case "G", "end":
			m.scrollOffset = m.maxScroll()

		case "pgdown":
			m.scrollDown(m.visibleRows())

		case "pgup":
			m.scrollUp(m.visibleRows())
		}

	case changeMsg:
		if !m.paused {
			m.snap = m.collect()
		}
		return m, waitForChange(m.changes)

	case tickMsg:
		m.frame++
		return m, tickCmd()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

func (m *WatchModel) scrollDown(n int) {
	m.scrollOffset += n
	if max := m.maxScroll(); m.scrollOffset > max {
		m.scrollOffset = max
	}
}

func (m *WatchModel) scrollUp(n int) {
	m.scrollOffset -= n
	if m.scrollOffset < 0 {
		m.scrollOffset = 0
	}
}

func (m WatchModel) visibleRows() int {
	// header(2) + progress(1) + blank(1) + help(1) = 5 reserved lines
	avail := m.height - 5
	if avail < 3 {
		return 3
	}
	return avail
}

func (m WatchModel) maxScroll() int {
	total := len(m.snap.Rows)
	vis := m.visibleRows()
	if total <= vis {
		return 0
	}
	return total - vis
}

// View implements tea.Model.
func (m WatchModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	header := fmt.Sprintf("trajrun watch — %s", m.snap.OutputDir)
	if m.paused {
		header += "  " + pauseStyle.Render("⏸ PAUSED")
	}
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(m.activeLine())
	b.WriteString("\n")
	b.WriteString(m.progressLine())
	b.WriteString("\n")

	lines := m.buildRowLines()
	vis := m.visibleRows()
	start := m.scrollOffset
	if start > len(lines) {
		start = len(lines)
	}
	end := start + vis
	if end > len(lines) {
		end = len(lines)
	}

	if start > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  ↑ %d more above", start)))
		b.WriteString("\n")
	}
	for i := start; i < end; i++ {
		b.WriteString(lines[i])
		b.WriteString("\n")
	}
	if end < len(lines) {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  ↓ %d more below", len(lines)-end)))
		b.WriteString("\n")
	}

	used := 3 + (end - start) + 1
	if start > 0 {
		used++
	}
	if end < len(lines) {
		used++
	}
	for i := used; i < m.height-1; i++ {
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("  ↑↓/jk: scroll  g/G: top/bottom  p: pause  q: quit"))
	return b.String()
}

func (m WatchModel) activeLine() string {
	if m.snap.Active == nil {
		return dimStyle.Render("  no batch running")
	}
	elapsed := time.Since(m.snap.Active.StartedAt).Truncate(time.Second)
	return runStyle.Render(fmt.Sprintf("  run %s (pid %d) for %s", m.snap.Active.RunID, m.snap.Active.PID, elapsed))
}

func (m WatchModel) progressLine() string {
	c := m.snap.Counts()
	parts := []string{doneStyle.Render(fmt.Sprintf("%d/%d outputs", c.Present, len(m.snap.Rows)))}
	if c.Running > 0 {
		parts = append(parts, runStyle.Render(fmt.Sprintf("%d running", c.Running)))
	}
	if c.Failed > 0 {
		parts = append(parts, failedStyle.Render(fmt.Sprintf("%d failed", c.Failed)))
	}
	if c.Pending > 0 {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("%d pending", c.Pending)))
	}
	return "  " + strings.Join(parts, "  ")
}

// buildRowLines orders rows running, failed, pending, done; index order within.
func (m WatchModel) buildRowLines() []string {
	spinner := spinnerChars[m.frame%len(spinnerChars)]
	var running, failed, pending, done []string
	for _, row := range m.snap.Rows {
		line := formatRow(row, spinner)
		switch row.Label() {
		case "running":
			running = append(running, line)
		case "failed", "interrupted", "malformed":
			failed = append(failed, line)
		case "done":
			done = append(done, line)
		default:
			pending = append(pending, line)
		}
	}
	lines := append(running, failed...)
	lines = append(lines, pending...)
	return append(lines, done...)
}

func formatRow(row Row, spinner string) string {
	name := fmt.Sprintf("output_%d", row.Index)
	title := truncate(oneLine(row.Task), 40)
	switch row.Label() {
	case "running":
		elapsed := "-"
		if !row.StartedAt.IsZero() {
			elapsed = time.Since(row.StartedAt).Truncate(time.Second).String()
		}
		return runStyle.Render(fmt.Sprintf("  %s %-11s %-14s %-42s %s", spinner, "running", name, title, elapsed))
	case "failed", "interrupted", "malformed":
		msg := row.Error
		if row.Malformed != "" {
			msg = row.Malformed
		}
		return failedStyle.Render(fmt.Sprintf("  ✗ %-11s %-14s %-42s %s", row.Label(), name, title, truncate(msg, 40)))
	case "done":
		info := ""
		if row.Summary != nil {
			info = fmt.Sprintf("%d steps", row.Summary.Steps)
			if row.Summary.Finished {
				info += ", finished"
			}
			if row.Summary.Errors > 0 {
				info += fmt.Sprintf(", %d errors", row.Summary.Errors)
			}
		}
		return doneStyle.Render(fmt.Sprintf("  ✓ %-11s %-14s %-42s %s", "done", name, title, info))
	default:
		return dimStyle.Render(fmt.Sprintf("  ─ %-11s %-14s %s", "pending", name, title))
	}
}
