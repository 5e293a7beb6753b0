package reporter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ppiankov/trajrun/internal/runner"
	"github.com/ppiankov/trajrun/internal/state"
	"github.com/ppiankov/trajrun/internal/task"
)

// debounce coalesces bursts of writes; the agent rewrites its output file
// once per run but the state file changes twice per record.
const debounce = 200 * time.Millisecond

// Row is the observed state of one index in an output directory.
type Row struct {
	Index     int
	URL       string
	Task      string
	Malformed string // decode error from the tasks file, if any
	Present   bool   // output file exists
	Status    string // state.Status* value, empty when untracked
	Error     string
	StartedAt time.Time
	Summary   *runner.TrajectorySummary
}

// Label is the one-word state shown for the row.
func (r Row) Label() string {
	switch {
	case r.Malformed != "":
		return "malformed"
	case r.Status == state.StatusInProgress:
		return "running"
	case r.Status == state.StatusFailed:
		return "failed"
	case r.Status == state.StatusInterrupted:
		return "interrupted"
	case r.Present:
		return "done"
	default:
		return "pending"
	}
}

// Snapshot is a point-in-time view of an output directory.
type Snapshot struct {
	OutputDir string
	Rows      []Row
	Active    *runner.LockInfo // batch currently holding the directory, if any
}

// Counts summarizes a snapshot.
type Counts struct {
	Present, Running, Failed, Pending int
}

// Counts tallies rows by label.
func (s *Snapshot) Counts() Counts {
	var c Counts
	for _, r := range s.Rows {
		if r.Present {
			c.Present++
		}
		switch r.Label() {
		case "running":
			c.Running++
		case "failed", "interrupted", "malformed":
			c.Failed++
		case "pending":
			c.Pending++
		}
	}
	return c
}

// Collect builds a snapshot of outputDir. Rows come from entries when given;
// otherwise from output files and state entries found on disk.
// Trajectory files are read best effort.
func Collect(outputDir, statePath string, entries []task.Entry) *Snapshot {
	snap := &Snapshot{OutputDir: outputDir}
	if info, err := runner.ReadLock(outputDir); err == nil {
		snap.Active = info
	}
	tracked := state.Load(statePath).Entries()

	rows := make(map[int]*Row)
	for _, e := range entries {
		row := &Row{Index: e.Index, URL: e.Record.URL, Task: e.Record.Task}
		if e.Err != nil {
			row.Malformed = e.Err.Error()
		}
		rows[e.Index] = row
	}
	if entries == nil {
		for _, idx := range discoverIndices(outputDir, tracked) {
			rows[idx] = &Row{Index: idx}
		}
	}

	for idx, row := range rows {
		name := task.OutputName(idx)
		if st, ok := tracked[name]; ok {
			row.Status = st.Status
			row.Error = st.Error
			row.StartedAt = st.StartedAt
			if row.URL == "" {
				row.URL, row.Task = st.URL, st.Task
			}
		}
		path := filepath.Join(outputDir, name)
		if _, err := os.Stat(path); err == nil {
			row.Present = true
			if sum, err := runner.ReadTrajectory(path); err == nil {
				row.Summary = sum
				if row.URL == "" {
					row.URL, row.Task = sum.URL, sum.Task
				}
			} else {
				slog.Debug("unreadable trajectory", "path", path, "error", err)
			}
		}
	}

	for _, row := range rows {
		snap.Rows = append(snap.Rows, *row)
	}
	sort.Slice(snap.Rows, func(i, j int) bool { return snap.Rows[i].Index < snap.Rows[j].Index })
	return snap
}

func discoverIndices(outputDir string, tracked map[string]*state.Entry) []int {
	seen := make(map[int]bool)
	if dirEntries, err := os.ReadDir(outputDir); err == nil {
		for _, de := range dirEntries {
			if de.IsDir() {
				continue
			}
			if idx, ok := task.ParseOutputName(de.Name()); ok {
				seen[idx] = true
			}
		}
	}
	for name := range tracked {
		if idx, ok := task.ParseOutputName(name); ok {
			seen[idx] = true
		}
	}
	out := make([]int, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// WatchDirs sends on changed whenever a file in one of dirs is created,
// written or removed, debounced. Missing dirs are created so a watch can
// start before the first batch. Blocks until ctx is cancelled.
func WatchDirs(ctx context.Context, changed chan<- struct{}, dirs ...string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch dir %s: %w", dir, err)
		}
	}
	slog.Debug("watching", "dirs", dirs)

	var timer *time.Timer
	fire := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, fire)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watcher error", "error", err)
		}
	}
}
