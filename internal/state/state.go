package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ppiankov/trajrun/internal/task"
)

// Status constants for persistent record state.
const (
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusInProgress  = "in_progress"
	StatusInterrupted = "interrupted"
)

// Entry is the persistent state of one output file across runs.
// URL and Task identify the record that produced it, so a resumed run can
// tell a finished index from an index whose record was edited since.
type Entry struct {
	Status     string    `json:"status"`
	URL        string    `json:"url"`
	Task       string    `json:"task"`
	StartedAt  time.Time `json:"started,omitempty"`
	FinishedAt time.Time `json:"finished,omitempty"`
	Error      string    `json:"error,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
}

// Matches reports whether the entry was produced by rec.
func (e *Entry) Matches(rec task.Record) bool {
	return e.URL == rec.URL && e.Task == rec.Task
}

type stateFile struct {
	Outputs map[string]*Entry `json:"outputs"`
}

// Tracker persists per-output state. Keys are output file names
// ("output_3.json"). Thread-safe; writes are atomic (tmp → rename).
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	path    string
}

// DefaultPath returns the state file path for a report directory.
func DefaultPath(reportDir string) string {
	return filepath.Join(reportDir, "state.json")
}

// Load reads the state file from disk. Returns an empty tracker if the file
// does not exist or is corrupt.
func Load(path string) *Tracker {
	t := &Tracker{
		entries: make(map[string]*Entry),
		path:    path,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t
	}
	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return t
	}
	if sf.Outputs != nil {
		t.entries = sf.Outputs
	}
	return t
}

// RecoverInterrupted marks stale in_progress entries as interrupted.
// Returns the number of entries recovered.
func (t *Tracker) RecoverInterrupted() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, e := range t.entries {
		if e.Status == StatusInProgress {
			e.Status = StatusInterrupted
			e.FinishedAt = time.Now()
			e.Error = "interrupted: process killed before completion"
			count++
		}
	}
	if count > 0 {
		_ = t.saveLocked()
	}
	return count
}

// MarkStarted records an output as in_progress for rec.
func (t *Tracker) MarkStarted(key string, rec task.Record, runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = &Entry{
		Status:    StatusInProgress,
		URL:       rec.URL,
		Task:      rec.Task,
		StartedAt: time.Now(),
		RunID:     runID,
	}
	_ = t.saveLocked()
}

// MarkCompleted records an output as successfully produced.
func (t *Tracker) MarkCompleted(key string) {
	t.finish(key, StatusCompleted, "")
}

// MarkFailed records an output as failed.
func (t *Tracker) MarkFailed(key, errMsg string) {
	t.finish(key, StatusFailed, errMsg)
}

// MarkInterrupted records an output whose agent was killed by cancellation.
func (t *Tracker) MarkInterrupted(key string) {
	t.finish(key, StatusInterrupted, "interrupted")
}

// Record stores the terminal outcome of a batch result. Skipped results
// are not recorded: nothing ran, so earlier state stays valid.
func (t *Tracker) Record(res *task.TaskResult) {
	key := task.OutputName(res.Index)
	switch res.State {
	case task.StateCompleted:
		t.MarkCompleted(key)
	case task.StateFailed, task.StateRateLimited:
		msg := res.Error
		if msg == "" {
			msg = res.State.String()
		}
		t.MarkFailed(key, msg)
	}
}

func (t *Tracker) finish(key, status, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[key]
	if e == nil {
		e = &Entry{StartedAt: time.Now()}
		t.entries[key] = e
	}
	e.Status = status
	e.FinishedAt = time.Now()
	e.Error = errMsg
	_ = t.saveLocked()
}

// Get returns a copy of the entry for key, or nil if not tracked.
func (t *Tracker) Get(key string) *Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.entries[key]; ok {
		cpy := *e
		return &cpy
	}
	return nil
}

// Entries returns a copy of all tracked entries.
func (t *Tracker) Entries() map[string]*Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make(map[string]*Entry, len(t.entries))
	for k, v := range t.entries {
		cpy := *v
		result[k] = &cpy
	}
	return result
}

// Count returns the number of tracked entries.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Reset removes a single entry, allowing re-execution.
func (t *Tracker) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
	_ = t.saveLocked()
}

// Clear removes all state and deletes the state file.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*Entry)
	_ = os.Remove(t.path)
}

func (t *Tracker) saveLocked() error {
	sf := stateFile{Outputs: t.entries}
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return err
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, t.path)
}
