package state

import (
	"github.com/ppiankov/trajrun/internal/task"
)

// ResumeFilter returns a batch include function that skips records already
// completed in a previous run. Failed and interrupted records are skipped
// too unless retry is set. An entry whose record changed since it was
// produced never causes a skip.
func ResumeFilter(tracker *Tracker, retry bool) func(task.Entry) (bool, string) {
	return func(e task.Entry) (bool, string) {
		prev := tracker.Get(task.OutputName(e.Index))
		if prev == nil || !prev.Matches(e.Record) {
			return true, ""
		}
		switch prev.Status {
		case StatusCompleted:
			return false, "completed in previous run"
		case StatusFailed:
			if retry {
				return true, ""
			}
			return false, "failed (use --retry to re-execute)"
		case StatusInterrupted:
			if retry {
				return true, ""
			}
			return false, "interrupted (use --retry to re-execute)"
		}
		return true, ""
	}
}
