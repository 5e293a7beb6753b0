package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedRecord is wrapped by Entry.Err when a record lacks url or task.
var ErrMalformedRecord = errors.New("malformed task record")

// TaskState represents the execution state of a task record.
type TaskState int

const (
	StatePending TaskState = iota
	StateRunning
	StateCompleted
	StateFailed
	StateSkipped     // malformed record or filtered out
	StateRateLimited // agent reported an API rate limit
)

func (s TaskState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateSkipped:
		return "SKIPPED"
	case StateRateLimited:
		return "RATE_LIMITED"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON writes the state as its string name so reports stay readable.
func (s TaskState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts both the string name and the legacy integer form.
func (s *TaskState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("task state: %w", err)
		}
		*s = TaskState(n)
		return nil
	}
	for st := StatePending; st <= StateRateLimited; st++ {
		if st.String() == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown task state %q", name)
}

// Done reports whether the state is terminal.
func (s TaskState) Done() bool {
	return s != StatePending && s != StateRunning
}

// Record is a single {url, task} pair from the tasks file.
type Record struct {
	URL  string `json:"url"`
	Task string `json:"task"`
}

// Entry is a record decoded at a fixed position of the tasks file.
// Err is non-nil when the element could not be turned into a usable Record.
type Entry struct {
	Index  int
	Record Record
	Err    error
}

// Malformed reports whether the entry failed decoding or validation.
func (e Entry) Malformed() bool { return e.Err != nil }

// Invocation is everything the external agent receives for one record.
type Invocation struct {
	Index    int
	URL      string
	Task     string
	Model    string
	Endpoint string
	MaxSteps int
	Output   string
}

// TaskResult captures the outcome of processing a single record.
type TaskResult struct {
	Index      int           `json:"index"`
	URL        string        `json:"url,omitempty"`
	Task       string        `json:"task,omitempty"`
	OutputPath string        `json:"output_path"`
	State      TaskState     `json:"state"`
	StartedAt  time.Time     `json:"started_at,omitempty"`
	EndedAt    time.Time     `json:"ended_at,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	ExitCode   int           `json:"exit_code"`
	LastMsg    string        `json:"last_message,omitempty"`
	Error      string        `json:"error,omitempty"`
	LogDir     string        `json:"log_dir,omitempty"`

	ConnectivityError string    `json:"connectivity_error,omitempty"` // endpoint/DNS/TLS classification from stderr
	ResetsAt          time.Time `json:"resets_at,omitempty"`
}

// BatchSettings is the batch-wide configuration recorded in a report.
type BatchSettings struct {
	TasksFile      string        `json:"tasks_file"`
	OutputDir      string        `json:"output_dir"`
	Model          string        `json:"model"`
	Endpoint       string        `json:"endpoint"`
	MaxSteps       int           `json:"max_steps"`
	InterTaskDelay time.Duration `json:"inter_task_delay"`
	Malformed      string        `json:"malformed"`
}

// RunReport is the final output of a trajrun execution.
type RunReport struct {
	RunID         string        `json:"run_id"`
	Timestamp     time.Time     `json:"timestamp"`
	Settings      BatchSettings `json:"settings"`
	Filter        string        `json:"filter,omitempty"`
	Results       []*TaskResult `json:"results"`
	TotalTasks    int           `json:"total_tasks"`
	Completed     int           `json:"completed"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	RateLimited   int           `json:"rate_limited"`
	Interrupted   bool          `json:"interrupted,omitempty"`
	TotalDuration time.Duration `json:"total_duration"`
}

// Tally recomputes the report counters from Results.
func (r *RunReport) Tally() {
	r.TotalTasks = len(r.Results)
	r.Completed, r.Failed, r.Skipped, r.RateLimited = 0, 0, 0, 0
	for _, res := range r.Results {
		switch res.State {
		case StateCompleted:
			r.Completed++
		case StateFailed:
			r.Failed++
		case StateSkipped:
			r.Skipped++
		case StateRateLimited:
			r.RateLimited++
		}
	}
}
