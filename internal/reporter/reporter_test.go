package reporter

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/trajrun/internal/task"
)

var settings = task.BatchSettings{
	TasksFile:      "val_tasks.json",
	OutputDir:      "./trajectories",
	Model:          "m",
	Endpoint:       "http://localhost:8000/v1",
	MaxSteps:       30,
	InterTaskDelay: 30 * time.Second,
}

func TestTextReporter_PrintHeader(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextReporter(&buf, false)
	r.PrintHeader(10, settings)

	out := buf.String()
	if !strings.Contains(out, "10 tasks") {
		t.Errorf("expected '10 tasks' in output, got: %s", out)
	}
	if !strings.Contains(out, "http://localhost:8000/v1") {
		t.Errorf("expected endpoint in output, got: %s", out)
	}
}

func TestTextReporter_PrintStart(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextReporter(&buf, false)
	r.PrintStart(&task.Invocation{
		Index:  0,
		URL:    "https://example.com",
		Task:   "demo",
		Output: "./trajectories/output_0.json",
	})

	out := buf.String()
	for _, want := range []string{"Task 0", "demo", "https://example.com", "./trajectories/output_0.json"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestTextReporter_PrintDone(t *testing.T) {
	tests := []struct {
		res  *task.TaskResult
		want string
	}{
		{&task.TaskResult{Index: 1, State: task.StateCompleted, Duration: 3 * time.Second}, "Task 1 completed"},
		{&task.TaskResult{Index: 2, State: task.StateFailed, Error: "agent exited: exit status 1"}, "exit status 1"},
		{&task.TaskResult{Index: 3, State: task.StateFailed, Error: "x", ConnectivityError: "model endpoint unreachable"}, "model endpoint unreachable"},
		{&task.TaskResult{Index: 4, State: task.StateRateLimited}, "rate limited"},
		{&task.TaskResult{Index: 5, State: task.StateSkipped, Error: "missing url"}, "skipped: missing url"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		NewTextReporter(&buf, false).PrintDone(tt.res)
		if !strings.Contains(buf.String(), tt.want) {
			t.Errorf("index %d: expected %q, got: %s", tt.res.Index, tt.want, buf.String())
		}
	}
}

func TestTextReporter_PrintSummary(t *testing.T) {
	report := &task.RunReport{
		TotalTasks:    10,
		Completed:     7,
		Failed:        1,
		Skipped:       2,
		TotalDuration: 5 * time.Minute,
	}

	var buf bytes.Buffer
	r := NewTextReporter(&buf, false)
	r.PrintSummary(report)

	out := buf.String()
	if !strings.Contains(out, "Completed: 7") {
		t.Error("expected completed count")
	}
	if !strings.Contains(out, "Failed: 1") {
		t.Error("expected failed count")
	}
	if !strings.Contains(out, "All tasks complete") {
		t.Error("expected completion notice")
	}
}

func TestTextReporter_PrintSummaryInterrupted(t *testing.T) {
	var buf bytes.Buffer
	NewTextReporter(&buf, false).PrintSummary(&task.RunReport{Interrupted: true})

	out := buf.String()
	if strings.Contains(out, "All tasks complete") {
		t.Error("interrupted batch must not claim completion")
	}
	if !strings.Contains(out, "interrupted") {
		t.Errorf("expected interruption notice, got: %s", out)
	}
}

func TestTextReporter_PrintDryRun(t *testing.T) {
	entries := []task.Entry{
		{Index: 0, Record: task.Record{URL: "https://a.example", Task: "first"}},
		{Index: 1, Err: fmt.Errorf("missing url: %w", task.ErrMalformedRecord)},
		{Index: 2, Record: task.Record{URL: "https://b.example", Task: "third"}},
	}
	argv := func(inv *task.Invocation) []string {
		return []string{"--url", inv.URL, "--output", inv.Output}
	}

	var buf bytes.Buffer
	NewTextReporter(&buf, false).PrintDryRun(entries, settings, argv)

	out := buf.String()
	if !strings.Contains(out, "--output "+filepath.Join("trajectories", "output_2.json")) &&
		!strings.Contains(out, "--output ./trajectories/output_2.json") {
		t.Errorf("expected output path for index 2, got: %s", out)
	}
	if !strings.Contains(out, "1. malformed") {
		t.Errorf("expected malformed note for index 1, got: %s", out)
	}
}

func TestTextReporter_NoColor(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextReporter(&buf, false)
	r.PrintHeader(5, settings)
	r.PrintDone(&task.TaskResult{State: task.StateFailed, Error: "boom"})

	if strings.Contains(buf.String(), "\033[") {
		t.Error("expected no ANSI codes when color is false")
	}
}

func TestWriteJSONReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "report.json")

	report := &task.RunReport{
		RunID:     "abc",
		Timestamp: time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC),
		Settings:  settings,
		Results: []*task.TaskResult{
			{Index: 0, State: task.StateCompleted},
			{Index: 1, State: task.StateFailed, Error: "oops"},
			{Index: 2, State: task.StateSkipped},
		},
	}
	report.Tally()

	if err := WriteJSONReport(report, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := ReadJSONReport(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if loaded.TotalTasks != 3 || loaded.Completed != 1 || loaded.Failed != 1 || loaded.Skipped != 1 {
		t.Errorf("unexpected counters: %+v", loaded)
	}
	if loaded.Results[1].State != task.StateFailed {
		t.Errorf("expected FAILED state, got %s", loaded.Results[1].State)
	}
	if loaded.Settings.InterTaskDelay != 30*time.Second {
		t.Errorf("expected 30s delay, got %s", loaded.Settings.InterTaskDelay)
	}
}

func TestReadJSONReport_Missing(t *testing.T) {
	_, err := ReadJSONReport(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist error, got %v", err)
	}
}
