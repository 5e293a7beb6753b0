package runner

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleTrajectory = `{
  "url": "https://example.com",
  "task": "demo",
  "trajectory": [
    {"step": 1, "screenshot": "aGVsbG8=", "think": "click the box", "action": "{\"action\": \"click\", \"parameters\": {\"x\": 10, \"y\": 20}}"},
    {"step": 2, "screenshot": "aGVsbG8=", "think": "Action failed with error: boom", "action": "{\"action\": \"error\", \"parameters\": {\"message\": \"Locator \"#x\" not found\"} }"},
    {"step": 3, "screenshot": "aGVsbG8=", "think": "done", "action": "{\"action\": \"finish\", \"parameters\": {\"comment\": \"ok\"}}"}
  ]
}`

func TestReadTrajectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output_0.json")
	if err := os.WriteFile(path, []byte(sampleTrajectory), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := ReadTrajectory(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.URL != "https://example.com" || s.Task != "demo" {
		t.Errorf("unexpected header: %+v", s)
	}
	if s.Steps != 3 {
		t.Errorf("steps: got %d, want 3", s.Steps)
	}
	if s.Errors != 1 {
		t.Errorf("errors: got %d, want 1", s.Errors)
	}
	if !s.Finished {
		t.Error("expected finished")
	}
	if s.LastAction != "finish" {
		t.Errorf("last action: got %q", s.LastAction)
	}
}

func TestReadTrajectory_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output_0.json")
	if err := os.WriteFile(path, []byte(`{"url":"u","task":"t","trajectory":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := ReadTrajectory(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Steps != 0 || s.Finished {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestReadTrajectory_Missing(t *testing.T) {
	if _, err := ReadTrajectory(filepath.Join(t.TempDir(), "nope.json")); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestReadTrajectory_Truncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output_0.json")
	if err := os.WriteFile(path, []byte(`{"url":"u","trajectory":[{"step":1`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadTrajectory(path); err == nil {
		t.Error("expected parse error for truncated file")
	}
}
