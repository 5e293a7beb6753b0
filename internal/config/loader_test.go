package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/trajrun/internal/task"
)

func writeTasks(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "val_tasks.json")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTasks_ValidFile(t *testing.T) {
	path := writeTasks(t, `[
		{"url": "https://example.com", "task": "demo"},
		{"url": "https://shop.example", "task": "add the cheapest mug to the cart", "difficulty": "easy"}
	]`)

	entries, err := LoadTasks(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Index != i {
			t.Errorf("entry %d has index %d", i, e.Index)
		}
		if e.Malformed() {
			t.Errorf("entry %d unexpectedly malformed: %v", i, e.Err)
		}
	}
	if entries[0].Record.URL != "https://example.com" || entries[0].Record.Task != "demo" {
		t.Errorf("unexpected first record: %+v", entries[0].Record)
	}
}

func TestLoadTasks_FileNotFound(t *testing.T) {
	_, err := LoadTasks(filepath.Join(t.TempDir(), "val_tasks.json"))
	if !errors.Is(err, ErrTasksFileNotFound) {
		t.Fatalf("expected ErrTasksFileNotFound, got %v", err)
	}
}

func TestLoadTasks_InvalidJSON(t *testing.T) {
	if _, err := LoadTasks(writeTasks(t, `[{invalid`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoadTasks_NotAnArray(t *testing.T) {
	_, err := LoadTasks(writeTasks(t, `{"tasks": []}`))
	if err == nil || !strings.Contains(err.Error(), "JSON array") {
		t.Fatalf("expected array error, got %v", err)
	}
}

func TestLoadTasks_Empty(t *testing.T) {
	entries, err := LoadTasks(writeTasks(t, `[]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestLoadTasks_MalformedRecords(t *testing.T) {
	path := writeTasks(t, `[
		{"url": "https://a.example", "task": "ok"},
		{"task": "no url"},
		{"url": "https://c.example"},
		{"url": 42, "task": "number url"},
		"just a string",
		{"url": "  ", "task": "blank url"},
		{"url": null, "task": null},
		{"url": "https://h.example", "task": "ok again"}
	]`)

	entries, err := LoadTasks(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 8 {
		t.Fatalf("expected 8 entries, got %d", len(entries))
	}

	wantReason := map[int]string{
		1: "missing url",
		2: "missing task",
		3: "url is not a string",
		4: "not an object",
		5: "empty url",
		6: "missing url, missing task",
	}
	for i, e := range entries {
		reason, bad := wantReason[i]
		if e.Malformed() != bad {
			t.Errorf("entry %d: malformed=%v, want %v (%v)", i, e.Malformed(), bad, e.Err)
			continue
		}
		if !bad {
			continue
		}
		if !errors.Is(e.Err, task.ErrMalformedRecord) {
			t.Errorf("entry %d: error does not wrap ErrMalformedRecord: %v", i, e.Err)
		}
		if !strings.Contains(e.Err.Error(), reason) {
			t.Errorf("entry %d: error %q does not mention %q", i, e.Err, reason)
		}
	}

	if got := len(Malformed(entries)); got != 6 {
		t.Errorf("Malformed: got %d, want 6", got)
	}
	if entries[7].Index != 7 {
		t.Errorf("last entry keeps its position, got index %d", entries[7].Index)
	}
}
