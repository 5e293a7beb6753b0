package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/trajrun/internal/task"
)

// ErrTasksFileNotFound is returned by LoadTasks when the tasks file is absent.
// It is a configuration error: no record may run.
var ErrTasksFileNotFound = errors.New("tasks file not found")

// LoadTasks reads a JSON array of {url, task} objects.
//
// The file as a whole must exist and be a JSON array. Each element is decoded
// on its own; an element that is not an object or lacks a non-empty string
// url or task comes back as a malformed Entry instead of failing the load.
func LoadTasks(path string) ([]task.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTasksFileNotFound, path)
		}
		return nil, fmt.Errorf("read tasks file: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("parse tasks file %s: top level must be a JSON array", path)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("parse tasks file %s: %w", path, err)
	}

	entries := make([]task.Entry, len(raw))
	for i, elem := range raw {
		rec, err := decodeRecord(elem)
		entries[i] = task.Entry{Index: i, Record: rec, Err: err}
	}
	return entries, nil
}

// Malformed returns the malformed entries of a loaded tasks file.
func Malformed(entries []task.Entry) []task.Entry {
	var bad []task.Entry
	for _, e := range entries {
		if e.Malformed() {
			bad = append(bad, e)
		}
	}
	return bad
}

func decodeRecord(raw json.RawMessage) (task.Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return task.Record{}, fmt.Errorf("element is not an object: %w", task.ErrMalformedRecord)
	}

	var rec task.Record
	var problems []string

	url, err := stringField(fields, "url")
	if err != nil {
		problems = append(problems, err.Error())
	}
	rec.URL = url

	instr, err := stringField(fields, "task")
	if err != nil {
		problems = append(problems, err.Error())
	}
	rec.Task = instr

	if len(problems) > 0 {
		return rec, fmt.Errorf("%s: %w", strings.Join(problems, ", "), task.ErrMalformedRecord)
	}
	return rec, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return "", fmt.Errorf("missing %s", name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s is not a string", name)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("empty %s", name)
	}
	return s, nil
}
