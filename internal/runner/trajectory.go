package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Trajectory mirrors the file the agent writes to --output. Screenshots are
// skipped on decode; only the fields needed for a summary are kept.
type Trajectory struct {
	URL   string           `json:"url"`
	Task  string           `json:"task"`
	Steps []TrajectoryStep `json:"trajectory"`
}

// TrajectoryStep is one observation/action pair recorded by the agent.
type TrajectoryStep struct {
	Step   int    `json:"step"`
	Think  string `json:"think"`
	Action string `json:"action"` // JSON-encoded action object, as a string
}

// TrajectorySummary is what status inspection shows for one output file.
type TrajectorySummary struct {
	URL        string
	Task       string
	Steps      int
	Errors     int
	Finished   bool
	LastAction string
}

type actionHead struct {
	Action string `json:"action"`
}

// actionName extracts the "action" field from the encoded action string.
// Error actions are written with unescaped messages and may not be valid
// JSON, so a substring check backs up the decode.
func actionName(encoded string) string {
	var head actionHead
	if err := json.Unmarshal([]byte(encoded), &head); err == nil && head.Action != "" {
		return head.Action
	}
	compact := strings.ReplaceAll(encoded, " ", "")
	if strings.Contains(compact, `"action":"error"`) {
		return "error"
	}
	return ""
}

// Summarize reduces a trajectory to counters.
func (t *Trajectory) Summarize() TrajectorySummary {
	s := TrajectorySummary{URL: t.URL, Task: t.Task, Steps: len(t.Steps)}
	for _, st := range t.Steps {
		name := actionName(st.Action)
		if name == "error" {
			s.Errors++
		}
		if name != "" {
			s.LastAction = name
		}
		if name == "finish" {
			s.Finished = true
		}
	}
	return s
}

// ReadTrajectory loads and summarizes an agent output file.
// Exported for status inspection; the batch itself never reads outputs.
func ReadTrajectory(path string) (*TrajectorySummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var t Trajectory
	if err := json.NewDecoder(f).Decode(&t); err != nil {
		return nil, fmt.Errorf("parse trajectory %s: %w", path, err)
	}
	s := t.Summarize()
	return &s, nil
}
