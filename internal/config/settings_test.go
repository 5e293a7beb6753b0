package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadSettings_Valid(t *testing.T) {
	content := `
tasks_file: tasks/val.json
output_dir: ./out
model: Qwen/Qwen2.5-VL-7B-Instruct
endpoint: http://gpu01:8000/v1
max_steps: 12
inter_task_delay: 45s
malformed: fail-fast
agent:
  command: /opt/venv/bin/python
  args: [agent.py, --headless]
  env:
    OPENAI_API_KEY: env:VLLM_KEY
  echo: false
  idle_timeout: 10m
  max_runtime: 1h
`
	path := writeTemp(t, content)
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}

	if s.TasksFile != "tasks/val.json" {
		t.Errorf("tasks_file: got %q", s.TasksFile)
	}
	if s.OutputDir != "./out" {
		t.Errorf("output_dir: got %q", s.OutputDir)
	}
	if s.Model != "Qwen/Qwen2.5-VL-7B-Instruct" {
		t.Errorf("model: got %q", s.Model)
	}
	if s.Endpoint != "http://gpu01:8000/v1" {
		t.Errorf("endpoint: got %q", s.Endpoint)
	}
	if s.MaxSteps != 12 {
		t.Errorf("max_steps: got %d, want 12", s.MaxSteps)
	}
	if s.Delay() != 45*time.Second {
		t.Errorf("inter_task_delay: got %v, want 45s", s.Delay())
	}
	if s.Malformed != "fail-fast" {
		t.Errorf("malformed: got %q", s.Malformed)
	}
	if s.Agent.Command != "/opt/venv/bin/python" {
		t.Errorf("agent.command: got %q", s.Agent.Command)
	}
	if strings.Join(s.Agent.Args, " ") != "agent.py --headless" {
		t.Errorf("agent.args: got %v", s.Agent.Args)
	}
	if s.Agent.IdleTimeout != 10*time.Minute || s.Agent.MaxRuntime != time.Hour {
		t.Errorf("agent timeouts: got %v / %v", s.Agent.IdleTimeout, s.Agent.MaxRuntime)
	}
	if s.Agent.Env["OPENAI_API_KEY"] != "env:VLLM_KEY" {
		t.Errorf("agent.env: got %v", s.Agent.Env)
	}
	if s.EchoAgentOutput() {
		t.Error("agent.echo: got true, want false")
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "nonexistent.yml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if s.Endpoint != "" || s.MaxSteps != 0 {
		t.Errorf("expected zero-value settings, got %+v", s)
	}
}

func TestLoadSettings_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "max_steps: [invalid\n")
	_, err := LoadSettings(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadSettings_Duration(t *testing.T) {
	cases := []struct {
		input string
		want  time.Duration
	}{
		{"inter_task_delay: 30s", 30 * time.Second},
		{"inter_task_delay: 2m", 2 * time.Minute},
		{"inter_task_delay: 1m30s", 90 * time.Second},
	}

	for _, tc := range cases {
		path := writeTemp(t, tc.input)
		s, err := LoadSettings(path)
		if err != nil {
			t.Errorf("input %q: %v", tc.input, err)
			continue
		}
		if s.Delay() != tc.want {
			t.Errorf("input %q: got %v, want %v", tc.input, s.Delay(), tc.want)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	s := &Settings{}
	s.ApplyDefaults()

	if s.TasksFile != "val_tasks.json" {
		t.Errorf("tasks_file: got %q", s.TasksFile)
	}
	if s.OutputDir != "./trajectories" {
		t.Errorf("output_dir: got %q", s.OutputDir)
	}
	if s.ReportDir != filepath.Join("./trajectories", ".trajrun") {
		t.Errorf("report_dir: got %q", s.ReportDir)
	}
	if s.Model != DefaultModel {
		t.Errorf("model: got %q", s.Model)
	}
	if s.MaxSteps != 30 {
		t.Errorf("max_steps: got %d", s.MaxSteps)
	}
	if s.Delay() != 30*time.Second {
		t.Errorf("inter_task_delay: got %v", s.Delay())
	}
	if s.Malformed != "skip" {
		t.Errorf("malformed: got %q", s.Malformed)
	}
	if s.Agent.Command != "python3" || len(s.Agent.Args) != 1 || s.Agent.Args[0] != "qwen_agent_final.py" {
		t.Errorf("agent: got %+v", s.Agent)
	}
	if !s.EchoAgentOutput() {
		t.Error("echo should default to true")
	}
}

func TestApplyDefaults_KeepsCustomCommandArgs(t *testing.T) {
	s := &Settings{Agent: AgentConfig{Command: "./agent"}}
	s.ApplyDefaults()
	if len(s.Agent.Args) != 0 {
		t.Errorf("custom command should not get the default script, got %v", s.Agent.Args)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Settings {
		s := &Settings{Endpoint: "http://localhost:8000/v1"}
		s.ApplyDefaults()
		return s
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("expected valid settings, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"no endpoint", func(s *Settings) { s.Endpoint = "" }, "endpoint is required"},
		{"negative steps", func(s *Settings) { s.MaxSteps = -1 }, "max_steps"},
		{"negative delay", func(s *Settings) { s.SetDelay(-time.Second) }, "inter_task_delay"},
		{"bad policy", func(s *Settings) { s.Malformed = "ignore" }, "malformed policy"},
		{"negative idle", func(s *Settings) { s.Agent.IdleTimeout = -time.Second }, "timeouts"},
	}
	for _, tc := range cases {
		s := valid()
		tc.mutate(s)
		err := s.Validate()
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestSnapshot(t *testing.T) {
	s := &Settings{Endpoint: "http://e/v1"}
	s.ApplyDefaults()
	snap := s.Snapshot()
	if snap.Endpoint != "http://e/v1" || snap.MaxSteps != 30 || snap.OutputDir != "./trajectories" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".trajrun.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApplyDefaults_ZeroDelayFromFileSurvives(t *testing.T) {
	s, err := LoadSettings(writeTemp(t, "inter_task_delay: 0s\n"))
	if err != nil {
		t.Fatal(err)
	}
	s.ApplyDefaults()
	if s.Delay() != 0 {
		t.Errorf("explicit zero delay replaced by %v", s.Delay())
	}
}

func TestApplyDefaults_PassEnv(t *testing.T) {
	s := &Settings{}
	s.ApplyDefaults()
	if len(s.Agent.PassEnv) != 1 || s.Agent.PassEnv[0] != "OPENAI_API_KEY" {
		t.Errorf("pass_env default: got %v", s.Agent.PassEnv)
	}

	off, err := LoadSettings(writeTemp(t, "agent:\n  pass_env: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	off.ApplyDefaults()
	if len(off.Agent.PassEnv) != 0 {
		t.Errorf("explicit empty pass_env must stay empty, got %v", off.Agent.PassEnv)
	}
}
