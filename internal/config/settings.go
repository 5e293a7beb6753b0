package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/trajrun/internal/task"
)

// Defaults applied when neither the settings file, the environment nor a flag
// provide a value.
const (
	DefaultTasksFile = "val_tasks.json"
	DefaultOutputDir = "./trajectories"
	DefaultModel     = "Qwen/Qwen2.5-VL-72B-Instruct-AWQ"
	DefaultMaxSteps  = 30
	DefaultCommand   = "python3"
	DefaultScript    = "qwen_agent_final.py"
	DefaultAPIKeyVar = "OPENAI_API_KEY" // the agent's model client reads it
	reportSubdir     = ".trajrun"
)

// Settings holds persistent CLI defaults loaded from a config file.
type Settings struct {
	TasksFile      string         `yaml:"tasks_file"`
	OutputDir      string         `yaml:"output_dir"`
	ReportDir      string         `yaml:"report_dir"`       // default: <output_dir>/.trajrun
	Model          string         `yaml:"model"`
	Endpoint       string         `yaml:"endpoint"`
	MaxSteps       int            `yaml:"max_steps"`
	InterTaskDelay *time.Duration `yaml:"inter_task_delay"` // nil = default; 0 disables
	Malformed      string         `yaml:"malformed"`        // "skip" or "fail-fast"
	EnvFile        string         `yaml:"env_file,omitempty"`

	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig describes how the external agent process is launched.
type AgentConfig struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`           // placed before the per-record flags
	Dir     string            `yaml:"dir,omitempty"`  // working directory; default: current
	Env     map[string]string `yaml:"env,omitempty"`  // extra env; "env:VAR" = read from OS
	PassEnv []string          `yaml:"pass_env"`       // credentials forwarded when set; default [OPENAI_API_KEY]
	Echo    *bool             `yaml:"echo,omitempty"` // mirror agent output to the console; default true

	IdleTimeout time.Duration `yaml:"idle_timeout,omitempty"` // kill after no output for this long; 0 = never
	MaxRuntime  time.Duration `yaml:"max_runtime,omitempty"`  // kill after this long; 0 = never
}

// LoadSettings reads a YAML config file into Settings.
// If the file does not exist, it returns zero-value Settings and nil error.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return &s, nil
}

// ApplyDefaults fills every unset field with its built-in default.
func (s *Settings) ApplyDefaults() {
	if s.TasksFile == "" {
		s.TasksFile = DefaultTasksFile
	}
	if s.OutputDir == "" {
		s.OutputDir = DefaultOutputDir
	}
	if s.ReportDir == "" {
		s.ReportDir = DefaultReportDir(s.OutputDir)
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.MaxSteps == 0 {
		s.MaxSteps = DefaultMaxSteps
	}
	if s.InterTaskDelay == nil {
		d := task.DefaultInterTaskDelay
		s.InterTaskDelay = &d
	}
	if s.Malformed == "" {
		s.Malformed = string(task.MalformedSkip)
	}
	if s.Agent.Command == "" {
		s.Agent.Command = DefaultCommand
		if len(s.Agent.Args) == 0 {
			s.Agent.Args = []string{DefaultScript}
		}
	}
	// an explicit empty list turns forwarding off
	if s.Agent.PassEnv == nil {
		s.Agent.PassEnv = []string{DefaultAPIKeyVar}
	}
}

// Delay returns the pause between two agent invocations.
func (s *Settings) Delay() time.Duration {
	if s.InterTaskDelay == nil {
		return task.DefaultInterTaskDelay
	}
	return *s.InterTaskDelay
}

// SetDelay sets the pause between two agent invocations.
func (s *Settings) SetDelay(d time.Duration) {
	s.InterTaskDelay = &d
}

// DefaultReportDir is where reports, logs and state live for outputDir.
func DefaultReportDir(outputDir string) string {
	return filepath.Join(outputDir, reportSubdir)
}

// Validate checks that the settings describe a runnable batch.
func (s *Settings) Validate() error {
	if s.Endpoint == "" {
		return fmt.Errorf("endpoint is required (set endpoint in config, TRAJRUN_ENDPOINT or --endpoint)")
	}
	if s.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", s.MaxSteps)
	}
	if s.Delay() < 0 {
		return fmt.Errorf("inter_task_delay must not be negative, got %s", s.Delay())
	}
	if _, err := task.ParseMalformedPolicy(s.Malformed); err != nil {
		return err
	}
	if s.Agent.Command == "" {
		return fmt.Errorf("agent.command is required")
	}
	if s.Agent.IdleTimeout < 0 || s.Agent.MaxRuntime < 0 {
		return fmt.Errorf("agent timeouts must not be negative")
	}
	return nil
}

// EchoAgentOutput reports whether agent output is mirrored to the console.
func (s *Settings) EchoAgentOutput() bool {
	return s.Agent.Echo == nil || *s.Agent.Echo
}

// Snapshot returns the batch-wide values recorded in a run report.
func (s *Settings) Snapshot() task.BatchSettings {
	return task.BatchSettings{
		TasksFile:      s.TasksFile,
		OutputDir:      s.OutputDir,
		Model:          s.Model,
		Endpoint:       s.Endpoint,
		MaxSteps:       s.MaxSteps,
		InterTaskDelay: s.Delay(),
		Malformed:      s.Malformed,
	}
}
