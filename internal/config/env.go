package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces the environment overrides: TRAJRUN_MODEL, TRAJRUN_ENDPOINT, ...
const EnvPrefix = "trajrun"

// DefaultEnvFile is loaded into the process environment when present.
const DefaultEnvFile = ".env"

// EnvOverrides are settings read from TRAJRUN_* variables.
// Zero values mean "not set" and leave the settings untouched, except for the
// delay, where an explicit 0 disables the pause.
type EnvOverrides struct {
	TasksFile      string         `envconfig:"TASKS_FILE"`
	OutputDir      string         `envconfig:"OUTPUT_DIR"`
	ReportDir      string         `envconfig:"REPORT_DIR"`
	Model          string         `envconfig:"MODEL"`
	Endpoint       string         `envconfig:"ENDPOINT"`
	MaxSteps       int            `envconfig:"MAX_STEPS"`
	InterTaskDelay *time.Duration `envconfig:"INTER_TASK_DELAY"` // nil when unset
	Malformed      string         `envconfig:"MALFORMED"`
	AgentCommand   string         `envconfig:"AGENT_COMMAND"`
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ReadEnv collects TRAJRUN_* overrides from the environment.
func ReadEnv() (*EnvOverrides, error) {
	var env EnvOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("read config from env vars: %w", err)
	}
	return &env, nil
}

// Apply copies every set override onto s.
func (e *EnvOverrides) Apply(s *Settings) {
	if e == nil || s == nil {
		return
	}
	if e.TasksFile != "" {
		s.TasksFile = e.TasksFile
	}
	if e.OutputDir != "" {
		s.OutputDir = e.OutputDir
	}
	if e.ReportDir != "" {
		s.ReportDir = e.ReportDir
	}
	if e.Model != "" {
		s.Model = e.Model
	}
	if e.Endpoint != "" {
		s.Endpoint = e.Endpoint
	}
	if e.MaxSteps != 0 {
		s.MaxSteps = e.MaxSteps
	}
	if e.InterTaskDelay != nil {
		s.SetDelay(*e.InterTaskDelay)
	}
	if e.Malformed != "" {
		s.Malformed = e.Malformed
	}
	if e.AgentCommand != "" {
		s.Agent.Command = e.AgentCommand
	}
}
