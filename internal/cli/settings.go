package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trajrun/internal/config"
)

// settingsFlags are the flags that override config file and env values.
type settingsFlags struct {
	tasksFile string
	outputDir string
	model     string
	endpoint  string
	maxSteps  int
	delay     time.Duration
	malformed string
}

// bindPathFlags registers the flags every command needs to find its files.
func bindPathFlags(cmd *cobra.Command, f *settingsFlags) {
	cmd.Flags().StringVar(&f.tasksFile, "tasks", config.DefaultTasksFile, "path to tasks JSON file")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", config.DefaultOutputDir, "directory for trajectory output files")
}

// bindBatchFlags registers the flags that shape agent invocations.
func bindBatchFlags(cmd *cobra.Command, f *settingsFlags) {
	bindPathFlags(cmd, f)
	cmd.Flags().StringVar(&f.model, "model", config.DefaultModel, "model name passed to the agent")
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "model API endpoint passed to the agent")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", config.DefaultMaxSteps, "step budget per record")
	cmd.Flags().DurationVar(&f.delay, "delay", 30*time.Second, "pause between two agent invocations")
	cmd.Flags().StringVar(&f.malformed, "malformed", "skip", "malformed record policy: skip or fail-fast")
}

// resolveSettings layers config file, .env, TRAJRUN_* env and explicitly set
// flags over the built-in defaults. It does not validate.
func resolveSettings(cmd *cobra.Command, f *settingsFlags) (*config.Settings, error) {
	s, err := config.LoadSettings(configFile)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	if err := config.LoadDotEnv(s.EnvFile); err != nil {
		return nil, &ConfigError{Err: err}
	}
	env, err := config.ReadEnv()
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	env.Apply(s)

	derivedReportDir := s.ReportDir == ""
	s.ApplyDefaults()

	// flags go last so an explicit zero (e.g. --delay 0) survives defaults
	flags := cmd.Flags()
	changed := func(name string) bool {
		fl := flags.Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("tasks") {
		s.TasksFile = f.tasksFile
	}
	if changed("output-dir") {
		s.OutputDir = f.outputDir
		if derivedReportDir {
			s.ReportDir = config.DefaultReportDir(s.OutputDir)
		}
	}
	if changed("model") {
		s.Model = f.model
	}
	if changed("endpoint") {
		s.Endpoint = f.endpoint
	}
	if changed("max-steps") {
		s.MaxSteps = f.maxSteps
	}
	if changed("delay") {
		s.SetDelay(f.delay)
	}
	if changed("malformed") {
		s.Malformed = f.malformed
	}
	return s, nil
}
