package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ppiankov/trajrun/internal/config"
	"github.com/ppiankov/trajrun/internal/reporter"
	"github.com/ppiankov/trajrun/internal/runner"
	"github.com/ppiankov/trajrun/internal/state"
	"github.com/ppiankov/trajrun/internal/task"
)

// filterOptions select which records of the tasks file are invoked.
// Records left out keep their index and output path.
type filterOptions struct {
	only    string
	missing bool
	resume  bool
	retry   bool
}

func (f filterOptions) String() string {
	var parts []string
	if f.only != "" {
		parts = append(parts, "only="+f.only)
	}
	if f.missing {
		parts = append(parts, "missing")
	}
	if f.resume {
		parts = append(parts, "resume")
	}
	if f.retry {
		parts = append(parts, "retry")
	}
	return strings.Join(parts, ",")
}

// runOutput is where a batch writes progress and mirrors agent output.
type runOutput struct {
	w     io.Writer
	color bool
	echo  io.Writer // nil = agent output not mirrored
}

func newRunCmd() *cobra.Command {
	var (
		flags  settingsFlags
		filter filterOptions
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent once per task record, sequentially",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings(cmd, &flags)
			if err != nil {
				return err
			}
			if filter.retry && !filter.resume {
				return configErrorf("--retry requires --resume")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					fmt.Fprintln(os.Stderr, "\ninterrupted — stopping the running agent...")
					cancel()
				case <-ctx.Done():
				}
			}()

			out := runOutput{w: os.Stdout, color: isTerminal()}
			if s.EchoAgentOutput() {
				out.echo = os.Stdout
			}
			if dryRun {
				return planBatch(s, out)
			}
			_, err = executeBatch(ctx, s, filter, out)
			return err
		},
	}

	bindBatchFlags(cmd, &flags)
	cmd.Flags().StringVar(&filter.only, "only", "", "only run these indices, e.g. 0,3-5")
	cmd.Flags().BoolVar(&filter.missing, "missing", false, "only run records whose output file does not exist")
	cmd.Flags().BoolVar(&filter.resume, "resume", false, "skip records completed by a previous run")
	cmd.Flags().BoolVar(&filter.retry, "retry", false, "with --resume, also re-run failed and interrupted records")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the agent invocations without running them")

	return cmd
}

// planBatch prints the invocations a run would make.
func planBatch(s *config.Settings, out runOutput) error {
	if err := s.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	entries, err := config.LoadTasks(s.TasksFile)
	if err != nil {
		return &ConfigError{Err: err}
	}
	agent, err := newAgent(s, "", nil)
	if err != nil {
		return &ConfigError{Err: err}
	}
	if err := agent.Preflight(); err != nil {
		slog.Warn("agent preflight failed", "error", err)
	}

	textRep := reporter.NewTextReporter(out.w, out.color)
	textRep.PrintHeader(len(entries), s.Snapshot())
	textRep.PrintDryRun(entries, s.Snapshot(), func(inv *task.Invocation) []string {
		return append([]string{s.Agent.Command}, agent.Args(inv)...)
	})
	return nil
}

// executeBatch runs every selected record and writes the run report.
// Agent failures are reported, not returned: only configuration problems,
// a fail-fast malformed record and interruption produce an error.
func executeBatch(ctx context.Context, s *config.Settings, filter filterOptions, out runOutput) (*task.RunReport, error) {
	if err := s.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	policy, _ := task.ParseMalformedPolicy(s.Malformed)

	entries, err := config.LoadTasks(s.TasksFile)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	runID := uuid.NewString()
	if err := runner.Acquire(s.OutputDir, runID, s.TasksFile); err != nil {
		return nil, &ConfigError{Err: err}
	}
	defer runner.Release(s.OutputDir)

	tracker := state.Load(state.DefaultPath(s.ReportDir))
	if n := tracker.RecoverInterrupted(); n > 0 {
		slog.Info("recovered interrupted records from previous run", "count", n)
	}

	include, err := buildInclude(filter, s.OutputDir, tracker)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	start := time.Now()
	runDir := filepath.Join(s.ReportDir, start.Format("20060102-150405"))
	agent, err := newAgent(s, filepath.Join(runDir, "logs"), out.echo)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	if err := agent.Preflight(); err != nil {
		return nil, &ConfigError{Err: err}
	}

	malformed := make(map[int]bool)
	for _, e := range config.Malformed(entries) {
		malformed[e.Index] = true
	}

	textRep := reporter.NewTextReporter(out.w, out.color)
	textRep.PrintHeader(len(entries), s.Snapshot())
	slog.Debug("batch starting", "run_id", runID, "records", len(entries), "malformed", len(malformed))

	var filtered, notStarted []*task.TaskResult
	batch := task.NewBatch(entries, task.BatchConfig{
		Model:          s.Model,
		Endpoint:       s.Endpoint,
		MaxSteps:       s.MaxSteps,
		InterTaskDelay: s.Delay(),
		OutputDir:      s.OutputDir,
		Malformed:      policy,
		ExecFn:         agent.Invoke,
		Include:        include,
		OnStart: func(inv *task.Invocation) {
			tracker.MarkStarted(task.OutputName(inv.Index), task.Record{URL: inv.URL, Task: inv.Task}, runID)
			textRep.PrintStart(inv)
		},
		OnUpdate: func(res *task.TaskResult) {
			slog.Debug("record update", "index", res.Index, "state", res.State)
			switch {
			case !res.State.Done():
			case task.NotStarted(res):
				notStarted = append(notStarted, res)
			case res.State == task.StateSkipped && !malformed[res.Index]:
				filtered = append(filtered, res)
			case res.State == task.StateFailed && ctx.Err() != nil:
				tracker.MarkInterrupted(task.OutputName(res.Index))
				textRep.PrintDone(res)
			default:
				tracker.Record(res)
				textRep.PrintDone(res)
			}
		},
	})

	results, runErr := batch.Run(ctx)

	report := &task.RunReport{
		RunID:         runID,
		Timestamp:     start,
		Settings:      s.Snapshot(),
		Filter:        filter.String(),
		Results:       results,
		TotalDuration: time.Since(start),
		Interrupted:   errors.Is(runErr, context.Canceled),
	}
	report.Tally()

	textRep.PrintSkippedByFilter(filtered)
	textRep.PrintNotStarted(notStarted)
	textRep.PrintSummary(report)

	reportPath := filepath.Join(runDir, "report.json")
	if err := reporter.WriteJSONReport(report, reportPath); err != nil {
		slog.Warn("failed to write report", "error", err)
	} else {
		fmt.Fprintf(out.w, "\nReport: %s\n", reportPath)
	}

	switch {
	case runErr == nil:
		return report, nil
	case report.Interrupted:
		remaining := 0
		for _, r := range results {
			if r.State == task.StateSkipped && r.Error == task.ReasonInterrupted {
				remaining++
			}
		}
		return report, &InterruptedError{Completed: report.Completed, Remaining: remaining}
	case errors.Is(runErr, task.ErrMalformedRecord):
		return report, &ConfigError{Err: runErr}
	default:
		return report, runErr
	}
}

func newAgent(s *config.Settings, logDir string, echo io.Writer) (*runner.AgentRunner, error) {
	return runner.NewAgentRunner(runner.AgentOptions{
		Command: s.Agent.Command,
		Args:    s.Agent.Args,
		Dir:     s.Agent.Dir,
		Env:     s.Agent.Env,
		PassEnv: s.Agent.PassEnv,
		LogDir:  logDir,
		Echo:    echo,

		IdleTimeout: s.Agent.IdleTimeout,
		MaxRuntime:  s.Agent.MaxRuntime,
	})
}

// buildInclude combines the selection flags into one batch filter.
// It returns nil when no flag is set.
func buildInclude(f filterOptions, outputDir string, tracker *state.Tracker) (func(task.Entry) (bool, string), error) {
	var filters []func(task.Entry) (bool, string)

	if f.only != "" {
		set, err := parseIndexSet(f.only)
		if err != nil {
			return nil, fmt.Errorf("--only: %w", err)
		}
		filters = append(filters, func(e task.Entry) (bool, string) {
			if set[e.Index] {
				return true, ""
			}
			return false, "not selected by --only"
		})
	}
	if f.missing {
		filters = append(filters, func(e task.Entry) (bool, string) {
			if _, err := os.Stat(task.OutputPath(outputDir, e.Index)); err == nil {
				return false, "output exists"
			}
			return true, ""
		})
	}
	if f.resume {
		filters = append(filters, state.ResumeFilter(tracker, f.retry))
	}

	if len(filters) == 0 {
		return nil, nil
	}
	return func(e task.Entry) (bool, string) {
		for _, fn := range filters {
			if ok, reason := fn(e); !ok {
				return false, reason
			}
		}
		return true, ""
	}, nil
}

// parseIndexSet parses "0,3-5,9" into a set of indices.
func parseIndexSet(list string) (map[int]bool, error) {
	set := make(map[int]bool)
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || first < 0 {
			return nil, fmt.Errorf("invalid index %q", part)
		}
		last := first
		if isRange {
			last, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || last < first {
				return nil, fmt.Errorf("invalid range %q", part)
			}
		}
		for i := first; i <= last; i++ {
			set[i] = true
		}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no indices in %q", list)
	}
	return set, nil
}

// isTerminal checks if stdout is a terminal.
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
