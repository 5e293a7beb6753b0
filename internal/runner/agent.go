package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/trajrun/internal/task"
)

// waitDelay bounds how long Wait keeps copying output after the agent exits
// while a leftover browser process still holds its pipes.
const waitDelay = 5 * time.Second

// AgentOptions configures how the external agent is launched.
type AgentOptions struct {
	Command string            // executable, e.g. "python3"
	Args    []string          // leading args, e.g. ["qwen_agent_final.py"]
	Dir     string            // working directory; empty = inherit
	Env     map[string]string // extra env; "env:VAR" references are resolved here
	PassEnv []string          // credentials forwarded from the parent env when set
	LogDir  string            // where per-record stdout/stderr logs go; empty = no logs
	Echo    io.Writer         // mirror agent output here (console); nil = silent

	IdleTimeout time.Duration // kill the agent after this long without output; 0 = never
	MaxRuntime  time.Duration // kill the agent after this long; 0 = never
}

// AgentRunner spawns one agent process per invocation and waits for it.
type AgentRunner struct {
	command string
	args    []string
	dir     string
	env     *agentEnv
	logDir  string
	echo    io.Writer

	idleTimeout time.Duration
	maxRuntime  time.Duration
}

// NewAgentRunner validates opts and resolves env references up front so a
// missing credential fails the batch before the first record.
func NewAgentRunner(opts AgentOptions) (*AgentRunner, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("agent command is empty")
	}
	env, err := newAgentEnv(opts.PassEnv, opts.Env)
	if err != nil {
		return nil, fmt.Errorf("resolve agent env: %w", err)
	}
	return &AgentRunner{
		command: opts.Command,
		args:    append([]string(nil), opts.Args...),
		dir:     opts.Dir,
		env:     env,
		logDir:  opts.LogDir,
		echo:    opts.Echo,

		idleTimeout: opts.IdleTimeout,
		maxRuntime:  opts.MaxRuntime,
	}, nil
}

var _ Invoker = (*AgentRunner)(nil)

// Name returns the runner identifier.
func (r *AgentRunner) Name() string { return "agent" }

// Args returns the full argument list for an invocation, without the command.
func (r *AgentRunner) Args(inv *task.Invocation) []string {
	args := append([]string(nil), r.args...)
	return append(args,
		"--url", inv.URL,
		"--task", inv.Task,
		"--model", inv.Model,
		"--endpoint", inv.Endpoint,
		"--max-steps", strconv.Itoa(inv.MaxSteps),
		"--output", inv.Output,
	)
}

// Invoke runs the agent for one record and classifies the outcome.
// A non-zero exit, a spawn error or a missing output file is FAILED.
// A rate-limit signal in the agent output is RATE_LIMITED even on exit 0,
// because the agent swallows per-step API errors and always saves.
func (r *AgentRunner) Invoke(ctx context.Context, inv *task.Invocation) *task.TaskResult {
	start := time.Now()

	agentInv, err := r.resolveOutput(inv)
	if err != nil {
		return failedResult(inv, start, -1, fmt.Sprintf("resolve output path: %v", err))
	}
	output := agentInv.Output

	if dir := filepath.Dir(output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return failedResult(inv, start, -1, fmt.Sprintf("create output dir: %v", err))
		}
	}

	stdoutLog, stderrLog := io.Discard, io.Discard
	var stdoutPath string
	if r.logDir != "" {
		if err := os.MkdirAll(r.logDir, 0o755); err != nil {
			return failedResult(inv, start, -1, fmt.Sprintf("create log dir: %v", err))
		}
		base := strings.TrimSuffix(task.OutputName(inv.Index), ".json")
		stdoutPath = filepath.Join(r.logDir, base+".stdout.log")
		stdoutLog = newLogWriter(r.logDir, base+".stdout.log")
		stderrLog = newLogWriter(r.logDir, base+".stderr.log")
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if r.maxRuntime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.maxRuntime)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	idle := newIdleWatchdog(r.idleTimeout, cancel)
	defer idle.Stop()

	// rate limit detection is line based, so each stream gets its own scanner
	rlOut := newRateLimitWriter(io.Discard)
	rlErr := newRateLimitWriter(io.Discard)
	hw := newHealthWriter(io.Discard)

	stdout := []io.Writer{stdoutLog, rlOut, hw, idle}
	stderr := []io.Writer{stderrLog, rlErr, hw, idle}
	if r.echo != nil {
		stdout = append(stdout, r.echo)
		stderr = append(stderr, r.echo)
	}

	args := r.Args(agentInv)
	slog.Debug("spawning agent", "index", inv.Index, "command", r.command, "output", output)

	cmd := exec.CommandContext(runCtx, r.command, args...)
	cmd.Dir = r.dir
	cmd.Env = r.env.Environ(os.Environ())
	cmd.Stdout = io.MultiWriter(stdout...)
	cmd.Stderr = io.MultiWriter(stderr...)
	cmd.WaitDelay = waitDelay
	setupProcessGroup(cmd)

	err = cmd.Run()
	end := time.Now()
	reapGroup(cmd)

	closeLogWriter(stdoutLog)
	closeLogWriter(stderrLog)
	rlOut.Flush()
	rlErr.Flush()
	rl := rlOut
	if !rl.Detected() {
		rl = rlErr
	}

	var lastMsg string
	if stdoutPath != "" {
		lastMsg, _ = ScanOutput(lastLine(stdoutPath))
	}

	result := &task.TaskResult{
		Index:      inv.Index,
		URL:        inv.URL,
		Task:       inv.Task,
		OutputPath: inv.Output,
		StartedAt:  start,
		EndedAt:    end,
		Duration:   end.Sub(start),
		LastMsg:    lastMsg,
		LogDir:     r.logDir,
	}
	if hw.Detected() {
		result.ConnectivityError = hw.Reason()
	}

	switch {
	case err != nil:
		result.State = task.StateFailed
		result.ExitCode = exitCode(err)
		switch {
		case ctx.Err() != nil:
			result.Error = "interrupted"
		case idle.Idled():
			result.Error = fmt.Sprintf("idle timeout: no output for %s", r.idleTimeout)
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			result.Error = fmt.Sprintf("max runtime %s exceeded", r.maxRuntime)
		default:
			result.Error = fmt.Sprintf("agent exited: %v", err)
		}
	case rl.Detected():
		result.State = task.StateRateLimited
		result.ResetsAt = rl.ResetsAt()
		result.Error = "model endpoint rate limited the agent"
	case !fileExists(output):
		result.State = task.StateFailed
		result.Error = "agent exited cleanly but wrote no output file"
	default:
		result.State = task.StateCompleted
	}

	return result
}

// resolveOutput returns the invocation as the agent sees it. With a working
// directory set, a relative output path is made absolute so the runner and
// the agent agree on where the trajectory goes.
func (r *AgentRunner) resolveOutput(inv *task.Invocation) (*task.Invocation, error) {
	if r.dir == "" || filepath.IsAbs(inv.Output) {
		return inv, nil
	}
	abs, err := filepath.Abs(inv.Output)
	if err != nil {
		return nil, err
	}
	cp := *inv
	cp.Output = abs
	return &cp, nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func failedResult(inv *task.Invocation, start time.Time, code int, msg string) *task.TaskResult {
	now := time.Now()
	return &task.TaskResult{
		Index:      inv.Index,
		URL:        inv.URL,
		Task:       inv.Task,
		OutputPath: inv.Output,
		State:      task.StateFailed,
		StartedAt:  start,
		EndedAt:    now,
		Duration:   now.Sub(start),
		ExitCode:   code,
		Error:      msg,
	}
}

// newLogWriter creates a file writer for capturing agent output.
func newLogWriter(dir, name string) io.Writer {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		slog.Warn("cannot create log file", "path", path, "error", err)
		return io.Discard
	}
	return f
}

// closeLogWriter closes the underlying file if the writer is an *os.File.
func closeLogWriter(w io.Writer) {
	if f, ok := w.(*os.File); ok {
		_ = f.Close()
	}
}

// lastLine reads the last non-empty line from a file.
func lastLine(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	var last string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	return last
}
