//go:build !windows

package runner

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setupProcessGroup starts the agent as the leader of a new process group.
// The browser the agent launches inherits the group, so cancelling the
// invocation takes it down too.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return killGroup(cmd.Process) }
}

// reapGroup kills whatever is left in the agent's group after the agent
// itself exited, typically a browser that outlived a crashed agent.
func reapGroup(cmd *exec.Cmd) {
	if cmd.Process == nil || cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		return
	}
	_ = killGroup(cmd.Process)
}

// killGroup sends SIGKILL to every process in p's group. A group that is
// already gone reports os.ErrProcessDone.
func killGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
