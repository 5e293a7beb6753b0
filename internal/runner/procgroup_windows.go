//go:build windows

package runner

import "os/exec"

// setupProcessGroup leaves the default cancellation in place: without
// process groups only the agent itself is killed, not its browser.
func setupProcessGroup(cmd *exec.Cmd) {}

func reapGroup(cmd *exec.Cmd) {}
