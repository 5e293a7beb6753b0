package runner

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Preflight checks that the agent can be spawned at all: the command must
// resolve on PATH and a leading script argument must exist. It catches a
// misconfigured agent before the first record instead of failing every one.
func (r *AgentRunner) Preflight() error {
	if _, err := exec.LookPath(r.command); err != nil {
		return fmt.Errorf("agent command %q: %w", r.command, err)
	}
	if len(r.args) == 0 || !isScript(r.args[0]) {
		return nil
	}
	script := r.args[0]
	if !filepath.IsAbs(script) && r.dir != "" {
		script = filepath.Join(r.dir, script)
	}
	if _, err := os.Stat(script); err != nil {
		return fmt.Errorf("agent script: %w", err)
	}
	return nil
}

func isScript(arg string) bool {
	for _, ext := range []string{".py", ".sh", ".js"} {
		if strings.HasSuffix(arg, ext) {
			return true
		}
	}
	return false
}
