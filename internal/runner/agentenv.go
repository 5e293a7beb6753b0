package runner

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// agentEnv composes the environment an agent process starts with: the
// sanitized parent environment, then credentials forwarded by name, then the
// explicit agent.env values. Later layers win.
type agentEnv struct {
	pass  []string
	extra map[string]string
}

// newAgentEnv resolves "env:VAR" references in extra. A reference to an empty
// or unset variable is an error, because the operator asked for it by name.
// Names in pass are forwarded only when set. Names the sanitizer keeps anyway
// need no forwarding.
func newAgentEnv(pass []string, extra map[string]string) (*agentEnv, error) {
	resolved := make(map[string]string, len(extra))
	for k, v := range extra {
		ref, isRef := strings.CutPrefix(v, "env:")
		if !isRef {
			resolved[k] = v
			continue
		}
		val := os.Getenv(ref)
		if val == "" {
			return nil, fmt.Errorf("env var %q (referenced by %q) is not set", ref, k)
		}
		resolved[k] = val
	}
	return &agentEnv{pass: append([]string(nil), pass...), extra: resolved}, nil
}

// Environ builds the agent environment from the parent's environ.
func (e *agentEnv) Environ(environ []string) []string {
	out := sanitizeEnv(environ)

	parent := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			parent[k] = v
		}
	}
	for _, name := range e.pass {
		if _, explicit := e.extra[name]; explicit || !isSensitive(name) {
			continue
		}
		if v := parent[name]; v != "" {
			out = append(out, name+"="+v)
		}
	}

	keys := make([]string, 0, len(e.extra))
	for k := range e.extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+e.extra[k])
	}
	return out
}
