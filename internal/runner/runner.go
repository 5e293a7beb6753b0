package runner

import (
	"context"

	"github.com/ppiankov/trajrun/internal/task"
)

// Invoker runs one agent invocation to completion and returns its result.
// Implementations: AgentRunner.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, inv *task.Invocation) *task.TaskResult
}
