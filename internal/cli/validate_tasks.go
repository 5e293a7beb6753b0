package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trajrun/internal/config"
	"github.com/ppiankov/trajrun/internal/task"
)

func newValidateTasksCmd() *cobra.Command {
	var tasksFile string

	cmd := &cobra.Command{
		Use:   "validate-tasks",
		Short: "Validate a tasks file without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateTasks(os.Stdout, tasksFile)
		},
	}

	cmd.Flags().StringVar(&tasksFile, "tasks", config.DefaultTasksFile, "path to tasks JSON file")

	return cmd
}

func validateTasks(w io.Writer, tasksFile string) error {
	entries, err := config.LoadTasks(tasksFile)
	if err != nil {
		return &ConfigError{Err: fmt.Errorf("validate: %w", err)}
	}

	bad := config.Malformed(entries)
	for _, e := range bad {
		fmt.Fprintf(w, "  record %d: %v\n", e.Index, e.Err)
	}
	if len(bad) > 0 {
		return configErrorf("validate: %d of %d records malformed", len(bad), len(entries))
	}

	fmt.Fprintf(w, "valid: %d records, %d distinct urls\n", len(entries), countURLs(entries))
	return nil
}

func countURLs(entries []task.Entry) int {
	seen := make(map[string]struct{})
	for _, e := range entries {
		seen[e.Record.URL] = struct{}{}
	}
	return len(seen)
}
