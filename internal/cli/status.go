package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trajrun/internal/config"
	"github.com/ppiankov/trajrun/internal/reporter"
	"github.com/ppiankov/trajrun/internal/state"
	"github.com/ppiankov/trajrun/internal/task"
)

func newStatusCmd() *cobra.Command {
	var flags settingsFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which records have trajectories and how the last run went",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings(cmd, &flags)
			if err != nil {
				return err
			}
			return showStatus(os.Stdout, s)
		},
	}

	bindPathFlags(cmd, &flags)
	return cmd
}

func showStatus(w io.Writer, s *config.Settings) error {
	entries := loadEntriesBestEffort(s.TasksFile)
	snap := reporter.Collect(s.OutputDir, state.DefaultPath(s.ReportDir), entries)
	if len(snap.Rows) == 0 {
		fmt.Fprintf(w, "No records found in %s or %s.\n", s.TasksFile, s.OutputDir)
		return nil
	}

	if snap.Active != nil {
		fmt.Fprintf(w, "Batch running: run %s, PID %d, since %s\n\n",
			snap.Active.RunID, snap.Active.PID, snap.Active.StartedAt.Format(time.RFC3339))
	}
	reporter.NewTextReporter(w, isTerminal()).PrintStatus(snap)

	if dir, err := findLatestRunDir(s.ReportDir); err == nil {
		if report, err := reporter.ReadJSONReport(filepath.Join(dir, "report.json")); err == nil {
			fmt.Fprintf(w, "last run: %s  %s  completed %d, failed %d, skipped %d, rate limited %d\n",
				report.RunID, report.Timestamp.Format("2006-01-02 15:04:05"),
				report.Completed, report.Failed, report.Skipped, report.RateLimited)
		}
	}
	return nil
}

// loadEntriesBestEffort reads the tasks file for row labels. A missing or
// unreadable file falls back to discovering rows from disk.
func loadEntriesBestEffort(path string) []task.Entry {
	entries, err := config.LoadTasks(path)
	if err != nil {
		if !errors.Is(err, config.ErrTasksFileNotFound) {
			slog.Warn("cannot read tasks file", "path", path, "error", err)
		}
		return nil
	}
	return entries
}

// findLatestRunDir scans reportDir for the most recent run directory that
// contains a report.json.
func findLatestRunDir(reportDir string) (string, error) {
	entries, err := os.ReadDir(reportDir)
	if err != nil {
		return "", fmt.Errorf("cannot read report directory: %w", err)
	}

	// entries are sorted alphabetically; timestamps sort chronologically
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(reportDir, e.Name())
		if _, err := os.Stat(filepath.Join(candidate, "report.json")); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no completed runs found in %s", reportDir)
}
