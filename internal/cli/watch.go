package cli

import (
	"context"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ppiankov/trajrun/internal/reporter"
	"github.com/ppiankov/trajrun/internal/state"
)

func newWatchCmd() *cobra.Command {
	var flags settingsFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live view of the trajectories directory",
		Long:  "Watch follows the output directory and the run state with filesystem notifications and shows which records are running, done, failed or still pending.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings(cmd, &flags)
			if err != nil {
				return err
			}

			entries := loadEntriesBestEffort(s.TasksFile)
			statePath := state.DefaultPath(s.ReportDir)
			collect := func() *reporter.Snapshot {
				return reporter.Collect(s.OutputDir, statePath, entries)
			}

			if !isTerminal() {
				reporter.NewTextReporter(os.Stdout, false).PrintStatus(collect())
				return nil
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			changes := make(chan struct{}, 1)
			go func() {
				if err := reporter.WatchDirs(ctx, changes, s.OutputDir, s.ReportDir); err != nil {
					slog.Error("watch failed", "error", err)
				}
			}()

			_, err = tea.NewProgram(reporter.NewWatchModel(collect, changes, cancel), tea.WithAltScreen()).Run()
			return err
		},
	}

	bindPathFlags(cmd, &flags)
	return cmd
}
