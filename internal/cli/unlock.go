package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trajrun/internal/runner"
)

func newUnlockCmd() *cobra.Command {
	var flags settingsFlags

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Remove a stale output directory lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings(cmd, &flags)
			if err != nil {
				return err
			}

			info, err := runner.ReadLock(s.OutputDir)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintf(os.Stdout, "No lock found in %s\n", s.OutputDir)
					return nil
				}
				return fmt.Errorf("read lock: %w", err)
			}

			runner.Release(s.OutputDir)
			fmt.Fprintf(os.Stdout, "Removed lock in %s (was PID %d, run %s, since %s)\n",
				s.OutputDir, info.PID, info.RunID, info.StartedAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.outputDir, "output-dir", "./trajectories", "directory for trajectory output files")

	return cmd
}
