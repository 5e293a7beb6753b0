package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trajrun/internal/state"
	"github.com/ppiankov/trajrun/internal/task"
)

func newStateCmd() *cobra.Command {
	var flags settingsFlags

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Manage persistent record state",
		Long: `Manage the persistent record state used by 'trajrun run --resume'.

Records that completed are skipped by a resumed run while their url and task
are unchanged. Use 'trajrun state list' to see tracked records, 'trajrun state
reset <index>' to allow one to re-execute, or 'trajrun state clear' to reset
all state.`,
	}
	cmd.PersistentFlags().StringVar(&flags.outputDir, "output-dir", "./trajectories", "directory for trajectory output files")

	tracker := func(cmd *cobra.Command) (*state.Tracker, error) {
		s, err := resolveSettings(cmd, &flags)
		if err != nil {
			return nil, err
		}
		return state.Load(state.DefaultPath(s.ReportDir)), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show all tracked records",
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := tracker(cmd)
			if err != nil {
				return err
			}
			entries := tr.Entries()
			if len(entries) == 0 {
				fmt.Println("No tracked records.")
				return nil
			}

			keys := make([]int, 0, len(entries))
			for name := range entries {
				if idx, ok := task.ParseOutputName(name); ok {
					keys = append(keys, idx)
				}
			}
			sort.Ints(keys)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "INDEX\tSTATUS\tFINISHED\tURL\tERROR\n")
			for _, idx := range keys {
				e := entries[task.OutputName(idx)]
				finished := ""
				if !e.FinishedAt.IsZero() {
					finished = e.FinishedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", idx, e.Status, finished, e.URL, e.Error)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <index>",
		Short: "Reset a record to allow re-execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil || idx < 0 {
				return fmt.Errorf("invalid index %q", args[0])
			}
			tr, err := tracker(cmd)
			if err != nil {
				return err
			}
			key := task.OutputName(idx)
			entry := tr.Get(key)
			if entry == nil {
				return fmt.Errorf("record %d not found in state", idx)
			}
			tr.Reset(key)
			fmt.Printf("Reset record %d (was %s)\n", idx, entry.Status)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove all record state (allows full re-execution)",
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := tracker(cmd)
			if err != nil {
				return err
			}
			tr.Clear()
			fmt.Println("State cleared.")
			return nil
		},
	})

	return cmd
}
