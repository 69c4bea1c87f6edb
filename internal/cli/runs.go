package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/landform-io/landform/internal/state"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent run history",
	Long: `Lists the runs recorded by apply and destroy, newest first. Run
history lives in the state store; remote backends may not keep it.`,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to show")
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	dir, _, err := resolveEntryPoint(rootChdir, nil)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, dir)
	if err != nil {
		return err
	}
	defer store.Close()

	runLog, ok := store.(state.RunLog)
	if !ok {
		return fmt.Errorf("the configured state backend does not keep run history")
	}

	runs, err := runLog.ListRuns(ctx, runsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	for _, run := range runs {
		status := run.Status
		if status == "failed" {
			status = colorRed + status + colorReset
		}
		fmt.Fprintf(out, "%s  %-7s %-9s applied=%d failed=%d skipped=%d noop=%d  %s (%s)\n",
			shortID(run.ID), run.Op, status,
			run.Applied, run.Failed, run.Skipped, run.Noop,
			run.StartedAt.Local().Format(time.RFC3339),
			run.FinishedAt.Sub(run.StartedAt).Round(timeResolution))
		if run.Error != "" {
			fmt.Fprintf(out, "          %s\n", run.Error)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
