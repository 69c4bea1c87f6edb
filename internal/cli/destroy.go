package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/landform-io/landform/internal/engine"
	"github.com/landform-io/landform/internal/telemetry"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Delete every tracked resource",
	Long: `Plans against an empty configuration, so every tracked resource is
deleted in reverse dependency order, and executes that plan.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
	destroyCmd.Flags().IntVar(&applyParallelism, "parallelism", 0, "Maximum concurrent provider operations (default 10)")
}

func runDestroy(cmd *cobra.Command, args []string) error {
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

	unlock, err := lockStore(ctx, store)
	if err != nil {
		return err
	}
	defer unlock()

	metrics := serveMetrics()
	eng := engine.New(builtinRegistry(), store,
		engine.WithLogger(telemetry.Component(logger, "engine")),
		engine.WithMetrics(metrics),
		engine.WithEvents(applyEventPrinter(out)),
		engine.WithParallelism(applyParallelism))

	// An empty desired set plans a delete for every record.
	plan, err := eng.Plan(ctx, nil)
	if err != nil {
		return err
	}

	if !plan.ChangeSet.HasChanges() {
		fmt.Fprintln(out, "No resources to destroy.")
		return nil
	}

	fmt.Fprintln(out, "Landform will destroy the following resources:")
	renderChangeSet(out, plan.ChangeSet)
	renderSummary(out, plan.ChangeSet.Summary())

	if !destroyAutoApprove {
		fmt.Fprintln(out)
		if !confirm("Do you really want to destroy all tracked resources?") {
			fmt.Fprintln(out, "Destroy cancelled.")
			return nil
		}
	}

	fmt.Fprintln(out)
	report, applyErr := eng.Apply(ctx, plan)
	renderReport(out, report)
	saveRun(ctx, store, "destroy", report, applyErr)
	metrics.RecordRunCompleted(runStatus(applyErr), report.FinishedAt.Sub(report.StartedAt))
	return applyErr
}
