package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/landform-io/landform/internal/engine"
	"github.com/landform-io/landform/internal/eval"
	"github.com/landform-io/landform/internal/ir"
	"github.com/landform-io/landform/internal/state"
	"github.com/landform-io/landform/internal/telemetry"
)

var (
	applyAutoApprove bool
	applyParallelism int
	applyTargets     []string
)

var applyCmd = &cobra.Command{
	Use:   "apply [path]",
	Short: "Apply the configuration",
	Long: `Plans and executes the changes needed to make recorded state match
the configuration. Changes run concurrently where the dependency graph
allows; a failure skips the failed resource's dependents while
independent branches continue.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of the plan before applying")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", 0, "Maximum concurrent provider operations (default 10)")
	applyCmd.Flags().StringArrayVar(&applyTargets, "target", nil, "Apply only the change for this kind/name key (repeatable)")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	dir, entryPoint, err := resolveEntryPoint(rootChdir, args)
	if err != nil {
		return err
	}

	evaluator := eval.NewEvaluator(dir)
	cfg, err := evaluator.LoadConfig(ctx, entryPoint, rootProperties)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
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

	plan, err := eng.Plan(ctx, cfg.Resources)
	if err != nil {
		return err
	}
	plan.ChangeSet, err = filterChangeSet(plan.ChangeSet, applyTargets)
	if err != nil {
		return err
	}

	if !plan.ChangeSet.HasChanges() {
		fmt.Fprintln(out, "No changes. Resources match the configuration.")
		return nil
	}

	fmt.Fprintln(out, "Landform will perform the following actions:")
	renderChangeSet(out, plan.ChangeSet)
	renderSummary(out, plan.ChangeSet.Summary())

	if !applyAutoApprove {
		fmt.Fprintln(out)
		if !confirm("Do you want to perform these actions?") {
			fmt.Fprintln(out, "Apply cancelled.")
			return nil
		}
	}

	fmt.Fprintln(out)
	report, applyErr := eng.Apply(ctx, plan)
	renderReport(out, report)
	saveRun(ctx, store, "apply", report, applyErr)
	metrics.RecordRunCompleted(runStatus(applyErr), report.FinishedAt.Sub(report.StartedAt))

	if applyErr != nil {
		return applyErr
	}

	renderConfigOutputs(ctx, out, store, cfg)
	return nil
}

// filterChangeSet keeps only the changes for the targeted keys. Targeting
// is plain key filtering: dependencies of a target are not pulled in.
func filterChangeSet(cs *ir.ChangeSet, targets []string) (*ir.ChangeSet, error) {
	if len(targets) == 0 {
		return cs, nil
	}
	want := make(map[string]bool, len(targets))
	for _, t := range targets {
		want[t] = true
	}
	matched := make(map[string]bool, len(targets))
	filtered := &ir.ChangeSet{}
	for _, c := range cs.Changes {
		if want[c.Key.String()] {
			matched[c.Key.String()] = true
			filtered.Changes = append(filtered.Changes, c)
		}
	}
	for _, t := range targets {
		if !matched[t] {
			return nil, fmt.Errorf("target %s matches no planned change", t)
		}
	}
	return filtered, nil
}

// serveMetrics builds the metrics sink and, when --metrics-addr is set,
// serves /metrics in the background for the rest of the process.
func serveMetrics() *telemetry.Metrics {
	metrics := telemetry.NewMetrics()
	if rootMetricsAddr != "" {
		go func() {
			if err := metrics.Serve(rootMetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn().Err(err).Str("addr", rootMetricsAddr).Msg("metrics server stopped")
			}
		}()
	}
	return metrics
}

// saveRun records the run in the store's history. Failure to record
// never blocks the operation.
func saveRun(ctx context.Context, store state.Store, op string, report *ir.Report, applyErr error) {
	runLog, ok := store.(state.RunLog)
	if !ok {
		return
	}
	sum := report.Summary()
	run := &state.Run{
		ID:         report.RunID,
		Op:         op,
		Status:     runStatus(applyErr),
		Applied:    sum.Applied,
		Failed:     sum.Failed,
		Skipped:    sum.Skipped,
		Noop:       sum.Noop,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if applyErr != nil {
		run.Error = applyErr.Error()
	}
	if err := runLog.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn().Err(err).Str("run_id", report.RunID).Msg("failed to record run history")
	}
}

func runStatus(applyErr error) string {
	if applyErr != nil {
		return "failed"
	}
	return "succeeded"
}

// renderConfigOutputs resolves the configuration's outputs against the
// applied records and prints them.
func renderConfigOutputs(ctx context.Context, out io.Writer, store state.Store, cfg *ir.Config) {
	if len(cfg.Outputs) == 0 {
		return
	}
	records, err := store.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to reload state for outputs")
		return
	}
	resolved, err := resolveOutputs(cfg.Outputs, records)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to resolve outputs")
		return
	}
	fmt.Fprintln(out, "\nOutputs:")
	for _, name := range sortedNames(resolved) {
		fmt.Fprintf(out, "  %s = %s\n", name, formatValue(resolved[name]))
	}
}

// resolveOutputs materializes output values, substituting resource
// references through the records.
func resolveOutputs(outputs map[string]any, records map[ir.Key]*ir.Record) (map[string]any, error) {
	resolved := make(map[string]any, len(outputs))
	lookup := recordLookup(records)
	for name, raw := range outputs {
		v, err := ir.ParseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", name, err)
		}
		value, err := ir.Resolve(v, lookup)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", name, err)
		}
		resolved[name] = value
	}
	return resolved, nil
}
