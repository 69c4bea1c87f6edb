package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/landform-io/landform/internal/engine"
	"github.com/landform-io/landform/internal/eval"
	"github.com/landform-io/landform/internal/telemetry"
)

var planJSON bool

var planCmd = &cobra.Command{
	Use:   "plan [path]",
	Short: "Show the changes a run would make",
	Long: `Evaluates the configuration, diffs it against recorded state, and
prints the resulting change set without touching any resource.

The change set shows:
  • Resources to be created
  • Resources to be updated (with attribute diffs)
  • Resources to be replaced because an immutable attribute changed
  • Resources to be deleted

Exit status is 0 when nothing would change, 2 when changes are pending,
and 1 on error.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Print the change set as JSON")
}

func runPlan(cmd *cobra.Command, args []string) error {
	hasChanges, err := executePlan(cmd, args)
	if err != nil {
		return err
	}
	if hasChanges {
		os.Exit(2)
	}
	return nil
}

func executePlan(cmd *cobra.Command, args []string) (bool, error) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	dir, entryPoint, err := resolveEntryPoint(rootChdir, args)
	if err != nil {
		return false, err
	}

	evaluator := eval.NewEvaluator(dir)
	cfg, err := evaluator.LoadConfig(ctx, entryPoint, rootProperties)
	if err != nil {
		return false, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := openStore(ctx, dir)
	if err != nil {
		return false, err
	}
	defer store.Close()

	eng := engine.New(builtinRegistry(), store,
		engine.WithLogger(telemetry.Component(logger, "engine")))

	plan, err := eng.Plan(ctx, cfg.Resources)
	if err != nil {
		return false, err
	}

	if planJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(plan.ChangeSet); err != nil {
			return false, err
		}
		return plan.ChangeSet.HasChanges(), nil
	}

	if !plan.ChangeSet.HasChanges() {
		fmt.Fprintln(out, "No changes. Resources match the configuration.")
		return false, nil
	}

	fmt.Fprintln(out, "Landform will perform the following actions:")
	renderChangeSet(out, plan.ChangeSet)
	renderSummary(out, plan.ChangeSet.Summary())
	return true, nil
}
