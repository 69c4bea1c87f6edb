package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/landform-io/landform/internal/eval"
)

var outputJSON bool

var outputCmd = &cobra.Command{
	Use:   "output [name]",
	Short: "Show the configuration's output values",
	Long: `Resolves the outputs declared in the configuration against recorded
state and prints them.

With no argument all outputs are displayed; with a name, only that
output's value.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOutput,
}

func init() {
	outputCmd.Flags().BoolVar(&outputJSON, "json", false, "Print outputs as JSON")
}

func runOutput(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	dir, entryPoint, err := resolveEntryPoint(rootChdir, nil)
	if err != nil {
		return err
	}

	evaluator := eval.NewEvaluator(dir)
	cfg, err := evaluator.LoadConfig(ctx, entryPoint, rootProperties)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(cfg.Outputs) == 0 {
		fmt.Fprintln(out, "No outputs defined.")
		return nil
	}

	store, err := openStore(ctx, dir)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	resolved, err := resolveOutputs(cfg.Outputs, records)
	if err != nil {
		return err
	}

	if len(args) > 0 {
		name := args[0]
		value, ok := resolved[name]
		if !ok {
			return fmt.Errorf("output %q not found", name)
		}
		if outputJSON {
			data, err := json.Marshal(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		fmt.Fprintln(out, formatValue(value))
		return nil
	}

	if outputJSON {
		data, err := json.MarshalIndent(resolved, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	for _, name := range sortedNames(resolved) {
		fmt.Fprintf(out, "%s = %s\n", name, formatValue(resolved[name]))
	}
	return nil
}
