package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/landform-io/landform/internal/engine"
	"github.com/landform-io/landform/internal/eval"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate the configuration",
	Long: `Evaluates the configuration and checks it without touching state or
providers: declaration shape, reference targets, dependency cycles,
known resource kinds, and required attributes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	dir, entryPoint, err := resolveEntryPoint(rootChdir, args)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Checking %s... ", entryPoint)
	evaluator := eval.NewEvaluator(dir)
	cfg, err := evaluator.LoadConfig(ctx, entryPoint, rootProperties)
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Fprintln(out, "OK")

	fmt.Fprint(out, "Checking declarations... ")
	graph, err := engine.BuildGraph(engine.ExpandForEach(cfg.Resources))
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		return err
	}

	registry := builtinRegistry()
	for _, key := range graph.Order() {
		schema, err := registry.SchemaFor(key.Kind)
		if err != nil {
			fmt.Fprintln(out, "FAILED")
			return fmt.Errorf("resource %s: unknown resource kind: %w", key, err)
		}
		attrs := graph.Attrs(key)
		for _, name := range schema.Required {
			if _, ok := attrs[name]; !ok {
				fmt.Fprintln(out, "FAILED")
				return fmt.Errorf("resource %s: missing required attribute %q", key, name)
			}
		}
	}
	fmt.Fprintln(out, "OK")

	fmt.Fprintf(out, "\nConfiguration is valid: %d resource(s).\n", graph.Len())
	return nil
}
