package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/landform-io/landform/internal/engine"
	"github.com/landform-io/landform/internal/eval"
)

var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Output the dependency graph in DOT format",
	Long: `Prints the desired resource graph in Graphviz DOT format. Pipe the
output to 'dot' to render an image:

  landform graph | dot -Tpng > graph.png`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	dir, entryPoint, err := resolveEntryPoint(rootChdir, args)
	if err != nil {
		return err
	}

	evaluator := eval.NewEvaluator(dir)
	cfg, err := evaluator.LoadConfig(ctx, entryPoint, rootProperties)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	graph, err := engine.BuildGraph(engine.ExpandForEach(cfg.Resources))
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), graph.DOT())
	return nil
}
