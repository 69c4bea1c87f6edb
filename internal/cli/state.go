package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/landform-io/landform/internal/engine"
	"github.com/landform-io/landform/internal/eval"
	"github.com/landform-io/landform/internal/ir"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and repair recorded state",
	Long: `Commands for inspecting and modifying the state store directly.
None of them touch the underlying resources.`,
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked resources",
	RunE:  runStateList,
}

var stateShowJSON bool

var stateShowCmd = &cobra.Command{
	Use:   "show <kind/name>",
	Short: "Show the record of a single resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateMvCmd = &cobra.Command{
	Use:   "mv <source> <destination>",
	Short: "Move a record to a new kind/name key",
	Args:  cobra.ExactArgs(2),
	RunE:  runStateMv,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <kind/name>",
	Short: "Remove a record from state (does not delete the resource)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

var stateImportCmd = &cobra.Command{
	Use:   "import <kind/name> <provider-id>",
	Short: "Track an existing resource under a declared key",
	Long: `Records an existing resource against its declaration so landform
manages it going forward. The declared attributes are taken as the
resource's current attributes; 'landform plan' afterwards shows any
difference it would reconcile.`,
	Args: cobra.ExactArgs(2),
	RunE: runStateImport,
}

func init() {
	stateShowCmd.Flags().BoolVar(&stateShowJSON, "json", false, "Print the record as JSON")

	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateMvCmd)
	stateCmd.AddCommand(stateRmCmd)
	stateCmd.AddCommand(stateImportCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
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

	records, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No resources in state.")
		return nil
	}

	keys := make([]ir.Key, 0, len(records))
	for key := range records {
		keys = append(keys, key)
	}
	ir.SortKeys(keys)

	for _, key := range keys {
		rec := records[key]
		fmt.Fprintf(out, "  %s  status=%s id=%s\n", key, rec.Status, rec.ProviderID)
	}
	fmt.Fprintf(out, "\nTotal: %d resource(s)\n", len(records))
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	key, err := ir.ParseKey(args[0])
	if err != nil {
		return err
	}

	dir, _, err := resolveEntryPoint(rootChdir, nil)
	if err != nil {
		return err
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
	rec, ok := records[key]
	if !ok {
		return fmt.Errorf("resource %s not found in state", key)
	}

	if stateShowJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	fmt.Fprintf(out, "# %s\n", key)
	fmt.Fprintf(out, "  status      = %s\n", rec.Status)
	fmt.Fprintf(out, "  provider id = %s\n", rec.ProviderID)
	fmt.Fprintf(out, "  applied at  = %s\n", rec.AppliedAt.Format(time.RFC3339))
	if len(rec.Dependencies) > 0 {
		fmt.Fprintf(out, "  depends on  = %v\n", rec.Dependencies)
	}
	if len(rec.Attrs) > 0 {
		fmt.Fprintln(out, "\n  Attributes:")
		for _, name := range sortedNames(rec.Attrs) {
			fmt.Fprintf(out, "    %s = %s\n", name, formatValue(rec.Attrs[name]))
		}
	}
	if len(rec.Outputs) > 0 {
		fmt.Fprintln(out, "\n  Outputs:")
		for _, name := range sortedNames(rec.Outputs) {
			fmt.Fprintf(out, "    %s = %s\n", name, formatValue(rec.Outputs[name]))
		}
	}
	return nil
}

func runStateMv(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	src, err := ir.ParseKey(args[0])
	if err != nil {
		return err
	}
	dst, err := ir.ParseKey(args[1])
	if err != nil {
		return err
	}

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

	records, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	rec, ok := records[src]
	if !ok {
		return fmt.Errorf("resource %s not found in state", src)
	}
	if _, taken := records[dst]; taken {
		return fmt.Errorf("resource %s already exists in state", dst)
	}

	moved := *rec
	moved.Kind = dst.Kind
	moved.Name = dst.Name
	if err := store.CommitOne(ctx, &moved); err != nil {
		return fmt.Errorf("failed to write moved record: %w", err)
	}

	// Records that depended on the old key must point at the new one, or
	// deletion ordering would lose the edge.
	for key, other := range records {
		if key == src || !dependsOnKey(other, src) {
			continue
		}
		updated := *other
		updated.Dependencies = replaceDependency(other.Dependencies, src.String(), dst.String())
		if err := store.CommitOne(ctx, &updated); err != nil {
			return fmt.Errorf("failed to rewrite dependencies of %s: %w", key, err)
		}
	}

	if err := store.RemoveOne(ctx, src); err != nil {
		return fmt.Errorf("failed to remove old record: %w", err)
	}

	fmt.Fprintf(out, "Moved %s to %s\n", src, dst)
	return nil
}

func dependsOnKey(rec *ir.Record, key ir.Key) bool {
	for _, dep := range rec.Dependencies {
		if dep == key.String() {
			return true
		}
	}
	return false
}

func replaceDependency(deps []string, old, updated string) []string {
	out := make([]string, len(deps))
	for i, dep := range deps {
		if dep == old {
			dep = updated
		}
		out[i] = dep
	}
	return out
}

func runStateRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	key, err := ir.ParseKey(args[0])
	if err != nil {
		return err
	}

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

	records, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if _, ok := records[key]; !ok {
		return fmt.Errorf("resource %s not found in state", key)
	}

	if err := store.RemoveOne(ctx, key); err != nil {
		return fmt.Errorf("failed to remove record: %w", err)
	}

	fmt.Fprintf(out, "Removed %s from state (the resource was NOT deleted)\n", key)
	return nil
}

func runStateImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	key, err := ir.ParseKey(args[0])
	if err != nil {
		return err
	}
	providerID := args[1]

	dir, entryPoint, err := resolveEntryPoint(rootChdir, nil)
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
	if !graph.Has(key) {
		return fmt.Errorf("resource %s is not declared in the configuration", key)
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

	records, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if _, ok := records[key]; ok {
		return fmt.Errorf("resource %s already exists in state", key)
	}

	// The declared attributes stand in for the resource's current ones;
	// references must resolve, so dependencies have to be applied first.
	attrs, err := ir.ResolveAttrs(graph.Attrs(key), recordLookup(records))
	if err != nil {
		return fmt.Errorf("cannot import %s: %w (apply its dependencies first)", key, err)
	}

	var deps []string
	for _, dep := range graph.Dependencies(key) {
		deps = append(deps, dep.String())
	}

	rec := &ir.Record{
		Kind:         key.Kind,
		Name:         key.Name,
		ProviderID:   providerID,
		Attrs:        attrs,
		Dependencies: deps,
		Hash:         ir.HashAttrs(attrs),
		Status:       ir.StatusApplied,
		AppliedAt:    time.Now().UTC(),
	}
	if err := store.CommitOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	fmt.Fprintf(out, "Imported %s (id: %s)\n", key, providerID)
	fmt.Fprintln(out, "Run 'landform plan' to check the declaration against the imported record.")
	return nil
}
