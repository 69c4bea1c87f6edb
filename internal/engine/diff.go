package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/landform-io/landform/internal/ir"
	"github.com/landform-io/landform/internal/provider"
)

// Plan couples a desired graph with the change set that converges the
// state store onto it.
type Plan struct {
	Graph     *Graph
	ChangeSet *ir.ChangeSet
	Records   map[ir.Key]*ir.Record
	CreatedAt time.Time
}

// Plan evaluates the declarations into a change set. Configuration errors
// (invalid declarations, unresolved references, cycles, unknown providers)
// surface here, before any provider call; diffing itself never touches a
// provider.
func (e *Engine) Plan(ctx context.Context, resources []*ir.Resource) (*Plan, error) {
	graph, err := BuildGraph(ExpandForEach(resources))
	if err != nil {
		return nil, err
	}

	schemas := make(map[string]provider.Schema)
	for _, key := range graph.Order() {
		if _, ok := schemas[key.Kind]; ok {
			continue
		}
		schema, err := e.registry.SchemaFor(key.Kind)
		if err != nil {
			return nil, NewInvalidDeclaration("unknown resource kind", err).WithKey(key)
		}
		schemas[key.Kind] = schema
	}
	if err := checkRequiredAttrs(graph, schemas); err != nil {
		return nil, err
	}

	records, err := e.store.Load(ctx)
	if err != nil {
		return nil, NewStateError("loading state", err)
	}

	cs, err := computeChangeSet(graph, records, schemas)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		for _, c := range cs.Changes {
			e.metrics.RecordPlanChange(string(c.Action))
		}
	}

	return &Plan{
		Graph:     graph,
		ChangeSet: cs,
		Records:   records,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func checkRequiredAttrs(graph *Graph, schemas map[string]provider.Schema) error {
	for _, key := range graph.Order() {
		attrs := graph.Attrs(key)
		for _, name := range schemas[key.Kind].Required {
			if _, ok := attrs[name]; !ok {
				return NewInvalidDeclaration(
					fmt.Sprintf("missing required attribute %q", name), nil).WithKey(key)
			}
		}
	}
	return nil
}

// computeChangeSet walks desired keys in topological order deciding
// create/update/noop, splits updates of immutable attributes into
// delete+create pairs, and appends deletes for state-only keys in reverse
// order of the graph the records were applied under.
func computeChangeSet(graph *Graph, records map[ir.Key]*ir.Record, schemas map[string]provider.Schema) (*ir.ChangeSet, error) {
	cs := &ir.ChangeSet{}

	for _, key := range graph.Order() {
		desired, complete := resolveLenient(graph.Attrs(key), records)
		rec := records[key]

		switch {
		case rec == nil:
			cs.Changes = append(cs.Changes, &ir.Change{
				Key:     key,
				Action:  ir.ActionCreate,
				Desired: desired,
			})

		case rec.Status != ir.StatusApplied && rec.ProviderID == "":
			// A create that never finished; try again.
			cs.Changes = append(cs.Changes, &ir.Change{
				Key:     key,
				Action:  ir.ActionCreate,
				Prior:   rec,
				Desired: desired,
			})

		default:
			dirty := rec.Status != ir.StatusApplied || !complete ||
				!attrsEqual(desired, rec.Attrs)
			if !dirty {
				cs.Changes = append(cs.Changes, &ir.Change{
					Key:     key,
					Action:  ir.ActionNoop,
					Prior:   rec,
					Desired: desired,
				})
				continue
			}

			diff := diffAttrs(rec.Attrs, desired, schemas[key.Kind])
			if forcesReplacement(diff) {
				cs.Changes = append(cs.Changes,
					&ir.Change{Key: key, Action: ir.ActionDelete, Prior: rec, Replacing: true, Diff: diff},
					&ir.Change{Key: key, Action: ir.ActionCreate, Desired: desired, Replacing: true, Diff: diff},
				)
				continue
			}
			cs.Changes = append(cs.Changes, &ir.Change{
				Key:     key,
				Action:  ir.ActionUpdate,
				Prior:   rec,
				Desired: desired,
				Diff:    diff,
			})
		}
	}

	deletes, err := deleteChanges(graph, records)
	if err != nil {
		return nil, err
	}
	cs.Changes = append(cs.Changes, deletes...)

	return cs, nil
}

func deleteChanges(graph *Graph, records map[ir.Key]*ir.Record) ([]*ir.Change, error) {
	doomed := make(map[ir.Key]*ir.Record)
	for key, rec := range records {
		if !graph.Has(key) {
			doomed[key] = rec
		}
	}
	if len(doomed) == 0 {
		return nil, nil
	}

	prev, err := BuildRecordGraph(records)
	if err != nil {
		return nil, err
	}

	var changes []*ir.Change
	for _, key := range prev.ReverseOrder() {
		if rec, ok := doomed[key]; ok {
			changes = append(changes, &ir.Change{
				Key:    key,
				Action: ir.ActionDelete,
				Prior:  rec,
			})
		}
	}
	return changes, nil
}

// resolveLenient materializes attribute values, substituting recorded
// outputs for references. A reference whose target has no applied record
// keeps its ref:// form and marks the result incomplete; the final value
// is only known after the dependency applies.
func resolveLenient(attrs map[string]ir.Value, records map[ir.Key]*ir.Record) (map[string]any, bool) {
	complete := true
	lookup := func(ref ir.OutputRef) (any, bool) {
		rec := records[ref.Key()]
		if rec == nil || rec.Status != ir.StatusApplied {
			return nil, false
		}
		if v, ok := rec.Outputs[ref.Field]; ok {
			return v, true
		}
		if v, ok := rec.Attrs[ref.Field]; ok {
			return v, true
		}
		return nil, false
	}

	var walk func(v ir.Value) any
	walk = func(v ir.Value) any {
		switch val := v.(type) {
		case ir.Literal:
			return val.V
		case ir.OutputRef:
			if out, ok := lookup(val); ok {
				return out
			}
			complete = false
			return val.String()
		case ir.List:
			out := make([]any, 0, len(val))
			for _, item := range val {
				out = append(out, walk(item))
			}
			return out
		case ir.Map:
			out := make(map[string]any, len(val))
			for k, item := range val {
				out[k] = walk(item)
			}
			return out
		default:
			return nil
		}
	}

	out := make(map[string]any, len(attrs))
	for name, v := range attrs {
		out[name] = walk(v)
	}
	return out, complete
}

// attrsEqual compares snapshots structurally after JSON normalization:
// map key order is irrelevant, list order is significant.
func attrsEqual(a, b map[string]any) bool {
	return reflect.DeepEqual(normalizeJSON(a), normalizeJSON(b))
}

// normalizeJSON round-trips a value through JSON so numbers, maps and
// slices from pkl evaluation and from stored snapshots compare alike.
func normalizeJSON(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func diffAttrs(before, after map[string]any, schema provider.Schema) []ir.AttrDiff {
	names := make(map[string]bool, len(before)+len(after))
	for name := range before {
		names[name] = true
	}
	for name := range after {
		names[name] = true
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var diffs []ir.AttrDiff
	for _, name := range sorted {
		b, a := before[name], after[name]
		if reflect.DeepEqual(normalizeJSON(b), normalizeJSON(a)) {
			continue
		}
		diffs = append(diffs, ir.AttrDiff{
			Name:              name,
			Before:            b,
			After:             a,
			ForcesReplacement: schema.IsImmutable(name),
		})
	}
	return diffs
}

func forcesReplacement(diffs []ir.AttrDiff) bool {
	for _, d := range diffs {
		if d.ForcesReplacement {
			return true
		}
	}
	return false
}
