package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/landform-io/landform/internal/engine"
	"github.com/landform-io/landform/internal/ir"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"

	// timeResolution rounds durations for display.
	timeResolution = 10 * time.Millisecond
)

// renderChangeSet prints the detailed change list. Noop entries are
// omitted; a replacement pair prints once, as the -/+ form.
func renderChangeSet(w io.Writer, cs *ir.ChangeSet) {
	for _, change := range cs.Changes {
		if change.Action == ir.ActionNoop {
			continue
		}
		if change.Replacing && change.Action == ir.ActionCreate {
			// Rendered with its delete half.
			continue
		}

		symbol, color, verb := "~", colorYellow, "updated"
		switch {
		case change.Replacing:
			symbol, verb = "-/+", "replaced"
		case change.Action == ir.ActionCreate:
			symbol, color, verb = "+", colorGreen, "created"
		case change.Action == ir.ActionDelete:
			symbol, color, verb = "-", colorRed, "deleted"
		}

		fmt.Fprintf(w, "\n%s  # %s will be %s%s\n", color, change.Key, verb, colorReset)
		fmt.Fprintf(w, "%s  %s resource %q %q {%s\n", color, symbol, change.Key.Kind, change.Key.Name, colorReset)

		switch {
		case len(change.Diff) > 0:
			renderAttrDiffs(w, change.Diff)
		case change.Action == ir.ActionCreate:
			for _, name := range sortedNames(change.Desired) {
				fmt.Fprintf(w, "%s      + %s = %s%s\n", colorGreen, name, formatValue(change.Desired[name]), colorReset)
			}
		case change.Action == ir.ActionDelete && change.Prior != nil:
			for _, name := range sortedNames(change.Prior.Attrs) {
				fmt.Fprintf(w, "%s      - %s = %s%s\n", colorRed, name, formatValue(change.Prior.Attrs[name]), colorReset)
			}
		}

		fmt.Fprintf(w, "%s  }%s\n", color, colorReset)
	}
}

// renderAttrDiffs prints attribute-level detail for updates and
// replacements.
func renderAttrDiffs(w io.Writer, diffs []ir.AttrDiff) {
	for _, d := range diffs {
		suffix := ""
		if d.ForcesReplacement {
			suffix = " (forces replacement)"
		}
		switch {
		case d.Before == nil:
			fmt.Fprintf(w, "%s      + %s = %s%s%s\n", colorGreen, d.Name, formatValue(d.After), suffix, colorReset)
		case d.After == nil:
			fmt.Fprintf(w, "%s      - %s = %s%s%s\n", colorRed, d.Name, formatValue(d.Before), suffix, colorReset)
		default:
			fmt.Fprintf(w, "%s      ~ %s = %s -> %s%s%s\n", colorYellow, d.Name, formatValue(d.Before), formatValue(d.After), suffix, colorReset)
		}
	}
}

// renderSummary prints the plan summary counts.
func renderSummary(w io.Writer, s ir.Summary) {
	fmt.Fprintln(w, "\nPlan summary:")
	fmt.Fprintf(w, "  Create:  %d\n", s.Create)
	fmt.Fprintf(w, "  Update:  %d\n", s.Update)
	fmt.Fprintf(w, "  Delete:  %d\n", s.Delete)
	fmt.Fprintf(w, "  Replace: %d\n", s.Replace)
	fmt.Fprintf(w, "  Noop:    %d\n", s.Noop)
}

// renderReport prints the apply outcome counts and any failures.
func renderReport(w io.Writer, report *ir.Report) {
	sum := report.Summary()
	fmt.Fprintf(w, "\nApply complete. Resources: %d applied, %d failed, %d skipped, %d unchanged.\n",
		sum.Applied, sum.Failed, sum.Skipped, sum.Noop)
	for _, entry := range report.Entries {
		if entry.Outcome == ir.OutcomeFailed {
			fmt.Fprintf(w, "%s  %s (%s): %s%s\n", colorRed, entry.Key, entry.Action, entry.Err, colorReset)
		}
	}
}

// applyEventPrinter returns a progress callback that renders one line
// per event. Events arrive from worker goroutines.
func applyEventPrinter(w io.Writer) engine.ApplyCallback {
	var mu sync.Mutex
	return func(ev engine.ApplyEvent) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Status {
		case "started":
			fmt.Fprintf(w, "%s: %s...\n", ev.Key, progressVerb(ev.Action))
		case "completed":
			fmt.Fprintf(w, "%s%s: %s (%s)%s\n", colorGreen, ev.Key, doneVerb(ev.Action), ev.Duration.Round(timeResolution), colorReset)
		case "failed":
			fmt.Fprintf(w, "%s%s: failed: %v%s\n", colorRed, ev.Key, ev.Error, colorReset)
		case "skipped":
			fmt.Fprintf(w, "%s%s: skipped (%v)%s\n", colorYellow, ev.Key, ev.Error, colorReset)
		}
	}
}

func progressVerb(action string) string {
	switch action {
	case "create":
		return "creating"
	case "update":
		return "updating"
	case "delete":
		return "deleting"
	}
	return action
}

func doneVerb(action string) string {
	switch action {
	case "create":
		return "created"
	case "update":
		return "updated"
	case "delete":
		return "deleted"
	}
	return action
}

// formatValue returns a human-readable representation of an attribute
// value. Composite values render as compact JSON.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func sortedNames(attrs map[string]any) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// recordLookup resolves references against applied records, outputs
// first, then attributes.
func recordLookup(records map[ir.Key]*ir.Record) ir.RefLookup {
	return func(ref ir.OutputRef) (any, bool) {
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
}

// confirm asks for interactive approval.
func confirm(prompt string) bool {
	fmt.Printf("%s (y/n): ", prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}
