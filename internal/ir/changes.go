package ir

import "time"

// Action is the operation a change entry asks of the executor.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionNoop   Action = "noop"
)

// Change is one entry of a change set.
type Change struct {
	Key    Key    `json:"key"`
	Action Action `json:"action"`
	// Prior is the last-applied snapshot; nil for creates.
	Prior *Record `json:"prior,omitempty"`
	// Desired is the resolved desired attribute snapshot; nil for deletes.
	Desired map[string]any `json:"desired,omitempty"`
	// Replacing marks the delete and create halves of a replacement pair.
	Replacing bool `json:"replacing,omitempty"`
	// Diff carries attribute-level detail for rendering.
	Diff []AttrDiff `json:"diff,omitempty"`
}

// AttrDiff describes one changed attribute.
type AttrDiff struct {
	Name              string `json:"name"`
	Before            any    `json:"before"`
	After             any    `json:"after"`
	ForcesReplacement bool   `json:"forcesReplacement,omitempty"`
}

// ChangeSet is the ordered list of changes one reconcile run will apply:
// creates and updates in topological order, then deletes in reverse order
// of the previous graph.
type ChangeSet struct {
	Changes []*Change `json:"changes"`
}

// Summary counts changes by action. Replacement pairs count once under
// Replace rather than as a delete plus a create.
type Summary struct {
	Create  int `json:"create"`
	Update  int `json:"update"`
	Delete  int `json:"delete"`
	Replace int `json:"replace"`
	Noop    int `json:"noop"`
}

func (cs *ChangeSet) Summary() Summary {
	var s Summary
	for _, c := range cs.Changes {
		switch {
		case c.Replacing && c.Action == ActionDelete:
			s.Replace++
		case c.Replacing && c.Action == ActionCreate:
			// counted with its delete half
		case c.Action == ActionCreate:
			s.Create++
		case c.Action == ActionUpdate:
			s.Update++
		case c.Action == ActionDelete:
			s.Delete++
		case c.Action == ActionNoop:
			s.Noop++
		}
	}
	return s
}

// HasChanges reports whether any entry needs a provider call.
func (cs *ChangeSet) HasChanges() bool {
	for _, c := range cs.Changes {
		if c.Action != ActionNoop {
			return true
		}
	}
	return false
}

// Outcome is the terminal result of one change entry.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeNoop    Outcome = "noop"
)

// ReportEntry records what happened to one change. Entries keep change-set
// order regardless of completion order.
type ReportEntry struct {
	Key       Key           `json:"key"`
	Action    Action        `json:"action"`
	Outcome   Outcome       `json:"outcome"`
	Err       string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Replacing bool          `json:"replacing,omitempty"`
}

// Report is the result of one apply run.
type Report struct {
	RunID      string         `json:"runId"`
	Entries    []*ReportEntry `json:"entries"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// ReportSummary counts entries by outcome.
type ReportSummary struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Noop    int `json:"noop"`
}

func (r *Report) Summary() ReportSummary {
	var s ReportSummary
	for _, e := range r.Entries {
		switch e.Outcome {
		case OutcomeApplied:
			s.Applied++
		case OutcomeFailed:
			s.Failed++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeNoop:
			s.Noop++
		}
	}
	return s
}

// Entry returns the first entry for key, nil if absent.
func (r *Report) Entry(key Key) *ReportEntry {
	for _, e := range r.Entries {
		if e.Key == key {
			return e
		}
	}
	return nil
}
