package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/landform-io/landform/internal/ir"
)

// Apply executes a plan. Creates and updates run first, in dependency
// order; deletes follow in reverse order of the graph the records were
// applied under. Within a phase every entry becomes eligible the moment
// all its dependencies reach a terminal outcome, and a bounded worker
// pool limits concurrent provider calls.
//
// A provider failure marks the entry failed and skips its dependents;
// independent branches keep going. State store failures and cancellation
// stop new entries; whatever already finished stays in the report.
func (e *Engine) Apply(ctx context.Context, plan *Plan) (*ir.Report, error) {
	changes := plan.ChangeSet.Changes

	report := &ir.Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Entries:   make([]*ir.ReportEntry, len(changes)),
	}
	for i, c := range changes {
		entry := &ir.ReportEntry{Key: c.Key, Action: c.Action, Replacing: c.Replacing}
		if c.Action == ir.ActionNoop {
			entry.Outcome = ir.OutcomeNoop
		}
		report.Entries[i] = entry
	}

	records := make(map[ir.Key]*ir.Record, len(plan.Records))
	for key, rec := range plan.Records {
		records[key] = rec
	}

	r := &runner{
		e:       e,
		plan:    plan,
		records: records,
		entries: report.Entries,
		done:    make(map[int]bool),
		failed:  make(map[int]bool),
		sem:     make(chan struct{}, e.parallelism),
	}
	r.cond = sync.NewCond(&r.mu)

	// Wake waiters when the context dies so they can mark themselves skipped.
	stop := context.AfterFunc(ctx, func() { r.cond.Broadcast() })
	defer stop()

	phase1, deps1 := r.createUpdateTasks()
	phase2, deps2, err := r.deleteTasks()
	if err != nil {
		report.FinishedAt = time.Now().UTC()
		return report, err
	}

	e.log.Debug().
		Str("run_id", report.RunID).
		Int("changes", len(changes)).
		Int("parallelism", e.parallelism).
		Msg("starting apply")

	r.runPhase(ctx, phase1, deps1)
	r.runPhase(ctx, phase2, deps2)

	report.FinishedAt = time.Now().UTC()

	if r.fatal != nil {
		return report, r.fatal
	}
	if len(r.errs) > 0 {
		return report, fmt.Errorf("%d resource(s) failed: %w", len(r.errs), errors.Join(r.errs...))
	}
	return report, nil
}

type runner struct {
	e       *Engine
	plan    *Plan
	entries []*ir.ReportEntry

	recMu   sync.Mutex
	records map[ir.Key]*ir.Record

	mu     sync.Mutex
	cond   *sync.Cond
	done   map[int]bool // applied
	failed map[int]bool // failed or skipped; dependents must skip
	fatal  error        // state failure or cancellation; no new entries
	errs   []error

	sem chan struct{}
}

// createUpdateTasks selects the first-phase entries and their dependency
// edges: the desired graph's edges restricted to keys with a task, plus
// the delete half of a replacement gating its create half.
func (r *runner) createUpdateTasks() ([]int, map[int][]int) {
	changes := r.plan.ChangeSet.Changes

	keyTask := make(map[ir.Key]int)    // create/update task per key
	replDelete := make(map[ir.Key]int) // replacement delete per key
	var tasks []int
	for i, c := range changes {
		switch {
		case c.Action == ir.ActionDelete && c.Replacing:
			tasks = append(tasks, i)
			replDelete[c.Key] = i
		case c.Action == ir.ActionCreate || c.Action == ir.ActionUpdate:
			tasks = append(tasks, i)
			keyTask[c.Key] = i
		}
	}

	deps := make(map[int][]int, len(tasks))
	for _, i := range tasks {
		c := changes[i]
		if c.Action == ir.ActionDelete {
			continue
		}
		for _, dep := range r.plan.Graph.Dependencies(c.Key) {
			if j, ok := keyTask[dep]; ok {
				deps[i] = append(deps[i], j)
			}
		}
		if c.Replacing {
			if j, ok := replDelete[c.Key]; ok {
				deps[i] = append(deps[i], j)
			}
		}
	}
	return tasks, deps
}

// deleteTasks selects the second-phase entries. A record deletes only
// after every record that depended on it is gone, so edges come from the
// record graph's dependents.
func (r *runner) deleteTasks() ([]int, map[int][]int, error) {
	changes := r.plan.ChangeSet.Changes

	keyTask := make(map[ir.Key]int)
	var tasks []int
	for i, c := range changes {
		if c.Action == ir.ActionDelete && !c.Replacing {
			tasks = append(tasks, i)
			keyTask[c.Key] = i
		}
	}
	if len(tasks) == 0 {
		return nil, nil, nil
	}

	prev, err := BuildRecordGraph(r.plan.Records)
	if err != nil {
		return nil, nil, err
	}

	deps := make(map[int][]int, len(tasks))
	for _, i := range tasks {
		for _, dependent := range prev.Dependents(changes[i].Key) {
			if j, ok := keyTask[dependent]; ok {
				deps[i] = append(deps[i], j)
			}
		}
	}
	return tasks, deps, nil
}

// runPhase executes one phase under the counting-down join: each task
// waits until its dependencies are terminal, skips if any of them failed,
// then takes a worker slot and applies its change.
func (r *runner) runPhase(ctx context.Context, tasks []int, deps map[int][]int) {
	var wg sync.WaitGroup
	for _, i := range tasks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := r.plan.ChangeSet.Changes[i]

			r.mu.Lock()
			for {
				if r.fatal == nil && ctx.Err() != nil {
					r.fatal = NewCancelled(ctx.Err())
				}
				if r.fatal != nil {
					r.skipLocked(i, r.fatal)
					r.mu.Unlock()
					r.cond.Broadcast()
					return
				}
				ready, depFailed := true, false
				for _, d := range deps[i] {
					if r.failed[d] {
						depFailed = true
						break
					}
					if !r.done[d] {
						ready = false
						break
					}
				}
				if depFailed {
					r.skipLocked(i, fmt.Errorf("dependency failed"))
					r.mu.Unlock()
					r.cond.Broadcast()
					return
				}
				if ready {
					break
				}
				r.cond.Wait()
			}
			r.mu.Unlock()

			r.sem <- struct{}{}
			start := time.Now()
			r.e.emit(ApplyEvent{Key: c.Key.String(), Action: string(c.Action), Status: "started"})
			err := r.applyOne(ctx, c)
			<-r.sem
			elapsed := time.Since(start)

			r.mu.Lock()
			entry := r.entries[i]
			entry.Duration = elapsed
			if err != nil {
				entry.Outcome = ir.OutcomeFailed
				entry.Err = err.Error()
				r.failed[i] = true
				r.errs = append(r.errs, err)
				if isRunFatal(err) && r.fatal == nil {
					r.fatal = err
				}
				r.mu.Unlock()
				r.cond.Broadcast()
				r.e.emit(ApplyEvent{Key: c.Key.String(), Action: string(c.Action), Status: "failed", Duration: elapsed, Error: err})
				r.e.recordOutcome(string(c.Action), string(ir.OutcomeFailed), elapsed)
				r.e.log.Error().Err(err).Str("resource", c.Key.String()).Str("action", string(c.Action)).Msg("apply failed")
				return
			}
			entry.Outcome = ir.OutcomeApplied
			r.done[i] = true
			r.mu.Unlock()
			r.cond.Broadcast()
			r.e.emit(ApplyEvent{Key: c.Key.String(), Action: string(c.Action), Status: "completed", Duration: elapsed})
			r.e.recordOutcome(string(c.Action), string(ir.OutcomeApplied), elapsed)
			r.e.log.Debug().Str("resource", c.Key.String()).Str("action", string(c.Action)).Dur("took", elapsed).Msg("applied")
		}(i)
	}
	wg.Wait()
}

// skipLocked marks a task skipped. Callers hold r.mu.
func (r *runner) skipLocked(i int, reason error) {
	entry := r.entries[i]
	entry.Outcome = ir.OutcomeSkipped
	entry.Err = reason.Error()
	r.failed[i] = true
	c := r.plan.ChangeSet.Changes[i]
	r.e.emit(ApplyEvent{Key: c.Key.String(), Action: string(c.Action), Status: "skipped", Error: reason})
	r.e.recordOutcome(string(c.Action), string(ir.OutcomeSkipped), 0)
}

// applyOne drives the provider for a single change and commits the
// resulting record. Every state write is durable before the next step.
func (r *runner) applyOne(ctx context.Context, c *ir.Change) error {
	ctx, cancel := context.WithTimeout(ctx, r.e.timeout)
	defer cancel()

	prov, err := r.e.registry.ForKind(c.Key.Kind)
	if err != nil {
		return NewProviderFailure(c.Key, string(c.Action), err)
	}

	switch c.Action {
	case ir.ActionCreate, ir.ActionUpdate:
		attrs, err := r.resolveFinal(c.Key)
		if err != nil {
			return (&Error{
				Class: ClassProvider,
				Code:  CodeUnresolvedReference,
				Msg:   "resolving attributes",
				Err:   err,
			}).WithKey(c.Key).WithOp(string(c.Action))
		}
		normalized, _ := normalizeJSON(attrs).(map[string]any)
		depKeys := keyStrings(r.plan.Graph.Dependencies(c.Key))

		var priorID string
		var priorOutputs map[string]any
		r.recMu.Lock()
		if rec := r.records[c.Key]; rec != nil {
			priorID = rec.ProviderID
			priorOutputs = rec.Outputs
		}
		r.recMu.Unlock()

		pending := &ir.Record{
			Kind:         c.Key.Kind,
			Name:         c.Key.Name,
			ProviderID:   priorID,
			Attrs:        normalized,
			Outputs:      priorOutputs,
			Dependencies: depKeys,
			Hash:         ir.HashAttrs(normalized),
			Status:       ir.StatusPending,
			AppliedAt:    time.Now().UTC(),
		}
		if err := r.commit(ctx, pending); err != nil {
			return err
		}

		var id string
		var outputs map[string]any
		callErr := RetryWithBackoff(ctx, r.e.retry, func() error {
			var err error
			if c.Action == ir.ActionCreate {
				id, outputs, err = prov.Create(ctx, c.Key.Kind, attrs)
			} else {
				id = priorID
				outputs, err = prov.Update(ctx, c.Key.Kind, priorID, attrs)
			}
			return err
		}, r.e.shouldRetry)
		if callErr != nil {
			failed := *pending
			failed.Status = ir.StatusFailed
			if err := r.commit(ctx, &failed); err != nil {
				return err
			}
			return NewProviderFailure(c.Key, string(c.Action), callErr)
		}

		applied := *pending
		applied.ProviderID = id
		applied.Outputs = outputs
		applied.Status = ir.StatusApplied
		applied.AppliedAt = time.Now().UTC()
		return r.commit(ctx, &applied)

	case ir.ActionDelete:
		r.recMu.Lock()
		rec := r.records[c.Key]
		r.recMu.Unlock()
		if rec == nil {
			rec = c.Prior
		}

		if rec != nil && rec.ProviderID != "" {
			callErr := RetryWithBackoff(ctx, r.e.retry, func() error {
				return prov.Delete(ctx, c.Key.Kind, rec.ProviderID)
			}, r.e.shouldRetry)
			if callErr != nil {
				failed := *rec
				failed.Status = ir.StatusFailed
				if err := r.commit(ctx, &failed); err != nil {
					return err
				}
				return NewProviderFailure(c.Key, string(c.Action), callErr)
			}
		}

		if err := r.e.store.RemoveOne(ctx, c.Key); err != nil {
			return NewStateError("removing record", err).WithKey(c.Key)
		}
		r.recMu.Lock()
		delete(r.records, c.Key)
		r.recMu.Unlock()
		return nil
	}
	return nil
}

// commit upserts one record and mirrors it into the working map.
func (r *runner) commit(ctx context.Context, rec *ir.Record) error {
	if err := r.e.store.CommitOne(ctx, rec); err != nil {
		return NewStateError("committing record", err).WithKey(rec.Key())
	}
	r.recMu.Lock()
	r.records[rec.Key()] = rec
	r.recMu.Unlock()
	return nil
}

// resolveFinal materializes the attributes of key against live records
// just before the provider call, so outputs of dependencies applied
// earlier in this run flow through.
func (r *runner) resolveFinal(key ir.Key) (map[string]any, error) {
	r.recMu.Lock()
	defer r.recMu.Unlock()
	return ir.ResolveAttrs(r.plan.Graph.Attrs(key), func(ref ir.OutputRef) (any, bool) {
		rec := r.records[ref.Key()]
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
	})
}

func (e *Engine) shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	return providerRetryable(err)
}

func isRunFatal(err error) bool {
	e, ok := AsError(err)
	return ok && (e.Class == ClassState || e.Class == ClassCancelled)
}

func keyStrings(keys []ir.Key) []string {
	if len(keys) == 0 {
		return nil
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
