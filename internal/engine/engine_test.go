package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landform-io/landform/internal/ir"
	"github.com/landform-io/landform/internal/provider"
	"github.com/landform-io/landform/internal/state"
)

const testKind = "fake:Thing"

// fakeProvider is an in-memory provider for engine tests. It assigns IDs of
// the form "id-<name>" from the resource's "name" attribute, records every
// call as "op/name" (deletes record "op/id"), and runs the hook registered
// under the same key before answering, so tests can inject failures or
// side effects per call.
type fakeProvider struct {
	required  []string
	immutable []string
	hooks     map[string]func() error
	outputs   map[string]map[string]any // extra outputs per resource name

	mu    sync.Mutex
	calls []string
	attrs map[string]map[string]any // last attrs seen per resource name
}

var _ provider.ResourceProvider = (*fakeProvider)(nil)

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		hooks:   make(map[string]func() error),
		outputs: make(map[string]map[string]any),
		attrs:   make(map[string]map[string]any),
	}
}

func (p *fakeProvider) record(call, name string, attrs map[string]any) func() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	if attrs != nil {
		p.attrs[name] = attrs
	}
	return p.hooks[call]
}

func (p *fakeProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakeProvider) lastAttrs(name string) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attrs[name]
}

func (p *fakeProvider) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

func (p *fakeProvider) Schema(kind string) (provider.Schema, error) {
	if kind != testKind {
		return provider.Schema{}, fmt.Errorf("unsupported kind %q", kind)
	}
	return provider.Schema{Kind: kind, Required: p.required, Immutable: p.immutable}, nil
}

func (p *fakeProvider) Create(ctx context.Context, kind string, attrs map[string]any) (string, map[string]any, error) {
	name, _ := attrs["name"].(string)
	if hook := p.record("create/"+name, name, attrs); hook != nil {
		if err := hook(); err != nil {
			return "", nil, err
		}
	}
	return "id-" + name, p.outputsFor(name), nil
}

func (p *fakeProvider) Update(ctx context.Context, kind, id string, attrs map[string]any) (map[string]any, error) {
	name, _ := attrs["name"].(string)
	if hook := p.record("update/"+name, name, attrs); hook != nil {
		if err := hook(); err != nil {
			return nil, err
		}
	}
	return p.outputsFor(name), nil
}

func (p *fakeProvider) Delete(ctx context.Context, kind, id string) error {
	if hook := p.record("delete/"+id, "", nil); hook != nil {
		return hook()
	}
	return nil
}

func (p *fakeProvider) outputsFor(name string) map[string]any {
	out := map[string]any{"id": "id-" + name}
	for k, v := range p.outputs[name] {
		out[k] = v
	}
	return out
}

// memStore is an in-memory state.Store. Load returns copies so a plan
// holds the snapshot it was computed from even while commits continue.
type memStore struct {
	mu      sync.Mutex
	records map[ir.Key]*ir.Record
	commits int
	removes int

	loadErr   error
	commitErr error
	failName  string // commitErr only fires for records with this name
}

var _ state.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{records: make(map[ir.Key]*ir.Record)}
}

func (s *memStore) Load(ctx context.Context) (map[ir.Key]*ir.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make(map[ir.Key]*ir.Record, len(s.records))
	for k, rec := range s.records {
		cp := *rec
		out[k] = &cp
	}
	return out, nil
}

func (s *memStore) CommitOne(ctx context.Context, rec *ir.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil && (s.failName == "" || rec.Name == s.failName) {
		return s.commitErr
	}
	s.commits++
	cp := *rec
	s.records[rec.Key()] = &cp
	return nil
}

func (s *memStore) RemoveOne(ctx context.Context, key ir.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes++
	delete(s.records, key)
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) seed(rec *ir.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Key()] = rec
}

func (s *memStore) get(key ir.Key) *ir.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[key]
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func newTestEngine(fp *fakeProvider, st *memStore, opts ...Option) *Engine {
	reg := provider.NewRegistry()
	reg.Register("fake", fp)
	return New(reg, st, opts...)
}

func testKey(name string) ir.Key {
	return ir.Key{Kind: testKind, Name: name}
}

func TestEngine_Plan_Create(t *testing.T) {
	fp := newFakeProvider()
	st := newMemStore()
	eng := newTestEngine(fp, st)

	plan, err := eng.Plan(context.Background(), []*ir.Resource{
		{Kind: testKind, Name: "web", Attrs: map[string]any{"name": "web", "size": "small"}},
	})
	require.NoError(t, err)
	require.Len(t, plan.ChangeSet.Changes, 1)

	c := plan.ChangeSet.Changes[0]
	assert.Equal(t, ir.ActionCreate, c.Action)
	assert.Equal(t, testKey("web"), c.Key)
	assert.Nil(t, c.Prior)
	assert.Equal(t, "small", c.Desired["size"])

	assert.True(t, plan.ChangeSet.HasChanges())
	assert.Equal(t, 1, plan.ChangeSet.Summary().Create)
	assert.Empty(t, fp.Calls(), "planning must not call the provider")
}

func TestEngine_Plan_Noop(t *testing.T) {
	fp := newFakeProvider()
	st := newMemStore()
	st.seed(&ir.Record{
		Kind:       testKind,
		Name:       "web",
		ProviderID: "id-web",
		Attrs:      map[string]any{"name": "web", "size": "small"},
		Status:     ir.StatusApplied,
	})
	eng := newTestEngine(fp, st)

	plan, err := eng.Plan(context.Background(), []*ir.Resource{
		{Kind: testKind, Name: "web", Attrs: map[string]any{"name": "web", "size": "small"}},
	})
	require.NoError(t, err)
	require.Len(t, plan.ChangeSet.Changes, 1)

	assert.Equal(t, ir.ActionNoop, plan.ChangeSet.Changes[0].Action)
	assert.False(t, plan.ChangeSet.HasChanges())
	assert.Equal(t, 1, plan.ChangeSet.Summary().Noop)
}

func TestEngine_Plan_Update(t *testing.T) {
	fp := newFakeProvider()
	st := newMemStore()
	st.seed(&ir.Record{
		Kind:       testKind,
		Name:       "web",
		ProviderID: "id-web",
		Attrs:      map[string]any{"name": "web", "size": "small"},
		Status:     ir.StatusApplied,
	})
	eng := newTestEngine(fp, st)

	plan, err := eng.Plan(context.Background(), []*ir.Resource{
		{Kind: testKind, Name: "web", Attrs: map[string]any{"name": "web", "size": "big"}},
	})
	require.NoError(t, err)
	require.Len(t, plan.ChangeSet.Changes, 1)

	c := plan.ChangeSet.Changes[0]
	assert.Equal(t, ir.ActionUpdate, c.Action)
	require.NotNil(t, c.Prior)
	assert.Equal(t, "id-web", c.Prior.ProviderID)

	require.Len(t, c.Diff, 1)
	assert.Equal(t, "size", c.Diff[0].Name)
	assert.Equal(t, "small", c.Diff[0].Before)
	assert.Equal(t, "big", c.Diff[0].After)
	assert.False(t, c.Diff[0].ForcesReplacement)
}

func TestEngine_Plan_Replace(t *testing.T) {
	fp := newFakeProvider()
	fp.immutable = []string{"size"}
	st := newMemStore()
	st.seed(&ir.Record{
		Kind:       testKind,
		Name:       "web",
		ProviderID: "id-web",
		Attrs:      map[string]any{"name": "web", "size": "small"},
		Status:     ir.StatusApplied,
	})
	eng := newTestEngine(fp, st)

	plan, err := eng.Plan(context.Background(), []*ir.Resource{
		{Kind: testKind, Name: "web", Attrs: map[string]any{"name": "web", "size": "big"}},
	})
	require.NoError(t, err)
	require.Len(t, plan.ChangeSet.Changes, 2)

	// Delete half first, then the create half, both marked replacing.
	del, cre := plan.ChangeSet.Changes[0], plan.ChangeSet.Changes[1]
	assert.Equal(t, ir.ActionDelete, del.Action)
	assert.True(t, del.Replacing)
	require.NotNil(t, del.Prior)
	assert.Equal(t, ir.ActionCreate, cre.Action)
	assert.True(t, cre.Replacing)
	assert.Equal(t, "big", cre.Desired["size"])
	assert.Equal(t, del.Diff, cre.Diff)

	sum := plan.ChangeSet.Summary()
	assert.Equal(t, 1, sum.Replace)
	assert.Equal(t, 0, sum.Create)
	assert.Equal(t, 0, sum.Delete)
}

func TestEngine_Plan_DeleteRemoved(t *testing.T) {
	fp := newFakeProvider()
	st := newMemStore()
	st.seed(&ir.Record{
		Kind:       testKind,
		Name:       "net",
		ProviderID: "id-net",
		Attrs:      map[string]any{"name": "net"},
		Status:     ir.StatusApplied,
	})
	st.seed(&ir.Record{
		Kind:         testKind,
		Name:         "app",
		ProviderID:   "id-app",
		Attrs:        map[string]any{"name": "app"},
		Dependencies: []string{"fake:Thing/net"},
		Status:       ir.StatusApplied,
	})
	eng := newTestEngine(fp, st)

	// Nothing declared: both records are torn down, dependents first.
	plan, err := eng.Plan(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, plan.ChangeSet.Changes, 2)

	assert.Equal(t, ir.ActionDelete, plan.ChangeSet.Changes[0].Action)
	assert.Equal(t, testKey("app"), plan.ChangeSet.Changes[0].Key)
	assert.Equal(t, ir.ActionDelete, plan.ChangeSet.Changes[1].Action)
	assert.Equal(t, testKey("net"), plan.ChangeSet.Changes[1].Key)
	assert.Equal(t, 2, plan.ChangeSet.Summary().Delete)
}

func TestEngine_Plan_DisabledMeansRemoval(t *testing.T) {
	fp := newFakeProvider()
	st := newMemStore()
	st.seed(&ir.Record{
		Kind:       testKind,
		Name:       "web",
		ProviderID: "id-web",
		Attrs:      map[string]any{"name": "web"},
		Status:     ir.StatusApplied,
	})
	eng := newTestEngine(fp, st)

	disabled := false
	plan, err := eng.Plan(context.Background(), []*ir.Resource{
		{Kind: testKind, Name: "web", Enabled: &disabled, Attrs: map[string]any{"name": "web"}},
	})
	require.NoError(t, err)
	require.Len(t, plan.ChangeSet.Changes, 1)
	assert.Equal(t, ir.ActionDelete, plan.ChangeSet.Changes[0].Action)
}

func TestEngine_Plan_ResolvesAppliedOutputs(t *testing.T) {
	fp := newFakeProvider()
	st := newMemStore()
	st.seed(&ir.Record{
		Kind:       testKind,
		Name:       "net",
		ProviderID: "id-net",
		Attrs:      map[string]any{"name": "net"},
		Outputs:    map[string]any{"id": "id-net", "cidr": "10.0.0.0/16"},
		Status:     ir.StatusApplied,
	})
	eng := newTestEngine(fp, st)

	plan, err := eng.Plan(context.Background(), []*ir.Resource{
		{Kind: testKind, Name: "net", Attrs: map[string]any{"name": "net"}},
		{Kind: testKind, Name: "app", Attrs: map[string]any{
			"name":    "app",
			"network": "ref://fake:Thing/net/cidr",
		}},
	})
	require.NoError(t, err)
	require.Len(t, plan.ChangeSet.Changes, 2)

	// net is already applied, so the new resource sees its recorded output.
	app := plan.ChangeSet.Changes[1]
	assert.Equal(t, testKey("app"), app.Key)
	assert.Equal(t, ir.ActionCreate, app.Action)
	assert.Equal(t, "10.0.0.0/16", app.Desired["network"])
}

func TestEngine_Plan_UnresolvedReferenceKeepsRefString(t *testing.T) {
	fp := newFakeProvider()
	st := newMemStore()
	eng := newTestEngine(fp, st)

	plan, err := eng.Plan(context.Background(), []*ir.Resource{
		{Kind: testKind, Name: "net", Attrs: map[string]any{"name": "net"}},
		{Kind: testKind, Name: "app", Attrs: map[string]any{
			"name":    "app",
			"network": "ref://fake:Thing/net/cidr",
		}},
	})
	require.NoError(t, err)
	require.Len(t, plan.ChangeSet.Changes, 2)

	// The target has not applied yet; the plan shows the symbolic form.
	app := plan.ChangeSet.Changes[1]
	assert.Equal(t, "ref://fake:Thing/net/cidr", app.Desired["network"])
}

func TestEngine_Plan_ResumesUnfinishedCreate(t *testing.T) {
	fp := newFakeProvider()
	st := newMemStore()
	st.seed(&ir.Record{
		Kind:   testKind,
		Name:   "web",
		Attrs:  map[string]any{"name": "web"},
		Status: ir.StatusFailed, // create failed before an ID was assigned
	})
	eng := newTestEngine(fp, st)

	plan, err := eng.Plan(context.Background(), []*ir.Resource{
		{Kind: testKind, Name: "web", Attrs: map[string]any{"name": "web"}},
	})
	require.NoError(t, err)
	require.Len(t, plan.ChangeSet.Changes, 1)

	c := plan.ChangeSet.Changes[0]
	assert.Equal(t, ir.ActionCreate, c.Action)
	assert.NotNil(t, c.Prior)
}

func TestEngine_Plan_RetriesFailedUpdate(t *testing.T) {
	fp := newFakeProvider()
	st := newMemStore()
	st.seed(&ir.Record{
		Kind:       testKind,
		Name:       "web",
		ProviderID: "id-web",
		Attrs:      map[string]any{"name": "web"},
		Status:     ir.StatusFailed,
	})
	eng := newTestEngine(fp, st)

	// Attributes match the snapshot, but the last call never succeeded, so
	// the resource is dirty until a provider call lands.
	plan, err := eng.Plan(context.Background(), []*ir.Resource{
		{Kind: testKind, Name: "web", Attrs: map[string]any{"name": "web"}},
	})
	require.NoError(t, err)
	require.Len(t, plan.ChangeSet.Changes, 1)
	assert.Equal(t, ir.ActionUpdate, plan.ChangeSet.Changes[0].Action)
}

func TestEngine_Plan_NumbersCompareAfterNormalization(t *testing.T) {
	fp := newFakeProvider()
	st := newMemStore()
	st.seed(&ir.Record{
		Kind:       testKind,
		Name:       "web",
		ProviderID: "id-web",
		Attrs:      map[string]any{"name": "web", "port": float64(8080)},
		Status:     ir.StatusApplied,
	})
	eng := newTestEngine(fp, st)

	// The declaration carries an int where the snapshot holds a float64
	// from JSON decoding. Structural comparison treats them as equal.
	plan, err := eng.Plan(context.Background(), []*ir.Resource{
		{Kind: testKind, Name: "web", Attrs: map[string]any{"name": "web", "port": 8080}},
	})
	require.NoError(t, err)
	require.Len(t, plan.ChangeSet.Changes, 1)
	assert.Equal(t, ir.ActionNoop, plan.ChangeSet.Changes[0].Action)
}

func TestEngine_Plan_ListOrderIsSignificant(t *testing.T) {
	fp := newFakeProvider()
	st := newMemStore()
	st.seed(&ir.Record{
		Kind:       testKind,
		Name:       "web",
		ProviderID: "id-web",
		Attrs:      map[string]any{"name": "web", "zones": []any{"a", "b"}},
		Status:     ir.StatusApplied,
	})
	eng := newTestEngine(fp, st)

	plan, err := eng.Plan(context.Background(), []*ir.Resource{
		{Kind: testKind, Name: "web", Attrs: map[string]any{"name": "web", "zones": []any{"b", "a"}}},
	})
	require.NoError(t, err)
	require.Len(t, plan.ChangeSet.Changes, 1)

	c := plan.ChangeSet.Changes[0]
	assert.Equal(t, ir.ActionUpdate, c.Action)
	require.Len(t, c.Diff, 1)
	assert.Equal(t, "zones", c.Diff[0].Name)
}

func TestEngine_Plan_MissingRequiredAttr(t *testing.T) {
	fp := newFakeProvider()
	fp.required = []string{"size"}
	st := newMemStore()
	eng := newTestEngine(fp, st)

	_, err := eng.Plan(context.Background(), []*ir.Resource{
		{Kind: testKind, Name: "web", Attrs: map[string]any{"name": "web"}},
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeInvalidDeclaration))
	assert.Contains(t, err.Error(), `missing required attribute "size"`)
}

func TestEngine_Plan_UnknownKind(t *testing.T) {
	fp := newFakeProvider()
	st := newMemStore()
	eng := newTestEngine(fp, st)

	_, err := eng.Plan(context.Background(), []*ir.Resource{
		{Kind: "nope:Thing", Name: "web", Attrs: map[string]any{"name": "web"}},
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeInvalidDeclaration))
	assert.Contains(t, err.Error(), "unknown resource kind")
	assert.True(t, IsConfigError(err))
}

func TestEngine_Plan_StateLoadError(t *testing.T) {
	fp := newFakeProvider()
	st := newMemStore()
	st.loadErr = fmt.Errorf("database locked")
	eng := newTestEngine(fp, st)

	_, err := eng.Plan(context.Background(), []*ir.Resource{
		{Kind: testKind, Name: "web", Attrs: map[string]any{"name": "web"}},
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeStateStore))
	assert.Contains(t, err.Error(), "loading state")
}

type countingMetrics struct {
	mu       sync.Mutex
	planned  map[string]int
	outcomes map[string]int
}

func (m *countingMetrics) RecordPlanChange(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.planned == nil {
		m.planned = make(map[string]int)
	}
	m.planned[action]++
}

func (m *countingMetrics) RecordApplyOutcome(action, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[action+"/"+outcome]++
}

func TestEngine_MetricsHooks(t *testing.T) {
	fp := newFakeProvider()
	st := newMemStore()
	metrics := &countingMetrics{}
	eng := newTestEngine(fp, st, WithMetrics(metrics))
	ctx := context.Background()

	plan, err := eng.Plan(ctx, []*ir.Resource{
		{Kind: testKind, Name: "web", Attrs: map[string]any{"name": "web"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.planned["create"])

	_, err = eng.Apply(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.outcomes["create/applied"])
}
