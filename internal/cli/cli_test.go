package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landform-io/landform/internal/engine"
	"github.com/landform-io/landform/internal/ir"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"nil", nil, "null"},
		{"string", "hello", `"hello"`},
		{"int", 42, "42"},
		{"float", 2.5, "2.5"},
		{"bool", true, "true"},
		{"map", map[string]any{"a": 1}, `{"a":1}`},
		{"list", []any{"x", "y"}, `["x","y"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatValue(tt.input))
		})
	}
}

func TestRenderChangeSet(t *testing.T) {
	cs := &ir.ChangeSet{Changes: []*ir.Change{
		{
			Key:     ir.Key{Kind: "null:Resource", Name: "web"},
			Action:  ir.ActionCreate,
			Desired: map[string]any{"message": "hi"},
		},
		{
			Key:    ir.Key{Kind: "null:Resource", Name: "db"},
			Action: ir.ActionUpdate,
			Diff: []ir.AttrDiff{
				{Name: "size", Before: "small", After: "big"},
			},
		},
		{
			Key:       ir.Key{Kind: "null:Resource", Name: "cache"},
			Action:    ir.ActionDelete,
			Replacing: true,
			Diff: []ir.AttrDiff{
				{Name: "engine", Before: "redis6", After: "redis7", ForcesReplacement: true},
			},
		},
		{
			Key:       ir.Key{Kind: "null:Resource", Name: "cache"},
			Action:    ir.ActionCreate,
			Replacing: true,
			Desired:   map[string]any{"engine": "redis7"},
		},
		{
			Key:    ir.Key{Kind: "null:Resource", Name: "quiet"},
			Action: ir.ActionNoop,
		},
	}}

	var buf bytes.Buffer
	renderChangeSet(&buf, cs)
	out := buf.String()

	assert.Contains(t, out, "null:Resource/web will be created")
	assert.Contains(t, out, `+ resource "null:Resource" "web"`)
	assert.Contains(t, out, `+ message = "hi"`)
	assert.Contains(t, out, "null:Resource/db will be updated")
	assert.Contains(t, out, `~ size = "small" -> "big"`)
	assert.Contains(t, out, "null:Resource/cache will be replaced")
	assert.Contains(t, out, "-/+ resource")
	assert.Contains(t, out, "(forces replacement)")
	assert.NotContains(t, out, "quiet")

	// The create half of the replacement pair renders with its delete half.
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"cache"`)))
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	renderSummary(&buf, ir.Summary{Create: 2, Update: 1, Replace: 1, Noop: 3})
	out := buf.String()

	assert.Contains(t, out, "Create:  2")
	assert.Contains(t, out, "Update:  1")
	assert.Contains(t, out, "Delete:  0")
	assert.Contains(t, out, "Replace: 1")
	assert.Contains(t, out, "Noop:    3")
}

func TestRenderReport(t *testing.T) {
	report := &ir.Report{
		RunID: "run-1",
		Entries: []*ir.ReportEntry{
			{Key: ir.Key{Kind: "null:Resource", Name: "a"}, Action: ir.ActionCreate, Outcome: ir.OutcomeApplied},
			{Key: ir.Key{Kind: "null:Resource", Name: "b"}, Action: ir.ActionCreate, Outcome: ir.OutcomeFailed, Err: "quota exceeded"},
			{Key: ir.Key{Kind: "null:Resource", Name: "c"}, Action: ir.ActionCreate, Outcome: ir.OutcomeSkipped, Err: "dependency failed"},
		},
	}

	var buf bytes.Buffer
	renderReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "1 applied, 1 failed, 1 skipped, 0 unchanged")
	assert.Contains(t, out, "null:Resource/b (create): quota exceeded")
	assert.NotContains(t, out, "null:Resource/a (")
}

func TestApplyEventPrinter(t *testing.T) {
	var buf bytes.Buffer
	emit := applyEventPrinter(&buf)

	emit(engine.ApplyEvent{Key: "null:Resource/a", Action: "create", Status: "started"})
	emit(engine.ApplyEvent{Key: "null:Resource/a", Action: "create", Status: "completed", Duration: 120 * time.Millisecond})
	emit(engine.ApplyEvent{Key: "null:Resource/b", Action: "update", Status: "failed", Error: errors.New("boom")})
	emit(engine.ApplyEvent{Key: "null:Resource/c", Action: "delete", Status: "skipped", Error: errors.New("dependency failed")})

	out := buf.String()
	assert.Contains(t, out, "null:Resource/a: creating...")
	assert.Contains(t, out, "null:Resource/a: created (120ms)")
	assert.Contains(t, out, "null:Resource/b: failed: boom")
	assert.Contains(t, out, "null:Resource/c: skipped (dependency failed)")
}

func TestParseStateDSN(t *testing.T) {
	t.Run("default is project-local sqlite", func(t *testing.T) {
		cfg, err := parseStateDSN("/proj", "")
		require.NoError(t, err)
		assert.Empty(t, cfg.Backend)
		assert.Equal(t, filepath.Join("/proj", ".landform", "state.db"), cfg.Path)
	})

	t.Run("plain path is sqlite", func(t *testing.T) {
		cfg, err := parseStateDSN("/proj", "/tmp/custom.db")
		require.NoError(t, err)
		assert.Empty(t, cfg.Backend)
		assert.Equal(t, "/tmp/custom.db", cfg.Path)
	})

	t.Run("s3 url", func(t *testing.T) {
		cfg, err := parseStateDSN("/proj", "s3://infra-state/team/state.json?region=eu-west-1&table=landform-locks&profile=ops")
		require.NoError(t, err)
		assert.Equal(t, "s3", cfg.Backend)
		assert.Equal(t, "infra-state", cfg.Bucket)
		assert.Equal(t, "team/state.json", cfg.Key)
		assert.Equal(t, "eu-west-1", cfg.Region)
		assert.Equal(t, "landform-locks", cfg.DynamoDBTable)
		assert.Equal(t, "ops", cfg.Profile)
	})

	t.Run("s3 url without bucket", func(t *testing.T) {
		_, err := parseStateDSN("/proj", "s3:///state.json")
		assert.ErrorContains(t, err, "missing bucket")
	})
}

func TestResolveEntryPoint(t *testing.T) {
	base := t.TempDir()
	sub := filepath.Join(base, "envs", "dev")
	require.NoError(t, os.MkdirAll(sub, 0755))
	cfgFile := filepath.Join(sub, "stack.json")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`{"resources":[]}`), 0644))

	t.Run("no argument", func(t *testing.T) {
		dir, entry, err := resolveEntryPoint(base, nil)
		require.NoError(t, err)
		assert.Equal(t, base, dir)
		assert.Equal(t, "main.pkl", entry)
	})

	t.Run("directory argument", func(t *testing.T) {
		dir, entry, err := resolveEntryPoint(base, []string{filepath.Join("envs", "dev")})
		require.NoError(t, err)
		assert.Equal(t, sub, dir)
		assert.Equal(t, "main.pkl", entry)
	})

	t.Run("file argument", func(t *testing.T) {
		dir, entry, err := resolveEntryPoint(base, []string{cfgFile})
		require.NoError(t, err)
		assert.Equal(t, sub, dir)
		assert.Equal(t, "stack.json", entry)
	})

	t.Run("missing path", func(t *testing.T) {
		_, _, err := resolveEntryPoint(base, []string{"nowhere.pkl"})
		assert.ErrorContains(t, err, "failed to stat")
	})
}

func TestFilterChangeSet(t *testing.T) {
	cs := &ir.ChangeSet{Changes: []*ir.Change{
		{Key: ir.Key{Kind: "null:Resource", Name: "a"}, Action: ir.ActionCreate},
		{Key: ir.Key{Kind: "null:Resource", Name: "b"}, Action: ir.ActionUpdate},
		{Key: ir.Key{Kind: "null:Resource", Name: "c"}, Action: ir.ActionNoop},
	}}

	t.Run("no targets keeps everything", func(t *testing.T) {
		filtered, err := filterChangeSet(cs, nil)
		require.NoError(t, err)
		assert.Same(t, cs, filtered)
	})

	t.Run("keeps only targeted keys", func(t *testing.T) {
		filtered, err := filterChangeSet(cs, []string{"null:Resource/b"})
		require.NoError(t, err)
		require.Len(t, filtered.Changes, 1)
		assert.Equal(t, "b", filtered.Changes[0].Key.Name)
	})

	t.Run("unknown target errors", func(t *testing.T) {
		_, err := filterChangeSet(cs, []string{"null:Resource/ghost"})
		assert.ErrorContains(t, err, "matches no planned change")
	})
}

func TestResolveOutputs(t *testing.T) {
	records := map[ir.Key]*ir.Record{
		{Kind: "null:Resource", Name: "net"}: {
			Kind:    "null:Resource",
			Name:    "net",
			Status:  ir.StatusApplied,
			Outputs: map[string]any{"cidr": "10.0.0.0/16"},
		},
	}

	t.Run("resolves references", func(t *testing.T) {
		resolved, err := resolveOutputs(map[string]any{
			"network": "ref://null:Resource/net/cidr",
			"static":  "fixed",
		}, records)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.0/16", resolved["network"])
		assert.Equal(t, "fixed", resolved["static"])
	})

	t.Run("unresolved reference errors", func(t *testing.T) {
		_, err := resolveOutputs(map[string]any{
			"bad": "ref://null:Resource/ghost/cidr",
		}, records)
		assert.ErrorContains(t, err, `output "bad"`)
		assert.ErrorContains(t, err, "unresolved reference")
	})
}

func TestReplaceDependency(t *testing.T) {
	deps := []string{"a/x", "b/y", "a/x"}
	assert.Equal(t, []string{"c/z", "b/y", "c/z"}, replaceDependency(deps, "a/x", "c/z"))
	assert.Equal(t, []string{"a/x", "b/y", "a/x"}, deps, "input must not be mutated")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abcd1234", shortID("abcd1234-full-uuid"))
	assert.Equal(t, "short", shortID("short"))
}
