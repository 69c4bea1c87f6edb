package null

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Provider conformance suite: the full lifecycle every provider must
// support. Schema -> Create -> Update -> Delete, with Delete safe to
// repeat.

func TestConformance_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	p := New()

	// 1. Schema
	schema, err := p.Schema(KindResource)
	require.NoError(t, err)
	assert.Equal(t, KindResource, schema.Kind)
	assert.True(t, schema.IsImmutable("triggers"))

	// 2. Create
	attrs := map[string]any{
		"name":     "wiring-check",
		"triggers": map[string]any{"key": "value"},
	}
	id, outputs, err := p.Create(ctx, KindResource, attrs)
	require.NoError(t, err)
	assert.Equal(t, "null-wiring-check", id)
	assert.Equal(t, id, outputs["id"])
	assert.Equal(t, attrs["triggers"], outputs["triggers"])

	// 3. Update (non-trigger attribute)
	updated := map[string]any{
		"name":     "wiring-check",
		"triggers": map[string]any{"key": "value"},
		"note":     "rewired",
	}
	outputs2, err := p.Update(ctx, KindResource, id, updated)
	require.NoError(t, err)
	assert.Equal(t, "rewired", outputs2["note"])
	assert.Equal(t, id, outputs2["id"])

	// 4. Delete, twice; deleting an absent resource must succeed
	require.NoError(t, p.Delete(ctx, KindResource, id))
	require.NoError(t, p.Delete(ctx, KindResource, id))
}

func TestConformance_DeterministicIDs(t *testing.T) {
	ctx := context.Background()
	p := New()

	attrs := map[string]any{"triggers": map[string]any{"rev": "abc123"}}

	id1, _, err := p.Create(ctx, KindResource, attrs)
	require.NoError(t, err)
	id2, _, err := p.Create(ctx, KindResource, attrs)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, _, err := p.Create(ctx, KindResource, map[string]any{"triggers": map[string]any{"rev": "def456"}})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestConformance_UnknownKind(t *testing.T) {
	ctx := context.Background()
	p := New()

	_, err := p.Schema("null:Bogus")
	require.Error(t, err)

	_, _, err = p.Create(ctx, "null:Bogus", nil)
	require.Error(t, err)

	_, err = p.Update(ctx, "null:Bogus", "null-x", nil)
	require.Error(t, err)
}
