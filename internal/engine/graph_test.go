package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landform-io/landform/internal/ir"
)

func TestBuildGraph_LexicographicOrder(t *testing.T) {
	g, err := BuildGraph([]*ir.Resource{
		{Kind: testKind, Name: "c"},
		{Kind: testKind, Name: "a"},
		{Kind: "fake:Other", Name: "z"},
		{Kind: testKind, Name: "b"},
	})
	require.NoError(t, err)
	require.Equal(t, 4, g.Len())

	// No edges: order falls back to (kind, name).
	assert.Equal(t, []ir.Key{
		{Kind: "fake:Other", Name: "z"},
		{Kind: testKind, Name: "a"},
		{Kind: testKind, Name: "b"},
		{Kind: testKind, Name: "c"},
	}, g.Order())
}

func TestBuildGraph_DependsOn(t *testing.T) {
	g, err := BuildGraph([]*ir.Resource{
		{Kind: testKind, Name: "a", DependsOn: []string{"fake:Thing/b"}},
		{Kind: testKind, Name: "b"},
		{Kind: testKind, Name: "c", DependsOn: []string{"fake:Thing/a"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []ir.Key{testKey("b"), testKey("a"), testKey("c")}, g.Order())
	assert.Equal(t, []ir.Key{testKey("c"), testKey("a"), testKey("b")}, g.ReverseOrder())
}

func TestBuildGraph_RefEdges(t *testing.T) {
	g, err := BuildGraph([]*ir.Resource{
		{Kind: testKind, Name: "subnet", Attrs: map[string]any{
			"vpcId": "ref://fake:Thing/vpc/id",
		}},
		{Kind: testKind, Name: "vpc"},
	})
	require.NoError(t, err)

	// The attribute reference is an implicit edge.
	assert.Equal(t, []ir.Key{testKey("vpc"), testKey("subnet")}, g.Order())
	assert.Equal(t, []ir.Key{testKey("vpc")}, g.Dependencies(testKey("subnet")))
	assert.Equal(t, []ir.Key{testKey("subnet")}, g.Dependents(testKey("vpc")))
}

func TestBuildGraph_EdgesDeduplicated(t *testing.T) {
	g, err := BuildGraph([]*ir.Resource{
		{
			Kind:      testKind,
			Name:      "app",
			DependsOn: []string{"fake:Thing/net", "fake:Thing/net"},
			Attrs: map[string]any{
				"primary":   "ref://fake:Thing/net/id",
				"secondary": "ref://fake:Thing/net/cidr",
			},
		},
		{Kind: testKind, Name: "net"},
	})
	require.NoError(t, err)
	assert.Equal(t, []ir.Key{testKey("net")}, g.Dependencies(testKey("app")))
}

func TestBuildGraph_Deterministic(t *testing.T) {
	build := func(resources []*ir.Resource) []ir.Key {
		g, err := BuildGraph(resources)
		require.NoError(t, err)
		return g.Order()
	}

	// Diamond: d depends on b and c, both depend on a.
	forward := build([]*ir.Resource{
		{Kind: testKind, Name: "a"},
		{Kind: testKind, Name: "b", DependsOn: []string{"fake:Thing/a"}},
		{Kind: testKind, Name: "c", DependsOn: []string{"fake:Thing/a"}},
		{Kind: testKind, Name: "d", DependsOn: []string{"fake:Thing/b", "fake:Thing/c"}},
	})
	reversed := build([]*ir.Resource{
		{Kind: testKind, Name: "d", DependsOn: []string{"fake:Thing/c", "fake:Thing/b"}},
		{Kind: testKind, Name: "c", DependsOn: []string{"fake:Thing/a"}},
		{Kind: testKind, Name: "b", DependsOn: []string{"fake:Thing/a"}},
		{Kind: testKind, Name: "a"},
	})

	assert.Equal(t, []ir.Key{testKey("a"), testKey("b"), testKey("c"), testKey("d")}, forward)
	assert.Equal(t, forward, reversed)
}

func TestBuildGraph_CycleError(t *testing.T) {
	_, err := BuildGraph([]*ir.Resource{
		{Kind: testKind, Name: "a", DependsOn: []string{"fake:Thing/b"}},
		{Kind: testKind, Name: "b", DependsOn: []string{"fake:Thing/a"}},
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeCyclicDependency))
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "dependency cycle")
	assert.Contains(t, err.Error(), "fake:Thing/a")
	assert.Contains(t, err.Error(), "fake:Thing/b")
}

func TestBuildGraph_SelfCycle(t *testing.T) {
	_, err := BuildGraph([]*ir.Resource{
		{Kind: testKind, Name: "a", DependsOn: []string{"fake:Thing/a"}},
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeCyclicDependency))
}

func TestBuildGraph_DisabledFiltered(t *testing.T) {
	disabled := false
	g, err := BuildGraph([]*ir.Resource{
		{Kind: testKind, Name: "a"},
		// Disabled declarations are dropped before attributes are parsed,
		// so even a malformed reference in one cannot fail the build.
		{Kind: testKind, Name: "b", Enabled: &disabled, Attrs: map[string]any{
			"bad": "ref://short",
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())
	assert.True(t, g.Has(testKey("a")))
	assert.False(t, g.Has(testKey("b")))
}

func TestBuildGraph_ReferenceToDisabled(t *testing.T) {
	disabled := false
	_, err := BuildGraph([]*ir.Resource{
		{Kind: testKind, Name: "a", Enabled: &disabled},
		{Kind: testKind, Name: "b", Attrs: map[string]any{
			"target": "ref://fake:Thing/a/id",
		}},
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeUnresolvedReference))
	assert.Contains(t, err.Error(), "disabled")
}

func TestBuildGraph_ReferenceToMissing(t *testing.T) {
	_, err := BuildGraph([]*ir.Resource{
		{Kind: testKind, Name: "b", DependsOn: []string{"fake:Thing/ghost"}},
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeUnresolvedReference))
	assert.Contains(t, err.Error(), "not declared")
}

func TestBuildGraph_InvalidDeclarations(t *testing.T) {
	// 1. Missing name
	_, err := BuildGraph([]*ir.Resource{{Kind: testKind}})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeInvalidDeclaration))

	// 2. Kind without a provider prefix
	_, err = BuildGraph([]*ir.Resource{{Kind: "nocolon", Name: "a"}})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeInvalidDeclaration))

	// 3. Slash in the name
	_, err = BuildGraph([]*ir.Resource{{Kind: testKind, Name: "a/b"}})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeInvalidDeclaration))

	// 4. count and forEach on the same declaration
	_, err = BuildGraph([]*ir.Resource{{
		Kind: testKind, Name: "a", Count: 2, ForEach: map[string]string{"x": "y"},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")

	// 5. Duplicate identity
	_, err = BuildGraph([]*ir.Resource{
		{Kind: testKind, Name: "dup"},
		{Kind: testKind, Name: "dup"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate resource")

	// 6. Malformed dependsOn key
	_, err = BuildGraph([]*ir.Resource{{Kind: testKind, Name: "a", DependsOn: []string{"noslash"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid dependsOn entry")

	// 7. Malformed reference in an enabled declaration
	_, err = BuildGraph([]*ir.Resource{{Kind: testKind, Name: "a", Attrs: map[string]any{
		"x": "ref://short",
	}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid attribute")
}

func TestGraph_DOT(t *testing.T) {
	g, err := BuildGraph([]*ir.Resource{
		{Kind: testKind, Name: "app", DependsOn: []string{"fake:Thing/net"}},
		{Kind: testKind, Name: "net"},
	})
	require.NoError(t, err)

	dot := g.DOT()
	assert.Contains(t, dot, "digraph resources")
	assert.Contains(t, dot, `"fake:Thing/net";`)
	assert.Contains(t, dot, `"fake:Thing/app" -> "fake:Thing/net";`)
}

func TestBuildRecordGraph_DeleteOrder(t *testing.T) {
	records := map[ir.Key]*ir.Record{
		testKey("net"): {Kind: testKind, Name: "net"},
		testKey("app"): {Kind: testKind, Name: "app", Dependencies: []string{"fake:Thing/net"}},
	}

	g, err := BuildRecordGraph(records)
	require.NoError(t, err)
	assert.Equal(t, []ir.Key{testKey("app"), testKey("net")}, g.ReverseOrder())
	assert.Equal(t, []ir.Key{testKey("app")}, g.Dependents(testKey("net")))
}

func TestBuildRecordGraph_PlaceholderForUnknownDependency(t *testing.T) {
	// The dependency's own record is gone; a placeholder keeps ordering
	// intact for the records that remain.
	records := map[ir.Key]*ir.Record{
		testKey("logs"): {Kind: testKind, Name: "logs", Dependencies: []string{"fake:Thing/ghost"}},
	}

	g, err := BuildRecordGraph(records)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []ir.Key{testKey("logs"), testKey("ghost")}, g.ReverseOrder())
	assert.Nil(t, g.Resource(testKey("ghost")))
}

func TestBuildRecordGraph_CorruptDependencyKey(t *testing.T) {
	records := map[ir.Key]*ir.Record{
		testKey("app"): {Kind: testKind, Name: "app", Dependencies: []string{"noslash"}},
	}

	_, err := BuildRecordGraph(records)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeStateStore))
}
