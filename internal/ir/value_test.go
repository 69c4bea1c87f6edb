package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("ref://aws:EC2.Vpc/main/vpcId")
	require.NoError(t, err)
	assert.Equal(t, OutputRef{Kind: "aws:EC2.Vpc", Name: "main", Field: "vpcId"}, ref)
	assert.Equal(t, Key{Kind: "aws:EC2.Vpc", Name: "main"}, ref.Key())
	assert.Equal(t, "ref://aws:EC2.Vpc/main/vpcId", ref.String())
}

func TestParseRef_Invalid(t *testing.T) {
	cases := []string{
		"ref://",
		"ref://only-kind",
		"ref://kind/name",
		"ref://kind//field",
		"ref://kind/name/",
		"ptr://kind/name/field",
	}
	for _, in := range cases {
		t.Run(in, func(t *testing.T) {
			_, err := ParseRef(in)
			assert.Error(t, err)
		})
	}
}

func TestParseValue_Variants(t *testing.T) {
	v, err := ParseValue("hello")
	require.NoError(t, err)
	assert.Equal(t, Literal{V: "hello"}, v)

	v, err = ParseValue(42)
	require.NoError(t, err)
	assert.Equal(t, Literal{V: 42}, v)

	v, err = ParseValue("ref://null:Resource/a/id")
	require.NoError(t, err)
	assert.Equal(t, OutputRef{Kind: "null:Resource", Name: "a", Field: "id"}, v)

	v, err = ParseValue([]any{"x", "ref://null:Resource/a/id"})
	require.NoError(t, err)
	assert.Equal(t, List{Literal{V: "x"}, OutputRef{Kind: "null:Resource", Name: "a", Field: "id"}}, v)

	v, err = ParseValue(map[string]any{
		"nested": map[string]any{"ref": "ref://null:Resource/b/id"},
	})
	require.NoError(t, err)
	m, ok := v.(Map)
	require.True(t, ok)
	inner, ok := m["nested"].(Map)
	require.True(t, ok)
	assert.Equal(t, OutputRef{Kind: "null:Resource", Name: "b", Field: "id"}, inner["ref"])
}

func TestParseValue_MalformedRef(t *testing.T) {
	_, err := ParseValue(map[string]any{"bad": "ref://no-field"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestAttrRefs_DeduplicatedAndSorted(t *testing.T) {
	attrs, err := ParseAttrs(map[string]any{
		"a":    "ref://k:B/x/id",
		"b":    "ref://k:A/y/id",
		"dupe": "ref://k:B/x/id",
		"list": []any{"ref://k:A/y/arn"},
	})
	require.NoError(t, err)

	refs := AttrRefs(attrs)
	require.Len(t, refs, 3)
	assert.Equal(t, OutputRef{Kind: "k:A", Name: "y", Field: "arn"}, refs[0])
	assert.Equal(t, OutputRef{Kind: "k:A", Name: "y", Field: "id"}, refs[1])
	assert.Equal(t, OutputRef{Kind: "k:B", Name: "x", Field: "id"}, refs[2])
}

func TestResolveAttrs(t *testing.T) {
	attrs, err := ParseAttrs(map[string]any{
		"plain": "value",
		"ref":   "ref://null:Resource/dep/id",
		"deep": map[string]any{
			"list": []any{"ref://null:Resource/dep/arn", 7},
		},
	})
	require.NoError(t, err)

	lookup := func(ref OutputRef) (any, bool) {
		switch ref.Field {
		case "id":
			return "res-123", true
		case "arn":
			return "arn:res-123", true
		}
		return nil, false
	}

	out, err := ResolveAttrs(attrs, lookup)
	require.NoError(t, err)
	assert.Equal(t, "value", out["plain"])
	assert.Equal(t, "res-123", out["ref"])
	deep := out["deep"].(map[string]any)
	assert.Equal(t, []any{"arn:res-123", 7}, deep["list"])
}

func TestResolveAttrs_UnresolvedReference(t *testing.T) {
	attrs, err := ParseAttrs(map[string]any{"ref": "ref://null:Resource/dep/missing"})
	require.NoError(t, err)

	_, err = ResolveAttrs(attrs, func(OutputRef) (any, bool) { return nil, false })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ref://null:Resource/dep/missing")
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("aws:S3.Bucket/data-lake")
	require.NoError(t, err)
	assert.Equal(t, Key{Kind: "aws:S3.Bucket", Name: "data-lake"}, k)

	for _, in := range []string{"", "no-slash", "/name", "kind/"} {
		_, err := ParseKey(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestHashAttrs_OrderInsensitive(t *testing.T) {
	h1 := HashAttrs(map[string]any{"a": 1, "b": map[string]any{"x": "y", "z": "w"}})
	h2 := HashAttrs(map[string]any{"b": map[string]any{"z": "w", "x": "y"}, "a": 1})
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, HashAttrs(map[string]any{"a": 2}))
}
