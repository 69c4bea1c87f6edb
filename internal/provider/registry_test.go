package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	schemaKind string
}

func (p *stubProvider) Schema(kind string) (Schema, error) {
	if kind != p.schemaKind {
		return Schema{}, fmt.Errorf("unsupported kind %q", kind)
	}
	return Schema{Kind: kind, Required: []string{"name"}}, nil
}

func (p *stubProvider) Create(ctx context.Context, kind string, attrs map[string]any) (string, map[string]any, error) {
	return "stub-id", nil, nil
}

func (p *stubProvider) Update(ctx context.Context, kind, id string, attrs map[string]any) (map[string]any, error) {
	return nil, nil
}

func (p *stubProvider) Delete(ctx context.Context, kind, id string) error {
	return nil
}

func TestName(t *testing.T) {
	name, err := Name("aws:S3.Bucket")
	require.NoError(t, err)
	assert.Equal(t, "aws", name)

	for _, kind := range []string{"nocolon", ":Thing", ""} {
		_, err := Name(kind)
		assert.Error(t, err, "kind %q", kind)
	}
}

func TestRegistry_ForKind(t *testing.T) {
	reg := NewRegistry()
	stub := &stubProvider{schemaKind: "stub:Thing"}
	reg.Register("stub", stub)

	p, err := reg.ForKind("stub:Thing")
	require.NoError(t, err)
	assert.Same(t, stub, p)

	_, err = reg.ForKind("ghost:Thing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")

	_, err = reg.ForKind("nocolon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provider prefix")
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	reg := NewRegistry()
	first := &stubProvider{schemaKind: "stub:Old"}
	second := &stubProvider{schemaKind: "stub:New"}

	reg.Register("stub", first)
	reg.Register("stub", second)

	p, err := reg.Get("stub")
	require.NoError(t, err)
	assert.Same(t, second, p)
}

func TestRegistry_SchemaFor(t *testing.T) {
	reg := NewRegistry()
	reg.Register("stub", &stubProvider{schemaKind: "stub:Thing"})

	schema, err := reg.SchemaFor("stub:Thing")
	require.NoError(t, err)
	assert.Equal(t, "stub:Thing", schema.Kind)
	assert.Equal(t, []string{"name"}, schema.Required)

	// The provider is found but rejects the kind it does not serve.
	_, err = reg.SchemaFor("stub:Other")
	require.Error(t, err)
}

func TestError_RetryableHint(t *testing.T) {
	base := errors.New("throttled")

	retryable := NewRetryableError("stub:Thing", OpCreate, base)
	assert.True(t, IsRetryable(retryable))
	assert.True(t, IsRetryable(fmt.Errorf("applying: %w", retryable)))
	assert.ErrorIs(t, retryable, base)

	permanent := NewError("stub:Thing", OpDelete, base)
	assert.False(t, IsRetryable(permanent))
	assert.False(t, IsRetryable(base))
}

func TestSchema_IsImmutable(t *testing.T) {
	schema := Schema{Kind: "stub:Thing", Immutable: []string{"size", "zone"}}
	assert.True(t, schema.IsImmutable("size"))
	assert.False(t, schema.IsImmutable("name"))
}
