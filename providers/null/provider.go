// Package null implements a provider with no real backing service.
// Resources exist only in state, which makes it useful for wiring
// tests, dry runs, and as a trigger point for re-running dependents.
package null

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/landform-io/landform/internal/provider"
)

// KindResource is the only kind this provider serves.
const KindResource = "null:Resource"

var _ provider.ResourceProvider = (*Provider)(nil)

type Provider struct{}

func New() *Provider {
	return &Provider{}
}

// Schema marks triggers immutable so changing them forces a
// replacement, mirroring how real providers handle identity fields.
func (p *Provider) Schema(kind string) (provider.Schema, error) {
	if kind != KindResource {
		return provider.Schema{}, fmt.Errorf("unsupported kind %q", kind)
	}
	return provider.Schema{
		Kind:      KindResource,
		Immutable: []string{"triggers"},
	}, nil
}

// Create assigns a deterministic ID and echoes the attributes back as
// outputs.
func (p *Provider) Create(ctx context.Context, kind string, attrs map[string]any) (string, map[string]any, error) {
	if kind != KindResource {
		return "", nil, provider.NewError(kind, provider.OpCreate, fmt.Errorf("unsupported kind %q", kind))
	}
	id := resourceID(attrs)
	return id, outputsFor(id, attrs), nil
}

// Update echoes the new attributes. Triggers never reach here because
// the schema marks them immutable.
func (p *Provider) Update(ctx context.Context, kind, id string, attrs map[string]any) (map[string]any, error) {
	if kind != KindResource {
		return nil, provider.NewError(kind, provider.OpUpdate, fmt.Errorf("unsupported kind %q", kind))
	}
	return outputsFor(id, attrs), nil
}

// Delete always succeeds; there is nothing to tear down.
func (p *Provider) Delete(ctx context.Context, kind, id string) error {
	return nil
}

// resourceID prefers an explicit name attribute, falling back to a
// digest of the attributes so the ID stays stable across runs.
func resourceID(attrs map[string]any) string {
	if name, ok := attrs["name"].(string); ok && name != "" {
		return "null-" + name
	}
	raw, _ := json.Marshal(attrs)
	sum := sha256.Sum256(raw)
	return "null-" + hex.EncodeToString(sum[:])[:12]
}

func outputsFor(id string, attrs map[string]any) map[string]any {
	outputs := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		outputs[k] = v
	}
	outputs["id"] = id
	return outputs
}
