package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/landform-io/landform/internal/ir"
)

// ExpandForEach expands resources with ForEach or Count fields into
// individual resources. Runs before graph construction so every node in
// the graph is a single concrete resource. ForEach instances expand in
// sorted key order so the declaration list stays deterministic.
func ExpandForEach(resources []*ir.Resource) []*ir.Resource {
	var expanded []*ir.Resource

	for _, res := range resources {
		switch {
		case res.Count > 0:
			for i := 0; i < res.Count; i++ {
				clone := cloneResource(res)
				clone.Name = fmt.Sprintf("%s[%d]", res.Name, i)
				clone.Attrs = substituteIndex(clone.Attrs, i)
				expanded = append(expanded, clone)
			}
		case len(res.ForEach) > 0:
			keys := make([]string, 0, len(res.ForEach))
			for key := range res.ForEach {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				clone := cloneResource(res)
				clone.Name = fmt.Sprintf("%s[%q]", res.Name, key)
				clone.Attrs = substituteEach(clone.Attrs, key, res.ForEach[key])
				expanded = append(expanded, clone)
			}
		default:
			expanded = append(expanded, res)
		}
	}

	return expanded
}

func cloneResource(res *ir.Resource) *ir.Resource {
	clone := &ir.Resource{
		Kind: res.Kind,
		Name: res.Name,
	}
	if res.Enabled != nil {
		enabled := *res.Enabled
		clone.Enabled = &enabled
	}
	clone.DependsOn = append([]string{}, res.DependsOn...)
	clone.Attrs = deepCopyMap(res.Attrs)
	return clone
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any)
	for k, v := range m {
		result[k] = deepCopyValue(v)
	}
	return result
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		clone := make([]any, len(val))
		for i, item := range val {
			clone[i] = deepCopyValue(item)
		}
		return clone
	default:
		return v
	}
}

func substituteIndex(attrs map[string]any, index int) map[string]any {
	return substituteAll(attrs, map[string]string{
		"${count.index}": fmt.Sprintf("%d", index),
	})
}

func substituteEach(attrs map[string]any, key, value string) map[string]any {
	return substituteAll(attrs, map[string]string{
		"${each.key}":   key,
		"${each.value}": value,
	})
}

func substituteAll(attrs map[string]any, replacements map[string]string) map[string]any {
	result := make(map[string]any)
	for k, v := range attrs {
		result[k] = substituteValue(v, replacements)
	}
	return result
}

func substituteValue(v any, replacements map[string]string) any {
	switch val := v.(type) {
	case string:
		result := val
		for old, newVal := range replacements {
			result = strings.ReplaceAll(result, old, newVal)
		}
		return result
	case map[string]any:
		return substituteAll(val, replacements)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = substituteValue(item, replacements)
		}
		return result
	default:
		return v
	}
}
