package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Resource is a single declared resource. Identity is (Kind, Name).
type Resource struct {
	Kind      string            `pkl:"kind" json:"kind" validate:"required"`
	Name      string            `pkl:"name" json:"name" validate:"required"`
	Enabled   *bool             `pkl:"enabled" json:"enabled,omitempty"`
	DependsOn []string          `pkl:"dependsOn" json:"dependsOn,omitempty"`
	Count     int               `pkl:"count" json:"count,omitempty"`
	ForEach   map[string]string `pkl:"forEach" json:"forEach,omitempty"`
	Attrs     map[string]any    `pkl:"attrs" json:"attrs"`
}

// IsEnabled reports whether the resource participates in the desired graph.
// Unset means enabled.
func (r *Resource) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Key returns the resource's identity.
func (r *Resource) Key() Key {
	return Key{Kind: r.Kind, Name: r.Name}
}

// Key identifies a resource within a configuration and the state store.
type Key struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// String renders the canonical "kind/name" form.
func (k Key) String() string {
	return k.Kind + "/" + k.Name
}

// Less orders keys lexicographically by (kind, name).
func (k Key) Less(o Key) bool {
	if k.Kind != o.Kind {
		return k.Kind < o.Kind
	}
	return k.Name < o.Name
}

// ParseKey parses the canonical "kind/name" form used by dependsOn entries.
func ParseKey(s string) (Key, error) {
	i := strings.Index(s, "/")
	if i <= 0 || i == len(s)-1 {
		return Key{}, fmt.Errorf("invalid resource key %q: want kind/name", s)
	}
	return Key{Kind: s[:i], Name: s[i+1:]}, nil
}

// SortKeys orders keys in place lexicographically by (kind, name).
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}
