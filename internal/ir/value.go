package ir

import (
	"fmt"
	"sort"
	"strings"
)

// RefScheme prefixes attribute strings that reference another resource's
// output, e.g. "ref://aws:EC2.Vpc/main/vpcId".
const RefScheme = "ref://"

// Value is one node of a declaration's attribute tree: a literal scalar, a
// reference to another resource's output, a list, or a nested map.
type Value interface {
	isValue()
}

// Literal is a scalar attribute value (string, number, bool or null).
type Literal struct {
	V any
}

// OutputRef points at one output attribute of another resource.
type OutputRef struct {
	Kind  string
	Name  string
	Field string
}

// List is an ordered collection of values. Order is significant.
type List []Value

// Map is a nested attribute map. Key order is not significant.
type Map map[string]Value

func (Literal) isValue()   {}
func (OutputRef) isValue() {}
func (List) isValue()      {}
func (Map) isValue()       {}

// Key returns the referenced resource's identity.
func (r OutputRef) Key() Key {
	return Key{Kind: r.Kind, Name: r.Name}
}

func (r OutputRef) String() string {
	return RefScheme + r.Kind + "/" + r.Name + "/" + r.Field
}

// ParseRef parses a "ref://kind/name/field" string.
func ParseRef(s string) (OutputRef, error) {
	rest, ok := strings.CutPrefix(s, RefScheme)
	if !ok {
		return OutputRef{}, fmt.Errorf("invalid reference %q: missing %s prefix", s, RefScheme)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return OutputRef{}, fmt.Errorf("invalid reference %q: want %skind/name/field", s, RefScheme)
	}
	return OutputRef{Kind: parts[0], Name: parts[1], Field: parts[2]}, nil
}

// ParseValue converts a raw configuration value into the typed form.
// Strings carrying the ref:// scheme become OutputRefs; malformed
// references are declaration errors.
func ParseValue(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Literal{V: nil}, nil
	case string:
		if strings.HasPrefix(v, RefScheme) {
			ref, err := ParseRef(v)
			if err != nil {
				return nil, err
			}
			return ref, nil
		}
		return Literal{V: v}, nil
	case []any:
		out := make(List, 0, len(v))
		for i, item := range v {
			pv, err := ParseValue(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			out = append(out, pv)
		}
		return out, nil
	case map[string]any:
		out := make(Map, len(v))
		for k, item := range v {
			pv, err := ParseValue(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = pv
		}
		return out, nil
	case map[any]any:
		out := make(Map, len(v))
		for k, item := range v {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("map key %v is not a string", k)
			}
			pv, err := ParseValue(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", ks, err)
			}
			out[ks] = pv
		}
		return out, nil
	default:
		// Numbers, bools and anything else pkl or JSON decoding produced.
		return Literal{V: v}, nil
	}
}

// ParseAttrs converts a raw attribute map into typed values.
func ParseAttrs(raw map[string]any) (map[string]Value, error) {
	attrs := make(map[string]Value, len(raw))
	for name, v := range raw {
		pv, err := ParseValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		attrs[name] = pv
	}
	return attrs, nil
}

// Refs collects every OutputRef nested anywhere under v.
func Refs(v Value) []OutputRef {
	var out []OutputRef
	collectRefs(v, &out)
	return out
}

// AttrRefs collects every reference in an attribute map, deduplicated and
// sorted for deterministic edge construction.
func AttrRefs(attrs map[string]Value) []OutputRef {
	var out []OutputRef
	for _, v := range attrs {
		collectRefs(v, &out)
	}
	seen := make(map[OutputRef]struct{}, len(out))
	uniq := out[:0]
	for _, r := range out {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		uniq = append(uniq, r)
	}
	sort.Slice(uniq, func(i, j int) bool {
		if uniq[i].Kind != uniq[j].Kind {
			return uniq[i].Kind < uniq[j].Kind
		}
		if uniq[i].Name != uniq[j].Name {
			return uniq[i].Name < uniq[j].Name
		}
		return uniq[i].Field < uniq[j].Field
	})
	return uniq
}

func collectRefs(v Value, out *[]OutputRef) {
	switch val := v.(type) {
	case OutputRef:
		*out = append(*out, val)
	case List:
		for _, item := range val {
			collectRefs(item, out)
		}
	case Map:
		for _, item := range val {
			collectRefs(item, out)
		}
	}
}

// RefLookup resolves a reference to the concrete output value. The second
// return reports whether the referenced field exists.
type RefLookup func(ref OutputRef) (any, bool)

// Resolve materializes a typed value into a plain one, substituting every
// reference through lookup. An unresolvable reference is an error naming it.
func Resolve(v Value, lookup RefLookup) (any, error) {
	switch val := v.(type) {
	case Literal:
		return val.V, nil
	case OutputRef:
		out, ok := lookup(val)
		if !ok {
			return nil, fmt.Errorf("unresolved reference %s", val)
		}
		return out, nil
	case List:
		out := make([]any, 0, len(val))
		for _, item := range val {
			rv, err := Resolve(item, lookup)
			if err != nil {
				return nil, err
			}
			out = append(out, rv)
		}
		return out, nil
	case Map:
		out := make(map[string]any, len(val))
		for k, item := range val {
			rv, err := Resolve(item, lookup)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown value variant %T", v)
	}
}

// ResolveAttrs materializes a full attribute map.
func ResolveAttrs(attrs map[string]Value, lookup RefLookup) (map[string]any, error) {
	out := make(map[string]any, len(attrs))
	for name, v := range attrs {
		rv, err := Resolve(v, lookup)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = rv
	}
	return out, nil
}
