package provider

import (
	"context"
	"errors"
	"fmt"
)

// ResourceProvider is the boundary the engine drives. Implementations own
// the mapping from resource kinds to real infrastructure; the engine treats
// IDs and error causes as opaque.
type ResourceProvider interface {
	// Schema describes one kind: which attributes must be present and which
	// force replacement when changed.
	Schema(kind string) (Schema, error)

	// Create provisions a new resource and returns the provider-assigned ID
	// together with output attributes.
	Create(ctx context.Context, kind string, attrs map[string]any) (id string, outputs map[string]any, err error)

	// Update mutates an existing resource in place.
	Update(ctx context.Context, kind, id string, attrs map[string]any) (outputs map[string]any, err error)

	// Delete removes the resource behind id. Deleting an already-absent
	// resource must succeed.
	Delete(ctx context.Context, kind, id string) error
}

// Schema is per-kind metadata consulted during validation and diffing.
type Schema struct {
	Kind      string
	Required  []string
	Immutable []string
}

// IsImmutable reports whether changing attr forces replacement.
func (s Schema) IsImmutable(attr string) bool {
	for _, a := range s.Immutable {
		if a == attr {
			return true
		}
	}
	return false
}

// Op names the provider operation that produced an error.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpSchema Op = "schema"
)

// Error wraps a provider failure. Retryable marks transient faults the
// executor may retry with backoff; everything else fails the resource.
type Error struct {
	Kind      string
	Op        Op
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps a permanent provider failure.
func NewError(kind string, op Op, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewRetryableError wraps a transient provider failure.
func NewRetryableError(kind string, op Op, err error) *Error {
	return &Error{Kind: kind, Op: op, Retryable: true, Err: err}
}

// IsRetryable reports whether err carries the retryable hint.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable
}
