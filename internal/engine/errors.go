// Package engine builds resource graphs, computes change sets against the
// state store, and drives providers to converge declared resources.
package engine

import (
	"errors"
	"fmt"

	"github.com/landform-io/landform/internal/ir"
)

// ErrorClass groups run failures by where they stop the run.
type ErrorClass string

const (
	// ClassConfig covers declaration, reference and cycle errors. These fail
	// the run before any provider or state interaction.
	ClassConfig ErrorClass = "config"

	// ClassProvider covers per-resource provider failures. The resource is
	// marked failed, dependents skip, independent branches continue.
	ClassProvider ErrorClass = "provider"

	// ClassState covers state store failures. Fatal for the run.
	ClassState ErrorClass = "state"

	// ClassCancelled covers runs stopped by context cancellation.
	ClassCancelled ErrorClass = "cancelled"
)

// Error codes for programmatic handling.
const (
	CodeInvalidDeclaration  = "INVALID_DECLARATION"
	CodeUnresolvedReference = "UNRESOLVED_REFERENCE"
	CodeCyclicDependency    = "CYCLIC_DEPENDENCY"
	CodeProviderFailure     = "PROVIDER_FAILURE"
	CodeStateStore          = "STATE_STORE"
	CodeCancelled           = "CANCELLED"
)

// Error is a classified engine failure with resource and operation context.
type Error struct {
	Class ErrorClass     `json:"class"`
	Code  string         `json:"code"`
	Msg   string         `json:"message"`
	Key   string         `json:"key,omitempty"`
	Op    string         `json:"operation,omitempty"`
	Err   error          `json:"-"`
	Extra map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Msg)
	if e.Key != "" {
		s += fmt.Sprintf(" (resource=%s", e.Key)
		if e.Op != "" {
			s += fmt.Sprintf(", op=%s", e.Op)
		}
		s += ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on class and code so callers can probe with sentinel values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && (t.Code == "" || e.Code == t.Code)
}

// WithKey attaches the resource key the error belongs to.
func (e *Error) WithKey(key ir.Key) *Error {
	e.Key = key.String()
	return e
}

// WithOp attaches the operation in flight when the error occurred.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetail attaches one extra context value.
func (e *Error) WithDetail(k string, v any) *Error {
	if e.Extra == nil {
		e.Extra = make(map[string]any)
	}
	e.Extra[k] = v
	return e
}

func newError(class ErrorClass, code, msg string, err error) *Error {
	return &Error{Class: class, Code: code, Msg: msg, Err: err}
}

// NewInvalidDeclaration reports a malformed declaration.
func NewInvalidDeclaration(msg string, err error) *Error {
	return newError(ClassConfig, CodeInvalidDeclaration, msg, err)
}

// NewUnresolvedReference reports a reference to a missing or disabled resource.
func NewUnresolvedReference(msg string, err error) *Error {
	return newError(ClassConfig, CodeUnresolvedReference, msg, err)
}

// NewCyclicDependency reports a dependency cycle. cycle holds the distinct
// keys on the cycle in walk order; the message closes the loop.
func NewCyclicDependency(cycle []ir.Key) *Error {
	path := ""
	for i, k := range cycle {
		if i > 0 {
			path += " -> "
		}
		path += k.String()
	}
	if len(cycle) > 0 {
		path += " -> " + cycle[0].String()
	}
	e := newError(ClassConfig, CodeCyclicDependency, "dependency cycle: "+path, nil)
	keys := make([]string, len(cycle))
	for i, k := range cycle {
		keys[i] = k.String()
	}
	return e.WithDetail("cycle", keys)
}

// NewProviderFailure reports a per-resource provider failure.
func NewProviderFailure(key ir.Key, op string, err error) *Error {
	return newError(ClassProvider, CodeProviderFailure, "provider call failed", err).WithKey(key).WithOp(op)
}

// NewStateError reports a state store failure. Fatal for the run.
func NewStateError(msg string, err error) *Error {
	return newError(ClassState, CodeStateStore, msg, err)
}

// NewCancelled reports a cancelled run.
func NewCancelled(err error) *Error {
	return newError(ClassCancelled, CodeCancelled, "run cancelled", err)
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsConfigError reports whether err is a configuration-class failure.
func IsConfigError(err error) bool {
	e, ok := AsError(err)
	return ok && e.Class == ClassConfig
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}
