// Package errors defines the domain error taxonomy for the memory engine.
// Errors are classified by Kind so the tool layer can render user-facing
// messages without inspecting error strings.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error by its semantic cause.
type Kind string

const (
	// KindValidation represents invalid input parameters.
	KindValidation Kind = "validation"

	// KindParse represents malformed tool or query input.
	KindParse Kind = "parse"

	// KindNotFound represents a missing node or relationship.
	KindNotFound Kind = "not-found"

	// KindRelationship represents an edge create/delete failure.
	KindRelationship Kind = "relationship"

	// KindTemporal represents a timeframe resolution or temporal query failure.
	KindTemporal Kind = "temporal"

	// KindCausalTraversal represents a causal graph traversal failure.
	KindCausalTraversal Kind = "causal-traversal"

	// KindTimeout represents an exceeded stage deadline.
	KindTimeout Kind = "timeout"

	// KindBackend represents a storage backend failure.
	KindBackend Kind = "backend"

	// KindMerge represents a subgraph merge failure.
	KindMerge Kind = "merge"

	// KindLinearization represents a context linearization failure.
	KindLinearization Kind = "linearization"
)

// Error is a classified error carrying operation context: the operation that
// failed, the node label involved (if any), and the identifier involved
// (if any).
type Error struct {
	Kind    Kind
	Op      string
	Label   string
	ID      string
	Message string
	Err     error
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithLabel attaches a node label to the error.
func (e *Error) WithLabel(label string) *Error {
	e.Label = label
	return e
}

// WithID attaches an identifier (uuid or name) to the error.
func (e *Error) WithID(id string) *Error {
	e.ID = id
	return e
}

// Wrap attaches an underlying cause to the error.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func newError(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewValidation creates a validation error.
func NewValidation(op, format string, args ...interface{}) *Error {
	return newError(KindValidation, op, format, args...)
}

// NewParse creates a parse error.
func NewParse(op, format string, args ...interface{}) *Error {
	return newError(KindParse, op, format, args...)
}

// NewNotFound creates a not-found error.
func NewNotFound(op, format string, args ...interface{}) *Error {
	return newError(KindNotFound, op, format, args...)
}

// NewRelationship creates a relationship error.
func NewRelationship(op, format string, args ...interface{}) *Error {
	return newError(KindRelationship, op, format, args...)
}

// NewTemporal creates a temporal error.
func NewTemporal(op, format string, args ...interface{}) *Error {
	return newError(KindTemporal, op, format, args...)
}

// NewCausalTraversal creates a causal-traversal error.
func NewCausalTraversal(op, format string, args ...interface{}) *Error {
	return newError(KindCausalTraversal, op, format, args...)
}

// NewTimeout creates a timeout error.
func NewTimeout(op, format string, args ...interface{}) *Error {
	return newError(KindTimeout, op, format, args...)
}

// NewBackend creates a backend error.
func NewBackend(op, format string, args ...interface{}) *Error {
	return newError(KindBackend, op, format, args...)
}

// NewMerge creates a merge error.
func NewMerge(op, format string, args ...interface{}) *Error {
	return newError(KindMerge, op, format, args...)
}

// NewLinearization creates a linearization error.
func NewLinearization(op, format string, args ...interface{}) *Error {
	return newError(KindLinearization, op, format, args...)
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or the empty Kind when err carries no
// classification.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Kind("")
}

// IsKind reports whether err is classified with the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
