package query

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure. Every error that crosses a stage
// boundary is wrapped into one of these kinds with its cause preserved;
// nothing is passed through raw or silently downgraded.
type ErrorKind int

// Error kinds.
const (
	// KindUnsupportedQuery: the LogicalQuery variant does not match what
	// the bound parser expects. Detected before any parsing work.
	KindUnsupportedQuery ErrorKind = iota
	// KindSyntax: lexical or grammatical violation, with source position.
	KindSyntax
	// KindOptimize: typed failure from the optimizer boundary.
	KindOptimize
	// KindInvalidPlan: nil or structurally inconsistent plan, detected
	// eagerly before any execution resource is acquired.
	KindInvalidPlan
	// KindExecution: fault during row production. The cursor that raised
	// it is permanently failed; retrying needs a fresh plan and cursor.
	KindExecution
	// KindConfiguration: malformed profile or engine configuration,
	// detected at construction time.
	KindConfiguration
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindUnsupportedQuery:
		return "unsupported query kind"
	case KindSyntax:
		return "syntax error"
	case KindOptimize:
		return "optimizer error"
	case KindInvalidPlan:
		return "invalid plan"
	case KindExecution:
		return "execution failure"
	case KindConfiguration:
		return "configuration error"
	default:
		return fmt.Sprintf("error kind %d", k)
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" && e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a classified error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error, preserving it as the cause.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the classification of err, if it is (or wraps) an *Error.
func KindOf(err error) (ErrorKind, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
