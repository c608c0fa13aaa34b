// Package errext provides the error-kind tagging and hint-wrapping
// helpers used throughout the module evaluator core, grounded on the
// teacher's own errext package: a hint is a short human remediation
// string that composes across wrap layers, and a Kind is a coarse
// classification an outer layer (the stdio protocol, the module
// server) uses to decide how to report a failure.
package errext

import (
	"errors"
	"fmt"
)

// Kind classifies a core failure per spec §7.
type Kind int

const (
	ParseFailure Kind = iota
	ReadFailure
	ResolveFailure
	WatchFailure
	EvaluatorTransportFailure
	EvaluatorReport
)

func (k Kind) String() string {
	switch k {
	case ParseFailure:
		return "parse_failure"
	case ReadFailure:
		return "read_failure"
	case ResolveFailure:
		return "resolve_failure"
	case WatchFailure:
		return "watch_failure"
	case EvaluatorTransportFailure:
		return "evaluator_transport_failure"
	case EvaluatorReport:
		return "evaluator_report"
	default:
		return "unknown_failure"
	}
}

// Error wraps an underlying error with the locator it concerns and a
// Kind classifying it.
type Error struct {
	Kind    Kind
	Locator string
	Err     error
}

func (e *Error) Error() string {
	if e.Locator == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Locator, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HasKind is implemented by errors carrying a Kind; use errors.As to
// extract one across wrap layers.
type HasKind interface {
	error
	ErrKind() Kind
}

func (e *Error) ErrKind() Kind { return e.Kind }

// HasHint is implemented by errors carrying a remediation hint.
type HasHint interface {
	error
	Hint() string
}

type withHint struct {
	err  error
	hint string
}

func (w *withHint) Error() string { return w.err.Error() }
func (w *withHint) Unwrap() error { return w.err }

func (w *withHint) Hint() string {
	var parent HasHint
	if errors.As(w.err, &parent) {
		return fmt.Sprintf("%s (%s)", w.hint, parent.Hint())
	}
	return w.hint
}

// WithHint wraps err with a remediation hint, composing with any hint
// already present on err. Returns nil if err is nil.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return &withHint{err: err, hint: hint}
}
