// Package apperr classifies launcher failures into the kinds the process
// entry point acts on: startup-time kinds abort the process, the rest are
// reported and handled by the caller.
package apperr

import (
	"errors"
	"fmt"
)

// Kind names a failure class.
type Kind int

// Failure classes.
const (
	KindUnknown Kind = iota
	KindConfiguration
	KindValidation
	KindDeployment
	KindStartup
	KindAuthentication
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindDeployment:
		return "deployment"
	case KindStartup:
		return "startup"
	case KindAuthentication:
		return "authentication"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New wraps err with kind and op. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the outermost Kind found in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err must abort the process. Authentication and
// shutdown failures leave the process able to continue; every other kind,
// including unclassified errors, is fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindAuthentication, KindShutdown:
		return false
	default:
		return true
	}
}
