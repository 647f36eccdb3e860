package subtensor

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies chain client failures so callers can pick a recovery
// policy without string matching.
type Kind int

const (
	// KindTransient covers network and timeout failures on reads; safe
	// to retry with backoff.
	KindTransient Kind = iota
	// KindFatal covers misconfiguration surfaced by the chain (unknown
	// netuid, bad endpoint); retrying cannot help.
	KindFatal
	// KindRejected means the chain refused the extrinsic (e.g.
	// insufficient balance). Never retried automatically.
	KindRejected
	// KindInclusionTimeout means the extrinsic was submitted but not
	// seen in a block within the wait budget.
	KindInclusionTimeout
	// KindFinalizationTimeout means the extrinsic was included but the
	// block did not finalize within the wait budget.
	KindFinalizationTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindRejected:
		return "rejected"
	case KindInclusionTimeout:
		return "inclusion_timeout"
	case KindFinalizationTimeout:
		return "finalization_timeout"
	}
	return "unknown"
}

// Error wraps a chain failure with its classification and the operation
// that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified chain error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the classification from err. Raw network and deadline
// errors count as transient; anything unclassified is fatal.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindFatal
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool { return err != nil && KindOf(err) == KindTransient }
