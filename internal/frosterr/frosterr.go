// Package frosterr implements the error taxonomy of spec §7 as a small
// tagged-error type layered on github.com/pkg/errors, the way
// bnb-chain/tss-lib wraps its own errors with pkg/errors throughout its
// tss package. internal/frosterr never replaces pkg/errors' stack-trace
// wrapping; it just tags which of the seven kinds an error belongs to,
// so the CLI boundary (cmd/) can pick the right exit code and message.
package frosterr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the seven error classes of spec §7.
type Kind string

const (
	Configuration   Kind = "Configuration"
	Protocol        Kind = "Protocol"
	RemoteRejection Kind = "RemoteRejection"
	Timeout         Kind = "Timeout"
	Transport       Kind = "Transport"
	Cryptographic   Kind = "Cryptographic"
	IO              Kind = "IO"
)

// Error is a tagged error carrying a Kind and a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }
func (e *Error) Cause() error  { return e.cause }

// New builds a tagged error with no underlying cause.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Newf builds a tagged error with a formatted reason.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap tags an existing error (e.g. from the filesystem or an HTTP
// client) with a Kind and contextual reason, via pkg/errors so the
// original stack trace survives.
func Wrap(kind Kind, err error, reason string) *Error {
	return &Error{Kind: kind, Reason: reason, cause: errors.Wrap(err, reason)}
}

// KindOf walks the error chain looking for a tagged Kind, defaulting to
// Configuration (the "abort before any I/O" class) when none is found —
// that default only ever fires for programmer errors that forgot to
// tag, never for a real spec-defined failure path.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return Configuration
}

// ExitCode maps a Kind to a CLI process exit code. All non-zero: the
// CLI surface (spec §6) only distinguishes success from failure, but
// distinct non-zero codes make scripted test harnesses able to
// discriminate classes of failure without scraping stderr text.
func ExitCode(kind Kind) int {
	switch kind {
	case Configuration:
		return 2
	case Protocol:
		return 3
	case RemoteRejection:
		return 4
	case Timeout:
		return 5
	case Transport:
		return 6
	case Cryptographic:
		return 7
	case IO:
		return 8
	default:
		return 1
	}
}
