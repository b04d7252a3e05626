// Package hpserr defines the client's error taxonomy: a small, closed
// set of kinds callers can match on with errors.Is, each optionally
// carrying a message and — for Banned — the time the ban lifts.
package hpserr

import (
	"fmt"
	"time"
)

// Kind is a sentinel error identifying a class of failure. Compare
// against these with errors.Is, not string matching.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	NotConnected     Kind = "not connected"
	InvalidSignature Kind = "invalid signature"
	IntegrityFailure Kind = "content integrity check failed"
	Banned           Kind = "banned"
	PowTimeout       Kind = "proof-of-work timed out"
	RequestTimeout   Kind = "request timed out"
	InvalidArgument  Kind = "invalid argument"
	ServerError      Kind = "server error"
	LocalIOError     Kind = "local I/O error"
)

// Error wraps a Kind with a human-readable message and, for Banned,
// the timestamp the ban expires.
type Error struct {
	Kind    Kind
	Message string
	Until   time.Time // only meaningful when Kind == Banned
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

// New constructs an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewBanned constructs a Banned error carrying the unban time.
func NewBanned(until time.Time, message string) *Error {
	return &Error{Kind: Banned, Message: message, Until: until}
}

// Is reports whether err's kind matches target, so
// errors.Is(err, hpserr.NotConnected) works against a wrapped *Error.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}
