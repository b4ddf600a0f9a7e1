// Package giserr defines the error taxonomy shared across gist's core
// components, so that HTTP handlers, the CLI and the indexer can all agree
// on how a failure should be reported without re-deriving that decision at
// every call site.
package giserr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller should react to it.
type Kind int

const (
	// Internal is the zero value: an unexpected failure with no special handling.
	Internal Kind = iota
	BadRequest
	NotFound
	Busy
	Timeout
	Transient
	Upstream
	Corrupt
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case NotFound:
		return "not_found"
	case Busy:
		return "busy"
	case Timeout:
		return "timeout"
	case Transient:
		return "transient"
	case Upstream:
		return "upstream"
	case Corrupt:
		return "corrupt"
	default:
		return "internal"
	}
}

// Error wraps an underlying cause with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a Kind-tagged error from a message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a Kind-tagged error from a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind of err, walking the wrap chain. Unclassified
// errors report Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err (or any error it wraps) was tagged with kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
