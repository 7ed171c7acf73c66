// Package apperr defines the error kinds a review request can end in.
//
// Callers branch on Kind rather than on message text. The Msg of an
// Error is safe to show to clients; the wrapped Err is for logs only.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindInput
	KindUnauthorized
	KindGeneration
	KindNormalization
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindUnauthorized:
		return "unauthorized"
	case KindGeneration:
		return "generation"
	case KindNormalization:
		return "normalization"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "review.Submit"
	Msg  string // client-safe message
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Default client messages per kind.
const (
	MsgCodeRequired  = "Code is required"
	MsgUnauthorized  = "Unauthorized"
	MsgAnalyzeFailed = "Failed to analyze code"
	MsgNotFound      = "Review not found"
	MsgInternal      = "Internal server error"
)

// Input reports a bad request.
func Input(op, msg string) error {
	return &Error{Kind: KindInput, Op: op, Msg: msg}
}

// Unauthorized reports a missing or rejected credential.
func Unauthorized(op string, err error) error {
	return &Error{Kind: KindUnauthorized, Op: op, Msg: MsgUnauthorized, Err: err}
}

// Generation reports a failed call to the model.
func Generation(op string, err error) error {
	return &Error{Kind: KindGeneration, Op: op, Msg: MsgAnalyzeFailed, Err: err}
}

// Normalization reports model output that could not be turned into a review.
func Normalization(op string, err error) error {
	return &Error{Kind: KindNormalization, Op: op, Msg: MsgAnalyzeFailed, Err: err}
}

// NotFound reports a missing review. Missing and foreign-owned reviews share it.
func NotFound(op string) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: MsgNotFound}
}

// Internal wraps an unexpected failure.
func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Msg: MsgInternal, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-safe message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return MsgInternal
}

// Is reports whether err has kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
