// Package errs defines the failure kinds raised by the extraction pipeline.
// Every stage fails fast with an *Error; the transport boundary is the only
// place that turns one into a user-facing message.
package errs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	UnsupportedFormat     Kind = "UnsupportedFormat"
	StructuralError       Kind = "StructuralError"
	ReadError             Kind = "ReadError"
	RemoteCallError       Kind = "RemoteCallError"
	NoJsonFound           Kind = "NoJsonFound"
	JsonDecodeError       Kind = "JsonDecodeError"
	SchemaValidationError Kind = "SchemaValidationError"
)

// Error is the single error type returned by the core packages.
type Error struct {
	Kind Kind
	Msg  string

	// Missing lists absent top-level keys (SchemaValidationError).
	Missing []string
	// Offset and Context locate a JSON syntax problem (JsonDecodeError).
	Offset  int64
	Context string

	// Err is the eris-wrapped cause; it carries the stack of the point of origin.
	Err error

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Message is Error without the kind prefix.
func (e *Error) Message() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

// Unwrap exposes the original cause first so errors.Is and errors.As see
// library errors directly, then the eris chain.
func (e *Error) Unwrap() []error {
	var out []error
	if e.cause != nil {
		out = append(out, e.cause)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: NoJsonFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Trace renders the stack captured at the point of origin.
func (e *Error) Trace() string {
	if e.Err == nil {
		return ""
	}
	return eris.ToString(e.Err, true)
}

// New creates an error of the given kind with a fresh stack.
func New(kind Kind, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Msg: msg, Err: eris.New(msg)}
}

// Wrap classifies an underlying library error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Msg: msg, Err: eris.Wrap(err, msg), cause: err}
}

// MissingKeys builds a SchemaValidationError naming every absent key.
func MissingKeys(keys []string) *Error {
	msg := fmt.Sprintf("Missing required keys in response: [%s]", quoteAll(keys))
	return &Error{Kind: SchemaValidationError, Msg: msg, Missing: keys, Err: eris.New(msg)}
}

// Decode builds a JsonDecodeError with positional context.
func Decode(err error, offset int64, context string) *Error {
	msg := fmt.Sprintf("invalid JSON at offset %d", offset)
	return &Error{Kind: JsonDecodeError, Msg: msg, Offset: offset, Context: context, Err: eris.Wrap(err, msg), cause: err}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func quoteAll(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = "'" + k + "'"
	}
	return strings.Join(quoted, ", ")
}
