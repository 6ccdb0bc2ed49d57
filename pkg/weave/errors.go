package weave

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable tag of an Error.
type ErrorKind string

const (
	KindUnknownNode        ErrorKind = "UnknownNode"
	KindIndexOutOfRange    ErrorKind = "IndexOutOfRange"
	KindIllegalMerge       ErrorKind = "IllegalMerge"
	KindInvariantViolation ErrorKind = "InvariantViolation"
	KindMalformedFrame     ErrorKind = "MalformedFrame"
	KindCorruptDocument    ErrorKind = "CorruptDocument"
)

// Error is returned for every structural failure. Errors of the same Kind
// match under errors.Is, so callers can compare against the sentinels below.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrUnknownNode        = &Error{Kind: KindUnknownNode}
	ErrIndexOutOfRange    = &Error{Kind: KindIndexOutOfRange}
	ErrIllegalMerge       = &Error{Kind: KindIllegalMerge}
	ErrInvariantViolation = &Error{Kind: KindInvariantViolation}
	ErrMalformedFrame     = &Error{Kind: KindMalformedFrame}
	ErrCorruptDocument    = &Error{Kind: KindCorruptDocument}
)

// Errorf builds an Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" if err is not a weave error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
