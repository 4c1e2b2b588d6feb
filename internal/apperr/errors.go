// Package apperr defines the error taxonomy shared by stores, services,
// and handlers. Every error carries a stable code that the handler summary
// logging picks up via the Code() accessor.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Error is a typed failure with a stable machine-readable code.
type Error struct {
	code string
	msg  string
	err  error
}

// Code returns the machine-readable error code.
func (e *Error) Code() string { return e.code }

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Is matches two taxonomy errors by code so sentinel comparisons work
// across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.code == t.code
	}
	return false
}

const (
	codeNotFound           = "NOT_FOUND"
	codeValidationFailed   = "VALIDATION_FAILED"
	codePersistenceFailed  = "PERSISTENCE_FAILED"
	codeUnauthorized       = "UNAUTHORIZED"
	codeTransportTransient = "TRANSPORT_TRANSIENT"
)

// Sentinels for errors.Is checks.
var (
	ErrNotFound           = &Error{code: codeNotFound, msg: "not found"}
	ErrValidationFailed   = &Error{code: codeValidationFailed, msg: "validation failed"}
	ErrPersistenceFailed  = &Error{code: codePersistenceFailed, msg: "persistence failed"}
	ErrUnauthorized       = &Error{code: codeUnauthorized, msg: "administrators only"}
	ErrTransportTransient = &Error{code: codeTransportTransient, msg: "transient transport error"}
)

// NotFound builds a NOT_FOUND error describing the missing entity.
func NotFound(what string) error {
	return &Error{code: codeNotFound, msg: what + " not found"}
}

// Validation builds a VALIDATION_FAILED error with a user-facing reason.
func Validation(format string, args ...any) error {
	return &Error{code: codeValidationFailed, msg: fmt.Sprintf(format, args...)}
}

// Persistence wraps a store failure.
func Persistence(op string, err error) error {
	return &Error{code: codePersistenceFailed, msg: op, err: err}
}

// IsTransient reports whether the transport marked the interaction as
// stale or expired. Telegram answers to old callback queries fail with a
// fixed set of messages that are benign and must be swallowed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransportTransient) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"query is too old",
		"response timeout expired",
		"query id is invalid",
		"message is not modified",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
