package apperr

import (
	"errors"
	"fmt"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so sentinel values below work
// with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Auth(msg string) error          { return New(CodeAuth, msg) }
func Forbidden(msg string) error     { return New(CodeForbidden, msg) }
func NotFound(msg string) error      { return New(CodeNotFound, msg) }
func InvalidParent(msg string) error { return New(CodeInvalidParent, msg) }
func Validation(msg string) error    { return New(CodeValidation, msg) }
func Conflict(msg string) error      { return New(CodeConflict, msg) }
func RateLimited(msg string) error   { return New(CodeRateLimited, msg) }

// Store wraps an unexpected persistence failure. The cause is kept for logs
// and never shown to clients.
func Store(cause error) error {
	return Wrap(CodeStore, "internal storage error", cause)
}

// Kinds for errors.Is checks, e.g. errors.Is(err, apperr.ErrForbidden).
var (
	ErrAuth          = &Error{Code: CodeAuth}
	ErrForbidden     = &Error{Code: CodeForbidden}
	ErrNotFound      = &Error{Code: CodeNotFound}
	ErrInvalidParent = &Error{Code: CodeInvalidParent}
	ErrValidation    = &Error{Code: CodeValidation}
	ErrConflict      = &Error{Code: CodeConflict}
	ErrRateLimited   = &Error{Code: CodeRateLimited}
	ErrStore         = &Error{Code: CodeStore}
)

// CodeOf returns the code of the first *Error in err's chain, or CodeStore
// for anything unclassified.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStore
}

// PublicMessage is the text safe to return to a client.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message == "" || e.Code == CodeStore {
			return "internal storage error"
		}
		return e.Message
	}
	return "internal storage error"
}
