package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation            ErrorKind = "validation"
	KindUsernameTaken         ErrorKind = "username_taken"
	KindConflict              ErrorKind = "conflict"
	KindAuthService           ErrorKind = "auth_service"
	KindInvalidCredentials    ErrorKind = "invalid_credentials"
	KindUnavailable           ErrorKind = "unavailable"
	KindProviderNotConfigured ErrorKind = "provider_not_configured"
	KindNotAuthenticated      ErrorKind = "not_authenticated"
)

// Error is the single error type returned across the service boundary.
// Code carries the machine readable code reported by a backend, when there
// is one; Message is shown to the user as is.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, and on Code when the target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

var (
	ErrValidation            = &Error{Kind: KindValidation}
	ErrUsernameTaken         = &Error{Kind: KindUsernameTaken}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrAuthService           = &Error{Kind: KindAuthService}
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials}
	ErrUnavailable           = &Error{Kind: KindUnavailable}
	ErrProviderNotConfigured = &Error{Kind: KindProviderNotConfigured}
	ErrNotAuthenticated      = &Error{Kind: KindNotAuthenticated}
)

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func UsernameTaken(username string) error {
	return &Error{Kind: KindUsernameTaken, Code: "username_taken", Message: fmt.Sprintf("Username %q is already taken", username)}
}

func Conflict(msg string, err error) error {
	return &Error{Kind: KindConflict, Message: msg, Err: err}
}

func Unavailable(op string, err error) error {
	return &Error{Kind: KindUnavailable, Message: fmt.Sprintf("%s: service unavailable", op), Err: err}
}

func ProviderNotConfigured(provider string) error {
	return &Error{Kind: KindProviderNotConfigured, Code: provider, Message: fmt.Sprintf("provider %q is not enabled", provider)}
}

func NotAuthenticated() error {
	return &Error{Kind: KindNotAuthenticated, Message: "not signed in"}
}

// AuthServiceError wraps a message reported by the hosted auth service verbatim.
func AuthServiceError(status int, code, msg string) error {
	return &Error{Kind: KindAuthService, Status: status, Code: code, Message: msg}
}

// KindOf reports the kind of err, or "" when err is not a domain error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
