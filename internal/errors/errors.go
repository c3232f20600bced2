package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error values for the session layer
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotConfirmed   = errors.New("user is not confirmed")
	ErrUserNotFound       = errors.New("user not found")

	// Token errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrWrongTokenKind      = errors.New("wrong token kind")

	// General errors
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindValidation    Kind = "ValidationError"
	KindUnauthorized  Kind = "Unauthorized"
	KindProvider      Kind = "ProviderError"
	KindConfiguration Kind = "ConfigurationError"
	KindInternal      Kind = "InternalError"
)

// Error is the single error type that crosses package boundaries.
// Code is a machine readable sub-code (for provider errors the provider's exception name),
// Message is safe to show to a user.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Name returns the taxonomy name reported in response envelopes.
func (e *Error) Name() string {
	return string(e.Kind)
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: "ValidationError", Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "Unauthorized", Message: message}
}

// Provider builds a provider error with the provider sub-code and friendly message.
func Provider(code, message string, err error) *Error {
	return &Error{Kind: KindProvider, Code: code, Message: message, Err: err}
}

func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Code: "ConfigurationError", Message: fmt.Sprintf(format, args...)}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "InternalError", Message: "An unexpected error occurred.", Err: err}
}

// authenticationCodes are provider codes that mean "not authenticated" rather than bad input.
var authenticationCodes = map[string]struct{}{
	"NotAuthorizedException": {},
	"UserNotFoundException":  {},
}

// HTTPStatus maps any error to the status code used by the auth endpoints.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindProvider:
		if _, ok := authenticationCodes[e.Code]; ok {
			return http.StatusUnauthorized
		}
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
