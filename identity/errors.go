package identity

import (
	"context"
	"errors"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
)

// Provider exception names. Adapters raise these, Translate maps them to messages.
const (
	CodeNotAuthorized         = "NotAuthorizedException"
	CodeUserNotFound          = "UserNotFoundException"
	CodeUsernameExists        = "UsernameExistsException"
	CodeUserNotConfirmed      = "UserNotConfirmedException"
	CodeCodeMismatch          = "CodeMismatchException"
	CodeExpiredCode           = "ExpiredCodeException"
	CodeInvalidPassword       = "InvalidPasswordException"
	CodeInvalidParameter      = "InvalidParameterException"
	CodeLimitExceeded         = "LimitExceededException"
	CodeTooManyRequests       = "TooManyRequestsException"
	CodePasswordResetRequired = "PasswordResetRequiredException"
	CodeUnsupportedOperation  = "UnsupportedOperationException"
	CodeProviderUnavailable   = "ProviderUnavailableException"
	CodeRequestCanceled       = "RequestCanceledException"
	CodeUnknown               = "UnknownError"
)

const (
	genericMessage     = "Something went wrong. Please try again."
	credentialsMessage = "Incorrect email or password."
)

// exceptionMessages never confirms whether an account exists for authentication failures.
var exceptionMessages = map[string]string{
	CodeNotAuthorized:         credentialsMessage,
	CodeUserNotFound:          credentialsMessage,
	CodeUsernameExists:        "An account with this email already exists.",
	CodeUserNotConfirmed:      "Please confirm your email address before signing in.",
	CodeCodeMismatch:          "Invalid verification code.",
	CodeExpiredCode:           "The verification code has expired. Please request a new one.",
	CodeInvalidPassword:       "Password does not meet the requirements.",
	CodeInvalidParameter:      "Invalid request parameters.",
	CodeLimitExceeded:         "Too many attempts. Please try again later.",
	CodeTooManyRequests:       "Too many attempts. Please try again later.",
	CodePasswordResetRequired: "A password reset is required for this account.",
	CodeUnsupportedOperation:  "This operation is not supported by the identity provider.",
	CodeProviderUnavailable:   "The identity provider is currently unavailable.",
	CodeRequestCanceled:       "The request was canceled.",
}

// Exception is a provider-side failure identified by name.
// Detail is for logs only and is never shown to users.
type Exception struct {
	Name   string
	Detail string
}

func (e *Exception) Error() string {
	if e.Detail == "" {
		return e.Name
	}
	return e.Name + ": " + e.Detail
}

// exceptionSentinels lets callers match provider failures with errors.Is.
var exceptionSentinels = map[string]error{
	CodeNotAuthorized:        apperrors.ErrInvalidCredentials,
	CodeUserNotFound:         apperrors.ErrUserNotFound,
	CodeUserNotConfirmed:     apperrors.ErrUserNotConfirmed,
	CodeUnsupportedOperation: apperrors.ErrUnsupported,
}

func (e *Exception) Unwrap() error {
	return exceptionSentinels[e.Name]
}

func NewException(name, detail string) *Exception {
	return &Exception{Name: name, Detail: detail}
}

// Translate maps any error to a code and friendly message. Unmapped exceptions keep their
// raw name as the code with the generic message. Foreign errors become CodeUnknown.
func Translate(err error) ErrorDetail {
	if err == nil {
		return ErrorDetail{Code: CodeUnknown, Message: genericMessage}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorDetail{Code: CodeRequestCanceled, Message: exceptionMessages[CodeRequestCanceled]}
	}

	var exception *Exception
	if !errors.As(err, &exception) {
		return ErrorDetail{Code: CodeUnknown, Message: genericMessage}
	}
	if message, ok := exceptionMessages[exception.Name]; ok {
		return ErrorDetail{Code: exception.Name, Message: message}
	}
	return ErrorDetail{Code: exception.Name, Message: genericMessage}
}

// FriendlyMessage returns the mapped message for code.
func FriendlyMessage(code string) string {
	if message, ok := exceptionMessages[code]; ok {
		return message
	}
	return genericMessage
}
