package identity

import (
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
)

// ErrorDetail is the translated, user-safe form of a provider failure.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the normalized shape of every provider operation.
type Result[T any] struct {
	Success bool         `json:"success"`
	Data    T            `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

func Ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// Fail translates err through the exception table.
func Fail[T any](err error) Result[T] {
	detail := Translate(err)
	return Result[T]{Error: &detail}
}

// Err returns the failure as a ProviderError, or nil on success.
func (r Result[T]) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == nil {
		return apperrors.Provider(CodeUnknown, genericMessage, nil)
	}
	return apperrors.Provider(r.Error.Code, r.Error.Message, nil)
}
