package errors_test

import (
	"fmt"
	"net/http"
	"testing"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(apperrors.Validation("bad email")))
	})

	t.Run("unauthorized", func(t *testing.T) {
		require.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(apperrors.Unauthorized("no session")))
	})

	t.Run("provider authentication failure", func(t *testing.T) {
		err := apperrors.Provider("NotAuthorizedException", "Incorrect email or password.", nil)
		require.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))
	})

	t.Run("provider input failure", func(t *testing.T) {
		err := apperrors.Provider("CodeMismatchException", "Invalid verification code.", nil)
		require.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
	})

	t.Run("wrapped internal", func(t *testing.T) {
		err := fmt.Errorf("establish: %w", apperrors.Internal(apperrors.ErrInternal))
		require.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))
		require.True(t, apperrors.Is(err, apperrors.ErrInternal))
	})

	t.Run("foreign error", func(t *testing.T) {
		require.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(fmt.Errorf("boom")))
		require.Equal(t, apperrors.KindInternal, apperrors.KindOf(fmt.Errorf("boom")))
	})
}

func TestWrapf(t *testing.T) {
	require.Nil(t, apperrors.Wrapf(nil, "context"))

	err := apperrors.Wrapf(apperrors.ErrTokenExpired, "verify %s", "access")
	require.EqualError(t, err, "verify access: token expired")
	require.True(t, apperrors.Is(err, apperrors.ErrTokenExpired))
}

func TestErrorName(t *testing.T) {
	err := apperrors.Configuration("secret must be at least %d bytes", 32)
	require.Equal(t, "ConfigurationError", err.Name())
	require.Contains(t, err.Error(), "at least 32 bytes")
}
