package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json"
	maxBodyBytes    = 1 << 20
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Envelope is the body of every auth API response.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *EnvelopeError `json:"error,omitempty"`
}

type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Name    string `json:"name"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("failed to encode response")
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

// writeError reports err with its mapped status. Errors outside the taxonomy are
// logged and reported as internal without detail.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if !apperrors.As(err, &appErr) {
		appErr = apperrors.Internal(err)
	}
	if appErr.Kind == apperrors.KindInternal {
		log.Err(err).Msg("internal error")
	}
	writeJSON(w, apperrors.HTTPStatus(appErr), Envelope{Error: &EnvelopeError{
		Code:    appErr.Code,
		Message: appErr.Message,
		Name:    appErr.Name(),
	}})
}

// decodeJSON reads a JSON request body. An empty body is allowed when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Validation("Invalid request body.")
	}
	return nil
}

func validateEmail(email string) error {
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return apperrors.Validation("A valid email address is required.")
	}
	return nil
}

type field struct {
	name  string
	value string
}

// validateRequired reports the first empty field.
func validateRequired(fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return apperrors.Validation(f.name + " is required.")
		}
	}
	return nil
}
