package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/profile"
	"github.com/haivivi/voicegate/pkg/token"
	"github.com/haivivi/voicegate/pkg/vad"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// apiError is an error with a status and a stable code.
type apiError struct {
	status int
	code   string
	err    error
}

func (e *apiError) Error() string { return e.err.Error() }
func (e *apiError) Unwrap() error { return e.err }

func badRequest(code string, err error) error {
	return &apiError{status: http.StatusBadRequest, code: code, err: err}
}

// classify maps engine errors to HTTP status and code.
func classify(err error) (int, string) {
	var ae *apiError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &ae):
		return ae.status, ae.code
	case errors.As(err, &he):
		return he.Code, strings.ToLower(strings.ReplaceAll(http.StatusText(he.Code), " ", "_"))
	case errors.Is(err, profile.ErrUnknownUser):
		return http.StatusNotFound, "unknown_user"
	case errors.Is(err, profile.ErrStaleProfile):
		return http.StatusConflict, "stale_profile"
	case errors.Is(err, profile.ErrInvalidUserID):
		return http.StatusBadRequest, "invalid_user_id"
	case errors.Is(err, profile.ErrTooFewSamples):
		return http.StatusBadRequest, "too_few_samples"
	case errors.Is(err, vad.ErrNoSpeech):
		return http.StatusBadRequest, "no_speech"
	case errors.Is(err, vad.ErrInsufficientSpeech):
		return http.StatusBadRequest, "insufficient_speech"
	case errors.Is(err, pcm.ErrEmpty), errors.Is(err, pcm.ErrBadFormat), errors.Is(err, vad.ErrSegmentTooShort):
		return http.StatusBadRequest, "bad_audio"
	case errors.Is(err, token.ErrInvalid):
		return http.StatusUnauthorized, "invalid_token"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, code := classify(err)
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if status >= 500 {
		s.logger.ErrorContext(c.Request().Context(), "request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"error", err,
		)
		msg = "internal error"
	}
	if werr := c.JSON(status, ErrorResponse{Error: code, Message: msg}); werr != nil {
		s.logger.Warn("write error response", "error", werr)
	}
}
