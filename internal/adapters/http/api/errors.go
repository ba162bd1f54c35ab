package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/rollcall/internal/app/admission"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// statusFor maps an error to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, admission.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, admission.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, admission.ErrDeadlinePassed):
		return http.StatusConflict, "deadline_passed"
	case errors.Is(err, admission.ErrInvalidInput), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
