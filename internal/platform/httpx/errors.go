package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the service layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrPrecondition = errors.New("precondition failed")
	ErrRetryDenied  = errors.New("retry denied")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps service errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrPrecondition):
		Problem(w, http.StatusPreconditionFailed, "Precondition Failed", err.Error())
	case errors.Is(err, ErrRetryDenied):
		Problem(w, http.StatusConflict, "Retry Denied", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
