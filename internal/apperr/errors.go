package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("resource not found")
	ErrAuthorization  = errors.New("not authorized")
	ErrAuthentication = errors.New("authentication failed")
	ErrStateConflict  = errors.New("state conflict")
)

// HTTPStatus maps an error from the service layer onto a response code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrStateConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
