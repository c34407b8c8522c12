package kaldav

import (
	"net/http"

	"github.com/kaldav/go-kaldav/internal"
)

// NewHTTPError creates an error answered with the given status code when a
// backend returns it from a server handler.
func NewHTTPError(statusCode int, cause error) error {
	return &internal.HTTPError{Code: statusCode, Err: cause}
}

// HTTPStatus returns the status code carried by err, or 500 if it doesn't
// carry one. It also applies to errors returned by clients.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return internal.HTTPErrorFromError(err).Code
}

// IsNotFound reports whether err is an HTTP 404 error.
func IsNotFound(err error) bool {
	return internal.IsNotFound(err)
}
