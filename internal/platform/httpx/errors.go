// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"
)

// Sentinel errors shared by handlers and services.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrUpstream   = errors.New("upstream request failed")
)

type errorMapping struct {
	target error
	status int
	title  string
}

// Order matters: a backend timeout wraps both ErrUpstream and
// context.DeadlineExceeded and should surface as 504.
var errorMappings = []errorMapping{
	{ErrNotFound, http.StatusNotFound, "Not Found"},
	{ErrConflict, http.StatusConflict, "Conflict"},
	{ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{ErrForbidden, http.StatusForbidden, "Forbidden"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "Upstream Timeout"},
	{ErrUpstream, http.StatusBadGateway, "Upstream Failed"},
}

// RespondError writes the problem document matching err. Unmapped errors
// become a 500 without detail.
func RespondError(w http.ResponseWriter, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			Problem(w, m.status, m.title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
