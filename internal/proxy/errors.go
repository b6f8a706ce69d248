package proxy

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated  = errors.New("unauthorized")
	ErrNotFoundOrDenied = errors.New("server not found or access denied")
	ErrNoTarget         = errors.New("no target URL: provide server_id or an absolute endpoint")
	ErrBadRequest       = errors.New("bad request")
)

// UpstreamError means the target could not be reached at all (DNS, connect,
// timeout). A target that answered with 4xx/5xx is not an error.
type UpstreamError struct {
	URL string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s unreachable: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StatusFor maps an error returned by Service to the HTTP status sent to the
// caller.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFoundOrDenied):
		return http.StatusNotFound
	case errors.Is(err, ErrNoTarget), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the error text safe to show the caller. Unreachable
// upstreams keep their message; other unexpected errors are collapsed so
// internals do not leak.
func PublicMessage(err error) string {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Error()
	}
	if StatusFor(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
