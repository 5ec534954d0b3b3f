package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrAcquireTimeout means no pool slot freed up within the configured
	// acquisition timeout. The fetch was never attempted.
	ErrAcquireTimeout = errors.New("fetch: timed out waiting for a free worker slot")

	// ErrTooManyRedirects means the origin kept redirecting past the
	// configured bound.
	ErrTooManyRedirects = errors.New("fetch: too many redirects")

	// ErrBodyTooLarge means the response body exceeded the configured
	// maximum size. Callers may have already received earlier chunks.
	ErrBodyTooLarge = errors.New("fetch: response body exceeds configured limit")

	// ErrClosed means the client has been shut down.
	ErrClosed = errors.New("fetch: client closed")
)

// StatusError reports a non-2xx origin status. The fetch machinery worked;
// the origin just did not have what we asked for. Callers decide what that
// means for their own response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s answered %d", e.URL, e.Code)
}
