package access

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// StatusClientClosed is the synthetic status recorded when the client went
// away before a response status was written.
const StatusClientClosed = 499

// Request is the immutable per-request value the recorder observes. It is
// created when the transport hands us the request and discarded once its
// access record is emitted.
type Request struct {
	ID         string
	Method     string
	Path       string
	RemoteAddr string
	Start      time.Time

	completed atomic.Bool
}

// NewRequest builds a Request from an inbound http.Request.
func NewRequest(r *http.Request) *Request {
	return &Request{
		ID:         uuid.NewString(),
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		Start:      time.Now(),
	}
}

// Recorder emits one structured access record per completed request on the
// access channel.
type Recorder struct {
	log *slog.Logger
}

func NewRecorder(log *slog.Logger) *Recorder {
	return &Recorder{log: log}
}

// OnBeforeDispatch runs before the request is handed to the router. It is
// an extension point for pre-dispatch instrumentation and currently does
// nothing.
func (rec *Recorder) OnBeforeDispatch(req *Request) {}

// OnComplete emits the access record for req. Repeated calls are ignored:
// completion can race between normal return and client disconnect, and a
// request must never yield two records.
func (rec *Recorder) OnComplete(req *Request, status int) {
	if !req.completed.CompareAndSwap(false, true) {
		return
	}
	rec.log.Debug("request",
		"id", req.ID,
		"method", req.Method,
		"address", req.RemoteAddr,
		"path", req.Path,
		"status", status,
		"dur", time.Since(req.Start).Milliseconds(),
	)
}
