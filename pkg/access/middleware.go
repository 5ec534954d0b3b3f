package access

import (
	"context"
	"net/http"
)

type ctxKeyType struct{}

// FromContext returns the pipeline Request attached to ctx, or nil.
func FromContext(ctx context.Context) *Request {
	v, _ := ctx.Value(ctxKeyType{}).(*Request)
	return v
}

// Middleware observes every request passing through it and guarantees
// exactly one access record per request. The recorded duration spans the
// whole downstream pipeline, not just network transit.
func Middleware(rec *Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := NewRequest(r)
			srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			rec.OnBeforeDispatch(req)
			defer func() {
				status := srw.status
				if !srw.wrote && r.Context().Err() != nil {
					status = StatusClientClosed
				}
				rec.OnComplete(req, status)
			}()
			ctx := context.WithValue(r.Context(), ctxKeyType{}, req)
			next.ServeHTTP(srw, r.WithContext(ctx))
		})
	}
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}
