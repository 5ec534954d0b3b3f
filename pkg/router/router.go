package router

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gorilla/mux"

	"mavenproxy/pkg/report"
)

// Handler is the application handler signature. A non-nil error means the
// handler failed in a way it could not translate into a response; the
// dispatcher passes it to the error reporter and answers with a best-effort
// 500 when nothing has been written yet.
type Handler func(w http.ResponseWriter, r *http.Request) error

// Registration maps a path pattern and method set to a handler. Lower
// priority values win; override rules register with extreme low values.
// Registrations are static: loaded once at startup, never mutated.
type Registration struct {
	Name     string
	Pattern  string
	Methods  []string
	Priority int
	Handler  Handler
}

// Router dispatches each request to the first registration whose method set
// and pattern match, scanning in ascending (priority, registration order).
// Registration counts are small and static, so the linear scan is fine.
type Router struct {
	reporter *report.Reporter
	regs     []Registration

	compileOnce sync.Once
	frozen      atomic.Bool
	built       *mux.Router
}

func New(reporter *report.Reporter) *Router {
	return &Router{reporter: reporter}
}

// Register adds a registration. Must happen before Compile; the route
// table is frozen once compiled.
func (rt *Router) Register(reg Registration) {
	if rt.frozen.Load() {
		panic("router: Register after Compile")
	}
	rt.regs = append(rt.regs, reg)
}

// Compile freezes the registration set and builds the route table. The
// owner calls it once after the last Register; ServeHTTP also compiles on
// demand so a router is usable without an explicit call. Safe for
// concurrent use.
func (rt *Router) Compile() {
	rt.compileOnce.Do(func() {
		rt.built = rt.compile()
		rt.frozen.Store(true)
	})
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.Compile()
	rt.built.ServeHTTP(w, r)
}

// compile orders registrations and installs them on a mux router, which
// matches routes in insertion order. The favicon rule answers 404 itself
// without touching any handler, and a routing miss is an expected outcome,
// not an error: both unmatched paths and disallowed methods get a plain 404.
func (rt *Router) compile() *mux.Router {
	regs := make([]Registration, len(rt.regs))
	copy(regs, rt.regs)
	sort.SliceStable(regs, func(i, j int) bool { return regs[i].Priority < regs[j].Priority })

	m := mux.NewRouter()
	m.HandleFunc("/favicon.ico", notFound)
	for _, reg := range regs {
		route := m.HandleFunc(reg.Pattern, rt.wrap(reg))
		if len(reg.Methods) > 0 {
			route.Methods(reg.Methods...)
		}
	}
	m.NotFoundHandler = http.HandlerFunc(notFound)
	m.MethodNotAllowedHandler = http.HandlerFunc(notFound)
	return m
}

func notFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "not found", http.StatusNotFound)
}

// wrap executes a registration's handler, routing escaped failures (error
// returns and panics) to the reporter instead of swallowing them. The
// client still gets a terminated response: a 500 when no bytes went out.
func (rt *Router) wrap(reg Registration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ww := &writeTracker{ResponseWriter: w}
		defer func() {
			if p := recover(); p != nil {
				// net/http uses this sentinel to abort the connection
				// without a response; let it through untouched.
				if p == http.ErrAbortHandler {
					panic(p)
				}
				err, ok := p.(error)
				if !ok {
					err = fmt.Errorf("handler %s: panic: %v", reg.Name, p)
				}
				rt.reporter.OnError(err)
				if !ww.wrote {
					http.Error(ww, "internal server error", http.StatusInternalServerError)
				}
			}
		}()
		if err := reg.Handler(ww, r); err != nil {
			rt.reporter.OnError(err)
			if !ww.wrote {
				http.Error(ww, "internal server error", http.StatusInternalServerError)
			}
		}
	}
}

// writeTracker remembers whether any part of the response went out.
type writeTracker struct {
	http.ResponseWriter
	wrote bool
}

func (t *writeTracker) WriteHeader(code int) {
	t.wrote = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *writeTracker) Write(b []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(b)
}
