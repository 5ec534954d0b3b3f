package app

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"mavenproxy/pkg/access"
	"mavenproxy/pkg/ratelimit"
	"mavenproxy/pkg/router"
	"mavenproxy/pkg/telemetry"
)

// infraPriority puts probe and metrics routes ahead of the catch-all
// artifact route while leaving room below for future overrides.
const infraPriority = -100

func (a *App) registerRoutes(rt *router.Router) {
	rt.Register(router.Registration{
		Name:     "healthz",
		Pattern:  "/healthz",
		Methods:  []string{http.MethodGet},
		Priority: infraPriority,
		Handler: func(w http.ResponseWriter, r *http.Request) error {
			writeJSON(w, http.StatusOK, `{"status":"ok"}`)
			return nil
		},
	})
	rt.Register(router.Registration{
		Name:     "readyz",
		Pattern:  "/readyz",
		Methods:  []string{http.MethodGet},
		Priority: infraPriority,
		Handler:  a.readyzHandler,
	})
	metrics := telemetry.Handler()
	rt.Register(router.Registration{
		Name:     "metrics",
		Pattern:  "/metrics",
		Methods:  []string{http.MethodGet},
		Priority: infraPriority,
		Handler: func(w http.ResponseWriter, r *http.Request) error {
			metrics.ServeHTTP(w, r)
			return nil
		},
	})
}

// readyzHandler reports readiness. The proxy is ready as soon as its fetch
// client exists and origins are configured; origin reachability is the
// request path's problem, not the probe's.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) error {
	if a.client == nil || len(a.cfg.Proxy.Origins) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, `{"status":"not ready"}`)
		return nil
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	writeJSON(w, http.StatusOK, `{"status":"ok","version":"`+ver+`"}`)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// buildHandler assembles the middleware chain around the router. The
// access middleware sits near the outside so its duration covers rate
// limiting, queueing, dispatch and handler execution; telemetry wraps
// everything.
func (a *App) buildHandler(rt *router.Router) http.Handler {
	var h http.Handler = rt
	if a.cfg.CompressionEnabled() {
		h = gzhttp.GzipHandler(h)
	}
	h = ratelimit.Middleware(ratelimit.Config{RPS: a.cfg.RateLimit.RPS, Burst: a.cfg.RateLimit.Burst})(h)
	h = ratelimit.Concurrency(a.cfg.MaxInFlight())(h)
	h = access.Middleware(a.recorder)(h)
	h = telemetry.Middleware(h)
	return h
}

// startHTTP starts the HTTP server in a goroutine and returns a channel
// that will carry any fatal server error.
func (a *App) startHTTP() <-chan error {
	a.srv = &http.Server{Addr: a.addr, Handler: a.handler}

	errCh := make(chan error, 1)
	go func() {
		cert := a.cfg.Server.TLS.CertFile
		key := a.cfg.Server.TLS.KeyFile
		var err error
		if cert != "" && key != "" {
			err = a.srv.ListenAndServeTLS(cert, key)
		} else {
			err = a.srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}
