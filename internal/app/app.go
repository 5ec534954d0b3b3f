package app

import (
	"context"
	"net/http"
	"time"

	"mavenproxy/pkg/access"
	"mavenproxy/pkg/banner"
	"mavenproxy/pkg/config"
	"mavenproxy/pkg/fetch"
	"mavenproxy/pkg/logger"
	"mavenproxy/pkg/proxy"
	"mavenproxy/pkg/report"
	"mavenproxy/pkg/router"
)

const shutdownTimeout = 10 * time.Second

// App encapsulates the server components and lifecycle. It is the sole
// owner of the outbound fetch client: handlers borrow a reference, the App
// constructs it and tears it down.
type App struct {
	cfg       *config.Config
	addr      string
	sources   string
	version   string
	commit    string
	buildDate string

	client   *fetch.Client
	reporter *report.Reporter
	recorder *access.Recorder

	handler http.Handler
	srv     *http.Server
}

// New wires the components in dependency order: config values first, then
// the shared fetch client, then reporter/recorder, then the router and its
// handlers. Configuration is resolved once here and never re-read.
func New(cfg *config.Config, addr, sources, version, commit, buildDate string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := fetch.NewClient(fetch.Options{
		Workers:        cfg.Workers(),
		AcquireTimeout: cfg.AcquireTimeout(),
		ChunkSize:      cfg.ChunkSize(),
		MaxBodySize:    cfg.Proxy.MaxBodySize,
		MaxRedirects:   cfg.MaxRedirects(),
		UserAgent:      cfg.UserAgent(),
		PooledBuffers:  cfg.Proxy.BufferPool != "heap",
	})

	reporter := report.New(logger.Channel("error"))
	recorder := access.NewRecorder(logger.Channel("access"))

	rt := router.New(reporter)
	a := &App{
		cfg:       cfg,
		addr:      addr,
		sources:   sources,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		client:    client,
		reporter:  reporter,
		recorder:  recorder,
	}
	a.registerRoutes(rt)

	artifact := proxy.NewArtifact(client, cfg.Proxy.Origins, logger.Channel("download"))
	artifact.Register(rt)
	rt.Compile()

	a.handler = a.buildHandler(rt)
	return a, nil
}

// Handler exposes the fully assembled middleware/router chain.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On cancellation it drains in-flight requests before
// releasing the fetch client's pool.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.client.Close()
		return err
	}
}

func (a *App) shutdown() {
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if a.srv != nil {
		_ = a.srv.Shutdown(sctx)
	}
	a.client.Close()
}

func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" && a.commit != "" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" && a.buildDate != "" {
		verStr += " @ " + a.buildDate
	}
	banner.Print(a.cfg, a.addr, a.sources, verStr)
}
