package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"mavenproxy/pkg/access"
	"mavenproxy/pkg/fetch"
	"mavenproxy/pkg/router"
)

// Artifact serves GET/HEAD for artifact paths by walking the configured
// origins in order and streaming the first hit back to the client. Cache
// and mirror policy live elsewhere; this handler only translates between
// the inbound request and the fetch client.
type Artifact struct {
	client  *fetch.Client
	origins []string
	log     *slog.Logger
}

func NewArtifact(client *fetch.Client, origins []string, log *slog.Logger) *Artifact {
	return &Artifact{client: client, origins: origins, log: log}
}

// Register installs the artifact route. It matches every remaining path,
// so it registers at the default priority and relies on more specific
// routes registering lower.
func (a *Artifact) Register(rt *router.Router) {
	rt.Register(router.Registration{
		Name:    "artifact",
		Pattern: "/{path:.+}",
		Methods: []string{http.MethodGet, http.MethodHead},
		Handler: a.Serve,
	})
}

// Serve resolves the artifact against each origin in turn. An origin 404
// means "try the next one"; transport failures do too, but are remembered
// so an all-origins outage answers 502 instead of 404.
func (a *Artifact) Serve(w http.ResponseWriter, r *http.Request) error {
	rel := strings.TrimPrefix(r.URL.Path, "/")
	head := r.Method == http.MethodHead

	var lastErr error
	for _, origin := range a.origins {
		url := joinURL(origin, rel)
		resp, err := a.resolve(r.Context(), url, head)
		if err != nil {
			if fetch.StatusNotFound(err) {
				continue
			}
			a.log.Warn("origin_fetch_failed", "url", url, "error", err.Error(), "id", requestID(r))
			lastErr = err
			continue
		}
		n, err := a.deliver(w, resp, head)
		resp.Close()
		if err != nil {
			// Bytes already went out; the truncated transfer is the
			// only signal the client can still get.
			a.log.Warn("transfer_aborted", "url", url, "bytes", n, "error", err.Error(), "id", requestID(r))
			return nil
		}
		a.log.Info("download", "url", url, "status", resp.Status, "bytes", n, "id", requestID(r))
		return nil
	}

	if lastErr != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return nil
	}
	http.Error(w, "not found", http.StatusNotFound)
	return nil
}

func (a *Artifact) resolve(ctx context.Context, url string, head bool) (*fetch.Response, error) {
	if head {
		return a.client.Head(ctx, url)
	}
	return a.client.Fetch(ctx, url)
}

func (a *Artifact) deliver(w http.ResponseWriter, resp *fetch.Response, head bool) (int64, error) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	if resp.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if head {
		return 0, nil
	}
	return resp.WriteTo(w)
}

func joinURL(origin, rel string) string {
	return strings.TrimSuffix(origin, "/") + "/" + rel
}

func requestID(r *http.Request) string {
	if req := access.FromContext(r.Context()); req != nil {
		return req.ID
	}
	return ""
}
