package proxy

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"mavenproxy/pkg/fetch"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrigin(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func newArtifact(t *testing.T, origins ...string) *Artifact {
	t.Helper()
	c := fetch.NewClient(fetch.Options{Workers: 4})
	t.Cleanup(c.Close)
	return NewArtifact(c, origins, discardLogger())
}

func serve(t *testing.T, a *Artifact, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rw := httptest.NewRecorder()
	if err := a.Serve(rw, httptest.NewRequest(method, path, nil)); err != nil {
		t.Fatalf("serve: %v", err)
	}
	return rw
}

func TestServeStreamsArtifactFromOrigin(t *testing.T) {
	payload := bytes.Repeat([]byte("jarjarjar"), 4096)
	origin := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/junit/junit-4.13.2.jar" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/java-archive")
		_, _ = w.Write(payload)
	})

	a := newArtifact(t, origin.URL)
	rw := serve(t, a, http.MethodGet, "/junit/junit-4.13.2.jar")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if !bytes.Equal(rw.Body.Bytes(), payload) {
		t.Fatalf("proxied body differs from origin")
	}
	if ct := rw.Header().Get("Content-Type"); ct != "application/java-archive" {
		t.Fatalf("content type not forwarded: %q", ct)
	}
}

func TestServeWalksOriginsInOrder(t *testing.T) {
	first := newOrigin(t, http.NotFound)
	second := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("from-second"))
	})

	a := newArtifact(t, first.URL, second.URL)
	rw := serve(t, a, http.MethodGet, "/org/example/lib-1.0.pom")
	if rw.Code != http.StatusOK || rw.Body.String() != "from-second" {
		t.Fatalf("expected fallthrough to second origin, got %d %q", rw.Code, rw.Body.String())
	}
}

func TestServeAllOrigins404(t *testing.T) {
	first := newOrigin(t, http.NotFound)
	second := newOrigin(t, http.NotFound)

	a := newArtifact(t, first.URL, second.URL)
	if rw := serve(t, a, http.MethodGet, "/no/such/artifact.jar"); rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestServeOriginOutageAnswers502(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close() // connection refused from here on

	a := newArtifact(t, dead.URL)
	if rw := serve(t, a, http.MethodGet, "/a.jar"); rw.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rw.Code)
	}
}

func TestServeUpstreamErrorThenWorkingOrigin(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	alive := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("rescued"))
	})

	a := newArtifact(t, dead.URL, alive.URL)
	rw := serve(t, a, http.MethodGet, "/a.jar")
	if rw.Code != http.StatusOK || rw.Body.String() != "rescued" {
		t.Fatalf("expected rescue by second origin, got %d %q", rw.Code, rw.Body.String())
	}
}

func TestServeHeadForwardsMetadataWithoutBody(t *testing.T) {
	origin := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1234")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(make([]byte, 1234))
	})

	a := newArtifact(t, origin.URL)
	rw := serve(t, a, http.MethodHead, "/big.jar")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if rw.Body.Len() != 0 {
		t.Fatalf("HEAD must not carry a body, got %d bytes", rw.Body.Len())
	}
	if cl := rw.Header().Get("Content-Length"); cl != "1234" {
		t.Fatalf("content length not forwarded: %q", cl)
	}
}
