package fetch

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newOrigin(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchStreamsBodyInBoundedChunks(t *testing.T) {
	payload := make([]byte, 100*1024)
	if _, err := rand.Read(payload); err != nil {
		t.Fatal(err)
	}
	srv := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	})

	const chunkSize = 1024
	c := NewClient(Options{Workers: 2, ChunkSize: chunkSize})
	defer c.Close()

	resp, err := c.Fetch(context.Background(), srv.URL+"/blob.bin")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer resp.Close()
	if resp.Status != http.StatusOK {
		t.Fatalf("status: %d", resp.Status)
	}

	var got bytes.Buffer
	chunks := 0
	err = resp.Chunks(func(p []byte) error {
		chunks++
		if len(p) > chunkSize {
			return fmt.Errorf("chunk %d exceeds cap: %d bytes", chunks, len(p))
		}
		got.Write(p)
		return nil
	})
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
	if chunks < 2 {
		t.Fatalf("body larger than chunk size must arrive in multiple chunks, got %d", chunks)
	}
	if !bytes.Equal(got.Bytes(), payload) {
		t.Fatalf("delivered body differs from origin payload")
	}
}

func TestPoolBlocksWhenExhaustedAndRecoversOnRelease(t *testing.T) {
	srv := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	c := NewClient(Options{Workers: 2, AcquireTimeout: 100 * time.Millisecond})
	defer c.Close()

	ctx := context.Background()
	r1, err := c.Fetch(ctx, srv.URL)
	if err != nil {
		t.Fatalf("fetch 1: %v", err)
	}
	r2, err := c.Fetch(ctx, srv.URL)
	if err != nil {
		t.Fatalf("fetch 2: %v", err)
	}

	// Both slots held: the third fetch must block, then time out.
	if _, err := c.Fetch(ctx, srv.URL); !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("expected ErrAcquireTimeout with pool exhausted, got %v", err)
	}

	r1.Close()
	r3, err := c.Fetch(ctx, srv.URL)
	if err != nil {
		t.Fatalf("fetch after release: %v", err)
	}
	r3.Close()
	r2.Close()
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	srv := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	c := NewClient(Options{Workers: 1})
	defer c.Close()

	r1, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer r1.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Fetch(ctx, srv.URL); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}

func TestNon2xxSurfacesAsStatusError(t *testing.T) {
	srv := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	c := NewClient(Options{Workers: 1})
	defer c.Close()

	_, err := c.Fetch(context.Background(), srv.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected StatusError 503, got %v", err)
	}
}

func TestNotFoundClassification(t *testing.T) {
	srv := newOrigin(t, http.NotFound)
	c := NewClient(Options{Workers: 1})
	defer c.Close()

	_, err := c.Fetch(context.Background(), srv.URL+"/missing.jar")
	if !StatusNotFound(err) {
		t.Fatalf("expected 404 classification, got %v", err)
	}
}

func TestRedirectsAreFollowed(t *testing.T) {
	var srv *httptest.Server
	srv = newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/moved":
			http.Redirect(w, r, srv.URL+"/final", http.StatusFound)
		case "/final":
			_, _ = w.Write([]byte("payload"))
		default:
			http.NotFound(w, r)
		}
	})
	c := NewClient(Options{Workers: 1, MaxRedirects: 5})
	defer c.Close()

	resp, err := c.Fetch(context.Background(), srv.URL+"/moved")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer resp.Close()
	var got bytes.Buffer
	if _, err := resp.WriteTo(&got); err != nil {
		t.Fatalf("body: %v", err)
	}
	if got.String() != "payload" {
		t.Fatalf("expected redirected payload, got %q", got.String())
	}
}

func TestRedirectLoopBounded(t *testing.T) {
	var srv *httptest.Server
	srv = newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+r.URL.Path, http.StatusFound)
	})
	c := NewClient(Options{Workers: 1, MaxRedirects: 3})
	defer c.Close()

	if _, err := c.Fetch(context.Background(), srv.URL+"/loop"); !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("expected ErrTooManyRedirects, got %v", err)
	}
}

func TestBodyOverLimitRejected(t *testing.T) {
	srv := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	})
	c := NewClient(Options{Workers: 1, ChunkSize: 512, MaxBodySize: 1024})
	defer c.Close()

	resp, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer resp.Close()
	err = resp.Chunks(func(p []byte) error { return nil })
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestHeadHasNoBody(t *testing.T) {
	srv := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/java-archive")
		w.Header().Set("Content-Length", "42")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(make([]byte, 42))
	})
	c := NewClient(Options{Workers: 1})
	defer c.Close()

	resp, err := c.Head(context.Background(), srv.URL+"/a.jar")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	defer resp.Close()
	if resp.Status != http.StatusOK || resp.ContentLength != 42 {
		t.Fatalf("unexpected head result: status=%d len=%d", resp.Status, resp.ContentLength)
	}
	err = resp.Chunks(func(p []byte) error {
		return fmt.Errorf("unexpected chunk of %d bytes", len(p))
	})
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
}

func TestCloseRefusesNewFetches(t *testing.T) {
	srv := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	c := NewClient(Options{Workers: 1})
	c.Close()
	if _, err := c.Fetch(context.Background(), srv.URL); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestConcurrentFetchesWithinCapacityAllComplete(t *testing.T) {
	srv := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	})
	const n = 8
	c := NewClient(Options{Workers: n})
	defer c.Close()

	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			resp, err := c.Fetch(context.Background(), srv.URL)
			if err == nil {
				_, err = resp.WriteTo(&bytes.Buffer{})
				resp.Close()
			}
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent fetch %d: %v", i, err)
		}
	}
}
