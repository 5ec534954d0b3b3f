package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"
)

// Options fix the client's behaviour at construction; nothing is mutated
// afterwards.
type Options struct {
	// Workers bounds concurrent fetches. Acquisition of a slot blocks the
	// caller until one frees; fetches are never rejected for pool
	// pressure alone.
	Workers int
	// AcquireTimeout bounds slot acquisition. Zero waits indefinitely.
	AcquireTimeout time.Duration
	// ChunkSize caps the size of any single chunk handed to a caller.
	ChunkSize int
	// MaxBodySize caps the total response body. Zero means unlimited.
	MaxBodySize int64
	// MaxRedirects bounds automatic redirect following.
	MaxRedirects int
	UserAgent    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PooledBuffers selects the pooled chunk-buffer allocator; when false
	// every response gets a fresh heap buffer.
	PooledBuffers bool
}

// Client is the process-wide outbound fetch client. One instance is shared
// by all concurrent requests; per-call state lives in the Response. The
// lifecycle owner constructs it once and calls Close during shutdown; all
// other holders treat it as borrowed.
type Client struct {
	hc     *fasthttp.Client
	opts   Options
	slots  chan struct{}
	closed atomic.Bool
}

const (
	defaultChunkSize    = 16384
	defaultMaxRedirects = 10
)

func NewClient(opts Options) *Client {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaultMaxRedirects
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	hc := &fasthttp.Client{
		Name:               opts.UserAgent,
		MaxConnsPerHost:    opts.Workers,
		MaxConnWaitTimeout: opts.AcquireTimeout,
		ReadTimeout:        opts.ReadTimeout,
		WriteTimeout:       opts.WriteTimeout,
		StreamResponseBody: true,
	}
	return &Client{
		hc:    hc,
		opts:  opts,
		slots: make(chan struct{}, opts.Workers),
	}
}

// Fetch retrieves url and returns a streamed Response. The caller must
// Close the Response to release its pool slot. Failures (connect/timeout,
// non-2xx status, redirect loop, oversize body) surface as typed errors;
// the client never retries and never logs.
func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, fasthttp.MethodGet, url)
}

// Head is Fetch for HEAD requests: same pooling and failure surface, no
// body. Chunks on the returned Response yields nothing.
func (c *Client) Head(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, fasthttp.MethodHead, url)
}

func (c *Client) do(ctx context.Context, method, url string) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	req.SetRequestURI(url)
	req.Header.SetMethod(method)

	if err := c.hc.DoRedirects(req, resp, c.opts.MaxRedirects); err != nil {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
		c.release()
		switch {
		case errors.Is(err, fasthttp.ErrTooManyRedirects):
			return nil, ErrTooManyRedirects
		case errors.Is(err, fasthttp.ErrNoFreeConns):
			return nil, ErrAcquireTimeout
		default:
			return nil, err
		}
	}
	fasthttp.ReleaseRequest(req)

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		code := status
		fasthttp.ReleaseResponse(resp)
		c.release()
		return nil, &StatusError{URL: url, Code: code}
	}

	r := &Response{
		Status:        status,
		ContentLength: int64(resp.Header.ContentLength()),
		ContentType:   string(resp.Header.ContentType()),
		ctx:           ctx,
		c:             c,
		resp:          resp,
	}
	if method != fasthttp.MethodHead {
		if bs := resp.BodyStream(); bs != nil {
			r.stream = bs
		} else {
			r.stream = bytes.NewReader(resp.Body())
		}
	}
	return r, nil
}

// acquire blocks until a pool slot frees, the context is cancelled, or the
// acquisition timeout elapses.
func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.slots <- struct{}{}:
		return nil
	default:
	}
	var timeout <-chan time.Time
	if c.opts.AcquireTimeout > 0 {
		t := time.NewTimer(c.opts.AcquireTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return ErrAcquireTimeout
	}
}

func (c *Client) release() {
	<-c.slots
}

// Close waits for in-flight fetches to finish, then tears down idle
// connections. The lifecycle owner calls this after the inbound side has
// drained; Fetch refuses new work as soon as Close begins.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < c.opts.Workers; i++ {
		c.slots <- struct{}{}
	}
	c.hc.CloseIdleConnections()
}

// Response is a streamed fetch result. It owns one pool slot until Close.
type Response struct {
	Status        int
	ContentLength int64
	ContentType   string

	ctx    context.Context
	c      *Client
	resp   *fasthttp.Response
	stream io.Reader
	read   int64
	done   atomic.Bool
}

// Chunks reads the body and hands it to fn in chunks no larger than the
// client's chunk size. The chunk slice is only valid during the call. It
// stops early when fn errors, the context is cancelled, or the body
// exceeds the configured maximum size.
func (r *Response) Chunks(fn func(p []byte) error) error {
	if r.stream == nil {
		return nil
	}
	buf := r.buffer()
	defer r.releaseBuffer(buf)
	b := buf.B[:r.c.opts.ChunkSize]
	for {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		n, err := r.stream.Read(b)
		if n > 0 {
			r.read += int64(n)
			if max := r.c.opts.MaxBodySize; max > 0 && r.read > max {
				return ErrBodyTooLarge
			}
			if cerr := fn(b[:n]); cerr != nil {
				return cerr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if errors.Is(err, fasthttp.ErrBodyTooLarge) {
				return ErrBodyTooLarge
			}
			return err
		}
	}
}

// WriteTo streams the whole body to w, in bounded chunks.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	var total int64
	err := r.Chunks(func(p []byte) error {
		n, werr := w.Write(p)
		total += int64(n)
		return werr
	})
	return total, err
}

// Close releases the response's pool slot and transport resources. Safe to
// call more than once. Closing before the body is fully read aborts the
// upstream transfer so the slot frees promptly.
func (r *Response) Close() {
	if !r.done.CompareAndSwap(false, true) {
		return
	}
	_ = r.resp.CloseBodyStream()
	fasthttp.ReleaseResponse(r.resp)
	r.c.release()
}

func (r *Response) buffer() *bytebufferpool.ByteBuffer {
	size := r.c.opts.ChunkSize
	if r.c.opts.PooledBuffers {
		buf := bytebufferpool.Get()
		if cap(buf.B) < size {
			buf.B = make([]byte, size)
		} else {
			buf.B = buf.B[:size]
		}
		return buf
	}
	return &bytebufferpool.ByteBuffer{B: make([]byte, size)}
}

func (r *Response) releaseBuffer(buf *bytebufferpool.ByteBuffer) {
	if r.c.opts.PooledBuffers {
		bytebufferpool.Put(buf)
	}
}

// StatusNotFound reports whether err is a StatusError carrying a 404.
func StatusNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}
