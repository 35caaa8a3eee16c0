// Package fetcher downloads remote assets over HTTP with a fixed retry ladder.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/w00dy1981/DigitalAssetsDownloader/logging"
	"github.com/w00dy1981/DigitalAssetsDownloader/types"
)

const (
	DefaultMaxAttempts    = 3
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	// MaxBodyBytes caps a single response body held in memory
	MaxBodyBytes = 256 << 20

	chunkSize = 32 << 10
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// HTTPError represents a non-2xx HTTP response
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// Response is a fully read successful response
type Response struct {
	Body        []byte
	ContentType string
	StatusCode  int
}

// Fetcher performs GET requests with a per-attempt timeout policy and exponential backoff
type Fetcher struct {
	client      *http.Client
	maxAttempts int
	readTimeout time.Duration
	maxBody     int64
	// sleep waits between attempts; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithMaxAttempts overrides the number of attempts per URL
func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithClient replaces the HTTP client (tests use httptest clients)
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithReadTimeout overrides the body stall timeout
func WithReadTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.readTimeout = d }
}

// WithMaxBodyBytes overrides the in-memory body cap
func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBody = n }
}

// WithSleep replaces the backoff wait
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// New creates a Fetcher with a 5s connect timeout and 30s read timeout
func New(opts ...Option) *Fetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   DefaultConnectTimeout,
		ResponseHeaderTimeout: DefaultReadTimeout,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
	}

	f := &Fetcher{
		client:      &http.Client{Transport: transport},
		maxAttempts: DefaultMaxAttempts,
		readTimeout: DefaultReadTimeout,
		maxBody:     MaxBodyBytes,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Backoff returns the wait after a failed attempt (attempt counts from 0)
func Backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// Fetch downloads url, retrying every failure class on the same ladder.
// Only the last attempt's error is returned.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		resp, err := f.fetchOnce(ctx, url)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == f.maxAttempts-1 {
			break
		}
		if ctx.Err() != nil {
			break
		}

		wait := Backoff(attempt)
		logging.DebugLog("Attempt %d/%d for %s failed: %v - retrying in %v", attempt+1, f.maxAttempts, url, err, wait)
		if err := f.sleep(ctx, wait); err != nil {
			break
		}
	}

	if types.KindOf(lastErr) == types.ErrTimeout {
		return nil, types.NewError(types.ErrTimeout, fmt.Sprintf("timeout error after %d attempts", f.maxAttempts), lastErr)
	}
	return nil, lastErr
}

// fetchOnce issues a single GET and reads the body, aborting if it stalls longer than the read timeout
func (f *Fetcher) fetchOnce(ctx context.Context, url string) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = types.Errorf(types.ErrUnexpected, "unexpected error: %v", r)
		}
	}()

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewError(types.ErrRequest, "invalid request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	httpResp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(fmt.Sprintf("fetching %s", url), err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(httpResp.Body, chunkSize))
		return nil, types.NewError(types.ErrRequest, "", &HTTPError{StatusCode: httpResp.StatusCode, URL: url})
	}

	var stalled atomic.Bool
	timer := time.AfterFunc(f.readTimeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer timer.Stop()

	body, err := readChunked(httpResp.Body, f.maxBody, func() { timer.Reset(f.readTimeout) })
	if err != nil {
		if stalled.Load() {
			return nil, types.NewError(types.ErrTimeout, fmt.Sprintf("reading %s", url), err)
		}
		return nil, classify(fmt.Sprintf("reading %s", url), err)
	}

	return &Response{
		Body:        body,
		ContentType: httpResp.Header.Get("Content-Type"),
		StatusCode:  httpResp.StatusCode,
	}, nil
}

// readChunked accumulates r in fixed-size chunks, calling progress after every chunk
func readChunked(r io.Reader, limit int64, progress func()) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if int64(buf.Len()+n) > limit {
				return nil, types.Errorf(types.ErrRequest, "response body exceeds %d bytes", limit)
			}
			buf.Write(chunk[:n])
			progress()
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// classify maps transport errors onto the error taxonomy
func classify(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.NewError(types.ErrTimeout, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrTimeout, op, err)
	}
	return types.NewError(types.ErrRequest, op, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StatusCode extracts the HTTP status from a fetch error, or 0
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
