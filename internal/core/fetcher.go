package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxResponseSize caps how much of a device response is read.
const DefaultMaxResponseSize = 8 * 1024 * 1024

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// BaseURL is the adapter's root URL; request paths resolve against it.
	BaseURL string

	// RequestTimeout bounds each device request. Zero means no timeout.
	RequestTimeout time.Duration

	// MaxConcurrent and MaxWait configure the RequestLimiter.
	MaxConcurrent int
	MaxWait       time.Duration

	// Dedupe collapses concurrent FetchJSON calls for the same path into a
	// single device request.
	Dedupe bool

	// MaxResponseSize caps the bytes read from a response (default 8MB).
	MaxResponseSize int64
}

// Fetcher talks to the adapter's HTTP API and reports progress through a
// StatusSink. Failures are logged and surfaced as status strings; the
// returned errors are for callers that need to branch on the outcome.
type Fetcher struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
	limiter *RequestLimiter
	dedupe  bool
	maxBody int64
	group   singleflight.Group
}

// NewFetcher creates a Fetcher. A nil client uses http.DefaultClient.
func NewFetcher(cfg FetcherConfig, client *http.Client) (*Fetcher, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse device url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("device url %q must be absolute", cfg.BaseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	maxBody := cfg.MaxResponseSize
	if maxBody <= 0 {
		maxBody = DefaultMaxResponseSize
	}

	return &Fetcher{
		base:    base,
		client:  client,
		timeout: cfg.RequestTimeout,
		limiter: NewRequestLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		dedupe:  cfg.Dedupe,
		maxBody: maxBody,
	}, nil
}

// Limiter exposes the device request limiter for monitoring and shutdown.
func (f *Fetcher) Limiter() *RequestLimiter {
	return f.limiter
}

// BaseURL returns the adapter root URL.
func (f *Fetcher) BaseURL() string {
	return f.base.String()
}

// response is a fully read device reply.
type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// do performs one request against the adapter and reads the whole body.
// Only transport-level problems are errors; any HTTP status is returned.
func (f *Fetcher) do(ctx context.Context, method, path, contentType string, body []byte) (*response, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("%w: bad path %q: %v", ErrNetwork, path, err)
	}
	target := f.base.ResolveReference(ref)

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	if err := f.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer f.limiter.Release()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), rdr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}
	if int64(len(data)) > f.maxBody {
		return nil, fmt.Errorf("%w: response from %s: %w", ErrNetwork, path, ErrTooLarge)
	}

	return &response{status: res.StatusCode, body: data}, nil
}

// getOK performs a GET and treats any non-2xx status as a network failure.
func (f *Fetcher) getOK(ctx context.Context, path string) ([]byte, error) {
	res, err := f.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	if !res.ok() {
		return nil, fmt.Errorf("%w: %s: device returned status %d", ErrNetwork, path, res.status)
	}
	return res.body, nil
}

// loadJSON GETs path and decodes the body, sharing the request with other
// callers for the same path when deduplication is on.
func (f *Fetcher) loadJSON(ctx context.Context, path string) (any, error) {
	load := func(ctx context.Context) (any, error) {
		body, err := f.getOK(ctx, path)
		if err != nil {
			return nil, err
		}
		return DecodeJSONBytes(body)
	}

	if !f.dedupe {
		return load(ctx)
	}

	// The shared request must not die with whichever caller started it.
	ch := f.group.DoChan(path, func() (any, error) {
		return load(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrNetwork, ctx.Err())
	}
}

// FetchJSON sets the status to fetchingMsg (default "Fetching..."), GETs
// path, parses the body as JSON and passes the value to onData. On success
// the status becomes "Fetched". Any failure (transport error, non-2xx
// status, malformed JSON, or an error from onData) is logged and the status
// becomes "Error fetching"; onData is not called for failed requests.
//
// With deduplication enabled the decoded value may be shared between
// concurrent callers and must be treated as read-only.
func (f *Fetcher) FetchJSON(ctx context.Context, sink StatusSink, path string, onData func(any) error, fetchingMsg string) error {
	if fetchingMsg == "" {
		fetchingMsg = StatusFetching
	}
	sink.SetStatus(fetchingMsg)

	data, err := f.loadJSON(ctx, path)
	if err == nil {
		err = onData(data)
	}
	if err != nil {
		logger(ctx).Error("fetch failed", "path", path, "error", err)
		sink.SetStatus(StatusFetchError)
		return err
	}

	sink.SetStatus(StatusFetched)
	return nil
}

// PostSimple sets the status to processingMsg (default "Processing..."),
// GETs path and shows the reply text as the status. An empty reply shows
// "OK" for success statuses and "Error" otherwise. Transport failures are
// logged and show "Error".
//
// Despite the name the request is a GET; the adapter's action endpoints
// trigger on any method.
func (f *Fetcher) PostSimple(ctx context.Context, sink StatusSink, path, processingMsg string) error {
	return f.simple(ctx, sink, http.MethodGet, path, "", nil, processingMsg)
}

// Send is PostSimple with an explicit method and request body; the editor
// uses it to push JSON to the adapter.
func (f *Fetcher) Send(ctx context.Context, sink StatusSink, method, path, contentType string, body []byte, processingMsg string) error {
	return f.simple(ctx, sink, method, path, contentType, body, processingMsg)
}

func (f *Fetcher) simple(ctx context.Context, sink StatusSink, method, path, contentType string, body []byte, msg string) error {
	if msg == "" {
		msg = StatusProcessing
	}
	sink.SetStatus(msg)

	res, err := f.do(ctx, method, path, contentType, body)
	if err != nil {
		logger(ctx).Error("request failed", "method", method, "path", path, "error", err)
		sink.SetStatus(StatusError)
		return err
	}

	text := string(res.body)
	switch {
	case text != "":
		sink.SetStatus(text)
	case res.ok():
		sink.SetStatus(StatusOK)
	default:
		sink.SetStatus(StatusError)
	}

	if !res.ok() {
		return fmt.Errorf("%w: %s: device returned status %d", ErrNetwork, path, res.status)
	}
	return nil
}

// FetchText GETs path and returns the raw body. It writes no status.
func (f *Fetcher) FetchText(ctx context.Context, path string) ([]byte, error) {
	return f.getOK(ctx, path)
}

// IsNetworkError reports whether err is a NetworkFailure.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork)
}
