package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestFetcher(t *testing.T, srv *httptest.Server, cfg FetcherConfig) *Fetcher {
	t.Helper()
	cfg.BaseURL = srv.URL
	f, err := NewFetcher(cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewFetcher() error = %v", err)
	}
	return f
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewFetcher_RejectsRelativeURL(t *testing.T) {
	if _, err := NewFetcher(FetcherConfig{BaseURL: "ebus.local"}, nil); err == nil {
		t.Error("NewFetcher() expected error for relative URL")
	}
}

func TestFetchJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/devices" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":1}]`)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, FetcherConfig{})
	sink := &recordingSink{}

	calls := 0
	var got any
	err := f.FetchJSON(context.Background(), sink, "/api/v1/devices", func(data any) error {
		calls++
		got = data
		return nil
	}, "")
	if err != nil {
		t.Fatalf("FetchJSON() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("onData called %d times, want 1", calls)
	}
	arr, ok := got.([]any)
	if !ok || len(arr) != 1 {
		t.Fatalf("onData received %#v, want one-element array", got)
	}
	if v := CellValue(arr[0], "id"); v != "1" {
		t.Errorf("id = %q, want %q", v, "1")
	}

	want := []string{StatusFetching, StatusFetched}
	if msgs := sink.Messages(); !equalStrings(msgs, want) {
		t.Errorf("statuses = %v, want %v", msgs, want)
	}
}

func TestFetchJSON_CustomMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, FetcherConfig{})
	sink := &recordingSink{}

	_ = f.FetchJSON(context.Background(), sink, "/x", func(any) error { return nil }, "Loading values...")

	if msgs := sink.Messages(); msgs[0] != "Loading values..." {
		t.Errorf("first status = %q, want custom message", msgs[0])
	}
}

func TestFetchJSON_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		onErr   error
		wantErr error
	}{
		{
			name: "non-ok status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusInternalServerError)
			},
			wantErr: ErrNetwork,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `[{"id":1}`)
			},
			wantErr: ErrParse,
		},
		{
			name: "callback error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `[]`)
			},
			onErr:   errors.New("render exploded"),
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			f := newTestFetcher(t, srv, FetcherConfig{})
			sink := &recordingSink{}

			called := false
			err := f.FetchJSON(context.Background(), sink, "/x", func(any) error {
				called = true
				return tt.onErr
			}, "")

			if err == nil {
				t.Fatal("FetchJSON() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("FetchJSON() error = %v, want %v", err, tt.wantErr)
			}
			if tt.onErr == nil && called {
				t.Error("onData must not be called for a failed request")
			}
			if got := sink.Last(); got != StatusFetchError {
				t.Errorf("final status = %q, want %q", got, StatusFetchError)
			}
		})
	}
}

func TestFetchJSON_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	f := newTestFetcher(t, srv, FetcherConfig{})
	srv.Close()

	sink := &recordingSink{}
	err := f.FetchJSON(context.Background(), sink, "/x", func(any) error {
		t.Error("onData called on network failure")
		return nil
	}, "")

	if !IsNetworkError(err) {
		t.Errorf("FetchJSON() error = %v, want ErrNetwork", err)
	}
	if got := sink.Last(); got != StatusFetchError {
		t.Errorf("final status = %q, want %q", got, StatusFetchError)
	}
}

func TestFetchJSON_ConcurrentIndependentPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			http.Error(w, "broken", http.StatusBadGateway)
			return
		}
		io.WriteString(w, `[{"id":1}]`)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, FetcherConfig{MaxConcurrent: 4})

	var good, bad atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = f.FetchJSON(context.Background(), DiscardStatus, "/good", func(any) error {
			good.Add(1)
			return nil
		}, "")
	}()
	go func() {
		defer wg.Done()
		_ = f.FetchJSON(context.Background(), DiscardStatus, "/bad", func(any) error {
			bad.Add(1)
			return nil
		}, "")
	}()
	wg.Wait()

	if good.Load() != 1 {
		t.Errorf("good callback ran %d times, want 1", good.Load())
	}
	if bad.Load() != 0 {
		t.Errorf("bad callback ran %d times, want 0", bad.Load())
	}
}

func TestFetchJSON_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := newTestFetcher(t, srv, FetcherConfig{})
	sink := &recordingSink{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := f.FetchJSON(ctx, sink, "/slow", func(any) error { return nil }, "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("FetchJSON() error = %v, want deadline exceeded", err)
	}
	if got := sink.Last(); got != StatusFetchError {
		t.Errorf("final status = %q, want %q", got, StatusFetchError)
	}
}

func TestFetchJSON_RequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := newTestFetcher(t, srv, FetcherConfig{RequestTimeout: 50 * time.Millisecond})

	err := f.FetchJSON(context.Background(), DiscardStatus, "/slow", func(any) error { return nil }, "")
	if !IsNetworkError(err) {
		t.Errorf("FetchJSON() error = %v, want ErrNetwork", err)
	}
}

func TestFetchJSON_Dedupe(t *testing.T) {
	var hits atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, FetcherConfig{Dedupe: true})

	const callers = 5
	var delivered atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.FetchJSON(context.Background(), DiscardStatus, "/api/v1/status", func(any) error {
				delivered.Add(1)
				return nil
			}, "")
			if err != nil {
				t.Errorf("FetchJSON() error = %v", err)
			}
		}()
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := hits.Load(); got != 1 {
		t.Errorf("device hit %d times, want 1", got)
	}
	if got := delivered.Load(); got != callers {
		t.Errorf("onData ran %d times, want %d", got, callers)
	}
}

func TestPostSimple(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus string
		wantErr    bool
	}{
		{name: "reply text", status: http.StatusOK, body: "Scan initiated", wantStatus: "Scan initiated"},
		{name: "empty ok", status: http.StatusOK, body: "", wantStatus: StatusOK},
		{name: "empty failure", status: http.StatusInternalServerError, body: "", wantStatus: StatusError, wantErr: true},
		{name: "failure text", status: http.StatusForbidden, body: "No commands", wantStatus: "No commands", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("method = %s, want GET", r.Method)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			f := newTestFetcher(t, srv, FetcherConfig{})
			sink := &recordingSink{}

			err := f.PostSimple(context.Background(), sink, "/api/v1/devices/scan", "")
			if (err != nil) != tt.wantErr {
				t.Errorf("PostSimple() error = %v, wantErr %v", err, tt.wantErr)
			}

			want := []string{StatusProcessing, tt.wantStatus}
			if msgs := sink.Messages(); !equalStrings(msgs, want) {
				t.Errorf("statuses = %v, want %v", msgs, want)
			}
		})
	}
}

func TestPostSimple_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	f := newTestFetcher(t, srv, FetcherConfig{})
	srv.Close()

	sink := &recordingSink{}
	err := f.PostSimple(context.Background(), sink, "/restart", "Restarting...")

	if !IsNetworkError(err) {
		t.Errorf("PostSimple() error = %v, want ErrNetwork", err)
	}
	want := []string{"Restarting...", StatusError}
	if msgs := sink.Messages(); !equalStrings(msgs, want) {
		t.Errorf("statuses = %v, want %v", msgs, want)
	}
}

func TestSend_PostsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		fmt.Fprintf(w, "got %d bytes", len(body))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, FetcherConfig{})
	sink := &recordingSink{}

	err := f.Send(context.Background(), sink, http.MethodPost, "/api/v1/commands/insert", "application/json", []byte(`[{"a":1}]`), "Installing...")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := sink.Last(); got != "got 9 bytes" {
		t.Errorf("status = %q, want reply text", got)
	}
}

func TestFetchText_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, FetcherConfig{MaxResponseSize: 16})

	_, err := f.FetchText(context.Background(), "/api/v1/logs")
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("FetchText() error = %v, want ErrTooLarge", err)
	}
}
