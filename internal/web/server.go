// Package web serves the eBUS adapter dashboard: the page, the HTMX
// fragments that refresh its panels, and a small JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/JonMunkholm/ebusdash/internal/config"
	"github.com/JonMunkholm/ebusdash/internal/core"
	"github.com/JonMunkholm/ebusdash/internal/device"
	"github.com/JonMunkholm/ebusdash/internal/logging"
	appmw "github.com/JonMunkholm/ebusdash/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Session housekeeping defaults.
const (
	sessionTTL      = 24 * time.Hour
	cleanupInterval = time.Minute
)

var errRateLimited = errors.New("rate limit exceeded")

// Deps are the collaborators a Server needs. Checker and Diagnostics are
// optional.
type Deps struct {
	Config      *config.Config
	Fetcher     *core.Fetcher
	Panels      *core.PanelRegistry
	Checker     *device.Checker
	Diagnostics *logging.Diagnostics
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg         *config.Config
	fetcher     *core.Fetcher
	panels      *core.PanelRegistry
	checker     *device.Checker
	diag        *logging.Diagnostics
	sessions    *sessionStore
	sectionOpts core.SectionOptions
	upgrader    websocket.Upgrader
	now         func() time.Time

	router *chi.Mux
	server *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a Server and starts its background housekeeping, which
// runs until Shutdown.
func NewServer(d Deps) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:         d.Config,
		fetcher:     d.Fetcher,
		panels:      d.Panels,
		checker:     d.Checker,
		diag:        d.Diagnostics,
		sessions:    newSessionStore(d.Config.Editor.MaxUploadSize, d.Config.Editor.MaxSessions, sessionTTL),
		sectionOpts: core.SectionOptions{MaxDepth: d.Config.Panels.MaxDepth},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		now:    time.Now,
		router: chi.NewRouter(),
		ctx:    ctx,
		cancel: cancel,
	}
	go s.sessions.run(ctx, cleanupInterval)

	s.setupRoutes()
	return s
}

// setupRoutes configures middleware and routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(appmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	r.Use(appmw.Logger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(s.cfg.Security.EnableCSP))

	passthrough := func(next http.Handler) http.Handler { return next }
	general, actions := passthrough, passthrough
	if s.cfg.Rate.Enabled {
		general = s.startRateLimiter(s.cfg.Rate.RequestsPerMinute).middleware
		actions = s.startRateLimiter(s.cfg.Rate.ActionLimit).middleware
	}
	r.Use(general)

	r.Get("/health", s.handleHealth)

	// Long-lived; kept out of the request timeout.
	r.Get("/ws/status", s.handleStatusStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

		r.Get("/", s.handleDashboard)

		r.Route("/ui", func(r chi.Router) {
			r.Get("/table/{panel}", s.handleTablePanel)
			r.Get("/sections/{panel}", s.handleSectionsPanel)
			r.Get("/download/{panel}", s.handleDownloadPanel)
			r.Get("/device/ping", s.handleDevicePingFragment)

			r.Get("/editor/load/{panel}", s.handleEditorLoad)
			r.Get("/editor/download", s.handleEditorDownload)
			r.Post("/editor/text", s.handleEditorText)
			r.Post("/editor/clear", s.handleEditorClear)
			r.Post("/editor/format", s.handleEditorFormat)

			// Routes that make the adapter do work or accept uploads.
			r.Group(func(r chi.Router) {
				r.Use(actions)
				r.Post("/action/{panel}", s.handleActionPanel)
				r.Post("/editor/upload", s.handleEditorUpload)
				r.Post("/editor/push/{panel}", s.handleEditorPush)
			})
		})

		r.Route("/api", func(r chi.Router) {
			r.Use(appmw.APIKeyAuth(s.cfg.Security.RequireAPIKey, s.cfg.Security.APIKeys))
			r.Get("/status", s.handleStatus)
			r.Get("/panels", s.handleListPanels)
			r.Get("/device/ping", s.handleDevicePing)
			r.Get("/diagnostics", s.handleDiagnostics)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return s.ctx },
	}

	slog.Info("starting server", "addr", addr, "device", s.fetcher.BaseURL())
	return s.server.ListenAndServe()
}

// Shutdown stops housekeeping, closes status streams and gracefully stops
// the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// HTMX comes from unpkg; the status stream is a same-origin WebSocket.
			if enableCSP {
				h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline' https://unpkg.com; style-src 'self' 'unsafe-inline'; connect-src 'self' ws: wss:; img-src 'self' data:")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter keeps one token bucket per client IP. Each bucket holds
// perWindow tokens and refills evenly over window.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	window   time.Duration

	// retryAfter is the refill time of one token, in whole seconds.
	retryAfter string
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(perWindow int, window time.Duration) *rateLimiter {
	refill := window / time.Duration(perWindow)
	return &rateLimiter{
		visitors:   make(map[string]*visitor),
		limit:      rate.Every(refill),
		burst:      perWindow,
		window:     window,
		retryAfter: strconv.Itoa(int(math.Ceil(refill.Seconds()))),
	}
}

// startRateLimiter creates a per-minute limiter whose cleanup runs until
// the server shuts down.
func (s *Server) startRateLimiter(perMinute int) *rateLimiter {
	rl := newRateLimiter(perMinute, time.Minute)
	go rl.run(s.ctx, cleanupInterval)
	return rl
}

// run removes stale visitors every interval until ctx is done.
func (rl *rateLimiter) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.sweep(now)
		}
	}
}

// sweep drops visitors idle for two windows; their buckets are full again.
func (rl *rateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.window*2 {
			delete(rl.visitors, ip)
		}
	}
}

// allow reports whether ip may make a request now and takes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	return rl.allowAt(ip, time.Now())
}

func (rl *rateLimiter) allowAt(ip string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// middleware rate limits by client IP. RemoteAddr has already been
// rewritten by TrustedRealIP when the request came through a trusted proxy.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}

		if !rl.allow(ip) {
			w.Header().Set("Retry-After", rl.retryAfter)
			respondErrorJSON(w, core.MapError(errRateLimited), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
