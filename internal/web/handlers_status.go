package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/ebusdash/internal/core"
	"github.com/JonMunkholm/ebusdash/internal/logging"
	"github.com/JonMunkholm/ebusdash/internal/web/templates"
	"github.com/gorilla/websocket"
)

// Status stream timing.
const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = wsPingPeriod + 10*time.Second
)

var errPingDisabled = errors.New("device check is not configured")

// statusMessage is the JSON shape of a status update.
type statusMessage struct {
	Message string `json:"message"`
}

// handleDashboard renders the page with every panel grouped.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)

	data := templates.PageData{
		Title:      "eBUS Adapter",
		DeviceURL:  s.fetcher.BaseURL(),
		Status:     sess.status.Message(),
		EditorText: sess.editor.Text(),
	}
	for _, g := range s.panels.Groups() {
		panels := s.panels.ByGroup(g)
		for _, p := range panels {
			if p.Kind == core.PanelEditor {
				data.HasEditor = true
			}
		}
		data.Groups = append(data.Groups, templates.PanelGroup{Name: g, Panels: panels})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Page(data).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render dashboard", "error", err)
	}
}

// handleStatus returns the session's status line and the adapter request
// slots.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	message := ""
	if sess := s.sessions.peek(r); sess != nil {
		message = sess.status.Message()
	}
	writeJSON(w, r, map[string]any{
		"message": message,
		"device":  s.fetcher.Limiter().Status(),
	})
}

// handleStatusStream pushes every status change of the session over a
// WebSocket until the client leaves or the server shuts down.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	log := requestLogger(r, sess)

	conn, err := s.upgrader.Upgrade(w, r, w.Header())
	if err != nil {
		// Upgrade has already answered the request.
		log.Warn("status stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := sess.status.Subscribe()
	defer cancel()

	// Read loop: handles pongs and notices when the client goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn("status stream read error", "error", err)
				}
				return
			}
		}
	}()

	send := func(msg string) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(statusMessage{Message: msg}) == nil
	}

	if !send(sess.status.Message()) {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-s.ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case msg, ok := <-updates:
			if !ok || !send(msg) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// handleDevicePing checks the adapter host and returns the result as JSON.
func (s *Server) handleDevicePing(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		s.respondError(w, r, errPingDisabled, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, r, s.checker.Check(r.Context()))
}

// handleDevicePingFragment renders the header reachability indicator,
// reusing the background monitor's result while it is current.
func (s *Server) handleDevicePingFragment(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	st, ok := s.checker.Fresh(s.cfg.Device.PingInterval, s.now())
	if !ok {
		st = s.checker.Check(r.Context())
	}
	s.renderFragments(w, r, templates.DevicePing(st))
}

// handleDiagnostics returns recent log records, optionally filtered with
// ?level=error,warn.
func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"entries": []logging.Entry{}, "capacity": 0}
	if s.diag != nil {
		var levels []string
		for _, l := range strings.Split(r.URL.Query().Get("level"), ",") {
			if l = strings.TrimSpace(l); l != "" {
				levels = append(levels, l)
			}
		}
		resp["entries"] = s.diag.Entries(levels...)
		resp["capacity"] = s.diag.Capacity()
	}
	writeJSON(w, r, resp)
}

// handleListPanels returns the panel definitions.
func (s *Server) handleListPanels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.panels.All())
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{
		"status":          "ok",
		"sessions":        s.sessions.Count(),
		"device_requests": s.fetcher.Limiter().ActiveCount(),
	})
}
