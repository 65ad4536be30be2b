package web

import (
	"net/http"

	"github.com/JonMunkholm/ebusdash/internal/core"
	"github.com/JonMunkholm/ebusdash/internal/logging"
	"github.com/JonMunkholm/ebusdash/internal/web/templates"
	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
)

// panel resolves the {panel} URL parameter to a panel of the given kind,
// answering the request itself when that fails.
func (s *Server) panel(w http.ResponseWriter, r *http.Request, kind core.PanelKind) (core.Panel, bool) {
	p, err := s.panels.Lookup(chi.URLParam(r, "panel"), kind)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return core.Panel{}, false
	}
	return p, true
}

// renderFragments writes HTMX fragments. Nil parts are skipped.
func (s *Server) renderFragments(w http.ResponseWriter, r *http.Request, parts ...templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := templates.Join(parts...).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render failed", "path", r.URL.Path, "error", err)
	}
}

// handleTablePanel refreshes a table panel: thead, tbody and status.
func (s *Server) handleTablePanel(w http.ResponseWriter, r *http.Request) {
	p, ok := s.panel(w, r, core.PanelTable)
	if !ok {
		return
	}
	sess := s.sessions.get(w, r)
	st := sess.op()

	var table templ.Component
	_ = s.fetcher.HandleSimpleTable(requestContext(r, sess), st, p.Endpoint, func(spec core.TableSpec) error {
		table = templates.SimpleTable(templates.TheadID(p.Key), templates.TbodyID(p.Key), spec.Headers, spec.Rows)
		return nil
	})

	s.renderFragments(w, r, table, templates.StatusLine(st.last, true))
}

// handleSectionsPanel refreshes a sections panel: container and status.
func (s *Server) handleSectionsPanel(w http.ResponseWriter, r *http.Request) {
	p, ok := s.panel(w, r, core.PanelSections)
	if !ok {
		return
	}
	sess := s.sessions.get(w, r)
	st := sess.op()

	var body templ.Component
	_ = s.fetcher.FetchJSON(requestContext(r, sess), st, p.Endpoint, func(data any) error {
		entries := core.BuildSections(data, s.sectionOpts)
		body = templates.NestedSections(templates.SectionsID(p.Key), entries, true)
		return nil
	}, p.Message)

	s.renderFragments(w, r, body, templates.StatusLine(st.last, true))
}

// handleActionPanel triggers an adapter action and shows its reply.
func (s *Server) handleActionPanel(w http.ResponseWriter, r *http.Request) {
	p, ok := s.panel(w, r, core.PanelAction)
	if !ok {
		return
	}
	sess := s.sessions.get(w, r)
	st := sess.op()

	_ = s.fetcher.PostSimple(requestContext(r, sess), st, p.Endpoint, p.Message)

	s.renderFragments(w, r, templates.StatusLine(st.last, true))
}

// handleDownloadPanel fetches an endpoint's text and sends it as a
// timestamped attachment. The browser navigates here, so failures are
// plain HTTP errors; the status line shows them through the stream.
func (s *Server) handleDownloadPanel(w http.ResponseWriter, r *http.Request) {
	p, ok := s.panel(w, r, core.PanelDownload)
	if !ok {
		return
	}
	sess := s.sessions.get(w, r)
	ctx := requestContext(r, sess)
	st := sess.op()

	msg := p.Message
	if msg == "" {
		msg = core.StatusFetching
	}
	st.SetStatus(msg)

	body, err := s.fetcher.FetchText(ctx, p.Endpoint)
	if err != nil {
		st.SetStatus(core.StatusFetchError)
		s.respondError(w, r, err, statusFor(err))
		return
	}

	s.deliver(w, r, sess, st, string(body), p.Filename, p.MIME)
}

// deliver runs DownloadTextFile against the response. An error before any
// byte is written gets an error response; after that the connection is
// all we have.
func (s *Server) deliver(w http.ResponseWriter, r *http.Request, sess *session, st core.StatusSink, text, filename, mimeType string) {
	dl := &trackedDownload{inner: core.ResponseDownloader{W: w}}
	err := core.DownloadTextFile(requestContext(r, sess), st, dl, text, filename, mimeType, s.now())
	if err != nil && !dl.started {
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}

// trackedDownload records whether delivery began writing the response.
type trackedDownload struct {
	inner   core.Downloader
	started bool
}

func (d *trackedDownload) Deliver(file core.TextFile) error {
	d.started = true
	return d.inner.Deliver(file)
}
