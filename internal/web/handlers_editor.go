package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/ebusdash/internal/core"
	"github.com/JonMunkholm/ebusdash/internal/web/templates"
	"github.com/a-h/templ"
)

// multipartOverhead is the room left for multipart framing on top of the
// editor's upload limit.
const multipartOverhead = 64 << 10

// Editor download defaults when no editor panel names a file.
const (
	defaultEditorFilename = "commands.json"
	defaultEditorMIME     = "application/json"
)

// editorFragments collects what an editor operation changed.
type editorFragments struct {
	textarea templ.Component
	size     templ.Component
}

// onSize is the SizeUpdater for one request: it renders the new counter.
func (f *editorFragments) onSize(size int) {
	f.size = templates.EditorSize(size, true)
}

func (f *editorFragments) setText(text string) {
	f.textarea = templates.EditorTextarea(text, true)
}

// syncText stores the submitted textarea content, if the form carried one,
// so the operation works on what the user sees.
func syncText(r *http.Request, sess *session, f *editorFragments) {
	if err := r.ParseForm(); err != nil {
		return
	}
	if vals, ok := r.PostForm["text"]; ok && len(vals) > 0 {
		sess.editor.SetText(vals[0], f.onSize)
	}
}

// handleEditorText stores a manual edit.
func (s *Server) handleEditorText(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	var f editorFragments

	if err := r.ParseForm(); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	sess.editor.SetText(r.PostFormValue("text"), f.onSize)

	s.renderFragments(w, r, f.size)
}

// handleEditorClear empties the editor.
func (s *Server) handleEditorClear(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	st := sess.op()
	var f editorFragments

	sess.editor.Clear(st, f.onSize)
	f.setText("")

	s.renderFragments(w, r, f.textarea, f.size, templates.StatusLine(st.last, true))
}

// handleEditorFormat pretty-prints the editor content. Invalid JSON leaves
// the textarea alone.
func (s *Server) handleEditorFormat(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	st := sess.op()
	var f editorFragments

	syncText(r, sess, &f)
	if err := sess.editor.Format(st, f.onSize); err == nil {
		f.setText(sess.editor.Text())
	}

	s.renderFragments(w, r, f.textarea, f.size, templates.StatusLine(st.last, true))
}

// handleEditorUpload loads an uploaded JSON file into the editor. A form
// without a file does nothing.
func (s *Server) handleEditorUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	ctx := requestContext(r, sess)
	st := sess.op()
	var f editorFragments

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Editor.MaxUploadSize+multipartOverhead)
	file, _, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		requestLogger(r, sess).Error("editor upload failed", "error", err)
		st.SetStatus(core.StatusError)
		s.renderFragments(w, r, templates.StatusLine(st.last, true))
		return
	}
	defer file.Close()

	if err := sess.editor.LoadFile(ctx, st, file, f.onSize); err == nil {
		f.setText(sess.editor.Text())
	}

	s.renderFragments(w, r, f.textarea, f.size, templates.StatusLine(st.last, true))
}

// handleEditorLoad fetches an editor panel's endpoint into the editor.
func (s *Server) handleEditorLoad(w http.ResponseWriter, r *http.Request) {
	p, ok := s.panel(w, r, core.PanelEditor)
	if !ok {
		return
	}
	sess := s.sessions.get(w, r)
	st := sess.op()
	var f editorFragments

	err := s.fetcher.FetchJSON(requestContext(r, sess), st, p.Endpoint, func(data any) error {
		return sess.editor.LoadValue(data, f.onSize)
	}, p.Message)
	if err == nil {
		f.setText(sess.editor.Text())
	}

	s.renderFragments(w, r, f.textarea, f.size, templates.StatusLine(st.last, true))
}

// handleEditorPush sends the editor document to the panel's push endpoint
// and shows the adapter's reply. Invalid JSON is not sent.
func (s *Server) handleEditorPush(w http.ResponseWriter, r *http.Request) {
	p, ok := s.panel(w, r, core.PanelEditor)
	if !ok {
		return
	}
	if p.PushEndpoint == "" {
		s.respondError(w, r, core.ErrWrongPanelKind, http.StatusNotFound)
		return
	}
	sess := s.sessions.get(w, r)
	st := sess.op()
	var f editorFragments

	syncText(r, sess, &f)
	text := sess.editor.Text()
	if !json.Valid([]byte(text)) {
		st.SetStatus(core.StatusInvalidJSON)
	} else {
		_ = s.fetcher.Send(requestContext(r, sess), st, http.MethodPost, p.PushEndpoint, "application/json", []byte(text), "")
	}

	s.renderFragments(w, r, f.size, templates.StatusLine(st.last, true))
}

// handleEditorDownload sends the editor content as a timestamped file,
// named after the editor panel given in ?panel= when there is one.
func (s *Server) handleEditorDownload(w http.ResponseWriter, r *http.Request) {
	filename, mimeType := defaultEditorFilename, defaultEditorMIME
	if key := r.URL.Query().Get("panel"); key != "" {
		p, err := s.panels.Lookup(key, core.PanelEditor)
		if err != nil {
			s.respondError(w, r, err, statusFor(err))
			return
		}
		if p.Filename != "" {
			filename = p.Filename
		}
		if p.MIME != "" {
			mimeType = p.MIME
		}
	}

	sess := s.sessions.get(w, r)
	s.deliver(w, r, sess, sess.op(), sess.editor.Text(), filename, mimeType)
}
