package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/JonMunkholm/ebusdash/internal/core"
	"github.com/google/uuid"
)

const sessionCookie = "dash_session"

// session is one browser's view of the dashboard: its editor document and
// its status line.
type session struct {
	id     string
	editor *core.Editor
	status *core.StatusRegister

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

const defaultMaxSessions = 1000

// sessionStore keeps sessions in memory, keyed by a UUID cookie. At most
// maxSessions live at once.
type sessionStore struct {
	mu          sync.Mutex
	sessions    map[string]*session
	maxUpload   int64
	maxSessions int
	ttl         time.Duration
	now         func() time.Time
}

func newSessionStore(maxUpload int64, maxSessions int, ttl time.Duration) *sessionStore {
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}
	return &sessionStore{
		sessions:    make(map[string]*session),
		maxUpload:   maxUpload,
		maxSessions: maxSessions,
		ttl:         ttl,
		now:         time.Now,
	}
}

// peek returns the caller's existing session, or nil. It never creates one,
// so read-only API clients without a cookie cost nothing.
func (st *sessionStore) peek(r *http.Request) *session {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return nil
	}
	sess := st.lookup(id.String())
	if sess != nil {
		sess.touch(st.now())
	}
	return sess
}

// get returns the caller's session, creating one and setting the cookie
// when the request has no valid session.
func (st *sessionStore) get(w http.ResponseWriter, r *http.Request) *session {
	if sess := st.peek(r); sess != nil {
		return sess
	}

	sess := st.create()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

func (st *sessionStore) lookup(id string) *session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[id]
}

func (st *sessionStore) create() *session {
	sess := &session{
		id:       uuid.NewString(),
		editor:   core.NewEditor(st.maxUpload),
		status:   core.NewStatusRegister(),
		lastSeen: st.now(),
	}

	st.mu.Lock()
	if len(st.sessions) >= st.maxSessions {
		st.evictOldest()
	}
	st.sessions[sess.id] = sess
	st.mu.Unlock()
	return sess
}

// evictOldest drops the least recently seen session. Caller holds st.mu.
func (st *sessionStore) evictOldest() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, sess := range st.sessions {
		if seen := sess.idleSince(); oldestID == "" || seen.Before(oldest) {
			oldestID, oldest = id, seen
		}
	}
	delete(st.sessions, oldestID)
}

// Count returns the number of live sessions.
func (st *sessionStore) Count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// sweep drops sessions idle for longer than the TTL.
func (st *sessionStore) sweep(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, sess := range st.sessions {
		if now.Sub(sess.idleSince()) > st.ttl {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// run sweeps every interval until ctx is done.
func (st *sessionStore) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			st.sweep(now)
		}
	}
}

// opStatus forwards status writes to the session's register and keeps the
// last one written by this request, so the response shows the outcome of
// its own operation.
type opStatus struct {
	reg  *core.StatusRegister
	last string
}

func (s *session) op() *opStatus {
	return &opStatus{reg: s.status}
}

func (o *opStatus) SetStatus(message string) {
	o.last = message
	o.reg.SetStatus(message)
}
