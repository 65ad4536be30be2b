package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultDiagnosticsCapacity is used when NewDiagnostics gets a capacity <= 0.
const DefaultDiagnosticsCapacity = 200

// Entry is one captured log record.
type Entry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Diagnostics is a fixed-size ring of recent log records.
type Diagnostics struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewDiagnostics returns an empty buffer holding up to capacity records.
func NewDiagnostics(capacity int) *Diagnostics {
	if capacity <= 0 {
		capacity = DefaultDiagnosticsCapacity
	}
	return &Diagnostics{entries: make([]Entry, capacity)}
}

// Capacity returns the maximum number of retained records.
func (d *Diagnostics) Capacity() int {
	return len(d.entries)
}

// Add stores an entry, dropping the oldest once the buffer is full.
func (d *Diagnostics) Add(e Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries[d.next] = e
	d.next = (d.next + 1) % len(d.entries)
	if d.next == 0 {
		d.full = true
	}
}

// Entries returns the retained records oldest first. With levels given,
// only records at those levels (case-insensitive) are returned.
func (d *Diagnostics) Entries(levels ...string) []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ordered []Entry
	if d.full {
		ordered = append(ordered, d.entries[d.next:]...)
	}
	ordered = append(ordered, d.entries[:d.next]...)

	if len(levels) == 0 {
		return ordered
	}

	want := make(map[string]bool, len(levels))
	for _, l := range levels {
		want[strings.ToLower(l)] = true
	}
	out := make([]Entry, 0, len(ordered))
	for _, e := range ordered {
		if want[strings.ToLower(e.Level)] {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of retained records.
func (d *Diagnostics) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.full {
		return len(d.entries)
	}
	return d.next
}

// Clear drops every record.
func (d *Diagnostics) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.entries)
	d.next = 0
	d.full = false
}

func (d *Diagnostics) handler() slog.Handler {
	return &diagHandler{diag: d}
}

// diagHandler turns slog records into Entries. Attributes are flattened
// to strings with group names joined by ".".
type diagHandler struct {
	diag   *Diagnostics
	attrs  []slog.Attr
	groups []string
}

func (h *diagHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *diagHandler) Handle(_ context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   strings.ToLower(r.Level.String()),
		Message: r.Message,
	}

	attrs := make(map[string]string)
	for _, a := range h.attrs {
		addAttr(attrs, "", a)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		addAttr(attrs, prefix, a)
		return true
	})
	if len(attrs) > 0 {
		e.Attrs = attrs
	}

	h.diag.Add(e)
	return nil
}

func (h *diagHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := strings.Join(h.groups, ".")
	scoped := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	scoped = append(scoped, h.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		scoped = append(scoped, a)
	}
	return &diagHandler{diag: h.diag, attrs: scoped, groups: h.groups}
}

func (h *diagHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := append(append([]string(nil), h.groups...), name)
	return &diagHandler{diag: h.diag, attrs: h.attrs, groups: groups}
}

func addAttr(dst map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addAttr(dst, key, ga)
		}
		return
	}
	dst[key] = a.Value.String()
}
