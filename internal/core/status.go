package core

import "sync"

// Status line messages. These strings are part of the page contract; scripts
// and users key off them.
const (
	StatusFetching        = "Fetching..."
	StatusFetched         = "Fetched"
	StatusFetchError      = "Error fetching"
	StatusProcessing      = "Processing..."
	StatusOK              = "OK"
	StatusError           = "Error"
	StatusDownloaded      = "Downloaded"
	StatusDownloadFailed  = "Download failed"
	StatusEditorCleared   = "Editor cleared"
	StatusFormatted       = "Formatted"
	StatusInvalidJSON     = "Invalid JSON"
	StatusLoadedFile      = "Loaded file"
	StatusInvalidJSONFile = "Invalid JSON in file"
)

// StatusSink receives human-readable progress and result messages.
// Writes are last-write-wins; there is no history.
type StatusSink interface {
	SetStatus(message string)
}

// SinkFunc adapts a function to StatusSink.
type SinkFunc func(message string)

// SetStatus calls f(message).
func (f SinkFunc) SetStatus(message string) { f(message) }

// DiscardStatus is a StatusSink that drops every message.
var DiscardStatus StatusSink = SinkFunc(func(string) {})

// StatusRegister is the single status line of one page. It holds the last
// message written and notifies subscribers of every change. Concurrent
// writers race; the last write wins.
type StatusRegister struct {
	mu      sync.RWMutex
	message string
	subs    map[chan string]struct{}
}

// NewStatusRegister returns an empty register.
func NewStatusRegister() *StatusRegister {
	return &StatusRegister{subs: make(map[chan string]struct{})}
}

// SetStatus overwrites the current message.
func (r *StatusRegister) SetStatus(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.message = message
	for ch := range r.subs {
		// Slow subscribers only need the newest message
		select {
		case <-ch:
		default:
		}
		ch <- message
	}
}

// Message returns the current message.
func (r *StatusRegister) Message() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.message
}

// Subscribe returns a channel that receives every subsequent message (the
// newest one if the reader falls behind) and a function that ends the
// subscription and closes the channel.
func (r *StatusRegister) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 1)

	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, ch)
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
