package core

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxEditorUpload caps the size of a file loaded into the editor.
const DefaultMaxEditorUpload = 1 << 20

// SizeUpdater is notified with the new text length after an edit. It
// replaces the page-global size hook; nil means nobody is listening.
type SizeUpdater func(size int)

// Editor is a text surface holding a JSON document. Its content is valid
// JSON after a successful Format or LoadFile; SetText may store anything.
type Editor struct {
	mu        sync.RWMutex
	text      string
	maxUpload int64
}

// NewEditor returns an empty editor. maxUpload <= 0 uses DefaultMaxEditorUpload.
func NewEditor(maxUpload int64) *Editor {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxEditorUpload
	}
	return &Editor{maxUpload: maxUpload}
}

// Text returns the current content.
func (e *Editor) Text() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.text
}

// Size returns the content length in bytes.
func (e *Editor) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.text)
}

// SetText stores a manual edit verbatim.
func (e *Editor) SetText(text string, onSize SizeUpdater) {
	e.mu.Lock()
	e.text = text
	e.mu.Unlock()

	notify(onSize, len(text))
}

// Clear empties the editor, notifies onSize and sets "Editor cleared".
func (e *Editor) Clear(sink StatusSink, onSize SizeUpdater) {
	e.mu.Lock()
	e.text = ""
	e.mu.Unlock()

	notify(onSize, 0)
	sink.SetStatus(StatusEditorCleared)
}

// Format pretty-prints the content with two-space indentation and sets
// "Formatted", then notifies onSize. Invalid JSON sets "Invalid JSON" and
// leaves the content untouched.
func (e *Editor) Format(sink StatusSink, onSize SizeUpdater) error {
	e.mu.Lock()
	pretty, err := PrettyJSON([]byte(e.text))
	if err != nil {
		e.mu.Unlock()
		sink.SetStatus(StatusInvalidJSON)
		return err
	}
	e.text = string(pretty)
	size := len(e.text)
	e.mu.Unlock()

	sink.SetStatus(StatusFormatted)
	notify(onSize, size)
	return nil
}

// LoadFile reads a whole file through NewTextReader, and if it parses as
// JSON replaces the content with its pretty-printed form, sets "Loaded
// file" and notifies onSize. A file that does not parse sets "Invalid JSON in file"
// and keeps the previous content. A nil file is a no-op.
func (e *Editor) LoadFile(ctx context.Context, sink StatusSink, file io.Reader, onSize SizeUpdater) error {
	if file == nil {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(NewTextReader(file), e.maxUpload+1))
	if err != nil {
		logger(ctx).Error("editor upload read failed", "error", err)
		sink.SetStatus(StatusError)
		return fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > e.maxUpload {
		logger(ctx).Warn("editor upload too large", "limit", e.maxUpload)
		sink.SetStatus(StatusError)
		return fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, e.maxUpload)
	}

	pretty, err := PrettyJSON(data)
	if err != nil {
		sink.SetStatus(StatusInvalidJSONFile)
		return err
	}

	e.mu.Lock()
	e.text = string(pretty)
	e.mu.Unlock()

	sink.SetStatus(StatusLoadedFile)
	notify(onSize, len(pretty))
	return nil
}

// LoadValue replaces the content with the pretty-printed form of a decoded
// JSON value, typically one fetched from the adapter.
func (e *Editor) LoadValue(v any, onSize SizeUpdater) error {
	pretty, err := encodeIndent(v)
	if err != nil {
		return err
	}
	text := string(pretty)

	e.mu.Lock()
	e.text = text
	e.mu.Unlock()

	notify(onSize, len(text))
	return nil
}

func notify(onSize SizeUpdater, size int) {
	if onSize != nil {
		onSize(size)
	}
}
