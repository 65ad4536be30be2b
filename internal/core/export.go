package core

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the download name prefix: local YYYY-MM-DD-HH-MM-SS.
const TimestampLayout = "2006-01-02-15-04-05"

// DefaultMIME is used when no MIME type is given.
const DefaultMIME = "text/plain"

// TextFile is an in-memory file ready for download.
type TextFile struct {
	Name    string
	MIME    string
	Content []byte
}

// TimestampedName prefixes filename with now formatted as TimestampLayout.
func TimestampedName(filename string, now time.Time) string {
	return now.Format(TimestampLayout) + "-" + filename
}

// NewTextFile builds the download for text under a timestamped name.
func NewTextFile(text, filename, mimeType string, now time.Time) (TextFile, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" || strings.ContainsAny(filename, `/\`) {
		return TextFile{}, fmt.Errorf("%w: invalid filename %q", ErrDownload, filename)
	}
	if mimeType == "" {
		mimeType = DefaultMIME
	}
	if _, _, err := mime.ParseMediaType(mimeType); err != nil {
		return TextFile{}, fmt.Errorf("%w: invalid mime type %q: %v", ErrDownload, mimeType, err)
	}

	return TextFile{
		Name:    TimestampedName(filename, now),
		MIME:    mimeType,
		Content: []byte(text),
	}, nil
}

// Downloader hands a finished file to the user.
type Downloader interface {
	Deliver(file TextFile) error
}

// DownloaderFunc adapts a function to Downloader.
type DownloaderFunc func(file TextFile) error

// Deliver calls f(file).
func (f DownloaderFunc) Deliver(file TextFile) error { return f(file) }

// DownloadTextFile packages text as "<timestamp>-<filename>" with the given
// MIME type (default text/plain) and delivers it. On success the status is
// "Downloaded"; on any failure the error is logged and the status is
// "Download failed".
func DownloadTextFile(ctx context.Context, sink StatusSink, d Downloader, text, filename, mimeType string, now time.Time) error {
	file, err := NewTextFile(text, filename, mimeType, now)
	if err == nil {
		if derr := d.Deliver(file); derr != nil {
			err = fmt.Errorf("%w: %w", ErrDownload, derr)
		}
	}
	if err != nil {
		logger(ctx).Error("download error", "filename", filename, "error", err)
		sink.SetStatus(StatusDownloadFailed)
		return err
	}

	sink.SetStatus(StatusDownloaded)
	return nil
}

// ResponseDownloader delivers files as HTTP attachments.
type ResponseDownloader struct {
	W http.ResponseWriter
}

// Deliver writes the attachment headers and body.
func (d ResponseDownloader) Deliver(file TextFile) error {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": file.Name})
	if disposition == "" {
		return fmt.Errorf("cannot encode filename %q", file.Name)
	}

	h := d.W.Header()
	h.Set("Content-Type", file.MIME)
	h.Set("Content-Disposition", disposition)
	h.Set("Content-Length", strconv.Itoa(len(file.Content)))
	h.Set("Cache-Control", "no-store")
	d.W.WriteHeader(http.StatusOK)

	_, err := d.W.Write(file.Content)
	return err
}

// DirDownloader writes files into a directory.
type DirDownloader struct {
	Dir string
}

// Deliver writes file.Content to Dir/file.Name, refusing to overwrite.
func (d DirDownloader) Deliver(file TextFile) error {
	path := filepath.Join(d.Dir, file.Name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(file.Content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
