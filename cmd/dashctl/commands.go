package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/ebusdash/internal/core"
)

func runTable(ctx context.Context, f *core.Fetcher, sink core.StatusSink, endpoint, format string, w io.Writer) error {
	return f.HandleSimpleTable(ctx, sink, endpoint, func(spec core.TableSpec) error {
		return writeTable(w, format, spec)
	})
}

func runSections(ctx context.Context, f *core.Fetcher, sink core.StatusSink, endpoint string, opts options, w io.Writer) error {
	return f.FetchJSON(ctx, sink, endpoint, func(data any) error {
		if opts.output == "json" || opts.output == "yaml" {
			return writeValue(w, opts.output, data)
		}
		entries := core.BuildSections(data, core.SectionOptions{MaxDepth: opts.depth})
		return writeSections(w, entries, 0)
	}, "")
}

// runAction prints the adapter's reply, which PostSimple reports as the
// final status.
func runAction(ctx context.Context, f *core.Fetcher, sink core.StatusSink, endpoint, msg string, w io.Writer) error {
	var reply string
	tee := core.SinkFunc(func(m string) {
		reply = m
		sink.SetStatus(m)
	})
	err := f.PostSimple(ctx, tee, endpoint, msg)
	if err == nil {
		fmt.Fprintln(w, reply)
	}
	return err
}

func runFormat(ctx context.Context, sink core.StatusSink, path string, w io.Writer) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		r = file
	}

	editor := core.NewEditor(0)
	if err := editor.LoadFile(ctx, sink, r, nil); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, editor.Text())
	return err
}

func runDownload(ctx context.Context, f *core.Fetcher, sink core.StatusSink, endpoint string, opts options, w io.Writer) error {
	sink.SetStatus(core.StatusFetching)
	body, err := f.FetchText(ctx, endpoint)
	if err != nil {
		sink.SetStatus(core.StatusFetchError)
		return err
	}

	now := time.Now()
	name := strings.TrimSpace(opts.name)
	err = core.DownloadTextFile(ctx, sink, core.DirDownloader{Dir: opts.dir}, string(body), name, opts.mime, now)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, filepath.Join(opts.dir, core.TimestampedName(name, now)))
	return nil
}
