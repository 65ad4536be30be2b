// Package core provides the presentation logic of the eBUS adapter dashboard.
//
// The package is independent of any UI or transport: the web server, the
// dashctl CLI and the tests all drive the same operations. Page state that a
// browser would keep in the DOM is passed in explicitly as ports.
//
// # Status Line
//
// Every operation reports progress through a [StatusSink]. [StatusRegister]
// is the page's single last-write-wins status line; [SinkFunc] adapts any
// function. The exact strings are fixed (see status.go).
//
// # Fetching
//
// [Fetcher] talks to the adapter:
//
//   - [Fetcher.FetchJSON]: GET, parse, hand the value to a callback
//   - [Fetcher.PostSimple]: trigger an action and show the reply text
//   - [Fetcher.HandleSimpleTable]: fetch records and infer a table
//
// Requests honour context cancellation, an optional per-request timeout, a
// [RequestLimiter] protecting the adapter, and opt-in de-duplication of
// concurrent fetches of the same path.
//
// # Rendering
//
// JSON is decoded by [DecodeJSON] into an order-preserving value model
// ([*Object], []any, json.Number, string, bool, nil) and converted to text by
// [ToDisplayString]. [InferTable] produces a [TableSpec] and [BuildSections]
// the entries of nested titled sections. Markup is produced elsewhere and
// always treats these strings as text.
//
// # Files and Editor
//
// [DownloadTextFile] names downloads "<YYYY-MM-DD-HH-MM-SS>-<name>" and hands
// them to a [Downloader]. [Editor] is the JSON text surface with Clear,
// Format and LoadFile.
//
// # Error Handling
//
// Failures wrap [ErrNetwork], [ErrParse] or [ErrDownload]. They are logged
// and shown as a status string; the returned error only lets callers branch.
// [MapError] turns technical errors into coded user messages for API
// responses.
package core
