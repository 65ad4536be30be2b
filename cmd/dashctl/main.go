// Command dashctl queries an eBUS adapter from the terminal using the same
// fetch, table and section logic as the dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/JonMunkholm/ebusdash/internal/core"
	"github.com/JonMunkholm/ebusdash/internal/logging"
	"github.com/joho/godotenv"
)

const usage = `Usage: dashctl [flags] <command> [args]

Commands:
  table <endpoint>             print a JSON array of records as a table
  sections <endpoint>          print a JSON object as nested sections
  action <endpoint> [message]  trigger an action endpoint and print the reply
  format <file|->              pretty-print a local JSON file
  download <endpoint>          save an endpoint's body to a timestamped file

Flags:
`

// errUsage means the command line was wrong; usage has been printed.
var errUsage = errors.New("usage")

// options are the parsed global flags.
type options struct {
	device  string
	output  string
	timeout time.Duration
	depth   int
	dir     string
	name    string
	mime    string
}

func main() {
	// .env is optional for the CLI
	_ = godotenv.Load()

	logging.Setup(logging.Options{
		Level:  envOr("LOG_LEVEL", "warn"),
		Format: "text",
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one dashctl invocation and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, rest, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if err := dispatch(ctx, opts, rest, stdout, stderr); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintln(stderr, "dashctl:", err)
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (options, []string, error) {
	var opts options

	fs := flag.NewFlagSet("dashctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.device, "device", envOr("DEVICE_URL", os.Getenv("EBUS_URL")), "adapter base URL (env DEVICE_URL)")
	fs.StringVar(&opts.output, "o", "table", "output format: "+strings.Join(outputFormats, "|"))
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-request timeout")
	fs.IntVar(&opts.depth, "depth", core.DefaultSectionDepth, "maximum section depth")
	fs.StringVar(&opts.dir, "dir", ".", "download directory")
	fs.StringVar(&opts.name, "name", "download.txt", "download file name (timestamp is prepended)")
	fs.StringVar(&opts.mime, "mime", core.DefaultMIME, "download MIME type")

	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	if !validOutput(opts.output) {
		fmt.Fprintf(stderr, "unknown output format %q\n", opts.output)
		fs.Usage()
		return opts, nil, errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return opts, nil, errUsage
	}
	return opts, fs.Args(), nil
}

func dispatch(ctx context.Context, opts options, args []string, stdout, stderr io.Writer) error {
	cmd, args := args[0], args[1:]
	sink := core.SinkFunc(func(msg string) { fmt.Fprintln(stderr, msg) })

	// format works offline
	if cmd == "format" {
		if len(args) != 1 {
			return usageError(stderr, "format <file|->")
		}
		return runFormat(ctx, sink, args[0], stdout)
	}

	if len(args) == 0 {
		return usageError(stderr, cmd+" <endpoint>")
	}
	endpoint := args[0]

	if opts.device == "" {
		return errors.New("no adapter URL: set -device or DEVICE_URL")
	}
	fetcher, err := core.NewFetcher(core.FetcherConfig{
		BaseURL:        opts.device,
		RequestTimeout: opts.timeout,
		MaxConcurrent:  1,
		MaxWait:        opts.timeout,
	}, &http.Client{})
	if err != nil {
		return err
	}

	switch cmd {
	case "table":
		return runTable(ctx, fetcher, sink, endpoint, opts.output, stdout)
	case "sections":
		return runSections(ctx, fetcher, sink, endpoint, opts, stdout)
	case "action":
		msg := ""
		if len(args) > 1 {
			msg = strings.Join(args[1:], " ")
		}
		return runAction(ctx, fetcher, sink, endpoint, msg, stdout)
	case "download":
		return runDownload(ctx, fetcher, sink, endpoint, opts, stdout)
	default:
		return usageError(stderr, fmt.Sprintf("unknown command %q", cmd))
	}
}

func usageError(stderr io.Writer, msg string) error {
	fmt.Fprintln(stderr, "usage: dashctl", msg)
	return errUsage
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
