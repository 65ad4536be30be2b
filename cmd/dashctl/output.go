package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/JonMunkholm/ebusdash/internal/core"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"gopkg.in/yaml.v3"
)

var outputFormats = []string{"table", "markdown", "html", "csv", "tsv", "json", "yaml"}

func validOutput(format string) bool {
	return slices.Contains(outputFormats, format)
}

// writeTable renders spec in the requested format.
func writeTable(w io.Writer, format string, spec core.TableSpec) error {
	switch format {
	case "csv", "tsv":
		return writeDelimited(w, format, spec)
	case "json", "yaml":
		records := spec.Records
		if records == nil {
			records = []any{}
		}
		return writeValue(w, format, records)
	}

	table := newTable(w, format)
	table.Header(spec.Headers)
	for _, row := range spec.Rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func newTable(w io.Writer, format string) *tablewriter.Table {
	switch format {
	case "markdown":
		return tablewriter.NewTable(w,
			tablewriter.WithRenderer(renderer.NewMarkdown()),
			tablewriter.WithHeaderAutoFormat(tw.Off),
		)
	case "html":
		return tablewriter.NewTable(w,
			tablewriter.WithRenderer(renderer.NewHTML(renderer.HTMLConfig{
				EscapeContent: true,
				TableClass:    "ebus-table",
			})),
			tablewriter.WithHeaderAutoFormat(tw.Off),
		)
	default:
		return tablewriter.NewTable(w,
			tablewriter.WithHeaderAutoFormat(tw.Off),
			tablewriter.WithHeaderAlignment(tw.AlignLeft),
			tablewriter.WithRowAlignment(tw.AlignLeft),
		)
	}
}

func writeDelimited(w io.Writer, format string, spec core.TableSpec) error {
	cw := csv.NewWriter(w)
	if format == "tsv" {
		cw.Comma = '\t'
	}
	if err := cw.Write(spec.Headers); err != nil {
		return err
	}
	if err := cw.WriteAll(spec.Rows); err != nil {
		return err
	}
	return cw.Error()
}

func writeValue(w io.Writer, format string, v any) error {
	if format == "yaml" {
		node, err := core.YAMLNode(v)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(node); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeSections prints entries as an indented outline.
func writeSections(w io.Writer, entries []core.SectionEntry, depth int) error {
	indent := strings.Repeat("  ", depth)
	for _, e := range entries {
		if !e.IsSection() {
			if _, err := fmt.Fprintf(w, "%s%s\n", indent, e.Line()); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%s%s\n", indent, e.Section.Title); err != nil {
			return err
		}
		if err := writeSections(w, e.Section.Entries, depth+1); err != nil {
			return err
		}
	}
	return nil
}
