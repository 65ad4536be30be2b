package core

import (
	"context"
	"fmt"
)

// TableSpec is a rendered-ready table: column names plus rows of cell
// strings aligned positionally to the columns. Rows are not validated
// against the header length; a short or long row renders ragged.
//
// Records holds the decoded array the table was inferred from, for
// renderers that need the typed values rather than display strings.
type TableSpec struct {
	Headers []string
	Rows    [][]string
	Records []any
}

// InferTable derives a table from a JSON array of records. The columns are
// the union of keys across all records in first-seen order; each record
// yields one row with the display string of its value for every column, or
// "" where the record lacks the key. Entries that are not objects
// contribute no keys and render as empty rows.
func InferTable(data any) (TableSpec, error) {
	records, ok := data.([]any)
	if !ok {
		return TableSpec{}, fmt.Errorf("%w: expected an array of records, got %s", ErrParse, jsonKind(data))
	}

	var cols []string
	seen := make(map[string]bool)
	for _, rec := range records {
		obj, ok := rec.(*Object)
		if !ok {
			continue
		}
		for _, k := range obj.Keys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}

	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(cols))
		for j, col := range cols {
			row[j] = CellValue(rec, col)
		}
		rows[i] = row
	}

	return TableSpec{Headers: cols, Rows: rows, Records: records}, nil
}

// HandleSimpleTable fetches a JSON array of records from endpoint, infers
// its columns and hands the table to render. Status reporting follows
// FetchJSON: a non-array payload or a render error counts as a failed fetch.
func (f *Fetcher) HandleSimpleTable(ctx context.Context, sink StatusSink, endpoint string, render func(TableSpec) error) error {
	return f.FetchJSON(ctx, sink, endpoint, func(data any) error {
		spec, err := InferTable(data)
		if err != nil {
			return err
		}
		return render(spec)
	}, "")
}

// jsonKind names the JSON type of a decoded value for error messages.
func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case *Object:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	default:
		return "number"
	}
}
