package dbmcp

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Output format identifiers.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Document is the structured (json) response shape.
type Document struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	RowCount   int      `json:"row_count"`
	DurationMs float64  `json:"duration_ms"`
}

// FormatResult serializes a result into the requested output encoding.
// Formatting never mutates the result and is deterministic: the same result
// always produces byte-identical output, with columns in driver order.
func FormatResult(result *Result, format string) (*Payload, error) {
	switch format {
	case FormatJSON:
		doc := Document{
			Columns:    result.Columns,
			Rows:       result.Rows,
			RowCount:   result.RowCount,
			DurationMs: float64(result.Duration.Microseconds()) / 1000.0,
		}
		if doc.Rows == nil {
			doc.Rows = [][]any{}
		}
		if doc.Columns == nil {
			doc.Columns = []string{}
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode json payload: %w", err)
		}
		return &Payload{Format: FormatJSON, Body: string(b)}, nil

	case FormatCSV:
		body, err := formatCSV(result)
		if err != nil {
			return nil, err
		}
		return &Payload{Format: FormatCSV, Body: body}, nil

	default:
		return nil, failf(KindOutputFormatNotAllowed, "unsupported output format %q", format)
	}
}

// formatCSV renders a header row of column names followed by one line per
// row, RFC 4180 quoting applied by encoding/csv. Zero columns render as an
// empty body.
func formatCSV(result *Result) (string, error) {
	if len(result.Columns) == 0 {
		return "", nil
	}
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(result.Columns); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = csvField(row[i])
			}
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return b.String(), nil
}

// csvField renders a canonicalized scalar as CSV field text. Values have
// already been through convertValue, so temporal values are strings here.
func csvField(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
