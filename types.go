package dbmcp

import "time"

// Invocation is one request to execute a tool. Exactly one of Template and
// Query must be present (the tool's default template counts as Template when
// neither is supplied explicitly and the tool configures one).
type Invocation struct {
	Template     string         `json:"template,omitempty"`
	Query        string         `json:"query,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Database     string         `json:"database,omitempty"`
	OutputFormat string         `json:"output_format,omitempty"`
	// Async executes on a background goroutine; Invoke still waits for the
	// outcome, InvokeAsync returns the handle.
	Async bool `json:"async,omitempty"`
}

// Result is a materialized result set: ordered columns, ordered rows of
// canonicalized scalar values, and the execution duration. Consumed by the
// formatter; never mutated by it.
type Result struct {
	Columns  []string
	Rows     [][]any
	RowCount int
	Duration time.Duration
}

// Payload is a formatted response body ready for a transport adapter.
type Payload struct {
	Format string // "json" or "csv"
	Body   string
}
