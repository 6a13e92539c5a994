package dbmcp_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	dbmcp "github.com/rickchristie/dbmcp"
	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

// testConfig returns a Config with one SQLite database named "testing" (file
// backed, scoped to the test's temp dir), a templated inspection tool, and a
// raw-SQL tool used for seeding.
func testConfig(t *testing.T) dbmcp.Config {
	t.Helper()
	return dbmcp.Config{
		Databases: []dbmcp.DatabaseConfig{
			{
				Name: "testing",
				Type: "sqlite",
				URL:  "file:" + filepath.Join(t.TempDir(), "test.db"),
				Pool: dbmcp.PoolConfig{MaxConns: 5},
				Templates: map[string]string{
					"list_test_records":   "SELECT id, name, category, value, created_at FROM test_records ORDER BY id",
					"records_by_category": "SELECT id, name FROM test_records WHERE category = :category ORDER BY id",
					"big_values":          "SELECT id, name, value FROM test_records WHERE value >= :minimum_spend ORDER BY id",
				},
			},
		},
		Tools: []dbmcp.ToolConfig{
			{
				Name:             "inspect_testing_records",
				Database:         "testing",
				AllowedTemplates: []string{"list_test_records", "records_by_category", "big_values"},
				OutputFormats:    []string{"json", "csv"},
			},
			{
				Name:        "run_testing_sql",
				Database:    "testing",
				AllowRawSQL: true,
			},
		},
	}
}

// seedStatements creates and populates the test_records table. Statements run
// one at a time; the sqlite driver rejects multi-statement queries.
var seedStatements = []string{
	`CREATE TABLE test_records (
		id INTEGER PRIMARY KEY,
		name TEXT,
		category TEXT,
		value REAL,
		created_at TEXT
	)`,
	`INSERT INTO test_records VALUES (1, 'alpha', 'widgets', 12.5, '2024-01-01T00:00:00Z')`,
	`INSERT INTO test_records VALUES (2, 'beta', 'widgets', 300, '2024-02-01T00:00:00Z')`,
	`INSERT INTO test_records VALUES (3, 'gamma', 'gadgets', 47.25, '2024-03-01T00:00:00Z')`,
	`INSERT INTO test_records VALUES (4, 'delta', 'gadgets', 0, '2024-04-01T00:00:00Z')`,
}

// newTestServer creates a Server over a seeded SQLite database. mutate, when
// non-nil, adjusts the config before New runs.
func newTestServer(t *testing.T, mutate func(*dbmcp.Config)) *dbmcp.Server {
	t.Helper()
	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}
	ctx := context.Background()
	srv, err := dbmcp.New(ctx, cfg, testLogger())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	t.Cleanup(func() { srv.Close(ctx) })
	for _, stmt := range seedStatements {
		if _, err := srv.Invoke(ctx, "run_testing_sql", dbmcp.Invocation{Query: stmt}); err != nil {
			t.Fatalf("seed statement failed: %v\n%s", err, stmt)
		}
	}
	return srv
}

// document mirrors the json output shape for assertions.
type document struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	RowCount   int      `json:"row_count"`
	DurationMs float64  `json:"duration_ms"`
}

func mustInvoke(t *testing.T, srv *dbmcp.Server, tool string, inv dbmcp.Invocation) *dbmcp.Payload {
	t.Helper()
	payload, err := srv.Invoke(context.Background(), tool, inv)
	if err != nil {
		t.Fatalf("invoke %q failed: %v", tool, err)
	}
	return payload
}

func decodeDocument(t *testing.T, payload *dbmcp.Payload) document {
	t.Helper()
	var doc document
	if err := json.Unmarshal([]byte(payload.Body), &doc); err != nil {
		t.Fatalf("failed to decode payload: %v\n%s", err, payload.Body)
	}
	return doc
}

// invokeFailure invokes and asserts the invocation fails with the given kind.
func invokeFailure(t *testing.T, srv *dbmcp.Server, tool string, inv dbmcp.Invocation, wantKind string) *dbmcp.Failure {
	t.Helper()
	_, err := srv.Invoke(context.Background(), tool, inv)
	if err == nil {
		t.Fatalf("expected %s failure, invocation succeeded", wantKind)
	}
	f := dbmcp.AsFailure(err)
	if f.Kind != wantKind {
		t.Fatalf("expected failure kind %s, got %s: %s", wantKind, f.Kind, f.Message)
	}
	return f
}

// expectPanic calls f and asserts that it panics with a message containing substr.
func expectPanic(t *testing.T, substr string, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q, but no panic occurred", substr)
		}
		msg := ""
		switch v := r.(type) {
		case string:
			msg = v
		case error:
			msg = v.Error()
		default:
			t.Fatalf("expected panic string/error containing %q, got %T: %v", substr, r, r)
		}
		if !strings.Contains(msg, substr) {
			t.Fatalf("expected panic containing %q, got %q", substr, msg)
		}
	}()
	f()
}

// expectNoPanic calls f and asserts that it does NOT panic.
func expectNoPanic(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("unexpected panic: %v", r)
		}
	}()
	f()
}
