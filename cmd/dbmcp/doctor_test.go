package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDoctorMissingConfig(t *testing.T) {
	t.Parallel()
	var out strings.Builder
	err := doctor(&out, false, filepath.Join(t.TempDir(), "nope.json"), false)
	if err != nil {
		t.Fatalf("doctor returned error: %v", err)
	}
	if !strings.Contains(out.String(), "✗ Config file loads") {
		t.Fatalf("expected failed config check, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "Fix the issues above") {
		t.Fatalf("expected fix-it hint, got:\n%s", out.String())
	}
}

func TestDoctorValidConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"server": {"protocols": ["stdio"]},
		"databases": [{
			"name": "local",
			"type": "sqlite",
			"connection_url": "file:local.db"
		}],
		"tools": [{"name": "inspect_local", "database": "local"}]
	}`)

	var out strings.Builder
	if err := doctor(&out, false, path, false); err != nil {
		t.Fatalf("doctor returned error: %v", err)
	}
	output := out.String()
	for _, want := range []string{
		"✓ Config file loads",
		"✓ At least one database is configured",
		"✓ All tools reference configured databases",
		"✓ All regex patterns compile",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Fix the issues above") {
		t.Fatalf("expected all checks to pass:\n%s", output)
	}
}

func TestDoctorUnknownToolDatabase(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"databases": [{"name": "local", "type": "sqlite", "connection_url": "file:local.db"}],
		"tools": [{"name": "inspect_other", "database": "other"}]
	}`)

	var out strings.Builder
	if err := doctor(&out, false, path, false); err != nil {
		t.Fatalf("doctor returned error: %v", err)
	}
	if !strings.Contains(out.String(), `✗ Tool "inspect_other" references configured database`) {
		t.Fatalf("expected failed tool reference check, got:\n%s", out.String())
	}
}

func TestDoctorInvalidRegex(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"databases": [{"name": "local", "type": "sqlite", "connection_url": "file:local.db"}],
		"sanitization": [{"pattern": "[invalid(regex", "replacement": "***"}]
	}`)

	var out strings.Builder
	if err := doctor(&out, false, path, false); err != nil {
		t.Fatalf("doctor returned error: %v", err)
	}
	if !strings.Contains(out.String(), "✗ sanitization[0] regex compiles") {
		t.Fatalf("expected failed regex check, got:\n%s", out.String())
	}
}

func TestDoctorPing(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "local.db")
	path := writeConfig(t, "config.json", `{
		"databases": [{"name": "local", "type": "sqlite", "connection_url": "file:`+dbPath+`"}],
		"tools": [{"name": "inspect_local", "database": "local"}]
	}`)

	var out strings.Builder
	if err := doctor(&out, false, path, true); err != nil {
		t.Fatalf("doctor returned error: %v", err)
	}
	output := out.String()
	if !strings.Contains(output, "✓ Configuration accepted, connection pools open") {
		t.Fatalf("expected pools to open, got:\n%s", output)
	}
	if !strings.Contains(output, `✓ Database "local" reachable`) {
		t.Fatalf("expected successful ping, got:\n%s", output)
	}
}

func TestDoctorAgentSnippets(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"server": {"protocols": ["http"]},
		"http": {"port": 9132, "path": "/mcp"},
		"databases": [{"name": "local", "type": "sqlite", "connection_url": "file:local.db"}]
	}`)

	var out strings.Builder
	if err := doctor(&out, false, path, false); err != nil {
		t.Fatalf("doctor returned error: %v", err)
	}
	output := out.String()
	if !strings.Contains(output, "Agent Connection Snippets") {
		t.Fatalf("expected agent snippets, got:\n%s", output)
	}
	if !strings.Contains(output, "http://localhost:9132/mcp") {
		t.Fatalf("expected endpoint URL in snippets, got:\n%s", output)
	}
}
