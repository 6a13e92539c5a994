package timeout

import (
	"testing"
	"time"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		DefaultTimeout: 30 * time.Second,
		Rules: []Rule{
			{Pattern: "information_schema", Timeout: 5 * time.Second},
			{Pattern: "JOIN", Timeout: 60 * time.Second},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func TestMatchFirstRule(t *testing.T) {
	t.Parallel()
	got, pattern := testManager(t).Resolve("SELECT * FROM information_schema.tables")
	if got != 5*time.Second {
		t.Errorf("expected 5s, got %v", got)
	}
	if pattern != "information_schema" {
		t.Errorf("expected matched pattern, got %q", pattern)
	}
}

func TestStopOnFirstMatch(t *testing.T) {
	t.Parallel()
	got, _ := testManager(t).Resolve("SELECT * FROM information_schema.tables JOIN x JOIN y")
	if got != 5*time.Second {
		t.Errorf("expected 5s (first match wins), got %v", got)
	}
}

func TestDefaultTimeout(t *testing.T) {
	t.Parallel()
	got, pattern := testManager(t).Resolve("SELECT 1")
	if got != 30*time.Second {
		t.Errorf("expected 30s (default), got %v", got)
	}
	if pattern != "" {
		t.Errorf("expected empty pattern for default, got %q", pattern)
	}
}

func TestNoRules(t *testing.T) {
	t.Parallel()
	m, err := NewManager(Config{DefaultTimeout: 30 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := m.Resolve("SELECT 1"); got != 30*time.Second {
		t.Errorf("expected 30s (default), got %v", got)
	}
}

func TestInvalidPattern(t *testing.T) {
	t.Parallel()
	_, err := NewManager(Config{
		DefaultTimeout: time.Second,
		Rules:          []Rule{{Pattern: "[invalid(regex", Timeout: time.Second}},
	})
	if err == nil {
		t.Fatal("expected error for invalid regex")
	}
}
