package errhint

import (
	"strings"
	"testing"
)

func TestMatchSingle(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{
		{Pattern: "too many connections", Message: "Lower the tool's concurrency or raise max_conns."},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := m.Match("driver: too many connections")
	if got != "Lower the tool's concurrency or raise max_conns." {
		t.Errorf("unexpected hint: %q", got)
	}
}

func TestMatchMultipleJoined(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{
		{Pattern: "deadlock", Message: "first"},
		{Pattern: "detected", Message: "second"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := m.Match("deadlock detected")
	if got != "first\nsecond" {
		t.Errorf("expected joined hints, got %q", got)
	}
}

func TestNoMatch(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{{Pattern: "deadlock", Message: "hint"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Match("syntax error at or near SELECT"); got != "" {
		t.Errorf("expected empty hint, got %q", got)
	}
}

func TestMatchedPatterns(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{
		{Pattern: "deadlock", Message: "hint"},
		{Pattern: "timeout", Message: "hint"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := m.MatchedPatterns("deadlock while waiting")
	if len(got) != 1 || got[0] != "deadlock" {
		t.Errorf("unexpected patterns: %v", got)
	}
	if got := m.MatchedPatterns("all good"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestInvalidPattern(t *testing.T) {
	t.Parallel()
	_, err := NewMatcher([]Rule{{Pattern: "[invalid(regex", Message: "x"}})
	if err == nil || !strings.Contains(err.Error(), "regex") {
		t.Fatalf("expected regex error, got %v", err)
	}
}
