package policy

import (
	"errors"
	"testing"
)

func testGuard() *Guard {
	return New(Config{
		ToolName:         "inspect_testing_records",
		AllowRawSQL:      false,
		DefaultDatabase:  "testing",
		AllowedDatabases: []string{"testing", "analytics"},
		AllowedTemplates: []string{"list_test_records"},
		OutputFormats:    []string{"json", "csv"},
		DefaultFormat:    "json",
	})
}

func expectViolation(t *testing.T, err error, rule string) {
	t.Helper()
	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("expected *Violation, got %v", err)
	}
	if v.Rule != rule {
		t.Fatalf("expected rule %q, got %q (%s)", rule, v.Rule, v.Message)
	}
}

func TestAuthorizeTemplate(t *testing.T) {
	t.Parallel()
	res, err := testGuard().Authorize(Request{TemplateName: "list_test_records"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Database != "testing" {
		t.Errorf("expected default database testing, got %q", res.Database)
	}
	if res.Format != "json" {
		t.Errorf("expected default format json, got %q", res.Format)
	}
}

func TestAuthorizeExplicitDatabaseAndFormat(t *testing.T) {
	t.Parallel()
	res, err := testGuard().Authorize(Request{
		TemplateName: "list_test_records",
		Database:     "analytics",
		Format:       "CSV",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Database != "analytics" {
		t.Errorf("expected analytics, got %q", res.Database)
	}
	if res.Format != "csv" {
		t.Errorf("expected lowercased csv, got %q", res.Format)
	}
}

func TestBothSourcesAmbiguous(t *testing.T) {
	t.Parallel()
	_, err := testGuard().Authorize(Request{HasQuery: true, TemplateName: "list_test_records"})
	expectViolation(t, err, RuleAmbiguousSource)
}

func TestNeitherSourceAmbiguous(t *testing.T) {
	t.Parallel()
	_, err := testGuard().Authorize(Request{})
	expectViolation(t, err, RuleAmbiguousSource)
}

func TestRawSQLDisabled(t *testing.T) {
	t.Parallel()
	_, err := testGuard().Authorize(Request{HasQuery: true})
	expectViolation(t, err, RuleRawSQLDisabled)
}

func TestRawSQLAllowed(t *testing.T) {
	t.Parallel()
	g := New(Config{
		ToolName:        "run_sql",
		AllowRawSQL:     true,
		DefaultDatabase: "testing",
		OutputFormats:   []string{"json"},
		DefaultFormat:   "json",
	})
	if _, err := g.Authorize(Request{HasQuery: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDatabaseNotAllowed(t *testing.T) {
	t.Parallel()
	_, err := testGuard().Authorize(Request{TemplateName: "list_test_records", Database: "production"})
	expectViolation(t, err, RuleDatabaseNotAllowed)
}

func TestDefaultDatabaseAlwaysAllowed(t *testing.T) {
	t.Parallel()
	g := New(Config{
		ToolName:         "narrow",
		DefaultDatabase:  "testing",
		AllowedDatabases: []string{"analytics"}, // omits the default on purpose
		OutputFormats:    []string{"json"},
		DefaultFormat:    "json",
	})
	if _, err := g.Authorize(Request{TemplateName: "t", Database: "testing"}); err != nil {
		t.Fatalf("default database must be implicitly allowed: %v", err)
	}
}

func TestTemplateNotAllowed(t *testing.T) {
	t.Parallel()
	_, err := testGuard().Authorize(Request{TemplateName: "drop_everything"})
	expectViolation(t, err, RuleTemplateNotAllowed)
}

func TestEmptyTemplateSetIsUnrestricted(t *testing.T) {
	t.Parallel()
	g := New(Config{
		ToolName:        "open",
		DefaultDatabase: "testing",
		OutputFormats:   []string{"json"},
		DefaultFormat:   "json",
	})
	if !g.Unrestricted() {
		t.Fatal("expected unrestricted guard")
	}
	if _, err := g.Authorize(Request{TemplateName: "anything_goes"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOutputFormatNotAllowed(t *testing.T) {
	t.Parallel()
	g := New(Config{
		ToolName:        "json_only",
		DefaultDatabase: "testing",
		OutputFormats:   []string{"json"},
		DefaultFormat:   "json",
	})
	_, err := g.Authorize(Request{TemplateName: "t", Format: "csv"})
	expectViolation(t, err, RuleOutputFormatNotAllowed)
}

// An invocation violating several rules must report the first violation in
// check order: ambiguous source wins over database and format restrictions.
func TestCheckOrderDeterministic(t *testing.T) {
	t.Parallel()
	_, err := testGuard().Authorize(Request{
		HasQuery:     true,
		TemplateName: "drop_everything",
		Database:     "production",
		Format:       "xml",
	})
	expectViolation(t, err, RuleAmbiguousSource)

	// Raw SQL check precedes database membership.
	_, err = testGuard().Authorize(Request{HasQuery: true, Database: "production"})
	expectViolation(t, err, RuleRawSQLDisabled)

	// Database membership precedes template membership.
	_, err = testGuard().Authorize(Request{TemplateName: "drop_everything", Database: "production"})
	expectViolation(t, err, RuleDatabaseNotAllowed)

	// Template membership precedes format support.
	_, err = testGuard().Authorize(Request{TemplateName: "drop_everything", Format: "xml"})
	expectViolation(t, err, RuleTemplateNotAllowed)
}
