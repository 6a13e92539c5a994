package placeholder

import (
	"reflect"
	"testing"
)

func TestExtractSimple(t *testing.T) {
	t.Parallel()
	got := Extract("SELECT * FROM orders WHERE total >= :minimum_spend AND region = :region")
	want := []string{"minimum_spend", "region"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestExtractDeduplicates(t *testing.T) {
	t.Parallel()
	got := Extract("SELECT :a, :b, :a")
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestExtractNone(t *testing.T) {
	t.Parallel()
	if got := Extract("SELECT 1"); len(got) != 0 {
		t.Errorf("expected no placeholders, got %v", got)
	}
}

func TestExtractSkipsCasts(t *testing.T) {
	t.Parallel()
	got := Extract("SELECT created_at::date FROM t WHERE id = :id")
	want := []string{"id"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestExtractSkipsStringLiterals(t *testing.T) {
	t.Parallel()
	got := Extract(`SELECT ':not_a_param', "weird:column" FROM t WHERE name = :name`)
	want := []string{"name"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestExtractSkipsEscapedQuote(t *testing.T) {
	t.Parallel()
	got := Extract("SELECT 'it''s :fine' FROM t WHERE id = :id")
	want := []string{"id"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestExtractSkipsComments(t *testing.T) {
	t.Parallel()
	sql := "SELECT 1 -- :line_comment\n/* :block_comment */ FROM t WHERE id = :id"
	got := Extract(sql)
	want := []string{"id"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestRewritePositional(t *testing.T) {
	t.Parallel()
	got := Rewrite("SELECT :a, :b, :a", func(string) string { return "?" })
	want := "SELECT ?, ?, ?"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRewritePreservesLiterals(t *testing.T) {
	t.Parallel()
	sql := "SELECT ':keep' FROM t WHERE id = :id AND ts < now()::timestamp"
	got := Rewrite(sql, func(name string) string { return "$1" })
	want := "SELECT ':keep' FROM t WHERE id = $1 AND ts < now()::timestamp"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRewriteNamePassthrough(t *testing.T) {
	t.Parallel()
	got := Rewrite("WHERE a = :alpha", func(name string) string { return "@" + name })
	want := "WHERE a = @alpha"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
