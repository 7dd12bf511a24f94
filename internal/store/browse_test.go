package store

import (
	"strings"
	"testing"
)

func TestBrowseRequest_Normalize(t *testing.T) {
	r := BrowseRequest{Table: "k2", Page: 0, Limit: 500, Search: "  " + strings.Repeat("x", 150) + " "}.normalize()
	if r.Page != 1 {
		t.Errorf("expected page 1, got %d", r.Page)
	}
	if r.Limit != MaxBrowseLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxBrowseLimit, r.Limit)
	}
	if len(r.Search) != maxSearchLength {
		t.Errorf("expected search capped at %d chars, got %d", maxSearchLength, len(r.Search))
	}

	if d := (BrowseRequest{Table: "k2"}).normalize(); d.Limit != DefaultBrowseLimit {
		t.Errorf("expected default limit %d, got %d", DefaultBrowseLimit, d.Limit)
	}
}

func TestBuildBrowseQueries(t *testing.T) {
	q, err := buildBrowseQueries(BrowseRequest{Table: "k2", Page: 3, Limit: 20}.normalize())
	if err != nil {
		t.Fatalf("buildBrowseQueries failed: %v", err)
	}
	if q.data != `SELECT * FROM "k2" LIMIT 20 OFFSET 40` {
		t.Errorf("unexpected data query: %s", q.data)
	}
	if len(q.args) != 0 {
		t.Errorf("expected no args, got %v", q.args)
	}

	q, err = buildBrowseQueries(BrowseRequest{Table: "cum", Page: 1, Limit: 10, Search: "kepler", SearchColumn: "pl_name"}.normalize())
	if err != nil {
		t.Fatalf("buildBrowseQueries failed: %v", err)
	}
	if q.count != `SELECT COUNT(*) FROM "cum" WHERE "pl_name"::text ILIKE $1` {
		t.Errorf("unexpected count query: %s", q.count)
	}
	if len(q.args) != 1 || q.args[0] != "%kepler%" {
		t.Errorf("unexpected args: %v", q.args)
	}

	if _, err := buildBrowseQueries(BrowseRequest{Table: "k2", Page: 1, Limit: 10, Search: "x", SearchColumn: "a; drop"}); err == nil {
		t.Error("expected invalid search column to be rejected")
	}
	if _, err := buildBrowseQueries(BrowseRequest{Table: "k2\"--", Page: 1, Limit: 10}); err == nil {
		t.Error("expected invalid table to be rejected")
	}
}

func TestNormalizeValue(t *testing.T) {
	if got := normalizeValue([]byte("abc")); got != "abc" {
		t.Errorf("expected bytes to become a string, got %#v", got)
	}
	if got := normalizeValue(nil); got != nil {
		t.Errorf("expected nil, got %#v", got)
	}
	if got := normalizeValue(3.5); got != 3.5 {
		t.Errorf("expected floats to pass through, got %#v", got)
	}
}

func TestHead(t *testing.T) {
	rows := []Row{{"a": 1}, {"a": 2}, {"a": 3}}
	if len(Head(rows, 2)) != 2 || len(Head(rows, 10)) != 3 {
		t.Error("Head returned the wrong number of rows")
	}
}
