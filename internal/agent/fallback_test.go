package agent

import (
	"reflect"
	"testing"

	"github.com/rahul/exoscope/internal/plan"
)

var k2Columns = []string{"pl_name", "hostname", "pl_orbper", "pl_rade", "disc_year"}

func onlySQL(t *testing.T, p plan.Plan) string {
	t.Helper()
	if len(p.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d: %+v", len(p.Steps), p.Steps)
	}
	s, ok := p.Steps[0].(plan.ExecuteSQL)
	if !ok {
		t.Fatalf("expected ExecuteSQL, got %T", p.Steps[0])
	}
	return s.Query
}

func TestFallback_DisplayTopN(t *testing.T) {
	p := FallbackPlanner{}.Plan("show top 5 records", "k2", k2Columns)
	if !p.Fallback {
		t.Error("fallback plans must be flagged")
	}
	if q := onlySQL(t, p); q != "SELECT * FROM k2 LIMIT 5" {
		t.Errorf("unexpected query %q", q)
	}
}

func TestFallback_DisplayLimits(t *testing.T) {
	cases := map[string]string{
		"show top 5000 rows":             "SELECT * FROM k2 LIMIT 1000",
		"list the records":               "SELECT * FROM k2 LIMIT 100",
		"show top 3 pl_name and pl_rade": "SELECT pl_name, pl_rade FROM k2 LIMIT 3",
	}
	for msg, want := range cases {
		if got := onlySQL(t, FallbackPlanner{}.Plan(msg, "k2", k2Columns)); got != want {
			t.Errorf("%q: got %q, want %q", msg, got, want)
		}
	}
}

func TestFallback_PlotHistogram(t *testing.T) {
	p := FallbackPlanner{}.Plan("plot histogram of pl_orbper", "k2", k2Columns)
	if len(p.Steps) != 2 {
		t.Fatalf("expected SQL and plot steps, got %+v", p.Steps)
	}
	sql := p.Steps[0].(plan.ExecuteSQL)
	if sql.Query != "SELECT pl_orbper FROM k2 WHERE pl_orbper IS NOT NULL LIMIT 1000" {
		t.Errorf("unexpected query %q", sql.Query)
	}
	chart := p.Steps[1].(plan.PlotGraph).Chart
	if chart.Kind != plan.ChartHistogram || chart.X != "pl_orbper" || chart.Y != "" || chart.LogY {
		t.Errorf("unexpected chart %+v", chart)
	}
}

func TestFallback_PlotKinds(t *testing.T) {
	cases := []struct {
		msg  string
		want plan.ChartSpec
	}{
		{"plot pl_orbper vs pl_rade", plan.ChartSpec{Kind: plan.ChartScatter, X: "pl_orbper", Y: "pl_rade"}},
		{"box plot of pl_rade on a log scale", plan.ChartSpec{Kind: plan.ChartBox, X: "pl_rade", LogY: true}},
		{"pie chart of disc_year", plan.ChartSpec{Kind: plan.ChartPie, X: "disc_year"}},
		{"line graph of disc_year and pl_rade", plan.ChartSpec{Kind: plan.ChartLine, X: "disc_year", Y: "pl_rade"}},
		{"histogram or pie of pl_rade", plan.ChartSpec{Kind: plan.ChartHistogram, X: "pl_rade"}},
		{"scatter plot of pl_rade", plan.ChartSpec{Kind: plan.ChartHistogram, X: "pl_rade"}},
		{"plot the distribution", plan.ChartSpec{Kind: plan.ChartHistogram, X: "pl_name"}},
	}
	for _, tc := range cases {
		p := FallbackPlanner{}.Plan(tc.msg, "k2", k2Columns)
		if len(p.Steps) != 2 {
			t.Fatalf("%q: expected 2 steps, got %+v", tc.msg, p.Steps)
		}
		if got := p.Steps[1].(plan.PlotGraph).Chart; got != tc.want {
			t.Errorf("%q: got %+v, want %+v", tc.msg, got, tc.want)
		}
	}
}

func TestFallback_PlotTwoColumnsFiltersNulls(t *testing.T) {
	p := FallbackPlanner{}.Plan("plot pl_orbper vs pl_rade", "toi", k2Columns)
	want := "SELECT pl_orbper, pl_rade FROM toi WHERE pl_orbper IS NOT NULL AND pl_rade IS NOT NULL LIMIT 1000"
	if q := p.Steps[0].(plan.ExecuteSQL).Query; q != want {
		t.Errorf("got %q, want %q", q, want)
	}
}

func TestFallback_PlotWithoutCatalog(t *testing.T) {
	p := FallbackPlanner{}.Plan("plot histogram of pl_orbper", "k2", nil)
	if q := onlySQL(t, p); q != "SELECT * FROM k2 LIMIT 1000" {
		t.Errorf("unexpected query %q", q)
	}
}

func TestFallback_Question(t *testing.T) {
	cases := map[string]string{
		"what does pl_orbper mean":    "pl_orbper",
		"What is the transit method?": "transit method",
		"explain radial velocity":     "radial velocity",
		"why?":                        "why",
	}
	for msg, want := range cases {
		p := FallbackPlanner{}.Plan(msg, "k2", k2Columns)
		if len(p.Steps) != 1 {
			t.Fatalf("%q: expected one step, got %+v", msg, p.Steps)
		}
		s, ok := p.Steps[0].(plan.WebSearch)
		if !ok {
			t.Fatalf("%q: expected WebSearch, got %T", msg, p.Steps[0])
		}
		if s.Query != want {
			t.Errorf("%q: got term %q, want %q", msg, s.Query, want)
		}
	}
}

func TestFallback_QuestionBeatsPlotBeatsDisplay(t *testing.T) {
	p := FallbackPlanner{}.Plan("what is the distribution of pl_orbper, plot it", "k2", k2Columns)
	if _, ok := p.Steps[0].(plan.WebSearch); !ok || len(p.Steps) != 1 {
		t.Errorf("question words must win, got %+v", p.Steps)
	}

	p = FallbackPlanner{}.Plan("show a histogram of pl_rade", "k2", k2Columns)
	if len(p.Steps) != 2 {
		t.Errorf("plot words must win over display words, got %+v", p.Steps)
	}
}

func TestFallback_Help(t *testing.T) {
	p := FallbackPlanner{}.Plan("hello there", "k2", k2Columns)
	if len(p.Steps) != 0 || p.Explanation != helpText {
		t.Errorf("expected help plan, got %+v", p)
	}
}

func TestFallback_Deterministic(t *testing.T) {
	msgs := []string{"plot pl_orbper vs pl_rade", "show top 7 rows", "what is pl_rade", "hi"}
	for _, m := range msgs {
		a := FallbackPlanner{}.Plan(m, "cum", k2Columns)
		b := FallbackPlanner{}.Plan(m, "cum", k2Columns)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%q: plans differ: %+v vs %+v", m, a, b)
		}
	}
}
