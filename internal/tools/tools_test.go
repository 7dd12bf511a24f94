package tools

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/rahul/exoscope/internal/governance"
	"github.com/rahul/exoscope/internal/plan"
	"github.com/rahul/exoscope/internal/render"
	"github.com/rahul/exoscope/internal/store"
)

type fakeRunner struct {
	calls   int
	lastSQL string
	result  store.ResultSet
	err     error
}

func (f *fakeRunner) Query(ctx context.Context, sql string) (store.ResultSet, error) {
	f.calls++
	f.lastSQL = sql
	return f.result, f.err
}

type fakeRenderer struct {
	calls int
	frame render.Frame
	spec  plan.ChartSpec
	err   error
}

func (f *fakeRenderer) Render(ctx context.Context, spec plan.ChartSpec, frame render.Frame) (*render.Artifact, error) {
	f.calls++
	f.spec = spec
	f.frame = frame
	if f.err != nil {
		return nil, f.err
	}
	return &render.Artifact{Kind: render.KindPlotly, Points: frame.Len}, nil
}

var catalog = []string{"pl_name", "pl_orbper", "pl_rade", "disc_facility"}

func sampleRows() store.ResultSet {
	return store.ResultSet{
		Columns: []string{"pl_name", "pl_orbper"},
		Rows: []store.Row{
			{"pl_name": "K2-18 b", "pl_orbper": 32.9},
			{"pl_name": "K2-3 b", "pl_orbper": "10.05"},
			{"pl_name": "K2-3 c", "pl_orbper": nil},
		},
	}
}

func TestSQLTool_RejectedQueriesNeverRun(t *testing.T) {
	runner := &fakeRunner{}
	tool := NewSQLTool(governance.NewSQLGuard([]string{"k2", "toi", "cum"}), runner)

	queries := []string{
		"DELETE FROM k2",
		"SELECT * FROM users",
		"SELECT * FROM k2; DROP TABLE k2",
		"SELECT * FROM k2 UNION SELECT * FROM toi",
		"SELECT pg_sleep(10)",
		"",
	}
	for _, q := range queries {
		res := tool.Execute(context.Background(), q)
		if res.Success() {
			t.Errorf("expected %q to be rejected", q)
		}
		if res.ErrKind != ErrorValidation {
			t.Errorf("%q: expected validation error, got %s", q, res.ErrKind)
		}
		if !errors.Is(res.Err, governance.ErrRejected) {
			t.Errorf("%q: expected ErrRejected, got %v", q, res.Err)
		}
	}
	if runner.calls != 0 {
		t.Fatalf("runner was called %d times for rejected queries", runner.calls)
	}
}

func TestSQLTool_Runs(t *testing.T) {
	runner := &fakeRunner{result: sampleRows()}
	tool := NewSQLTool(governance.NewSQLGuard([]string{"k2"}), runner)

	res := tool.Execute(context.Background(), "  SELECT * FROM k2 LIMIT 5; ")
	if !res.Success() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if runner.lastSQL != "SELECT * FROM k2 LIMIT 5" {
		t.Errorf("expected normalized query, got %q", runner.lastSQL)
	}
	if len(res.Rows) != 3 || len(res.Columns) != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestSQLTool_DriverFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("statement timeout")}
	res := NewSQLTool(governance.NewSQLGuard([]string{"k2"}), runner).Execute(context.Background(), "SELECT * FROM k2")
	if res.Success() || res.ErrKind != ErrorExecution {
		t.Fatalf("expected execution failure, got %+v", res)
	}
	if !strings.Contains(res.Err.Error(), "statement timeout") {
		t.Errorf("expected driver error to be wrapped, got %v", res.Err)
	}

	res = NewSQLTool(governance.NewSQLGuard([]string{"k2"}), nil).Execute(context.Background(), "SELECT * FROM k2")
	if res.ErrKind != ErrorUnavailable {
		t.Errorf("expected unavailable without a runner, got %s", res.ErrKind)
	}
}

func TestPlotTool_RejectedSpecsNeverRender(t *testing.T) {
	r := &fakeRenderer{}
	tool := NewPlotTool(governance.NewChartGuard(), r)

	specs := []plan.ChartSpec{
		{Kind: plan.ChartHistogram, X: "__import__"},
		{Kind: plan.ChartHistogram, X: "st_teff"},
		{Kind: "heatmap", X: "pl_orbper"},
		{Kind: plan.ChartScatter, X: "pl_orbper"},
		{Kind: plan.ChartHistogram, X: "pl_orbper", Title: "<script>alert(1)</script>"},
	}
	for _, s := range specs {
		res := tool.Execute(context.Background(), s, catalog, sampleRows())
		if res.Success() || res.ErrKind != ErrorValidation {
			t.Errorf("expected %+v to be rejected, got %+v", s, res)
		}
	}
	if r.calls != 0 {
		t.Fatalf("renderer was called %d times for rejected specs", r.calls)
	}
}

func TestPlotTool_Renders(t *testing.T) {
	r := &fakeRenderer{}
	tool := NewPlotTool(governance.NewChartGuard(), r)

	res := tool.Execute(context.Background(), plan.ChartSpec{Kind: "Histogram", X: "PL_ORBPER"}, catalog, sampleRows())
	if !res.Success() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.Plot == nil || res.Rows != nil {
		t.Errorf("expected a plot and no rows, got %+v", res)
	}
	if r.spec.X != "pl_orbper" || r.spec.Bins != governance.DefaultBins {
		t.Errorf("expected normalized spec, got %+v", r.spec)
	}
	if !r.frame.Numeric["pl_orbper"] || r.frame.Numeric["pl_name"] {
		t.Errorf("unexpected numeric flags: %v", r.frame.Numeric)
	}
	if r.frame.Values["pl_orbper"][1] != 10.05 {
		t.Errorf("expected numeric string to be coerced, got %#v", r.frame.Values["pl_orbper"][1])
	}

	empty := tool.Execute(context.Background(), plan.ChartSpec{Kind: plan.ChartHistogram, X: "pl_orbper"}, catalog, store.ResultSet{})
	if empty.Success() {
		t.Error("expected failure with no data")
	}

	r.err = errors.New("no figure")
	failed := tool.Execute(context.Background(), plan.ChartSpec{Kind: plan.ChartHistogram, X: "pl_orbper"}, catalog, sampleRows())
	if failed.Success() || failed.ErrKind != ErrorExecution {
		t.Errorf("expected execution failure, got %+v", failed)
	}
}

func TestPlotTool_NonFiniteValuesAreDropped(t *testing.T) {
	rs := store.ResultSet{
		Columns: []string{"pl_orbper"},
		Rows: []store.Row{
			{"pl_orbper": "1.5"}, {"pl_orbper": "NaN"}, {"pl_orbper": "2"},
			{"pl_orbper": math.Inf(1)}, {"pl_orbper": "-infinity"},
		},
	}
	f := BuildFrame(rs)
	if !f.Numeric["pl_orbper"] {
		t.Fatal("expected column to stay numeric")
	}
	for _, i := range []int{1, 3, 4} {
		if f.Values["pl_orbper"][i] != nil {
			t.Errorf("row %d: expected nil, got %#v", i, f.Values["pl_orbper"][i])
		}
	}

	tool := NewPlotTool(governance.NewChartGuard(), render.NewPlotlyRenderer())
	res := tool.Execute(context.Background(), plan.ChartSpec{Kind: plan.ChartHistogram, X: "pl_orbper"}, catalog, rs)
	if !res.Success() {
		t.Fatalf("expected render to succeed, got %v", res.Err)
	}
	if res.Plot.Points != 2 {
		t.Errorf("expected 2 plotted points, got %d", res.Plot.Points)
	}
}

func TestBuildFrame_MixedColumnStaysText(t *testing.T) {
	rs := store.ResultSet{
		Columns: []string{"a"},
		Rows:    []store.Row{{"a": "1"}, {"a": "x"}, {"a": nil}},
	}
	f := BuildFrame(rs)
	if f.Numeric["a"] {
		t.Fatal("column with non-numeric text must not be numeric")
	}
	if f.Values["a"][0] != "1" || f.Values["a"][2] != nil {
		t.Errorf("unexpected values: %#v", f.Values["a"])
	}
	if f.Len != 3 {
		t.Errorf("expected len 3, got %d", f.Len)
	}
}

func TestExecutor_PolicyDeniesTool(t *testing.T) {
	runner := &fakeRunner{result: sampleRows()}
	policy := governance.NewDefaultPolicyEngine()
	policy.DenyTool(string(plan.ToolExecuteSQL))

	e := &Executor{
		SQL:      NewSQLTool(governance.NewSQLGuard([]string{"k2"}), runner),
		Registry: DefaultRegistry(),
		Policy:   policy,
	}
	res := e.ExecuteSQL(context.Background(), Trace{TaskID: "q1"}, "SELECT * FROM k2")
	if res.Success() || !errors.Is(res.Err, governance.ErrRejected) {
		t.Fatalf("expected policy rejection, got %+v", res)
	}
	if runner.calls != 0 {
		t.Error("runner must not be called when the tool is denied")
	}

	for _, d := range e.Descriptors() {
		if d.Name == plan.ToolExecuteSQL {
			t.Error("denied tool should not be offered to the planner")
		}
	}
}

func TestExecutor_UnconfiguredTool(t *testing.T) {
	e := &Executor{Registry: DefaultRegistry()}
	res := e.WebSearch(context.Background(), Trace{}, "pl_orbper", "")
	if res.ErrKind != ErrorUnavailable {
		t.Errorf("expected unavailable, got %+v", res)
	}
	if len(e.Descriptors()) != 0 {
		t.Errorf("expected no descriptors without configured tools, got %d", len(e.Descriptors()))
	}
}
