package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rahul/exoscope/internal/cache"
	"github.com/rahul/exoscope/internal/catalog"
	"github.com/rahul/exoscope/internal/governance"
	"github.com/rahul/exoscope/internal/observability"
	"github.com/rahul/exoscope/internal/plan"
	"github.com/rahul/exoscope/internal/render"
	"github.com/rahul/exoscope/internal/store"
	"github.com/rahul/exoscope/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

var datasets = []string{"k2", "toi", "cum"}

type fakeSchema struct {
	columns []string
	err     error
	calls   int
}

func (f *fakeSchema) ListColumns(ctx context.Context, table string) ([]string, error) {
	f.calls++
	return f.columns, f.err
}

type fakeRunner struct {
	queries []string
	result  store.ResultSet
	err     error
}

func (f *fakeRunner) Query(ctx context.Context, sql string) (store.ResultSet, error) {
	f.queries = append(f.queries, sql)
	return f.result, f.err
}

type fakeBackend struct {
	calls int
	hits  []tools.Hit
}

func (b *fakeBackend) Name() string { return "fake" }
func (b *fakeBackend) Remote() bool { return false }
func (b *fakeBackend) Search(ctx context.Context, query, hint string) ([]tools.Hit, error) {
	b.calls++
	return b.hits, nil
}

type countingPlanner struct {
	inner Planner
	calls int
	last  PlanContext
}

func (c *countingPlanner) Plan(ctx context.Context, pc PlanContext) plan.Plan {
	c.calls++
	c.last = pc
	return c.inner.Plan(ctx, pc)
}

type panicPlanner struct{}

func (panicPlanner) Plan(ctx context.Context, pc PlanContext) plan.Plan { panic("boom") }

type fakeHistory struct {
	stored []store.Exchange
	prior  []llms.MessageContent
}

func (h *fakeHistory) AddExchange(ctx context.Context, e store.Exchange) error {
	h.stored = append(h.stored, e)
	return nil
}

func (h *fakeHistory) GetHistory(ctx context.Context, session string, limit int) ([]llms.MessageContent, error) {
	return h.prior, nil
}

func (h *fakeHistory) ClearSession(ctx context.Context, session string) error {
	h.stored, h.prior = nil, nil
	return nil
}

type harness struct {
	orch    *Orchestrator
	planner *countingPlanner
	runner  *fakeRunner
	search  *fakeBackend
	schema  *fakeSchema
}

func newHarness(t *testing.T, model llms.Model) *harness {
	t.Helper()
	logger := observability.NewLoggerTo(io.Discard, t.TempDir())
	h := &harness{
		runner: &fakeRunner{},
		search: &fakeBackend{hits: []tools.Hit{{Title: "Orbital period", Snippet: "The time a planet takes to orbit its star.", Source: "NASA Glossary"}}},
		schema: &fakeSchema{columns: k2Columns},
	}
	h.planner = &countingPlanner{inner: NewIntentPlanner(model, NewPromptManager(""), logger)}
	h.orch = &Orchestrator{
		Catalog: catalog.New(h.schema, datasets, 0),
		Planner: h.planner,
		Executor: &tools.Executor{
			SQL:      tools.NewSQLTool(governance.NewSQLGuard(datasets), h.runner),
			Plot:     tools.NewPlotTool(governance.NewChartGuard(), render.NewPlotlyRenderer()),
			Search:   tools.NewSearchTool(tools.NewLease(time.Millisecond), h.search),
			Registry: tools.DefaultRegistry(),
			Logger:   logger,
		},
		Cache:  cache.New(10, time.Hour, nil),
		Logger: logger,
	}
	return h
}

func rows(n int) store.ResultSet {
	rs := store.ResultSet{Columns: []string{"pl_name", "pl_orbper"}}
	for i := 0; i < n; i++ {
		rs.Rows = append(rs.Rows, store.Row{"pl_name": fmt.Sprintf("K2-%d b", i), "pl_orbper": float64(i) + 1.5})
	}
	return rs
}

func TestHandle_EmptyTableShortCircuits(t *testing.T) {
	h := newHarness(t, nil)
	env := h.orch.Handle(context.Background(), Request{Message: "show top 5 records"})

	if env.ResponseType != AIOnly || env.ShowInResultsTab || env.Text != clarificationText {
		t.Errorf("unexpected envelope %+v", env)
	}
	if h.planner.calls != 0 || len(h.runner.queries) != 0 {
		t.Errorf("no planning or execution expected, got %d plans and %d queries", h.planner.calls, len(h.runner.queries))
	}
}

func TestHandle_UnknownTable(t *testing.T) {
	h := newHarness(t, nil)
	env := h.orch.Handle(context.Background(), Request{Message: "show rows", Table: "users"})
	if env.ResponseType != AIOnly || h.planner.calls != 0 {
		t.Errorf("unexpected envelope %+v", env)
	}
}

func TestHandle_ShowTopFive(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.result = rows(5)

	env := h.orch.Handle(context.Background(), Request{Message: "show top 5 records", Table: "k2", QueryID: "q1"})

	if len(h.runner.queries) != 1 || h.runner.queries[0] != "SELECT * FROM k2 LIMIT 5" {
		t.Fatalf("unexpected queries %v", h.runner.queries)
	}
	if env.ResponseType != QueryWithData || !env.ShowInResultsTab || len(env.Data) != 5 || env.Plot != nil {
		t.Errorf("unexpected envelope %+v", env)
	}

	first, err := h.orch.FetchPage("q1", 0)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	second, _ := h.orch.FetchPage("q1", 0)
	if first.TotalCount != 5 || first.HasNext || !reflect.DeepEqual(first, second) {
		t.Errorf("unexpected pages %+v / %+v", first, second)
	}
}

func TestHandle_PlotHistogram(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.result = store.ResultSet{Columns: []string{"pl_orbper"}, Rows: []store.Row{
		{"pl_orbper": 1.2}, {"pl_orbper": 3.4}, {"pl_orbper": "5.6"},
	}}

	env := h.orch.Handle(context.Background(), Request{Message: "plot histogram of pl_orbper", Table: "k2", QueryID: "q2"})

	if h.runner.queries[0] != "SELECT pl_orbper FROM k2 WHERE pl_orbper IS NOT NULL LIMIT 1000" {
		t.Errorf("unexpected query %q", h.runner.queries[0])
	}
	if env.Plot == nil || env.Data != nil || env.ResponseType != QueryWithData || !env.ShowInResultsTab {
		t.Fatalf("expected plot without data, got %+v", env)
	}

	entry, ok := h.orch.Cache.Get("q2")
	if !ok || entry.Plot == nil || len(entry.Data) != 3 {
		t.Errorf("cache should hold the plot and its rows, got %+v", entry)
	}
}

func TestHandle_QuestionIsAIOnly(t *testing.T) {
	h := newHarness(t, nil)
	env := h.orch.Handle(context.Background(), Request{Message: "what does pl_orbper mean", Table: "k2", QueryID: "q3"})

	if env.ResponseType != AIOnly || env.ShowInResultsTab {
		t.Errorf("unexpected envelope %+v", env)
	}
	if h.search.calls != 1 || len(h.runner.queries) != 0 {
		t.Errorf("expected one search and no queries, got %d / %d", h.search.calls, len(h.runner.queries))
	}
	if !strings.Contains(env.Text, "**NASA Glossary**: The time a planet takes") {
		t.Errorf("search narrative missing from %q", env.Text)
	}
	if h.orch.Cache.Len() != 0 {
		t.Error("AI-only answers must not be cached")
	}
}

func TestHandle_ZeroRowsSkipsPlot(t *testing.T) {
	model := &fakeModel{reply: `{"explanation": "Radii", "steps": [
		{"tool": "execute_sql", "query": "SELECT pl_rade FROM k2 WHERE pl_rade > 100 LIMIT 10"},
		{"tool": "plot_graph", "chart": {"kind": "histogram", "x": "pl_rade"}}]}`}
	h := newHarness(t, model)
	h.runner.result = store.ResultSet{Columns: []string{"pl_rade"}}

	env := h.orch.Handle(context.Background(), Request{Message: "plot huge radii", Table: "k2", QueryID: "q4"})

	if env.ResponseType != AIOnly || env.Plot != nil || env.Data != nil {
		t.Errorf("expected AI-only envelope, got %+v", env)
	}
	if !strings.Contains(env.Text, "no rows") {
		t.Errorf("expected a no-rows note, got %q", env.Text)
	}
	if _, err := h.orch.FetchPage("q4", 0); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected no cache entry, got %v", err)
	}
}

func TestHandle_RejectedSQLNeverRuns(t *testing.T) {
	model := &fakeModel{reply: `{"explanation": "Cleaning up", "steps": [{"tool": "execute_sql", "query": "DELETE FROM k2"}]}`}
	h := newHarness(t, model)

	env := h.orch.Handle(context.Background(), Request{Message: "remove everything", Table: "k2"})

	if len(h.runner.queries) != 0 {
		t.Fatalf("rejected SQL reached the database: %v", h.runner.queries)
	}
	if env.ResponseType != AIOnly || !strings.Contains(env.Text, "only SELECT queries are allowed") {
		t.Errorf("unexpected envelope %+v", env)
	}
}

func TestHandle_ExecutionFailureRefreshesColumns(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.err = errors.New(`column "pl_orbper" does not exist`)

	env := h.orch.Handle(context.Background(), Request{Message: "show top 3 rows", Table: "k2"})
	if env.ResponseType != AIOnly || !strings.Contains(env.Text, "internal error") || strings.Contains(env.Text, "does not exist") {
		t.Errorf("unexpected envelope %+v", env)
	}

	h.runner.err = nil
	h.runner.result = rows(3)
	h.orch.Handle(context.Background(), Request{Message: "show top 3 rows", Table: "k2"})
	if h.schema.calls != 2 {
		t.Errorf("expected the columns to be fetched again after a failed query, got %d fetches", h.schema.calls)
	}
}

func TestHandle_FailedPlotKeepsData(t *testing.T) {
	model := &fakeModel{reply: `{"explanation": "Chart", "steps": [
		{"tool": "execute_sql", "query": "SELECT pl_name, pl_orbper FROM k2 LIMIT 3"},
		{"tool": "plot_graph", "chart": {"kind": "scatter", "x": "pl_orbper", "y": "st_mass"}}]}`}
	h := newHarness(t, model)
	h.runner.result = rows(3)

	env := h.orch.Handle(context.Background(), Request{Message: "chart it", Table: "k2"})

	if env.Plot != nil || len(env.Data) != 3 || env.ResponseType != QueryWithData {
		t.Errorf("expected data fallback, got %+v", env)
	}
	if !strings.Contains(env.Text, "draw the chart") {
		t.Errorf("expected a plot failure note, got %q", env.Text)
	}
}

func TestHandle_SchemaFailureDegrades(t *testing.T) {
	h := newHarness(t, nil)
	h.schema.err = errors.New("connection refused")
	h.runner.result = rows(3)

	env := h.orch.Handle(context.Background(), Request{Message: "show top 3 rows", Table: "toi"})
	if h.planner.last.Columns != nil {
		t.Errorf("expected an empty catalog, got %v", h.planner.last.Columns)
	}
	if env.ResponseType != QueryWithData || len(env.Data) != 3 {
		t.Errorf("unexpected envelope %+v", env)
	}
}

func TestHandle_RecoversPanics(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.Planner = panicPlanner{}

	env := h.orch.Handle(context.Background(), Request{Message: "show rows", Table: "k2"})
	if env.ResponseType != AIOnly || env.Error != "internal_error" || env.Text == "" {
		t.Errorf("unexpected envelope %+v", env)
	}
}

func TestHandle_RecordsHistory(t *testing.T) {
	h := newHarness(t, nil)
	hist := &fakeHistory{prior: []llms.MessageContent{{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart("earlier question")},
	}}}
	h.orch.History = hist

	h.orch.Handle(context.Background(), Request{Message: "hello", Table: "k2", Session: "s1"})

	if len(h.planner.last.History) != 1 {
		t.Errorf("planner did not receive history: %+v", h.planner.last.History)
	}
	if len(hist.stored) != 2 || hist.stored[0].Role != store.RoleHuman || hist.stored[1].ResponseType != string(AIOnly) {
		t.Errorf("unexpected stored exchanges %+v", hist.stored)
	}

	if err := h.orch.ResetSession(context.Background(), "s1"); err != nil {
		t.Fatalf("ResetSession failed: %v", err)
	}
	if len(hist.stored) != 0 || len(hist.prior) != 0 {
		t.Error("reset should clear the session history")
	}
}

func TestHandle_CancelledRequestIsNotCached(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.result = rows(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h.orch.Handle(ctx, Request{Message: "show top 4 rows", Table: "k2", QueryID: "q5"})
	if h.orch.Cache.Len() != 0 {
		t.Error("a cancelled request must not write a cache entry")
	}
}

func TestStream_FinalChunkCarriesPreview(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.result = rows(25)

	var chunks []Chunk
	err := h.orch.Stream(context.Background(), Request{Message: "show top 25 rows", Table: "k2", QueryID: "q6"}, func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	final := chunks[len(chunks)-1]
	if !final.Done || len(final.Data) != PreviewRows || final.TotalRows != 25 || !final.OpenNewTab || final.ResponseType != QueryWithData {
		t.Errorf("unexpected final chunk %+v", final)
	}

	var text strings.Builder
	for _, c := range chunks[:len(chunks)-1] {
		if c.Done || c.Data != nil {
			t.Errorf("intermediate chunk carries final fields: %+v", c)
		}
		text.WriteString(c.Chunk)
	}
	if text.String() != "Here are up to 25 rows from k2." {
		t.Errorf("unexpected streamed text %q", text.String())
	}

	page, err := h.orch.FetchPage("q6", 2)
	if err != nil || len(page.Rows) != 5 || page.HasNext {
		t.Errorf("unexpected last page %+v (%v)", page, err)
	}
}

func TestStream_StopsOnEmitError(t *testing.T) {
	h := newHarness(t, nil)
	gone := errors.New("client went away")
	calls := 0
	err := h.orch.Stream(context.Background(), Request{Message: "hello", Table: "k2"}, func(c Chunk) error {
		calls++
		return gone
	})
	if !errors.Is(err, gone) || calls != 1 {
		t.Errorf("expected to stop after the first failed emit, got %v after %d calls", err, calls)
	}
}

func TestRunDirectQuery(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.result = rows(2)

	res, err := h.orch.RunDirectQuery(context.Background(), "CUM")
	if err != nil {
		t.Fatalf("RunDirectQuery failed: %v", err)
	}
	if h.runner.queries[0] != "SELECT * FROM cum LIMIT 1000" || res.Count != 2 || res.Table != "cum" {
		t.Errorf("unexpected result %+v for %v", res, h.runner.queries)
	}
	if h.planner.calls != 0 {
		t.Error("direct queries must bypass planning")
	}

	if _, err := h.orch.RunDirectQuery(context.Background(), "pg_user"); !errors.Is(err, catalog.ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable, got %v", err)
	}
}

func TestRunSQL(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.result = rows(3)

	res, err := h.orch.RunSQL(context.Background(), "SELECT pl_name, pl_orbper FROM k2 LIMIT 3")
	if err != nil {
		t.Fatalf("RunSQL failed: %v", err)
	}
	if res.Count != 3 || res.Query != "SELECT pl_name, pl_orbper FROM k2 LIMIT 3" || res.Plot != nil {
		t.Errorf("unexpected result %+v", res)
	}

	_, err = h.orch.RunSQL(context.Background(), "SELECT * FROM k2, secrets")
	var failure *ToolFailure
	if !errors.As(err, &failure) || failure.Kind != tools.ErrorValidation {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if !errors.Is(err, governance.ErrRejected) {
		t.Errorf("expected rejection to unwrap, got %v", err)
	}
	if len(h.runner.queries) != 1 {
		t.Errorf("rejected query must not run, runner saw %v", h.runner.queries)
	}

	h.runner.err = errors.New(`pq: relation "k2" does not exist at 10.0.0.5`)
	_, err = h.orch.RunSQL(context.Background(), "SELECT * FROM k2")
	if !errors.As(err, &failure) || failure.Kind != tools.ErrorExecution {
		t.Fatalf("expected execution failure, got %v", err)
	}
	if strings.Contains(failure.Message, "10.0.0.5") {
		t.Errorf("driver details leaked: %q", failure.Message)
	}
}

func TestRunSQLPlot(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.result = rows(4)
	ctx := context.Background()

	res, err := h.orch.RunSQLPlot(ctx, "K2", "SELECT pl_orbper FROM k2", plan.ChartSpec{Kind: plan.ChartHistogram, X: "pl_orbper"})
	if err != nil {
		t.Fatalf("RunSQLPlot failed: %v", err)
	}
	if res.Plot == nil || res.Plot.Points != 4 || res.Count != 4 || res.Chart == nil {
		t.Errorf("unexpected result %+v", res)
	}

	_, err = h.orch.RunSQLPlot(ctx, "k2", "SELECT pl_orbper FROM k2", plan.ChartSpec{Kind: plan.ChartHistogram, X: "os.system"})
	var failure *ToolFailure
	if !errors.As(err, &failure) || failure.Kind != tools.ErrorValidation {
		t.Errorf("expected chart rejection, got %v", err)
	}

	if _, err := h.orch.RunSQLPlot(ctx, "users", "SELECT 1", plan.ChartSpec{Kind: plan.ChartHistogram, X: "pl_orbper"}); !errors.Is(err, catalog.ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable, got %v", err)
	}

	h.runner.result = store.ResultSet{Columns: []string{"pl_orbper"}}
	_, err = h.orch.RunSQLPlot(ctx, "k2", "SELECT pl_orbper FROM k2 WHERE false", plan.ChartSpec{Kind: plan.ChartHistogram, X: "pl_orbper"})
	if !errors.As(err, &failure) || failure.Message != "query returned no data" {
		t.Errorf("expected no-data failure, got %v", err)
	}
}
