// Package agent turns a user message into a plan, runs the plan through the tool executor
// and assembles the response envelope.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
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

// DefaultHistoryLimit is how many stored messages are passed to the planner.
const DefaultHistoryLimit = 5

// searchHint narrows remote lookups to the astronomy sense of a term.
const searchHint = "exoplanet"

const clarificationText = "Please choose a dataset first (k2, toi or cum), then ask your question."

type HistoryStore interface {
	AddExchange(ctx context.Context, e store.Exchange) error
	GetHistory(ctx context.Context, session string, limit int) ([]llms.MessageContent, error)
	ClearSession(ctx context.Context, session string) error
}

// TableBrowser serves the raw browse and planet lookup views. *store.DB satisfies it.
type TableBrowser interface {
	Browse(ctx context.Context, req store.BrowseRequest) (store.BrowsePage, error)
	FindPlanet(ctx context.Context, name string) (store.PlanetMatch, error)
}

// Orchestrator drives one request from message to envelope. It is safe for concurrent use;
// all shared state lives in the catalog, the cache and the history store.
type Orchestrator struct {
	Catalog  *catalog.Catalog
	Planner  Planner
	Executor *tools.Executor
	Cache    *cache.ResultCache
	History  HistoryStore
	Browser  TableBrowser
	Logger   *observability.Logger

	HistoryLimit int
}

// workingSet accumulates step outputs while a plan runs.
type workingSet struct {
	data      store.ResultSet
	plot      *render.Artifact
	narrative []string
	notes     []string
	ranSQL    bool
}

// Handle runs the full pipeline. It always returns a well-formed envelope.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (env Envelope) {
	if req.QueryID == "" {
		req.QueryID = uuid.NewString()
	}
	req.Table = strings.ToLower(strings.TrimSpace(req.Table))

	done := observability.BeginRequest(fmt.Sprintf("[%s] %s", req.Table, req.Message))
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Orchestrator] recovered from panic in query %s: %v", req.QueryID, r)
			env = Envelope{
				Text:         "Something went wrong while answering your request. Please try again.",
				ResponseType: AIOnly,
				QueryID:      req.QueryID,
				Table:        req.Table,
				Error:        "internal_error",
			}
		}
		done(env.Error != "")
	}()

	o.Logger.LogRequest(req.Session, req.QueryID, req.Table, req.Message)

	if req.Table == "" {
		return Envelope{Text: clarificationText, ResponseType: AIOnly, QueryID: req.QueryID}
	}
	if !o.Catalog.Known(req.Table) {
		return Envelope{
			Text:         fmt.Sprintf("I don't know the table %q. Available tables: %s.", req.Table, strings.Join(o.Catalog.Tables(), ", ")),
			ResponseType: AIOnly,
			QueryID:      req.QueryID,
			Table:        req.Table,
			Error:        "validation",
		}
	}
	if strings.TrimSpace(req.Message) == "" {
		return Envelope{Text: helpText, ResponseType: AIOnly, QueryID: req.QueryID, Table: req.Table}
	}

	env = o.run(ctx, req)
	o.remember(ctx, req, env)
	return env
}

func (o *Orchestrator) run(ctx context.Context, req Request) Envelope {
	tr := tools.Trace{ChatID: req.Session, TaskID: req.QueryID}

	columns, err := o.Catalog.Columns(ctx, req.Table)
	if err != nil {
		log.Printf("[Orchestrator] planning %s without columns: %v", req.Table, err)
		columns = nil
	}

	p := o.Planner.Plan(ctx, PlanContext{
		Trace:   tr,
		Message: req.Message,
		Table:   req.Table,
		Columns: columns,
		Tools:   o.Executor.Descriptors(),
		History: o.history(ctx, req.Session),
	})

	ws := o.execute(ctx, tr, req.Table, p, columns)

	env := Envelope{QueryID: req.QueryID, Table: req.Table}
	switch {
	case ws.plot != nil:
		env.ResponseType = QueryWithData
		env.Plot = ws.plot
		env.ShowInResultsTab = true
	case ws.data.Len() > 0:
		env.ResponseType = QueryWithData
		env.Columns = ws.data.Columns
		env.Data = ws.data.Rows
		env.TotalRows = ws.data.Len()
		env.ShowInResultsTab = true
	default:
		env.ResponseType = AIOnly
		if ws.ranSQL && len(ws.notes) == 0 {
			ws.notes = append(ws.notes, "The query returned no rows.")
		}
	}
	env.Text = composeText(p.Explanation, ws)

	// A cancelled request never leaves a cache entry behind.
	if env.ShowInResultsTab && ctx.Err() == nil && o.Cache != nil {
		o.Cache.Set(req.QueryID, cache.Entry{
			Columns: ws.data.Columns,
			Data:    ws.data.Rows,
			Plot:    ws.plot,
			Table:   req.Table,
			Message: req.Message,
		})
		o.Logger.LogCache(req.QueryID, "store", ws.data.Len())
	}
	return env
}

// execute runs the steps strictly in order. A failed step never aborts its siblings.
func (o *Orchestrator) execute(ctx context.Context, tr tools.Trace, table string, p plan.Plan, columns []string) *workingSet {
	ws := &workingSet{}
	for _, step := range p.Steps {
		if ctx.Err() != nil {
			break
		}
		switch s := step.(type) {
		case plan.ExecuteSQL:
			r := o.Executor.ExecuteSQL(ctx, tr, s.Query)
			if !r.Success() {
				if r.ErrKind == tools.ErrorExecution {
					// the schema may have changed under the cached column list
					o.Catalog.Invalidate(table)
				}
				ws.notes = append(ws.notes, failureNote("run that query", r))
				continue
			}
			ws.ranSQL = true
			ws.data = store.ResultSet{Columns: r.Columns, Rows: r.Rows}

		case plan.PlotGraph:
			if ws.data.Len() == 0 {
				log.Printf("[Orchestrator] skipping %s plot for %s: no data", s.Chart.Kind, tr.TaskID)
				continue
			}
			r := o.Executor.RenderPlot(ctx, tr, s.Chart, columns, ws.data)
			if !r.Success() {
				ws.notes = append(ws.notes, failureNote("draw the chart", r)+" Showing the data instead.")
				continue
			}
			ws.plot = r.Plot

		case plan.WebSearch:
			r := o.Executor.WebSearch(ctx, tr, s.Query, searchHint)
			if r.Success() && r.Summary != "" {
				ws.narrative = append(ws.narrative, r.Summary)
			}
		}
	}
	return ws
}

// failureNote describes a failed step without leaking driver or network details.
func failureNote(action string, r tools.Result) string {
	var rejection *governance.Rejection
	switch {
	case errors.As(r.Err, &rejection):
		return fmt.Sprintf("I could not %s: %s.", action, rejection.Reason)
	case r.ErrKind == tools.ErrorValidation:
		return fmt.Sprintf("I could not %s: %v.", action, r.Err)
	case r.ErrKind == tools.ErrorUnavailable:
		return fmt.Sprintf("I could not %s because that capability is not available right now.", action)
	}
	return fmt.Sprintf("I could not %s because of an internal error.", action)
}

func composeText(explanation string, ws *workingSet) string {
	var parts []string
	if s := strings.TrimSpace(explanation); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, ws.notes...)
	parts = append(parts, ws.narrative...)
	if len(parts) == 0 {
		return "I could not find anything for that request."
	}
	return strings.Join(parts, "\n\n")
}

func (o *Orchestrator) history(ctx context.Context, session string) []llms.MessageContent {
	if o.History == nil || session == "" {
		return nil
	}
	limit := o.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	msgs, err := o.History.GetHistory(ctx, session, limit)
	if err != nil {
		log.Printf("[Orchestrator] failed to load history for %s: %v", session, err)
		return nil
	}
	return msgs
}

func (o *Orchestrator) remember(ctx context.Context, req Request, env Envelope) {
	if o.History == nil || req.Session == "" {
		return
	}
	exchanges := []store.Exchange{
		{Session: req.Session, Role: store.RoleHuman, Content: req.Message, Table: req.Table, QueryID: req.QueryID},
		{Session: req.Session, Role: store.RoleAI, Content: env.Text, Table: req.Table, QueryID: req.QueryID, ResponseType: string(env.ResponseType)},
	}
	for _, e := range exchanges {
		if err := o.History.AddExchange(ctx, e); err != nil {
			log.Printf("[Orchestrator] failed to store history for %s: %v", req.Session, err)
			return
		}
	}
}

// Stream runs Handle and emits the text word by word, then a final chunk carrying the data
// preview and the plot. Emission stops at the first emit error or when ctx is cancelled.
func (o *Orchestrator) Stream(ctx context.Context, req Request, emit func(Chunk) error) error {
	env := o.Handle(ctx, req)

	words := strings.Split(env.Text, " ")
	for i, w := range words {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i < len(words)-1 {
			w += " "
		}
		if err := emit(Chunk{Chunk: w}); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return emit(Chunk{
		Done:         true,
		Columns:      env.Columns,
		Data:         store.Head(env.Data, PreviewRows),
		TotalRows:    env.TotalRows,
		Plot:         env.Plot,
		OpenNewTab:   env.ShowInResultsTab,
		ResponseType: env.ResponseType,
		QueryID:      env.QueryID,
		Error:        env.Error,
	})
}

// FetchPage returns one page of a cached result. cache.ErrNotFound means the entry expired
// or never existed, which is different from an empty page.
func (o *Orchestrator) FetchPage(queryID string, page int) (cache.Page, error) {
	if o.Cache == nil {
		return cache.Page{}, cache.ErrNotFound
	}
	p, err := o.Cache.Page(queryID, page)
	if err != nil {
		return p, err
	}
	o.Logger.LogCache(queryID, "page", len(p.Rows))
	return p, nil
}

// RunDirectQuery dumps up to DirectQueryLimit rows of a table without planning.
func (o *Orchestrator) RunDirectQuery(ctx context.Context, table string) (DirectResult, error) {
	table = strings.ToLower(strings.TrimSpace(table))
	if !o.Catalog.Known(table) {
		return DirectResult{}, fmt.Errorf("%w: %q", catalog.ErrUnknownTable, table)
	}

	r := o.Executor.ExecuteSQL(ctx, tools.Trace{TaskID: "direct:" + table}, fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, DirectQueryLimit))
	if !r.Success() {
		return DirectResult{}, r.Err
	}
	return DirectResult{Rows: r.Rows, Columns: r.Columns, Table: table, Count: len(r.Rows)}, nil
}

// RunSQL runs a caller-supplied query through the SQL guard without planning.
func (o *Orchestrator) RunSQL(ctx context.Context, query string) (SQLResult, error) {
	return o.runSQL(ctx, tools.Trace{TaskID: "sql:" + uuid.NewString()}, query)
}

func (o *Orchestrator) runSQL(ctx context.Context, tr tools.Trace, query string) (SQLResult, error) {
	r := o.Executor.ExecuteSQL(ctx, tr, query)
	if !r.Success() {
		return SQLResult{}, directFailure(r)
	}
	return SQLResult{Rows: r.Rows, Columns: r.Columns, Count: len(r.Rows), Query: query}, nil
}

// RunSQLPlot runs query and draws chart over its rows. The chart is checked against the
// column catalog of table, so both guards apply as they do for planned steps.
func (o *Orchestrator) RunSQLPlot(ctx context.Context, table, query string, chart plan.ChartSpec) (SQLResult, error) {
	table = strings.ToLower(strings.TrimSpace(table))
	if !o.Catalog.Known(table) {
		return SQLResult{}, fmt.Errorf("%w: %q", catalog.ErrUnknownTable, table)
	}
	columns, err := o.Catalog.Columns(ctx, table)
	if err != nil {
		log.Printf("[Orchestrator] checking chart for %s without columns: %v", table, err)
	}

	tr := tools.Trace{TaskID: "sql:" + uuid.NewString()}
	res, err := o.runSQL(ctx, tr, query)
	if err != nil {
		return SQLResult{}, err
	}
	if res.Count == 0 {
		return SQLResult{}, &ToolFailure{Kind: tools.ErrorValidation, Message: "query returned no data"}
	}

	r := o.Executor.RenderPlot(ctx, tr, chart, columns, store.ResultSet{Columns: res.Columns, Rows: res.Rows})
	if !r.Success() {
		return SQLResult{}, directFailure(r)
	}
	res.Plot = r.Plot
	res.Chart = &chart
	return res, nil
}

// directFailure wraps a failed tool result, keeping driver details out of the message.
func directFailure(r tools.Result) *ToolFailure {
	f := &ToolFailure{Kind: r.ErrKind, Err: r.Err}
	var rejection *governance.Rejection
	switch {
	case errors.As(r.Err, &rejection):
		f.Message = rejection.Reason
	case r.ErrKind == tools.ErrorValidation:
		f.Message = r.Err.Error()
	case r.ErrKind == tools.ErrorUnavailable:
		f.Message = fmt.Sprintf("%s is not available", r.Tool)
	default:
		f.Message = fmt.Sprintf("%s failed", r.Tool)
	}
	return f
}

// ResetSession forgets the conversation history of a session.
func (o *Orchestrator) ResetSession(ctx context.Context, session string) error {
	if o.History == nil {
		return nil
	}
	return o.History.ClearSession(ctx, session)
}

func (o *Orchestrator) Tables() []string {
	return o.Catalog.Tables()
}

func (o *Orchestrator) Columns(ctx context.Context, table string) ([]string, error) {
	return o.Catalog.Columns(ctx, table)
}

func (o *Orchestrator) Browse(ctx context.Context, req store.BrowseRequest) (store.BrowsePage, error) {
	req.Table = strings.ToLower(strings.TrimSpace(req.Table))
	if !o.Catalog.Known(req.Table) {
		return store.BrowsePage{}, fmt.Errorf("%w: %q", catalog.ErrUnknownTable, req.Table)
	}
	if o.Browser == nil {
		return store.BrowsePage{}, errors.New("table browsing is not configured")
	}
	return o.Browser.Browse(ctx, req)
}

func (o *Orchestrator) FindPlanet(ctx context.Context, name string) (store.PlanetMatch, error) {
	if o.Browser == nil {
		return store.PlanetMatch{}, errors.New("planet lookup is not configured")
	}
	return o.Browser.FindPlanet(ctx, name)
}
