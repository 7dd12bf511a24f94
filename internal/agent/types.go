package agent

import (
	"github.com/rahul/exoscope/internal/plan"
	"github.com/rahul/exoscope/internal/render"
	"github.com/rahul/exoscope/internal/store"
	"github.com/rahul/exoscope/internal/tools"
)

// ResponseType tells a transport how to present an envelope.
type ResponseType string

const (
	AIOnly        ResponseType = "ai_only"
	QueryWithData ResponseType = "query_with_data"
)

// PreviewRows is how many rows the final stream chunk and chat replies carry.
const PreviewRows = 10

// DirectQueryLimit caps the raw table dump.
const DirectQueryLimit = 1000

// Request is one user message addressed to a dataset.
type Request struct {
	Message string
	Table   string
	// QueryID keys the cached result. A fresh id is generated when empty.
	QueryID string
	// Session groups messages into a conversation for history.
	Session string
}

// Envelope is the single response returned after orchestration. Data and Plot are never both set.
type Envelope struct {
	Text             string           `json:"response"`
	Columns          []string         `json:"columns,omitempty"`
	Data             []store.Row      `json:"data"`
	TotalRows        int              `json:"total_rows,omitempty"`
	Plot             *render.Artifact `json:"plot"`
	ResponseType     ResponseType     `json:"response_type"`
	ShowInResultsTab bool             `json:"show_in_results_tab"`
	QueryID          string           `json:"query_id,omitempty"`
	Table            string           `json:"table,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// Chunk is one increment of a streamed response. Only the final chunk (Done) carries data.
type Chunk struct {
	Chunk        string           `json:"chunk"`
	Done         bool             `json:"done"`
	Columns      []string         `json:"columns,omitempty"`
	Data         []store.Row      `json:"data,omitempty"`
	TotalRows    int              `json:"total_rows,omitempty"`
	Plot         *render.Artifact `json:"plot,omitempty"`
	OpenNewTab   bool             `json:"open_new_tab,omitempty"`
	ResponseType ResponseType     `json:"response_type,omitempty"`
	QueryID      string           `json:"query_id,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// DirectResult is an unplanned dump of a table.
type DirectResult struct {
	Rows    []store.Row `json:"data"`
	Columns []string    `json:"columns"`
	Table   string      `json:"table"`
	Count   int         `json:"count"`
}

// SQLResult is the outcome of a caller-supplied query, optionally drawn as a chart.
type SQLResult struct {
	Rows    []store.Row      `json:"data"`
	Columns []string         `json:"columns"`
	Count   int              `json:"count"`
	Query   string           `json:"query"`
	Plot    *render.Artifact `json:"plot,omitempty"`
	Chart   *plan.ChartSpec  `json:"chart,omitempty"`
}

// ToolFailure is returned when a directly invoked tool fails. Message is safe to show
// to the caller.
type ToolFailure struct {
	Kind    tools.ErrorKind
	Message string
	Err     error
}

func (f *ToolFailure) Error() string { return f.Message }

func (f *ToolFailure) Unwrap() error { return f.Err }
