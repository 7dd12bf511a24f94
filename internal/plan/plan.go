package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Tool names a capability a plan step may invoke.
type Tool string

const (
	ToolExecuteSQL Tool = "execute_sql"
	ToolPlotGraph  Tool = "plot_graph"
	ToolWebSearch  Tool = "web_search"
)

// MaxSteps bounds how many steps a single plan may carry.
const MaxSteps = 5

var ErrInvalidPlan = errors.New("invalid plan")

// Step is one tool invocation. The concrete types are ExecuteSQL, PlotGraph and WebSearch.
type Step interface {
	Tool() Tool
	isStep()
}

// ExecuteSQL runs a read-only query and makes its rows the current data.
type ExecuteSQL struct {
	Query string `json:"query"`
}

// PlotGraph renders the current data as a chart.
type PlotGraph struct {
	Chart ChartSpec `json:"chart"`
}

// WebSearch looks a term up across the configured search backends.
type WebSearch struct {
	Query string `json:"query"`
}

func (ExecuteSQL) Tool() Tool { return ToolExecuteSQL }
func (PlotGraph) Tool() Tool  { return ToolPlotGraph }
func (WebSearch) Tool() Tool  { return ToolWebSearch }

func (ExecuteSQL) isStep() {}
func (PlotGraph) isStep()  {}
func (WebSearch) isStep()  {}

// Plan is the ordered list of steps produced for one request plus the text shown to the user.
type Plan struct {
	Explanation string
	Steps       []Step
	// Fallback is set when the plan came from the local heuristic rather than the model.
	Fallback bool
}

// MarshalJSON writes steps in the same wire shape Decode accepts.
func (p Plan) MarshalJSON() ([]byte, error) {
	type wireStep struct {
		Tool  Tool       `json:"tool"`
		Query string     `json:"query,omitempty"`
		Chart *ChartSpec `json:"chart,omitempty"`
	}
	out := struct {
		Explanation string     `json:"explanation"`
		Steps       []wireStep `json:"steps"`
		Fallback    bool       `json:"fallback,omitempty"`
	}{Explanation: p.Explanation, Fallback: p.Fallback, Steps: []wireStep{}}

	for _, s := range p.Steps {
		ws := wireStep{Tool: s.Tool()}
		switch v := s.(type) {
		case ExecuteSQL:
			ws.Query = v.Query
		case WebSearch:
			ws.Query = v.Query
		case PlotGraph:
			c := v.Chart
			ws.Chart = &c
		}
		out.Steps = append(out.Steps, ws)
	}
	return json.Marshal(out)
}

type rawPlan struct {
	Explanation *string           `json:"explanation"`
	Steps       []json.RawMessage `json:"steps"`
	// Fallback is accepted so marshaled plans decode; the decoded plan never inherits it.
	Fallback bool `json:"fallback"`
}

type rawStep struct {
	Tool  string     `json:"tool"`
	Query *string    `json:"query"`
	Chart *ChartSpec `json:"chart"`
}

// Decode parses a model-produced JSON payload into a Plan. Any unknown tool, unknown field,
// missing field or malformed step rejects the whole plan; there is no partial result.
func Decode(data []byte) (Plan, error) {
	var raw rawPlan
	if err := decodeStrict(data, &raw); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if raw.Explanation == nil {
		return Plan{}, fmt.Errorf("%w: missing explanation", ErrInvalidPlan)
	}
	if len(raw.Steps) > MaxSteps {
		return Plan{}, fmt.Errorf("%w: %d steps exceeds limit of %d", ErrInvalidPlan, len(raw.Steps), MaxSteps)
	}

	p := Plan{Explanation: strings.TrimSpace(*raw.Explanation)}
	if len(raw.Steps) == 0 && p.Explanation == "" {
		return Plan{}, fmt.Errorf("%w: empty plan", ErrInvalidPlan)
	}

	for i, msg := range raw.Steps {
		step, err := decodeStep(msg)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: step %d: %v", ErrInvalidPlan, i+1, err)
		}
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}

func decodeStep(msg json.RawMessage) (Step, error) {
	var rs rawStep
	if err := decodeStrict(msg, &rs); err != nil {
		return nil, err
	}

	switch Tool(strings.ToLower(strings.TrimSpace(rs.Tool))) {
	case ToolExecuteSQL:
		if rs.Query == nil || strings.TrimSpace(*rs.Query) == "" {
			return nil, errors.New("execute_sql requires query")
		}
		return ExecuteSQL{Query: strings.TrimSpace(*rs.Query)}, nil
	case ToolWebSearch:
		if rs.Query == nil || strings.TrimSpace(*rs.Query) == "" {
			return nil, errors.New("web_search requires query")
		}
		return WebSearch{Query: strings.TrimSpace(*rs.Query)}, nil
	case ToolPlotGraph:
		if rs.Chart == nil {
			return nil, errors.New("plot_graph requires chart")
		}
		if rs.Chart.Kind == "" || rs.Chart.X == "" {
			return nil, errors.New("chart requires kind and x")
		}
		return PlotGraph{Chart: *rs.Chart}, nil
	case "":
		return nil, errors.New("missing tool")
	default:
		return nil, fmt.Errorf("unknown tool %q", rs.Tool)
	}
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}
