// Package tools executes plan steps against the SQL, plot and search capabilities and
// reports every outcome as a Result value.
package tools

import (
	"fmt"
	"sort"

	"github.com/rahul/exoscope/internal/plan"
	"github.com/rahul/exoscope/internal/render"
	"github.com/rahul/exoscope/internal/store"
)

// ErrorKind classifies a failed tool call.
type ErrorKind string

const (
	ErrorValidation  ErrorKind = "validation"
	ErrorExecution   ErrorKind = "execution"
	ErrorUnavailable ErrorKind = "unavailable"
)

// Descriptor tells the planner what a tool does and which arguments it takes.
type Descriptor struct {
	Name        plan.Tool
	Description string
	Parameters  map[string]any // JSON Schema for the tool's inputs
}

// Registry manages the set of available tools.
type Registry struct {
	Tools map[plan.Tool]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{
		Tools: make(map[plan.Tool]Descriptor),
	}
}

func (r *Registry) Register(d Descriptor) {
	r.Tools[d.Name] = d
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.Tools))
	for _, d := range r.Tools {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultRegistry describes the three tools a plan may use.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Descriptor{
		Name:        plan.ToolExecuteSQL,
		Description: "Run one read-only SELECT statement against the active table and make its rows the current data.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "A single SELECT statement over the active table",
				},
			},
			"required": []string{"query"},
		},
	})
	r.Register(Descriptor{
		Name:        plan.ToolPlotGraph,
		Description: "Chart the current data. Requires an earlier execute_sql step that returned rows.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"chart": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"kind":  map[string]any{"type": "string", "enum": plan.ChartKinds},
						"x":     map[string]any{"type": "string", "description": "Column for the x axis or the values"},
						"y":     map[string]any{"type": "string", "description": "Column for the y axis (scatter, line, bar)"},
						"log_y": map[string]any{"type": "boolean"},
						"title": map[string]any{"type": "string"},
						"bins":  map[string]any{"type": "integer"},
					},
					"required": []string{"kind", "x"},
				},
			},
			"required": []string{"chart"},
		},
	})
	r.Register(Descriptor{
		Name:        plan.ToolWebSearch,
		Description: "Look up the meaning of a term or column across the exoplanet glossary, Wikipedia and DuckDuckGo.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The term to look up",
				},
			},
			"required": []string{"query"},
		},
	})
	return r
}

// Result is the outcome of one tool call. Success is determined by whether Err is nil.
type Result struct {
	Tool    plan.Tool
	Columns []string
	Rows    []store.Row
	Plot    *render.Artifact
	Summary string
	Hits    []Hit
	Err     error
	ErrKind ErrorKind
}

func (r Result) Success() bool {
	return r.Err == nil
}

func failure(tool plan.Tool, kind ErrorKind, err error) Result {
	return Result{Tool: tool, Err: err, ErrKind: kind}
}

func failuref(tool plan.Tool, kind ErrorKind, format string, args ...any) Result {
	return failure(tool, kind, fmt.Errorf(format, args...))
}
