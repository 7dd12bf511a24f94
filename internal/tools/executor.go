package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rahul/exoscope/internal/governance"
	"github.com/rahul/exoscope/internal/observability"
	"github.com/rahul/exoscope/internal/plan"
	"github.com/rahul/exoscope/internal/store"
)

// Trace identifies the chat and query a tool call belongs to, for logging.
type Trace struct {
	ChatID string
	TaskID string
}

// Executor runs single tool calls. Every call passes the policy engine first, and a tool
// that is not configured reports ErrorUnavailable.
type Executor struct {
	SQL    *SQLTool
	Plot   *PlotTool
	Search *SearchTool

	Registry *Registry
	Policy   governance.PolicyEngine
	Logger   *observability.Logger
}

func (e *Executor) ExecuteSQL(ctx context.Context, tr Trace, query string) Result {
	if r, ok := e.admit(ctx, tr, plan.ToolExecuteSQL, query, e.SQL != nil); !ok {
		return r
	}
	return e.finish(tr, e.SQL.Execute(ctx, query))
}

func (e *Executor) RenderPlot(ctx context.Context, tr Trace, spec plan.ChartSpec, catalog []string, rs store.ResultSet) Result {
	args, _ := json.Marshal(spec)
	if r, ok := e.admit(ctx, tr, plan.ToolPlotGraph, string(args), e.Plot != nil); !ok {
		return r
	}
	return e.finish(tr, e.Plot.Execute(ctx, spec, catalog, rs))
}

func (e *Executor) WebSearch(ctx context.Context, tr Trace, query, hint string) Result {
	if r, ok := e.admit(ctx, tr, plan.ToolWebSearch, query, e.Search != nil); !ok {
		return r
	}
	return e.finish(tr, e.Search.Execute(ctx, query, hint))
}

// Descriptors lists the tools the planner may use: registered, configured and not denied.
func (e *Executor) Descriptors() []Descriptor {
	if e.Registry == nil {
		return nil
	}
	var out []Descriptor
	for _, d := range e.Registry.List() {
		if !e.configured(d.Name) {
			continue
		}
		if e.Policy != nil {
			res, err := e.Policy.Evaluate(context.Background(), governance.Request{Tool: string(d.Name)})
			if err != nil || res.Effect == governance.EffectDeny {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

func (e *Executor) configured(tool plan.Tool) bool {
	switch tool {
	case plan.ToolExecuteSQL:
		return e.SQL != nil
	case plan.ToolPlotGraph:
		return e.Plot != nil
	case plan.ToolWebSearch:
		return e.Search != nil
	}
	return false
}

func (e *Executor) admit(ctx context.Context, tr Trace, tool plan.Tool, args string, configured bool) (Result, bool) {
	e.Logger.LogToolCall(tr.ChatID, tr.TaskID, string(tool), args)

	if e.Policy != nil {
		res, err := e.Policy.Evaluate(ctx, governance.Request{Tool: string(tool), Arguments: args, QueryID: tr.TaskID})
		if err != nil {
			return e.finish(tr, failuref(tool, ErrorExecution, "policy evaluation failed: %w", err)), false
		}
		if res.Effect == governance.EffectDeny {
			return e.finish(tr, failure(tool, ErrorValidation, fmt.Errorf("%w: %s", governance.ErrRejected, res.Reason))), false
		}
	}
	if !configured {
		return e.finish(tr, failuref(tool, ErrorUnavailable, "tool %s is not configured", tool)), false
	}
	return Result{}, true
}

func (e *Executor) finish(tr Trace, r Result) Result {
	detail := ""
	switch {
	case r.Err != nil:
		detail = fmt.Sprintf("%s: %v", r.ErrKind, r.Err)
	case r.Plot != nil:
		detail = fmt.Sprintf("%s plot, %d points", r.Plot.Kind, r.Plot.Points)
	case r.Tool == plan.ToolWebSearch:
		detail = fmt.Sprintf("%d results", len(r.Hits))
	default:
		detail = fmt.Sprintf("%d rows", len(r.Rows))
	}
	e.Logger.LogToolResult(tr.ChatID, tr.TaskID, string(r.Tool), r.Success(), detail)
	return r
}
