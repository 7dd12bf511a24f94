package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rahul/exoscope/internal/governance"
	"github.com/rahul/exoscope/internal/plan"
	"github.com/rahul/exoscope/internal/render"
	"github.com/rahul/exoscope/internal/store"
)

// PlotTool validates a chart against the column catalog, coerces the rows into a frame and
// renders it.
type PlotTool struct {
	guard    *governance.ChartGuard
	renderer render.Renderer
}

func NewPlotTool(guard *governance.ChartGuard, renderer render.Renderer) *PlotTool {
	return &PlotTool{guard: guard, renderer: renderer}
}

func (t *PlotTool) Execute(ctx context.Context, spec plan.ChartSpec, catalog []string, rs store.ResultSet) Result {
	clean, err := t.guard.Validate(spec, catalog)
	if err != nil {
		return failure(plan.ToolPlotGraph, ErrorValidation, err)
	}
	if rs.Len() == 0 {
		return failuref(plan.ToolPlotGraph, ErrorValidation, "no data to plot")
	}
	if t.renderer == nil {
		return failuref(plan.ToolPlotGraph, ErrorUnavailable, "plot rendering is not configured")
	}

	art, err := t.renderer.Render(ctx, clean, BuildFrame(rs))
	if err != nil {
		return failuref(plan.ToolPlotGraph, ErrorExecution, "render failed: %w", err)
	}
	if art == nil {
		return failure(plan.ToolPlotGraph, ErrorExecution, errors.New("renderer produced no figure"))
	}
	return Result{
		Tool:    plan.ToolPlotGraph,
		Columns: rs.Columns,
		Plot:    art,
	}
}

// BuildFrame pivots rows into columns. A column whose non-null values all parse as numbers
// becomes numeric (float64); any other column keeps its values as text. NaN and infinities
// count as missing values.
func BuildFrame(rs store.ResultSet) render.Frame {
	f := render.Frame{
		Columns: rs.Columns,
		Values:  make(map[string][]any, len(rs.Columns)),
		Numeric: make(map[string]bool, len(rs.Columns)),
		Len:     rs.Len(),
	}

	for _, col := range rs.Columns {
		nums := make([]any, rs.Len())
		numeric := true
		for i, row := range rs.Rows {
			v := row[col]
			if v == nil {
				continue
			}
			n, ok := toFloat(v)
			if !ok {
				numeric = false
				break
			}
			if math.IsNaN(n) || math.IsInf(n, 0) {
				continue
			}
			nums[i] = n
		}

		if numeric {
			f.Values[col] = nums
			f.Numeric[col] = true
			continue
		}

		text := make([]any, rs.Len())
		for i, row := range rs.Rows {
			if v := row[col]; v != nil {
				text[i] = fmt.Sprint(v)
			}
		}
		f.Values[col] = text
	}
	return f
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
