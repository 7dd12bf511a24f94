package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/rahul/exoscope/internal/plan"
)

const DefaultPlotlyScript = "https://cdn.plot.ly/plotly-2.35.2.min.js"

var embedTemplate = template.Must(template.New("plot").Parse(
	`<div id="{{.ID}}" class="exoscope-plot"></div>
<script src="{{.Script}}"></script>
<script>(function(){var fig={{.Figure}};Plotly.newPlot({{.ID}},fig.data,fig.layout,{responsive:true});})();</script>`))

// PlotlyRenderer builds Plotly figure JSON plus an embeddable HTML fragment.
type PlotlyRenderer struct {
	ScriptURL string
}

func NewPlotlyRenderer() *PlotlyRenderer {
	return &PlotlyRenderer{ScriptURL: DefaultPlotlyScript}
}

func (r *PlotlyRenderer) Render(ctx context.Context, spec plan.ChartSpec, frame Frame) (*Artifact, error) {
	fig, points, err := BuildFigure(spec, frame)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(fig)
	if err != nil {
		return nil, fmt.Errorf("encode figure: %w", err)
	}

	var buf bytes.Buffer
	err = embedTemplate.Execute(&buf, struct {
		ID     string
		Script string
		Figure template.JS
	}{
		ID:     "plot-" + uuid.NewString(),
		Script: r.ScriptURL,
		Figure: template.JS(raw),
	})
	if err != nil {
		return nil, fmt.Errorf("render embed: %w", err)
	}

	return &Artifact{
		Kind:   KindPlotly,
		Title:  titleFor(spec),
		Figure: raw,
		HTML:   buf.String(),
		Points: points,
	}, nil
}

// BuildFigure returns the Plotly figure for spec and the number of plotted points.
func BuildFigure(spec plan.ChartSpec, frame Frame) (map[string]any, int, error) {
	for _, col := range spec.Columns() {
		if !frame.Has(col) {
			return nil, 0, fmt.Errorf("column %q is not present in the query result", col)
		}
	}

	var (
		trace  map[string]any
		points int
		xTitle = spec.X
		yTitle = "count"
	)

	switch spec.Kind {
	case plan.ChartHistogram:
		xs := nonNil(frame.Values[spec.X])
		trace = map[string]any{"type": "histogram", "x": xs, "nbinsx": spec.Bins}
		points = len(xs)

	case plan.ChartScatter:
		xs, ys := pairs(frame.Values[spec.X], frame.Values[spec.Y])
		trace = map[string]any{"type": "scatter", "mode": "markers", "x": xs, "y": ys}
		points = len(xs)
		yTitle = spec.Y

	case plan.ChartBox:
		if !frame.Numeric[spec.X] {
			return nil, 0, fmt.Errorf("column %q is not numeric", spec.X)
		}
		ys := nonNil(frame.Values[spec.X])
		trace = map[string]any{"type": "box", "y": ys, "name": spec.X}
		points = len(ys)
		xTitle, yTitle = "", spec.X

	case plan.ChartLine:
		if spec.Y == "" {
			if !frame.Numeric[spec.X] {
				return nil, 0, fmt.Errorf("column %q is not numeric", spec.X)
			}
			ys := nonNil(frame.Values[spec.X])
			xs := make([]any, len(ys))
			for i := range xs {
				xs[i] = i
			}
			trace = map[string]any{"type": "scatter", "mode": "lines", "x": xs, "y": ys}
			points = len(ys)
			xTitle, yTitle = "row", spec.X
		} else {
			if !frame.Numeric[spec.Y] {
				return nil, 0, fmt.Errorf("column %q is not numeric", spec.Y)
			}
			xs, ys := pairs(frame.Values[spec.X], frame.Values[spec.Y])
			trace = map[string]any{"type": "scatter", "mode": "lines", "x": xs, "y": ys}
			points = len(xs)
			yTitle = spec.Y
		}

	case plan.ChartPie:
		labels, values := countBy(frame.Values[spec.X])
		trace = map[string]any{"type": "pie", "labels": labels, "values": values}
		points = len(labels)

	case plan.ChartBar:
		if spec.Y == "" {
			labels, values := countBy(frame.Values[spec.X])
			trace = map[string]any{"type": "bar", "x": labels, "y": values}
			points = len(labels)
		} else {
			if !frame.Numeric[spec.Y] {
				return nil, 0, fmt.Errorf("column %q is not numeric", spec.Y)
			}
			labels, values := sumBy(frame.Values[spec.X], frame.Values[spec.Y])
			trace = map[string]any{"type": "bar", "x": labels, "y": values}
			points = len(labels)
			yTitle = spec.Y
		}

	default:
		return nil, 0, fmt.Errorf("unsupported chart kind %q", spec.Kind)
	}

	if points == 0 {
		return nil, 0, fmt.Errorf("no values to plot for %q", spec.X)
	}

	layout := map[string]any{
		"title": map[string]any{"text": titleFor(spec)},
	}
	if spec.Kind != plan.ChartPie {
		yaxis := map[string]any{"title": map[string]any{"text": yTitle}}
		if spec.LogY {
			yaxis["type"] = "log"
		}
		layout["xaxis"] = map[string]any{"title": map[string]any{"text": xTitle}}
		layout["yaxis"] = yaxis
	}

	return map[string]any{"data": []any{trace}, "layout": layout}, points, nil
}

func titleFor(spec plan.ChartSpec) string {
	if spec.Title != "" {
		return spec.Title
	}
	switch spec.Kind {
	case plan.ChartHistogram:
		return "Histogram of " + spec.X
	case plan.ChartScatter:
		return spec.Y + " vs " + spec.X
	case plan.ChartBox:
		return "Box plot of " + spec.X
	case plan.ChartLine:
		if spec.Y != "" {
			return spec.Y + " over " + spec.X
		}
		return spec.X
	case plan.ChartPie:
		return "Share of " + spec.X
	case plan.ChartBar:
		if spec.Y != "" {
			return spec.Y + " by " + spec.X
		}
		return "Counts of " + spec.X
	}
	return spec.X
}

func nonNil(vals []any) []any {
	out := make([]any, 0, len(vals))
	for _, v := range vals {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

func pairs(xs, ys []any) ([]any, []any) {
	var outX, outY []any
	for i := range xs {
		if i >= len(ys) || xs[i] == nil || ys[i] == nil {
			continue
		}
		outX = append(outX, xs[i])
		outY = append(outY, ys[i])
	}
	return outX, outY
}

func label(v any) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// countBy counts occurrences per label, largest first, ties broken by label.
func countBy(vals []any) ([]string, []int) {
	counts := make(map[string]int)
	for _, v := range vals {
		if v == nil {
			continue
		}
		counts[label(v)]++
	}

	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if counts[labels[i]] != counts[labels[j]] {
			return counts[labels[i]] > counts[labels[j]]
		}
		return labels[i] < labels[j]
	})

	values := make([]int, len(labels))
	for i, l := range labels {
		values[i] = counts[l]
	}
	return labels, values
}

// sumBy sums ys per x label in first-seen order.
func sumBy(xs, ys []any) ([]string, []float64) {
	var labels []string
	sums := make(map[string]float64)
	for i := range xs {
		if i >= len(ys) || xs[i] == nil || ys[i] == nil {
			continue
		}
		y, ok := ys[i].(float64)
		if !ok {
			continue
		}
		l := label(xs[i])
		if _, seen := sums[l]; !seen {
			labels = append(labels, l)
		}
		sums[l] += y
	}

	values := make([]float64, len(labels))
	for i, l := range labels {
		values[i] = sums[l]
	}
	return labels, values
}
