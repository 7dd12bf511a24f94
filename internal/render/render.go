// Package render turns validated chart specifications into artifacts a client can display.
package render

import (
	"context"
	"encoding/json"

	"github.com/rahul/exoscope/internal/plan"
)

// Artifact kinds.
const (
	KindPlotly = "plotly"
	KindPNG    = "png"
)

// Artifact is a rendered chart: a Plotly figure, an embeddable HTML fragment and, when a
// snapshot renderer is used, the path of a PNG image.
type Artifact struct {
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Figure    json.RawMessage `json:"figure"`
	HTML      string          `json:"html,omitempty"`
	ImagePath string          `json:"image_path,omitempty"`
	Points    int             `json:"points"`
}

// Frame is column-oriented table data. Numeric columns hold float64 or nil; other columns
// hold strings or nil.
type Frame struct {
	Columns []string
	Values  map[string][]any
	Numeric map[string]bool
	Len     int
}

// Has reports whether the frame carries column.
func (f Frame) Has(column string) bool {
	_, ok := f.Values[column]
	return ok
}

// Renderer produces an artifact for spec from frame.
type Renderer interface {
	Render(ctx context.Context, spec plan.ChartSpec, frame Frame) (*Artifact, error)
}
