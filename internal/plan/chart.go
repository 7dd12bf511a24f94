package plan

// ChartKind is one of the declarative chart constructors a plot step may use.
type ChartKind string

const (
	ChartHistogram ChartKind = "histogram"
	ChartScatter   ChartKind = "scatter"
	ChartBox       ChartKind = "box"
	ChartLine      ChartKind = "line"
	ChartPie       ChartKind = "pie"
	ChartBar       ChartKind = "bar"
)

// ChartKinds lists every supported kind.
var ChartKinds = []ChartKind{ChartHistogram, ChartScatter, ChartBox, ChartLine, ChartPie, ChartBar}

// ChartSpec describes a chart by kind and column references. It replaces free-form plotting code.
type ChartSpec struct {
	Kind  ChartKind `json:"kind"`
	X     string    `json:"x"`
	Y     string    `json:"y,omitempty"`
	LogY  bool      `json:"log_y,omitempty"`
	Title string    `json:"title,omitempty"`
	Bins  int       `json:"bins,omitempty"`
}

// Columns returns the column names the chart reads.
func (c ChartSpec) Columns() []string {
	if c.Y == "" {
		return []string{c.X}
	}
	return []string{c.X, c.Y}
}
