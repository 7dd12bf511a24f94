package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rahul/exoscope/internal/governance"
	"github.com/rahul/exoscope/internal/plan"
)

const (
	defaultDisplayLimit = 100
	maxDisplayLimit     = 1000
	plotRowLimit        = 1000
)

// intent is the category a message falls into when the model could not plan it.
type intent int

const (
	intentHelp intent = iota
	intentQuestion
	intentPlot
	intentDisplay
)

// intentTable is checked top to bottom; the first matching row wins.
var intentTable = []struct {
	intent  intent
	pattern *regexp.Regexp
}{
	{intentQuestion, regexp.MustCompile(`\b(what|what's|whats|who|why|how does|explain|define|definition|meaning|means|tell me about|describe)\b`)},
	{intentPlot, regexp.MustCompile(`\b(plot|plots|graph|chart|histogram|hist|scatter|visuali[sz]e|distribution|boxplot|box|pie)\b`)},
	{intentDisplay, regexp.MustCompile(`\b(show|display|list|get|give|fetch|find|top|records|rows|data|table|select)\b`)},
}

// chartKeywords maps explicit chart words to kinds. More than one distinct kind is ambiguous.
var chartKeywords = []struct {
	kind    plan.ChartKind
	pattern *regexp.Regexp
}{
	{plan.ChartHistogram, regexp.MustCompile(`\b(histogram|hist)\b`)},
	{plan.ChartScatter, regexp.MustCompile(`\bscatter\b`)},
	{plan.ChartBox, regexp.MustCompile(`\b(box|boxplot)\b`)},
	{plan.ChartLine, regexp.MustCompile(`\bline\b`)},
	{plan.ChartPie, regexp.MustCompile(`\bpie\b`)},
	{plan.ChartBar, regexp.MustCompile(`\bbar\b`)},
}

var (
	wordPattern  = regexp.MustCompile(`[a-z0-9_]+`)
	topPattern   = regexp.MustCompile(`\btop\s+(\d+)\b`)
	logPattern   = regexp.MustCompile(`\blog(arithmic)?\b`)
	leadPattern  = regexp.MustCompile(`(?:what is|what are|what does|what's|whats|who is|who are|why is|why do|explain|define|definition of|meaning of|tell me about|describe)\s+(?:the\s+|a\s+|an\s+)?(.+?)(?:\s+means?)?\s*[?.!]*$`)
	punctPattern = regexp.MustCompile(`[^a-z0-9_\s-]+`)
)

const helpText = "I can show rows from the selected table (\"show top 10 rows\"), " +
	"plot its columns (\"plot histogram of pl_orbper\") or explain what a column means " +
	"(\"what does pl_rade mean\")."

// FallbackPlanner builds a plan from keywords alone. It is pure: the same message and
// columns always give the same plan.
type FallbackPlanner struct{}

func (FallbackPlanner) Plan(message, table string, columns []string) plan.Plan {
	lower := strings.ToLower(strings.TrimSpace(message))
	mentioned := mentionedColumns(lower, columns)

	var p plan.Plan
	switch classify(lower) {
	case intentQuestion:
		p = questionPlan(lower, mentioned)
	case intentPlot:
		p = plotPlan(lower, table, columns, mentioned)
	case intentDisplay:
		p = displayPlan(lower, table, mentioned)
	default:
		p = plan.Plan{Explanation: helpText}
	}
	p.Fallback = true
	return p
}

func classify(lower string) intent {
	for _, row := range intentTable {
		if row.pattern.MatchString(lower) {
			return row.intent
		}
	}
	return intentHelp
}

// mentionedColumns returns catalog columns named in the message, in message order.
func mentionedColumns(lower string, columns []string) []string {
	known := make(map[string]string, len(columns))
	for _, c := range columns {
		if governance.ValidIdentifier(c) {
			known[strings.ToLower(c)] = c
		}
	}

	var out []string
	seen := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(lower, -1) {
		col, ok := known[w]
		if !ok || seen[col] {
			continue
		}
		seen[col] = true
		out = append(out, col)
	}
	return out
}

func questionPlan(lower string, mentioned []string) plan.Plan {
	term := ""
	switch {
	case len(mentioned) > 0:
		term = mentioned[0]
	default:
		if m := leadPattern.FindStringSubmatch(lower); m != nil {
			term = strings.TrimSpace(punctPattern.ReplaceAllString(m[1], " "))
		}
	}
	if term == "" {
		term = strings.Join(strings.Fields(punctPattern.ReplaceAllString(lower, " ")), " ")
	}
	return plan.Plan{
		Explanation: fmt.Sprintf("Here is what I found about %s.", term),
		Steps:       []plan.Step{plan.WebSearch{Query: term}},
	}
}

func plotPlan(lower, table string, columns, mentioned []string) plan.Plan {
	if len(columns) == 0 {
		return plan.Plan{
			Explanation: fmt.Sprintf("I could not load the columns of %s, so here are its rows instead.", table),
			Steps:       []plan.Step{plan.ExecuteSQL{Query: fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, plotRowLimit)}},
		}
	}

	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, plotRowLimit)
	switch len(mentioned) {
	case 0:
	case 1:
		query = fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL LIMIT %d",
			mentioned[0], table, mentioned[0], plotRowLimit)
	case 2:
		query = fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IS NOT NULL AND %s IS NOT NULL LIMIT %d",
			mentioned[0], mentioned[1], table, mentioned[0], mentioned[1], plotRowLimit)
	default:
		query = fmt.Sprintf("SELECT %s FROM %s LIMIT %d", strings.Join(mentioned, ", "), table, plotRowLimit)
	}

	axes := mentioned
	if len(axes) == 0 {
		axes = columns[:1]
	}
	if len(axes) > 2 {
		axes = axes[:2]
	}

	chart := plan.ChartSpec{Kind: chooseKind(lower, len(axes)), X: axes[0], LogY: logPattern.MatchString(lower)}
	switch chart.Kind {
	case plan.ChartScatter, plan.ChartLine, plan.ChartBar:
		if len(axes) == 2 {
			chart.Y = axes[1]
		}
	}
	if chart.Kind == plan.ChartScatter && chart.Y == "" {
		chart.Kind = plan.ChartHistogram
	}

	label := chart.X
	if chart.Y != "" {
		label = chart.X + " and " + chart.Y
	}
	return plan.Plan{
		Explanation: fmt.Sprintf("Here is a %s of %s from %s.", chart.Kind, label, table),
		Steps: []plan.Step{
			plan.ExecuteSQL{Query: query},
			plan.PlotGraph{Chart: chart},
		},
	}
}

// chooseKind picks exactly one chart kind. Conflicting keywords fall back to a histogram.
func chooseKind(lower string, columns int) plan.ChartKind {
	var found []plan.ChartKind
	for _, k := range chartKeywords {
		if k.pattern.MatchString(lower) {
			found = append(found, k.kind)
		}
	}
	switch {
	case len(found) == 1:
		return found[0]
	case len(found) > 1:
		return plan.ChartHistogram
	case columns == 2:
		return plan.ChartScatter
	}
	return plan.ChartHistogram
}

func displayPlan(lower, table string, mentioned []string) plan.Plan {
	limit := defaultDisplayLimit
	if m := topPattern.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			limit = n
		} else if err != nil {
			limit = maxDisplayLimit
		}
	}
	if limit > maxDisplayLimit {
		limit = maxDisplayLimit
	}

	projection := "*"
	if len(mentioned) > 0 {
		projection = strings.Join(mentioned, ", ")
	}
	return plan.Plan{
		Explanation: fmt.Sprintf("Here are up to %d rows from %s.", limit, table),
		Steps:       []plan.Step{plan.ExecuteSQL{Query: fmt.Sprintf("SELECT %s FROM %s LIMIT %d", projection, table, limit)}},
	}
}
