package governance

import (
	"context"
	"regexp"
	"strings"

	"github.com/rahul/exoscope/internal/plan"
)

const (
	RuleChartKind  = "chart_kind"
	RuleIdentifier = "identifier"
	RuleCatalog    = "catalog"
	RuleChartShape = "chart_shape"
)

const (
	DefaultBins    = 30
	maxBins        = 200
	maxTitleLength = 120
)

// DeniedChartTokens cover file, process and system access, reflection and dynamic loading.
var DeniedChartTokens = []string{
	"import", "__", "exec", "eval", "compile(", "open(", "subprocess", "os.", "sys.",
	"system(", "getattr", "setattr", "globals", "locals", "lambda", "require(", "process.",
	"<script", "javascript:", "file:", "`", "${",
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ChartGuard validates chart specifications against the active column catalog.
type ChartGuard struct {
	deny  *DefaultPolicyEngine
	kinds map[plan.ChartKind]bool
}

func NewChartGuard() *ChartGuard {
	g := &ChartGuard{
		deny:  NewDefaultPolicyEngine(),
		kinds: make(map[plan.ChartKind]bool, len(plan.ChartKinds)),
	}
	for _, k := range plan.ChartKinds {
		g.kinds[k] = true
	}
	g.deny.DenySubstrings(DeniedChartTokens...)
	return g
}

// ValidIdentifier reports whether name is safe to place in generated SQL or chart specs.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Validate checks spec and returns it normalized: kind lower-cased, columns spelled as in
// the catalog, bins defaulted and clamped.
func (g *ChartGuard) Validate(spec plan.ChartSpec, columns []string) (plan.ChartSpec, error) {
	spec.Kind = plan.ChartKind(strings.ToLower(strings.TrimSpace(string(spec.Kind))))
	if !g.kinds[spec.Kind] {
		return plan.ChartSpec{}, reject(RuleChartKind, "unsupported chart kind %q", spec.Kind)
	}

	text := strings.Join([]string{spec.X, spec.Y, spec.Title}, "\n")
	res, _ := g.deny.Evaluate(context.Background(), Request{Tool: "plot_graph", Arguments: text})
	if res.Effect == EffectDeny {
		return plan.ChartSpec{}, reject(RuleDenylist, "chart contains forbidden token %q", res.Match)
	}

	known := make(map[string]string, len(columns))
	for _, c := range columns {
		known[strings.ToLower(c)] = c
	}
	resolve := func(name string) (string, error) {
		if !ValidIdentifier(name) {
			return "", reject(RuleIdentifier, "column %q is not a valid identifier", name)
		}
		canonical, ok := known[strings.ToLower(name)]
		if !ok {
			return "", reject(RuleCatalog, "column %q is not in the catalog", name)
		}
		return canonical, nil
	}

	var err error
	if spec.X, err = resolve(spec.X); err != nil {
		return plan.ChartSpec{}, err
	}
	if spec.Y != "" {
		if spec.Y, err = resolve(spec.Y); err != nil {
			return plan.ChartSpec{}, err
		}
	}

	switch spec.Kind {
	case plan.ChartScatter:
		if spec.Y == "" {
			return plan.ChartSpec{}, reject(RuleChartShape, "scatter needs both x and y")
		}
	case plan.ChartHistogram, plan.ChartBox, plan.ChartPie:
		if spec.Y != "" {
			return plan.ChartSpec{}, reject(RuleChartShape, "%s takes a single column", spec.Kind)
		}
	}
	if spec.Kind == plan.ChartPie {
		spec.LogY = false
	}

	if spec.Bins < 0 {
		return plan.ChartSpec{}, reject(RuleChartShape, "bins must be positive")
	}
	if spec.Kind == plan.ChartHistogram {
		if spec.Bins == 0 {
			spec.Bins = DefaultBins
		}
		if spec.Bins > maxBins {
			spec.Bins = maxBins
		}
	} else {
		spec.Bins = 0
	}

	spec.Title = strings.TrimSpace(spec.Title)
	if len(spec.Title) > maxTitleLength {
		spec.Title = spec.Title[:maxTitleLength]
	}
	return spec, nil
}
