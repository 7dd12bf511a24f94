package governance

import (
	"errors"
	"testing"

	"github.com/rahul/exoscope/internal/plan"
)

var testColumns = []string{"pl_name", "pl_orbper", "pl_rade", "st_teff"}

func TestChartGuard_Normalizes(t *testing.T) {
	g := NewChartGuard()
	spec, err := g.Validate(plan.ChartSpec{Kind: "Histogram", X: "PL_ORBPER", LogY: true}, testColumns)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if spec.Kind != plan.ChartHistogram || spec.X != "pl_orbper" {
		t.Errorf("unexpected normalized spec: %+v", spec)
	}
	if spec.Bins != DefaultBins {
		t.Errorf("expected default bins %d, got %d", DefaultBins, spec.Bins)
	}
	if !spec.LogY {
		t.Error("log scale should be preserved for histograms")
	}

	pie, err := g.Validate(plan.ChartSpec{Kind: plan.ChartPie, X: "pl_name", LogY: true}, testColumns)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if pie.LogY {
		t.Error("pie charts never carry a log axis")
	}
}

func TestChartGuard_Rejects(t *testing.T) {
	g := NewChartGuard()
	cases := []struct {
		name string
		spec plan.ChartSpec
		rule string
	}{
		{"unknown kind", plan.ChartSpec{Kind: "heatmap", X: "pl_rade"}, RuleChartKind},
		{"code injection", plan.ChartSpec{Kind: plan.ChartBox, X: "__import__('os')"}, RuleDenylist},
		{"title script", plan.ChartSpec{Kind: plan.ChartBox, X: "pl_rade", Title: "<script>alert(1)</script>"}, RuleDenylist},
		{"bad identifier", plan.ChartSpec{Kind: plan.ChartBox, X: "pl_rade) or (1"}, RuleIdentifier},
		{"unknown column", plan.ChartSpec{Kind: plan.ChartBox, X: "password"}, RuleCatalog},
		{"scatter needs y", plan.ChartSpec{Kind: plan.ChartScatter, X: "pl_rade"}, RuleChartShape},
		{"box takes one column", plan.ChartSpec{Kind: plan.ChartBox, X: "pl_rade", Y: "st_teff"}, RuleChartShape},
		{"negative bins", plan.ChartSpec{Kind: plan.ChartHistogram, X: "pl_rade", Bins: -1}, RuleChartShape},
	}

	for _, tc := range cases {
		_, err := g.Validate(tc.spec, testColumns)
		var rej *Rejection
		if !errors.As(err, &rej) {
			t.Errorf("%s: expected rejection, got %v", tc.name, err)
			continue
		}
		if rej.Rule != tc.rule {
			t.Errorf("%s: expected rule %s, got %s (%s)", tc.name, tc.rule, rej.Rule, rej.Reason)
		}
	}
}

func TestChartGuard_EmptyCatalogRejectsEverything(t *testing.T) {
	g := NewChartGuard()
	if _, err := g.Validate(plan.ChartSpec{Kind: plan.ChartHistogram, X: "pl_rade"}, nil); err == nil {
		t.Error("expected rejection with no catalog")
	}
}
