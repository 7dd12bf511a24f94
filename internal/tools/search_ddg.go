package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// textSearcher is the langchaingo tool call signature.
type textSearcher interface {
	Call(ctx context.Context, input string) (string, error)
}

// DuckDuckGoBackend searches DuckDuckGo through langchaingo and parses its text output.
type DuckDuckGoBackend struct {
	client textSearcher
	policy *bluemonday.Policy
}

func NewDuckDuckGoBackend(maxResults int) (*DuckDuckGoBackend, error) {
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &DuckDuckGoBackend{client: ddg, policy: bluemonday.StrictPolicy()}, nil
}

func (d *DuckDuckGoBackend) Name() string { return "DuckDuckGo" }
func (d *DuckDuckGoBackend) Remote() bool { return true }

// Search appends hint to the query so bare column names are looked up in context.
func (d *DuckDuckGoBackend) Search(ctx context.Context, query, hint string) ([]Hit, error) {
	q := query
	if hint != "" {
		q = query + " " + hint
	}
	res, err := d.client.Call(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := parseDuckDuckGo(res)
	for i := range hits {
		hits[i].Title = d.policy.Sanitize(hits[i].Title)
		hits[i].Snippet = d.policy.Sanitize(hits[i].Snippet)
		hits[i].Source = d.Name()
	}
	return hits, nil
}

// parseDuckDuckGo reads the "Title:/Description:/URL:" blocks langchaingo emits.
func parseDuckDuckGo(text string) []Hit {
	var (
		hits []Hit
		cur  Hit
	)
	flush := func() {
		if cur.Title != "" || cur.Snippet != "" {
			hits = append(hits, cur)
		}
		cur = Hit{}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Title:"):
			flush()
			cur.Title = strings.TrimSpace(strings.TrimPrefix(line, "Title:"))
		case strings.HasPrefix(line, "Description:"):
			cur.Snippet = strings.TrimSpace(strings.TrimPrefix(line, "Description:"))
		case strings.HasPrefix(line, "URL:"):
			cur.URL = strings.TrimSpace(strings.TrimPrefix(line, "URL:"))
		}
	}
	flush()
	return hits
}
