package tools

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rahul/exoscope/internal/plan"
)

const (
	DefaultMaxResults   = 8
	DefaultSnippetChars = 200
	maxQueryLength      = 200
	enrichBelow         = 80
	maxEnriched         = 2
)

var unsafeQueryChars = regexp.MustCompile(`[<>"';\\]`)

// Hit is one search result.
type Hit struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Source  string `json:"source"`
}

// Backend is one independent search source. Remote backends are rate limited through
// the search tool's lease; local ones are not.
type Backend interface {
	Name() string
	Remote() bool
	Search(ctx context.Context, query, hint string) ([]Hit, error)
}

// SearchTool fans a query out to its backends in order and summarizes what they return.
type SearchTool struct {
	backends     []Backend
	lease        *Lease
	enricher     *Enricher
	MaxResults   int
	SnippetChars int
}

func NewSearchTool(lease *Lease, backends ...Backend) *SearchTool {
	if lease == nil {
		lease = NewLease(DefaultSearchInterval)
	}
	return &SearchTool{
		backends:     backends,
		lease:        lease,
		MaxResults:   DefaultMaxResults,
		SnippetChars: DefaultSnippetChars,
	}
}

// WithEnricher fills in short snippets of remote hits from the linked pages.
func (s *SearchTool) WithEnricher(e *Enricher) *SearchTool {
	s.enricher = e
	return s
}

// SanitizeQuery strips characters that have no business in a search term, caps its length
// and collapses whitespace.
func SanitizeQuery(q string) string {
	q = unsafeQueryChars.ReplaceAllString(q, "")
	if utf8.RuneCountInString(q) > maxQueryLength {
		q = string([]rune(q)[:maxQueryLength])
	}
	return strings.Join(strings.Fields(q), " ")
}

func (s *SearchTool) Execute(ctx context.Context, query, hint string) Result {
	q := SanitizeQuery(query)
	if countNonSpace(q) < 2 {
		return failuref(plan.ToolWebSearch, ErrorValidation, "search query %q is too short", query)
	}
	if len(s.backends) == 0 {
		return failuref(plan.ToolWebSearch, ErrorUnavailable, "no search backends are configured")
	}

	var hits []Hit
	for _, b := range s.backends {
		if len(hits) >= s.MaxResults {
			break
		}
		if b.Remote() {
			if err := s.lease.Acquire(ctx); err != nil {
				return failuref(plan.ToolWebSearch, ErrorExecution, "search cancelled: %w", err)
			}
		}
		found, err := b.Search(ctx, q, hint)
		if err != nil {
			log.Printf("search backend %s failed: %v", b.Name(), err)
			continue
		}
		hits = append(hits, found...)
	}
	if len(hits) > s.MaxResults {
		hits = hits[:s.MaxResults]
	}
	if len(hits) == 0 {
		return failuref(plan.ToolWebSearch, ErrorExecution, "no relevant information found for %q", q)
	}

	if s.enricher != nil {
		s.enrich(ctx, hits)
	}

	return Result{
		Tool:    plan.ToolWebSearch,
		Hits:    hits,
		Summary: Summarize(hits, s.SnippetChars),
	}
}

func (s *SearchTool) enrich(ctx context.Context, hits []Hit) {
	done := 0
	for i := range hits {
		if done >= maxEnriched {
			return
		}
		h := hits[i]
		if len(h.Snippet) >= enrichBelow || !strings.HasPrefix(h.URL, "http") {
			continue
		}
		if err := s.lease.Acquire(ctx); err != nil {
			return
		}
		done++
		excerpt, err := s.enricher.Excerpt(ctx, h.URL)
		if err != nil {
			log.Printf("enrich %s failed: %v", h.URL, err)
			continue
		}
		if len(excerpt) > len(h.Snippet) {
			hits[i].Snippet = excerpt
		}
	}
}

// Summarize groups hits by source in first-seen order and keeps each source's first
// non-empty snippet, truncated to limit runes.
func Summarize(hits []Hit, limit int) string {
	var order []string
	best := make(map[string]string)
	for _, h := range hits {
		if _, seen := best[h.Source]; !seen {
			order = append(order, h.Source)
			best[h.Source] = ""
		}
		if best[h.Source] == "" {
			best[h.Source] = strings.TrimSpace(h.Snippet)
		}
	}

	var parts []string
	for _, src := range order {
		snippet := best[src]
		if snippet == "" {
			continue
		}
		if utf8.RuneCountInString(snippet) > limit {
			snippet = string([]rune(snippet)[:limit]) + "..."
		}
		parts = append(parts, fmt.Sprintf("**%s**: %s", src, snippet))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Found %d results but no detailed information available.", len(hits))
	}
	return strings.Join(parts, "\n\n")
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
