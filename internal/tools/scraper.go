package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const excerptChars = 600

// Enricher fetches a result page and extracts a readable excerpt from it.
type Enricher struct {
	UserAgent string
	client    *http.Client
	policy    *bluemonday.Policy
}

func NewEnricher(timeout time.Duration) *Enricher {
	return &Enricher{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		client:    &http.Client{Timeout: timeout},
		policy:    bluemonday.StrictPolicy(),
	}
}

// Excerpt returns the article excerpt of the page at rawURL, or the start of its text when
// the page has no excerpt.
func (e *Enricher) Excerpt(ctx context.Context, rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", e.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse article: %w", err)
	}

	text := article.Excerpt
	if strings.TrimSpace(text) == "" {
		text = article.TextContent
	}
	text = strings.Join(strings.Fields(e.policy.Sanitize(text)), " ")
	if r := []rune(text); len(r) > excerptChars {
		text = string(r[:excerptChars])
	}
	return text, nil
}
