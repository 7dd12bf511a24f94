package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

const (
	DefaultWikipediaURL = "https://en.wikipedia.org/api/rest_v1/page/summary/"
	searchUserAgent     = "exoscope-research-bot/1.0"
)

// WikipediaBackend reads the page summary for the query from the Wikipedia REST API.
type WikipediaBackend struct {
	BaseURL string
	client  *http.Client
	policy  *bluemonday.Policy
}

func NewWikipediaBackend(timeout time.Duration) *WikipediaBackend {
	return &WikipediaBackend{
		BaseURL: DefaultWikipediaURL,
		client:  &http.Client{Timeout: timeout},
		policy:  bluemonday.StrictPolicy(),
	}
}

func (w *WikipediaBackend) Name() string { return "Wikipedia" }
func (w *WikipediaBackend) Remote() bool { return true }

func (w *WikipediaBackend) Search(ctx context.Context, query, hint string) ([]Hit, error) {
	page := url.PathEscape(strings.ReplaceAll(query, " ", "_"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.BaseURL+page, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch summary: status code %d", resp.StatusCode)
	}

	var summary struct {
		Type        string `json:"type"`
		Title       string `json:"title"`
		Extract     string `json:"extract"`
		ContentURLs struct {
			Desktop struct {
				Page string `json:"page"`
			} `json:"desktop"`
		} `json:"content_urls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	if summary.Type == "disambiguation" || summary.Extract == "" {
		return nil, nil
	}

	return []Hit{{
		Title:   w.policy.Sanitize(summary.Title),
		Snippet: w.policy.Sanitize(summary.Extract),
		URL:     summary.ContentURLs.Desktop.Page,
		Source:  w.Name(),
	}}, nil
}
