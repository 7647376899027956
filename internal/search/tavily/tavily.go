// Package tavily implements search.Backend over the Tavily search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/search"
)

// DefaultEndpoint is the public Tavily search URL.
const DefaultEndpoint = "https://api.tavily.com/search"

// Config holds Tavily request options.
type Config struct {
	APIKey         string
	Endpoint       string
	SearchDepth    string
	IncludeDomains []string
	ExcludeDomains []string
}

// Backend calls Tavily.
type Backend struct {
	cfg    Config
	client *http.Client
}

// New creates a Tavily backend. Timeouts come from the caller's context.
func New(cfg Config, client *http.Client) *Backend {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.SearchDepth == "" {
		cfg.SearchDepth = "advanced"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Backend{cfg: cfg, client: client}
}

type searchRequest struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results,omitempty"`
	SearchDepth    string   `json:"search_depth,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search implements search.Backend.
func (b *Backend) Search(ctx context.Context, q search.Query) ([]models.SearchResult, error) {
	payload, err := json.Marshal(searchRequest{
		Query:          q.Text,
		MaxResults:     q.MaxResults,
		SearchDepth:    b.cfg.SearchDepth,
		IncludeDomains: b.cfg.IncludeDomains,
		ExcludeDomains: b.cfg.ExcludeDomains,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: tavily request: %v", search.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classify(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode tavily response: %v", search.ErrUnavailable, err)
	}

	out := make([]models.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		u := strings.TrimSpace(r.URL)
		if u == "" {
			continue
		}
		out = append(out, models.SearchResult{
			URL:        u,
			Title:      strings.TrimSpace(r.Title),
			Snippet:    strings.TrimSpace(r.Content),
			SourceRank: len(out),
		})
	}
	return out, nil
}

// classify maps Tavily status codes onto the search error taxonomy. Tavily uses
// 432 and 433 for plan and pay-as-you-go limits.
func classify(status int, body string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests, 432, 433:
		return fmt.Errorf("%w: tavily http %d: %s", search.ErrQuota, status, body)
	default:
		return fmt.Errorf("%w: tavily http %d: %s", search.ErrUnavailable, status, body)
	}
}
