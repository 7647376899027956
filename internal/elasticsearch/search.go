package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/processing"
	"github.com/DeafMist/docs-radar/backend/internal/search"
)

const (
	defaultArchiveResults = 10
	maxArchiveResults     = 100
	snippetRunes          = 300
)

// Search implements search.Backend over the archive. Pages are matched on
// title and text, best score first.
func (c *Client) Search(ctx context.Context, q search.Query) ([]models.SearchResult, error) {
	size := q.MaxResults
	if size <= 0 {
		size = defaultArchiveResults
	}
	if size > maxArchiveResults {
		size = maxArchiveResults
	}

	body := map[string]any{
		"size": size,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q.Text,
				"fields": []string{"title^2", "text"},
			},
		},
		"_source": []string{"url", "title", "text"},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: archive search: %v", search.ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		cause := fmt.Errorf("archive search failed: %s", strings.TrimSpace(string(data)))
		if res.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", search.ErrQuota, cause)
		}
		return nil, fmt.Errorf("%w: %v", search.ErrUnavailable, cause)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.ArchivedDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", search.ErrUnavailable, err)
	}

	results := make([]models.SearchResult, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		if hit.Source.URL == "" {
			continue
		}
		results = append(results, models.SearchResult{
			URL:     hit.Source.URL,
			Title:   hit.Source.Title,
			Snippet: processing.TruncateAtSentence(hit.Source.Text, snippetRunes),
		})
	}
	return results, nil
}
