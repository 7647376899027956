package fetch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/docs-radar/backend/internal/models"
)

// URLFetcher retrieves a single document.
type URLFetcher interface {
	Fetch(ctx context.Context, url string) models.FetchedDocument
}

// Batch fans out fetches over the results with at most concurrency in flight and
// returns one document per result in input order. Results not yet started when
// ctx ends are recorded as timeouts; the call never waits on anything but the
// fetchers themselves.
func Batch(ctx context.Context, f URLFetcher, results []models.SearchResult, concurrency int) []models.FetchedDocument {
	out := make([]models.FetchedDocument, len(results))
	if len(results) == 0 {
		return out
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, r := range results {
		g.Go(func() error {
			var doc models.FetchedDocument
			if err := ctx.Err(); err != nil {
				doc = models.FetchedDocument{
					URL:       r.URL,
					Status:    models.FetchTimeout,
					FetchedAt: time.Now().UTC(),
					Err:       err.Error(),
				}
			} else {
				doc = f.Fetch(ctx, r.URL)
			}
			doc.URL = r.URL
			doc.SourceRank = r.SourceRank
			out[i] = doc
			return nil
		})
	}

	_ = g.Wait()
	return out
}
