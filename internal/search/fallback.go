package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/DeafMist/docs-radar/backend/internal/models"
)

// Fallback tries each backend in order until one answers. A quota error from
// any backend stops the chain.
type Fallback []Backend

// Search implements Backend.
func (f Fallback) Search(ctx context.Context, q Query) ([]models.SearchResult, error) {
	if len(f) == 0 {
		return nil, fmt.Errorf("%w: no backends configured", ErrUnavailable)
	}

	var errs []error
	for _, b := range f {
		results, err := b.Search(ctx, q)
		if err == nil {
			return results, nil
		}
		if errors.Is(err, ErrQuota) || ctx.Err() != nil {
			return nil, err
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}
