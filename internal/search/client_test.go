package search_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/search"
)

type scriptedBackend struct {
	calls   atomic.Int32
	errs    []error
	results []models.SearchResult
	block   bool
}

func (b *scriptedBackend) Search(ctx context.Context, q search.Query) ([]models.SearchResult, error) {
	n := int(b.calls.Add(1)) - 1
	if b.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n < len(b.errs) && b.errs[n] != nil {
		return nil, b.errs[n]
	}
	out := make([]models.SearchResult, len(b.results))
	copy(out, b.results)
	return out, nil
}

type countingLimiter struct {
	waits atomic.Int32
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.waits.Add(1)
	return ctx.Err()
}

func fastConfig() search.Config {
	return search.Config{
		Timeout:        time.Second,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func TestSearchAssignsRanks(t *testing.T) {
	backend := &scriptedBackend{results: []models.SearchResult{
		{URL: "https://docs.github.com/rest", SourceRank: 9},
		{URL: "https://docs.github.com/issues", SourceRank: 9},
		{URL: "https://docs.github.com/repos", SourceRank: 9},
	}}
	c := search.NewClient(backend, nil, fastConfig(), nil)

	got, err := c.Search(context.Background(), "github rest", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 0, got[0].SourceRank)
	require.Equal(t, 1, got[1].SourceRank)
}

func TestSearchRetriesTransientFailures(t *testing.T) {
	backend := &scriptedBackend{
		errs:    []error{errors.New("connection reset"), search.ErrUnavailable},
		results: []models.SearchResult{{URL: "https://docs.stripe.com"}},
	}
	limiter := &countingLimiter{}
	c := search.NewClient(backend, limiter, fastConfig(), nil)

	got, err := c.Search(context.Background(), "stripe", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int32(3), backend.calls.Load())
	require.Equal(t, int32(3), limiter.waits.Load())
}

func TestSearchGivesUpAfterRetries(t *testing.T) {
	boom := errors.New("503 service unavailable")
	backend := &scriptedBackend{errs: []error{boom, boom, boom, boom}}
	c := search.NewClient(backend, nil, fastConfig(), nil)

	_, err := c.Search(context.Background(), "stripe", 5)
	require.Error(t, err)
	require.True(t, errors.Is(err, search.ErrUnavailable))
	require.Equal(t, int32(3), backend.calls.Load())
}

func TestSearchQuotaIsNotRetried(t *testing.T) {
	backend := &scriptedBackend{errs: []error{search.ErrQuota}}
	c := search.NewClient(backend, nil, fastConfig(), nil)

	_, err := c.Search(context.Background(), "stripe", 5)
	require.True(t, errors.Is(err, search.ErrQuota))
	require.Equal(t, int32(1), backend.calls.Load())
}

func TestSearchPerCallTimeout(t *testing.T) {
	backend := &scriptedBackend{block: true}
	cfg := fastConfig()
	cfg.Timeout = 10 * time.Millisecond
	cfg.MaxRetries = 1
	c := search.NewClient(backend, nil, cfg, nil)

	start := time.Now()
	_, err := c.Search(context.Background(), "slow", 5)
	require.True(t, errors.Is(err, search.ErrUnavailable))
	require.Equal(t, int32(2), backend.calls.Load())
	require.Less(t, time.Since(start), time.Second)
}

func TestSearchParentCancellation(t *testing.T) {
	backend := &scriptedBackend{block: true}
	c := search.NewClient(backend, nil, fastConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Search(ctx, "slow", 5)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.Equal(t, int32(1), backend.calls.Load())
}

func TestFallback(t *testing.T) {
	primary := &scriptedBackend{errs: []error{search.ErrUnavailable}}
	secondary := &scriptedBackend{results: []models.SearchResult{{URL: "https://archive"}}}

	got, err := search.Fallback{primary, secondary}.Search(context.Background(), search.Query{Text: "x"})
	require.NoError(t, err)
	require.Equal(t, "https://archive", got[0].URL)

	quota := &scriptedBackend{errs: []error{search.ErrQuota}}
	untouched := &scriptedBackend{}
	_, err = search.Fallback{quota, untouched}.Search(context.Background(), search.Query{Text: "x"})
	require.True(t, errors.Is(err, search.ErrQuota))
	require.Equal(t, int32(0), untouched.calls.Load())

	_, err = search.Fallback{}.Search(context.Background(), search.Query{})
	require.True(t, errors.Is(err, search.ErrUnavailable))
}
