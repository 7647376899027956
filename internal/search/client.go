// Package search issues documentation queries against a search backend with
// per-call timeouts, shared rate limiting and bounded retries.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/ratelimit"
)

var (
	// ErrUnavailable marks transient backend failures. The client retries them
	// and wraps the last one in this error once retries are exhausted.
	ErrUnavailable = errors.New("search unavailable")
	// ErrQuota marks an exhausted or refused account quota. It is never retried.
	ErrQuota = errors.New("search quota exceeded")
)

// Query is one backend request.
type Query struct {
	Text       string
	MaxResults int
}

// Backend performs a single search call.
type Backend interface {
	Search(ctx context.Context, q Query) ([]models.SearchResult, error)
}

// Config bounds how long and how often the client tries.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client wraps a Backend with retries and the shared outbound limiter.
type Client struct {
	backend Backend
	limiter ratelimit.Limiter
	cfg     Config
	log     *slog.Logger
}

// NewClient builds a Client. A nil limiter disables rate limiting.
func NewClient(backend Backend, limiter ratelimit.Limiter, cfg Config, logger *slog.Logger) *Client {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{backend: backend, limiter: limiter, cfg: cfg, log: logger}
}

// Search runs query and returns results in backend order with SourceRank set
// to their position. The result may be empty.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	q := Query{Text: query, MaxResults: maxResults}
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		results, err := c.attempt(ctx, q)
		if err == nil {
			for i := range results {
				results[i].SourceRank = i
			}
			if maxResults > 0 && len(results) > maxResults {
				results = results[:maxResults]
			}
			return results, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrQuota) {
			return nil, err
		}
		lastErr = err

		if attempt == c.cfg.MaxRetries {
			break
		}

		backoff := c.backoff(attempt)
		c.log.Warn("search attempt failed, retrying",
			slog.String("query", query),
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if errors.Is(lastErr, ErrUnavailable) {
		return nil, fmt.Errorf("search %q after %d attempts: %w", query, c.cfg.MaxRetries+1, lastErr)
	}
	return nil, fmt.Errorf("%w: search %q after %d attempts: %v", ErrUnavailable, query, c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) attempt(ctx context.Context, q Query) ([]models.SearchResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	return c.backend.Search(callCtx, q)
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.InitialBackoff << uint(attempt)
	if d <= 0 || d > c.cfg.MaxBackoff {
		return c.cfg.MaxBackoff
	}
	return d
}
