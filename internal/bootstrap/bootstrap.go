// Package bootstrap wires configuration into the services shared by the
// api and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/DeafMist/docs-radar/backend/internal/assemble"
	"github.com/DeafMist/docs-radar/backend/internal/config"
	"github.com/DeafMist/docs-radar/backend/internal/elasticsearch"
	"github.com/DeafMist/docs-radar/backend/internal/fetch"
	"github.com/DeafMist/docs-radar/backend/internal/generate"
	"github.com/DeafMist/docs-radar/backend/internal/parse"
	"github.com/DeafMist/docs-radar/backend/internal/pipeline"
	"github.com/DeafMist/docs-radar/backend/internal/rank"
	"github.com/DeafMist/docs-radar/backend/internal/ratelimit"
	"github.com/DeafMist/docs-radar/backend/internal/search"
	"github.com/DeafMist/docs-radar/backend/internal/search/tavily"
)

const (
	connectAttempts = 10
	connectDelay    = 2 * time.Second
	connectMaxDelay = 30 * time.Second
)

// ConnectElasticsearch creates the archive client and waits for the cluster to
// answer a ping, backing off between attempts.
func ConnectElasticsearch(ctx context.Context, cfg config.Common, log *slog.Logger) (*elasticsearch.Client, error) {
	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		return nil, err
	}

	delay := connectDelay
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr := esClient.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			log.Info("connected to elasticsearch", slog.String("index", esClient.Index()))
			return esClient, nil
		}
		if attempt == connectAttempts {
			return nil, fmt.Errorf("connect elasticsearch after %d attempts: %w", attempt, pingErr)
		}

		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", pingErr),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", connectAttempts),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
		if delay > connectMaxDelay {
			delay = connectMaxDelay
		}
	}
}

// Services holds what a binary needs to serve integration requests.
type Services struct {
	Pipeline *pipeline.Pipeline
	Archive  *elasticsearch.Client
	Limiter  ratelimit.Limiter
	Detector pipeline.TypeDetector
}

// NewServices builds the pipeline. archive may be nil when the archive is
// disabled and the tavily backend is used. withGeneration attaches an
// Anthropic generator sharing the search rate limiter. With an API key and
// DetectType set, the same client infers missing integration types.
func NewServices(cfg config.Pipeline, gen config.Generation, withGeneration bool, archive *elasticsearch.Client, log *slog.Logger) (*Services, error) {
	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst)

	backend, err := searchBackend(cfg, archive)
	if err != nil {
		return nil, err
	}

	searcher := search.NewClient(backend, limiter, search.Config{
		Timeout:        cfg.Search.Timeout,
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.Backoff,
		MaxBackoff:     cfg.MaxBackoff,
	}, log.With(slog.String("component", "search")))

	fetcher := fetch.New(fetch.Config{
		Timeout:     cfg.FetchTimeout,
		MaxBytes:    cfg.FetchMaxBytes,
		Concurrency: cfg.FetchConcurrency,
	}, &http.Client{}, log.With(slog.String("component", "fetch")))

	deps := pipeline.Deps{
		Searcher:  searcher,
		Fetcher:   fetcher,
		Parser:    parse.New(nil, log.With(slog.String("component", "parse"))),
		Ranker:    rank.New(cfg.RankTopK),
		Assembler: assemble.New(cfg.ContextBudget, cfg.ExcerptCap),
		Logger:    log,
	}
	if cfg.ArchiveEnabled && archive != nil {
		deps.Archiver = archive
	}
	if withGeneration && !gen.Enabled() {
		return nil, fmt.Errorf("generation requested without ANTHROPIC_API_KEY")
	}
	if gen.Enabled() && (withGeneration || cfg.DetectType) {
		llm := generate.NewAnthropic(gen.APIKey, generate.Config{
			Model:       gen.Model,
			MaxTokens:   gen.MaxTokens,
			Temperature: gen.Temperature,
			Timeout:     gen.Timeout,
		}, limiter, log)
		if withGeneration {
			deps.Generator = llm
		}
		if cfg.DetectType {
			deps.Detector = llm
		}
	}

	p := pipeline.New(pipeline.Config{
		MaxQueries:   cfg.MaxQueries,
		MaxResults:   cfg.MaxResults,
		MaxDocuments: cfg.MaxDocuments,
		Deadline:     cfg.Deadline,
	}, deps)

	return &Services{Pipeline: p, Archive: archive, Limiter: limiter, Detector: deps.Detector}, nil
}

// searchBackend selects the configured backend. With tavily and an archive
// available, the archive answers when tavily is unavailable.
func searchBackend(cfg config.Pipeline, archive *elasticsearch.Client) (search.Backend, error) {
	switch cfg.Backend {
	case config.BackendElasticsearch:
		if archive == nil {
			return nil, fmt.Errorf("elasticsearch search backend requires an archive client")
		}
		return archive, nil
	case config.BackendTavily:
		t := tavily.New(tavily.Config{
			APIKey:         cfg.TavilyAPIKey,
			Endpoint:       cfg.TavilyEndpoint,
			SearchDepth:    cfg.Depth,
			IncludeDomains: cfg.IncludeDomains,
			ExcludeDomains: cfg.ExcludeDomains,
		}, &http.Client{})
		if cfg.ArchiveEnabled && archive != nil {
			return search.Fallback{t, archive}, nil
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown search backend %q", cfg.Backend)
	}
}
