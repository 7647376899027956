// Package pipeline runs one integration request through query formulation,
// search, fetch, parse, rank and context assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/docs-radar/backend/internal/assemble"
	"github.com/DeafMist/docs-radar/backend/internal/generate"
	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/query"
	"github.com/DeafMist/docs-radar/backend/internal/rank"
	"github.com/DeafMist/docs-radar/backend/internal/search"
)

var (
	// ErrInsufficientContext means the run produced no usable excerpt and
	// generation should not proceed.
	ErrInsufficientContext = errors.New("insufficient documentation context")
	// ErrNoGenerator is returned by Integrate when no generator is configured.
	ErrNoGenerator = errors.New("generation is not configured")
)

// Searcher runs one documentation query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error)
}

// BatchFetcher retrieves every search result, one document per result.
type BatchFetcher interface {
	FetchBatch(ctx context.Context, results []models.SearchResult) []models.FetchedDocument
}

// DocumentParser extracts readable content from fetched documents.
type DocumentParser interface {
	ParseAll(docs []models.FetchedDocument) []models.ParsedDocument
}

// Archiver stores parsed pages for later retrieval.
type Archiver interface {
	Archive(ctx context.Context, req models.IntegrationRequest, docs []models.ParsedDocument) error
}

// TypeDetector infers the integration type of a request that names none.
type TypeDetector interface {
	DetectType(ctx context.Context, req models.IntegrationRequest, docs []models.SearchResult) (string, error)
}

// Config bounds a single run.
type Config struct {
	MaxQueries   int
	MaxResults   int
	MaxDocuments int
	Deadline     time.Duration
}

// Deps are the stages a Pipeline drives. Archiver, Detector, Generator and
// Logger are optional.
type Deps struct {
	Searcher  Searcher
	Fetcher   BatchFetcher
	Parser    DocumentParser
	Ranker    *rank.Ranker
	Assembler *assemble.Assembler
	Archiver  Archiver
	Detector  TypeDetector
	Generator generate.Generator
	Logger    *slog.Logger
}

// Pipeline holds no per-request state and may serve concurrent runs.
type Pipeline struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
	now  func() time.Time
}

// New creates a Pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = 4
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = 10
	}
	if deps.Ranker == nil {
		deps.Ranker = rank.New(0)
	}
	if deps.Assembler == nil {
		deps.Assembler = assemble.New(12000, 3000)
	}
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		log:  log.With(slog.String("component", "pipeline")),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Integration pairs the assembled context with what the generator made of it.
type Integration struct {
	Context models.AssembledContext  `json:"context"`
	Result  *models.GenerationResult `json:"result"`
}

// Integrate runs the pipeline and hands the context to the generator.
func (p *Pipeline) Integrate(ctx context.Context, req models.IntegrationRequest) (*Integration, error) {
	if p.deps.Generator == nil {
		return nil, ErrNoGenerator
	}
	assembled, err := p.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	result, err := p.deps.Generator.Generate(ctx, assembled)
	if err != nil {
		return nil, fmt.Errorf("generate integration: %w", err)
	}
	return &Integration{Context: assembled, Result: result}, nil
}

// Run builds the documentation context for req. When the deadline expires the
// context is assembled from whatever finished; ErrInsufficientContext is
// returned if nothing usable remains. Cancelling ctx returns ctx.Err().
// A request without an integration type gets one from the Detector, if set.
func (p *Pipeline) Run(ctx context.Context, req models.IntegrationRequest) (models.AssembledContext, error) {
	if err := req.Validate(); err != nil {
		return models.AssembledContext{}, err
	}
	req = req.Normalize()
	requestID := uuid.NewString()
	log := p.log.With(slog.String("request_id", requestID), slog.String("service", req.ServiceName))
	started := time.Now()

	runCtx := ctx
	if p.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.Deadline)
		defer cancel()
	}

	if req.IntegrationType == "" && p.deps.Detector != nil {
		req.IntegrationType = p.detectType(runCtx, req, log)
		req = req.Normalize()
		if ctx.Err() != nil {
			return models.AssembledContext{}, ctx.Err()
		}
	}

	queries, err := query.Formulate(req, p.cfg.MaxQueries)
	if err != nil {
		return models.AssembledContext{}, err
	}

	results, err := p.search(runCtx, queries, log)
	if err != nil {
		if ctx.Err() != nil {
			return models.AssembledContext{}, ctx.Err()
		}
		return models.AssembledContext{}, err
	}
	if len(results) == 0 {
		if ctx.Err() != nil {
			return models.AssembledContext{}, ctx.Err()
		}
		return models.AssembledContext{}, fmt.Errorf("%w: no search results", ErrInsufficientContext)
	}

	fetched := p.deps.Fetcher.FetchBatch(runCtx, results)
	if ctx.Err() != nil {
		return models.AssembledContext{}, ctx.Err()
	}

	parsed := p.deps.Parser.ParseAll(fetched)
	p.archive(runCtx, req, parsed, log)

	ranked := p.deps.Ranker.Rank(req, parsed)
	assembled := p.deps.Assembler.Assemble(req, ranked)

	log.Info("pipeline finished",
		slog.Int("queries", len(queries)),
		slog.Int("results", len(results)),
		slog.Int("fetched_ok", countOK(fetched)),
		slog.Int("parsed", len(parsed)),
		slog.Int("ranked", len(ranked)),
		slog.Int("excerpts", len(assembled.Excerpts)),
		slog.Int("chars", assembled.TotalChars),
		slog.Bool("deadline_hit", runCtx.Err() != nil),
		slog.Duration("took", time.Since(started)),
	)

	if len(assembled.Excerpts) == 0 {
		return models.AssembledContext{}, fmt.Errorf("%w: %d results, %d fetched, %d usable",
			ErrInsufficientContext, len(results), countOK(fetched), len(ranked))
	}

	assembled.RequestID = requestID
	assembled.AssembledAt = p.now()
	return assembled, nil
}

// search runs queries in order and merges their results, deduplicated by URL
// and renumbered across queries. A quota error aborts; an unavailable backend
// fails the run only when no query succeeded.
func (p *Pipeline) search(ctx context.Context, queries []string, log *slog.Logger) ([]models.SearchResult, error) {
	seen := make(map[string]struct{})
	merged := make([]models.SearchResult, 0, p.cfg.MaxDocuments)

	var lastErr error
	succeeded := 0
	for _, q := range queries {
		if len(merged) >= p.cfg.MaxDocuments || ctx.Err() != nil {
			break
		}

		results, err := p.deps.Searcher.Search(ctx, q, p.cfg.MaxResults)
		if err != nil {
			if errors.Is(err, search.ErrQuota) {
				return nil, err
			}
			if ctx.Err() != nil {
				break
			}
			log.Warn("search query failed", slog.String("query", q), slog.Any("err", err))
			lastErr = err
			continue
		}
		succeeded++

		for _, r := range results {
			key := urlKey(r.URL)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			r.SourceRank = len(merged)
			merged = append(merged, r)
			if len(merged) >= p.cfg.MaxDocuments {
				break
			}
		}
	}

	if succeeded == 0 && lastErr != nil {
		return nil, lastErr
	}
	return merged, nil
}

// detectType searches for the service's integration documentation and asks
// the detector to name the type. Failures leave the type empty.
func (p *Pipeline) detectType(ctx context.Context, req models.IntegrationRequest, log *slog.Logger) string {
	docs, err := p.deps.Searcher.Search(ctx, req.ServiceName+" API integration documentation", p.cfg.MaxResults)
	if err != nil {
		log.Warn("integration type search failed", slog.Any("err", err))
		return ""
	}
	kind, err := p.deps.Detector.DetectType(ctx, req, docs)
	if err != nil {
		log.Warn("integration type detection failed", slog.Any("err", err))
		return ""
	}
	log.Info("integration type detected", slog.String("integration_type", kind))
	return kind
}

func (p *Pipeline) archive(ctx context.Context, req models.IntegrationRequest, docs []models.ParsedDocument, log *slog.Logger) {
	if p.deps.Archiver == nil || len(docs) == 0 {
		return
	}
	if err := p.deps.Archiver.Archive(ctx, req, docs); err != nil {
		log.Warn("archive documents failed", slog.Any("err", err))
	}
}

// urlKey identifies a result URL ignoring fragment, host case and a trailing slash.
func urlKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

func countOK(docs []models.FetchedDocument) int {
	n := 0
	for _, d := range docs {
		if d.OK() {
			n++
		}
	}
	return n
}
