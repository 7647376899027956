package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Search backends selectable with SEARCH_BACKEND.
const (
	BackendTavily        = "tavily"
	BackendElasticsearch = "elasticsearch"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Search configures the documentation search client.
type Search struct {
	Backend        string
	TavilyAPIKey   string
	TavilyEndpoint string
	Depth          string
	IncludeDomains []string
	ExcludeDomains []string
	MaxResults     int
	Timeout        time.Duration
	MaxRetries     int
	Backoff        time.Duration
	MaxBackoff     time.Duration
}

// Pipeline holds everything needed to build documentation contexts.
type Pipeline struct {
	Common
	Search
	MaxQueries       int
	MaxDocuments     int
	Deadline         time.Duration
	FetchConcurrency int
	FetchTimeout     time.Duration
	FetchMaxBytes    int64
	RankTopK         int
	ContextBudget    int
	ExcerptCap       int
	RateLimitRPS     float64
	RateLimitBurst   int
	ArchiveEnabled   bool
	DetectType       bool
}

// Generation configures the Anthropic client.
type Generation struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
}

// Enabled reports whether an API key was provided.
func (g Generation) Enabled() bool {
	return g.APIKey != ""
}

// API describes HTTP-layer configuration.
type API struct {
	Pipeline
	Generation Generation
	BindAddr   string
}

// Worker holds configuration for the Kafka request worker.
type Worker struct {
	Pipeline
	Generation       Generation
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaResultTopic string
	KafkaConsumer    string
	DedupeCapacity   int
	DedupeTTL        time.Duration
	Generate         bool
}

// Retention configures the archive cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "docs"),
	}
}

// LoadPipeline builds a Pipeline config from environment variables.
func LoadPipeline() (*Pipeline, error) {
	c := &Pipeline{
		Common: loadCommon(),
		Search: Search{
			Backend:        strings.ToLower(getEnv("SEARCH_BACKEND", BackendTavily)),
			TavilyAPIKey:   getEnv("TAVILY_API_KEY", ""),
			TavilyEndpoint: getEnv("TAVILY_ENDPOINT", "https://api.tavily.com/search"),
			Depth:          getEnv("SEARCH_DEPTH", "advanced"),
			IncludeDomains: splitAndTrim(getEnv("SEARCH_INCLUDE_DOMAINS", "")),
			ExcludeDomains: splitAndTrim(getEnv("SEARCH_EXCLUDE_DOMAINS", "")),
			MaxResults:     getInt("SEARCH_MAX_RESULTS", 5),
			Timeout:        getDuration("SEARCH_TIMEOUT", "10s"),
			MaxRetries:     getInt("SEARCH_MAX_RETRIES", 3),
			Backoff:        getDuration("SEARCH_BACKOFF", "500ms"),
			MaxBackoff:     getDuration("SEARCH_MAX_BACKOFF", "8s"),
		},
		MaxQueries:       getInt("PIPELINE_MAX_QUERIES", 4),
		MaxDocuments:     getInt("PIPELINE_MAX_DOCUMENTS", 10),
		Deadline:         getDuration("PIPELINE_DEADLINE", "45s"),
		FetchConcurrency: getInt("FETCH_CONCURRENCY", 4),
		FetchTimeout:     getDuration("FETCH_TIMEOUT", "10s"),
		FetchMaxBytes:    int64(getInt("FETCH_MAX_BYTES", 2<<20)),
		RankTopK:         getInt("RANK_TOP_K", 5),
		ContextBudget:    getInt("CONTEXT_BUDGET", 12000),
		ExcerptCap:       getInt("EXCERPT_CAP", 3000),
		RateLimitRPS:     getFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst:   getInt("RATE_LIMIT_BURST", 4),
		ArchiveEnabled:   getBool("ARCHIVE_ENABLED", true),
		DetectType:       getBool("PIPELINE_DETECT_TYPE", true),
	}

	switch c.Backend {
	case BackendTavily:
		if c.TavilyAPIKey == "" {
			return nil, fmt.Errorf("TAVILY_API_KEY is required for the tavily backend")
		}
	case BackendElasticsearch:
	default:
		return nil, fmt.Errorf("SEARCH_BACKEND must be %q or %q, got %q", BackendTavily, BackendElasticsearch, c.Backend)
	}

	if c.MaxResults <= 0 {
		return nil, fmt.Errorf("SEARCH_MAX_RESULTS must be positive")
	}
	if c.MaxRetries < 0 {
		return nil, fmt.Errorf("SEARCH_MAX_RETRIES cannot be negative")
	}
	if c.MaxQueries <= 0 {
		return nil, fmt.Errorf("PIPELINE_MAX_QUERIES must be positive")
	}
	if c.MaxDocuments <= 0 {
		return nil, fmt.Errorf("PIPELINE_MAX_DOCUMENTS must be positive")
	}
	if c.Deadline <= 0 {
		return nil, fmt.Errorf("PIPELINE_DEADLINE must be positive")
	}
	if c.FetchConcurrency <= 0 {
		return nil, fmt.Errorf("FETCH_CONCURRENCY must be positive")
	}
	if c.FetchMaxBytes <= 0 {
		return nil, fmt.Errorf("FETCH_MAX_BYTES must be positive")
	}
	if c.RankTopK <= 0 {
		return nil, fmt.Errorf("RANK_TOP_K must be positive")
	}
	if c.ContextBudget <= 0 {
		return nil, fmt.Errorf("CONTEXT_BUDGET must be positive")
	}
	if c.ExcerptCap <= 0 {
		return nil, fmt.Errorf("EXCERPT_CAP must be positive")
	}
	if c.ExcerptCap > c.ContextBudget {
		return nil, fmt.Errorf("EXCERPT_CAP cannot exceed CONTEXT_BUDGET")
	}
	if c.RateLimitRPS < 0 {
		return nil, fmt.Errorf("RATE_LIMIT_RPS cannot be negative")
	}

	return c, nil
}

// LoadGeneration builds a Generation config from environment variables. A
// missing API key is not an error; callers check Enabled.
func LoadGeneration() (*Generation, error) {
	c := &Generation{
		APIKey:      getEnv("ANTHROPIC_API_KEY", ""),
		Model:       getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		MaxTokens:   int64(getInt("ANTHROPIC_MAX_TOKENS", 4096)),
		Temperature: getFloat("GENERATION_TEMPERATURE", 0.5),
		Timeout:     getDuration("GENERATION_TIMEOUT", "2m"),
	}

	if c.MaxTokens <= 0 {
		return nil, fmt.Errorf("ANTHROPIC_MAX_TOKENS must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return nil, fmt.Errorf("GENERATION_TEMPERATURE must be within [0, 1]")
	}
	if c.Timeout <= 0 {
		return nil, fmt.Errorf("GENERATION_TIMEOUT must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	p, err := LoadPipeline()
	if err != nil {
		return nil, err
	}
	g, err := LoadGeneration()
	if err != nil {
		return nil, err
	}

	return &API{
		Pipeline:   *p,
		Generation: *g,
		BindAddr:   getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
	}, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	p, err := LoadPipeline()
	if err != nil {
		return nil, err
	}
	g, err := LoadGeneration()
	if err != nil {
		return nil, err
	}

	c := &Worker{
		Pipeline:         *p,
		Generation:       *g,
		KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "integration_requests"),
		KafkaResultTopic: getEnv("KAFKA_RESULT_TOPIC", "integration_results"),
		KafkaConsumer:    getEnv("KAFKA_CONSUMER_GROUP", "docs-worker"),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "1h"),
		Generate:         getBool("WORKER_GENERATE", true),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.KafkaTopic == c.KafkaResultTopic {
		return nil, fmt.Errorf("KAFKA_RESULT_TOPIC must differ from KAFKA_TOPIC")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.Generate && !c.Generation.Enabled() {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required when WORKER_GENERATE is enabled")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
