// Package generate sends an assembled documentation context to the
// generation service and returns the integration it produced.
package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/DeafMist/docs-radar/backend/internal/assemble"
	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/ratelimit"
)

// ErrEmptyContext is returned when a context carries no excerpts.
var ErrEmptyContext = errors.New("assembled context has no excerpts")

const defaultSystemPrompt = `You are a system integration engineer. Using only the documentation excerpts provided, write working integration code for the requested service.
- Prefer the official documentation excerpts over assumptions.
- Handle authentication and errors explicitly.
- Include setup instructions, the integration module and a short usage example.
- Put each source file in its own fenced code block tagged with its language.`

const instruction = "Generate a complete integration for the request below. Cite the excerpt numbers you relied on.\n\n"

// Generator produces integration code from an assembled context.
type Generator interface {
	Generate(ctx context.Context, c models.AssembledContext) (*models.GenerationResult, error)
}

// Config controls a single generation call.
type Config struct {
	Model        string
	MaxTokens    int64
	Temperature  float64
	Timeout      time.Duration
	SystemPrompt string
}

// Anthropic implements Generator on the Anthropic Messages API.
type Anthropic struct {
	client  anthropic.Client
	limiter ratelimit.Limiter
	cfg     Config
	log     *slog.Logger
}

// NewAnthropic creates a generator authenticated with apiKey. Extra request
// options are appended after the key, so callers can override the base URL.
func NewAnthropic(apiKey string, cfg Config, limiter ratelimit.Limiter, logger *slog.Logger, opts ...option.RequestOption) *Anthropic {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}

	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Anthropic{
		client:  anthropic.NewClient(all...),
		limiter: limiter,
		cfg:     cfg,
		log:     logger.With(slog.String("component", "generate")),
	}
}

// Generate implements Generator.
func (a *Anthropic) Generate(ctx context.Context, c models.AssembledContext) (*models.GenerationResult, error) {
	if len(c.Excerpts) == 0 {
		return nil, ErrEmptyContext
	}

	params := anthropic.MessageNewParams{
		MaxTokens: a.cfg.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: a.cfg.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(instruction + assemble.Render(c))),
		},
	}
	if a.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(a.cfg.Temperature)
	}

	started := time.Now()
	resp, text, err := a.complete(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic generation failed: %w", err)
	}

	a.log.Info("integration generated",
		slog.String("request_id", c.RequestID),
		slog.String("model", string(resp.Model)),
		slog.Int64("input_tokens", resp.Usage.InputTokens),
		slog.Int64("output_tokens", resp.Usage.OutputTokens),
		slog.Duration("took", time.Since(started)),
	)

	return &models.GenerationResult{
		RequestID:    c.RequestID,
		Model:        string(resp.Model),
		Content:      text,
		CodeBlocks:   ExtractCodeBlocks(text),
		Sources:      c.Sources(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// complete sends one message on the configured model, honouring the limiter
// and timeout, and returns the reply with its text blocks joined.
func (a *Anthropic) complete(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	params.Model = anthropic.Model(a.cfg.Model)
	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, "", err
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(b.Text)
		}
	}
	return resp, content.String(), nil
}
