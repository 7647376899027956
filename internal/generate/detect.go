package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/DeafMist/docs-radar/backend/internal/models"
)

// ErrNoIntegrationType is returned when the reply does not name a usable type.
var ErrNoIntegrationType = errors.New("no integration type detected")

const detectSystemPrompt = `You are an expert at analyzing software integrations and APIs. Determine the most appropriate integration type for a service from its documentation and requirements.

Common integration types include REST API, GraphQL API, SOAP API, Webhook, SDK, OAuth, Event-driven, Batch Processing, File-based and Database.

Name a specific integration type, not a generic description. If several apply, give the primary one.`

const (
	detectMaxTokens   = 32
	detectTemperature = 0.1
	detectDocs        = 3
	maxTypeRunes      = 40
)

// DetectType asks for the primary integration type of req, given the search
// results found for the service. Only the first few results are shown.
func (a *Anthropic) DetectType(ctx context.Context, req models.IntegrationRequest, docs []models.SearchResult) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Determine the most appropriate integration type for %s.\n\n", req.ServiceName)
	fmt.Fprintf(&sb, "Integration requirements:\n%s\n\nDocumentation found:\n", req.Description)
	for i, d := range docs {
		if i == detectDocs {
			break
		}
		fmt.Fprintf(&sb, "- %s (%s): %s\n", d.Title, d.URL, d.Snippet)
	}
	sb.WriteString("\nRespond with only the integration type, for example \"REST API\" or \"Webhook\". Do not explain.")

	resp, text, err := a.complete(ctx, anthropic.MessageNewParams{
		MaxTokens:   detectMaxTokens,
		Temperature: anthropic.Float(detectTemperature),
		System:      []anthropic.TextBlockParam{{Text: detectSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(sb.String())),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic type detection failed: %w", err)
	}

	kind := cleanType(text)
	if kind == "" {
		return "", fmt.Errorf("%w: %q", ErrNoIntegrationType, strings.TrimSpace(text))
	}
	a.log.Debug("integration type detected",
		slog.String("service", req.ServiceName),
		slog.String("integration_type", kind),
		slog.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return kind, nil
}

// cleanType keeps the first line of a reply without quotes or trailing
// punctuation. Answers longer than a type name are rejected.
func cleanType(reply string) string {
	reply = strings.TrimSpace(reply)
	if i := strings.IndexByte(reply, '\n'); i >= 0 {
		reply = reply[:i]
	}
	reply = strings.Trim(reply, " \t\"'`.*")
	if utf8.RuneCountInString(reply) > maxTypeRunes {
		return ""
	}
	return reply
}
