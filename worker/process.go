package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/docs-radar/backend/internal/dedupe"
	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/pipeline"
)

// Result statuses published on the result topic.
const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

type requestMessage struct {
	RequestID string `json:"request_id,omitempty"`
	models.IntegrationRequest
}

type resultMessage struct {
	RequestID   string                   `json:"request_id"`
	Status      string                   `json:"status"`
	Context     *models.AssembledContext `json:"context,omitempty"`
	Result      *models.GenerationResult `json:"result,omitempty"`
	Error       string                   `json:"error,omitempty"`
	CompletedAt time.Time                `json:"completed_at"`
}

type contextBuilder interface {
	Run(ctx context.Context, req models.IntegrationRequest) (models.AssembledContext, error)
	Integrate(ctx context.Context, req models.IntegrationRequest) (*pipeline.Integration, error)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type processor struct {
	log      *slog.Logger
	pipeline contextBuilder
	results  messageWriter
	cache    *dedupe.Cache
	generate bool
}

// processMessage handles one request. A returned error sends the message to
// the DLQ; requests that can never succeed are answered with a failed result
// and acknowledged.
func (p *processor) processMessage(ctx context.Context, msg kafka.Message) error {
	var payload requestMessage
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	requestID := payload.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := p.log.With(slog.String("request_id", requestID))

	if err := payload.Validate(); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return p.publish(ctx, resultMessage{RequestID: requestID, Status: statusFailed, Error: err.Error()})
	}

	key := dedupe.RequestKey(payload.IntegrationRequest)
	if !p.cache.Claim(key) {
		log.Debug("duplicate request", slog.String("key", key))
		return nil
	}

	out, err := p.run(ctx, payload.IntegrationRequest)
	if err != nil {
		p.cache.Forget(key)
		if isTransient(err) {
			return err
		}
		log.Warn("request failed", slog.Any("err", err))
		return p.publish(ctx, resultMessage{RequestID: requestID, Status: statusFailed, Error: err.Error()})
	}

	out.RequestID = requestID
	out.Status = statusCompleted
	if err := p.publish(ctx, out); err != nil {
		p.cache.Forget(key)
		return err
	}

	log.Info("request completed",
		slog.String("service", payload.ServiceName),
		slog.Int("excerpts", len(out.Context.Excerpts)),
		slog.Bool("generated", out.Result != nil),
	)
	return nil
}

func (p *processor) run(ctx context.Context, req models.IntegrationRequest) (resultMessage, error) {
	if !p.generate {
		assembled, err := p.pipeline.Run(ctx, req)
		if err != nil {
			return resultMessage{}, err
		}
		return resultMessage{Context: &assembled}, nil
	}

	integration, err := p.pipeline.Integrate(ctx, req)
	if err != nil {
		return resultMessage{}, err
	}
	return resultMessage{Context: &integration.Context, Result: integration.Result}, nil
}

func (p *processor) publish(ctx context.Context, res resultMessage) error {
	res.CompletedAt = time.Now().UTC()
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := p.results.WriteMessages(ctx, kafka.Message{Key: []byte(res.RequestID), Value: data}); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}

// isTransient reports whether a later retry of the same request may succeed.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, models.ErrInvalidRequest),
		errors.Is(err, pipeline.ErrInsufficientContext),
		errors.Is(err, pipeline.ErrNoGenerator):
		return false
	}
	return true
}
