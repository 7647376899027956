package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/docs-radar/backend/internal/dedupe"
	"github.com/DeafMist/docs-radar/backend/internal/logger"
	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/pipeline"
	"github.com/DeafMist/docs-radar/backend/internal/search"
)

type stubPipeline struct {
	runs int
	err  error
}

func (s *stubPipeline) Run(_ context.Context, req models.IntegrationRequest) (models.AssembledContext, error) {
	s.runs++
	if s.err != nil {
		return models.AssembledContext{}, s.err
	}
	return models.AssembledContext{
		RequestID: "pipeline-id",
		Request:   req,
		Excerpts:  []models.Excerpt{{URL: "https://docs.github.com/rest", Text: "Create an issue."}},
	}, nil
}

func (s *stubPipeline) Integrate(ctx context.Context, req models.IntegrationRequest) (*pipeline.Integration, error) {
	c, err := s.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return &pipeline.Integration{Context: c, Result: &models.GenerationResult{Content: "package github"}}, nil
}

type stubWriter struct {
	msgs []kafka.Message
	fail int
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.fail > 0 {
		w.fail--
		return errors.New("broker down")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *stubWriter) result(t *testing.T, i int) resultMessage {
	t.Helper()
	require.Greater(t, len(w.msgs), i)
	var res resultMessage
	require.NoError(t, json.Unmarshal(w.msgs[i].Value, &res))
	return res
}

func newProcessor(p contextBuilder, w messageWriter, generate bool) *processor {
	return &processor{
		log:      logger.Discard(),
		pipeline: p,
		results:  w,
		cache:    dedupe.NewCache(100, time.Hour),
		generate: generate,
	}
}

func requestMsg(t *testing.T, id string, req models.IntegrationRequest) kafka.Message {
	t.Helper()
	data, err := json.Marshal(requestMessage{RequestID: id, IntegrationRequest: req})
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

var githubRequest = models.IntegrationRequest{
	ServiceName:     "GitHub",
	IntegrationType: "rest api",
	Description:     "create issues",
}

func TestProcessMessagePublishesContext(t *testing.T) {
	p := &stubPipeline{}
	w := &stubWriter{}
	proc := newProcessor(p, w, false)

	require.NoError(t, proc.processMessage(context.Background(), requestMsg(t, "r-1", githubRequest)))

	require.Len(t, w.msgs, 1)
	require.Equal(t, "r-1", string(w.msgs[0].Key))
	res := w.result(t, 0)
	require.Equal(t, "r-1", res.RequestID)
	require.Equal(t, statusCompleted, res.Status)
	require.NotNil(t, res.Context)
	require.Nil(t, res.Result)
	require.False(t, res.CompletedAt.IsZero())
}

func TestProcessMessageGenerates(t *testing.T) {
	w := &stubWriter{}
	proc := newProcessor(&stubPipeline{}, w, true)

	require.NoError(t, proc.processMessage(context.Background(), requestMsg(t, "", githubRequest)))

	res := w.result(t, 0)
	require.NotEmpty(t, res.RequestID)
	require.NotNil(t, res.Result)
	require.Equal(t, "package github", res.Result.Content)
}

func TestProcessMessageSkipsDuplicates(t *testing.T) {
	p := &stubPipeline{}
	w := &stubWriter{}
	proc := newProcessor(p, w, false)

	dup := githubRequest
	dup.ServiceName = " github "

	require.NoError(t, proc.processMessage(context.Background(), requestMsg(t, "a", githubRequest)))
	require.NoError(t, proc.processMessage(context.Background(), requestMsg(t, "b", dup)))

	require.Equal(t, 1, p.runs)
	require.Len(t, w.msgs, 1)
}

func TestProcessMessageInvalidPayloads(t *testing.T) {
	w := &stubWriter{}
	proc := newProcessor(&stubPipeline{}, w, false)

	err := proc.processMessage(context.Background(), kafka.Message{Value: []byte("{not json")})
	require.ErrorContains(t, err, "decode request")

	require.NoError(t, proc.processMessage(context.Background(),
		requestMsg(t, "r-2", models.IntegrationRequest{ServiceName: "GitHub"})))
	res := w.result(t, 0)
	require.Equal(t, statusFailed, res.Status)
	require.Contains(t, res.Error, "description is required")
}

func TestProcessMessageFailures(t *testing.T) {
	t.Run("permanent", func(t *testing.T) {
		p := &stubPipeline{err: fmt.Errorf("%w: nothing usable", pipeline.ErrInsufficientContext)}
		w := &stubWriter{}
		proc := newProcessor(p, w, false)

		require.NoError(t, proc.processMessage(context.Background(), requestMsg(t, "r-3", githubRequest)))
		res := w.result(t, 0)
		require.Equal(t, statusFailed, res.Status)
		require.Contains(t, res.Error, "insufficient")
	})

	t.Run("transient goes to DLQ and can retry", func(t *testing.T) {
		p := &stubPipeline{err: fmt.Errorf("search: %w", search.ErrUnavailable)}
		w := &stubWriter{}
		proc := newProcessor(p, w, false)

		msg := requestMsg(t, "r-4", githubRequest)
		err := proc.processMessage(context.Background(), msg)
		require.ErrorIs(t, err, search.ErrUnavailable)
		require.Empty(t, w.msgs)

		p.err = nil
		require.NoError(t, proc.processMessage(context.Background(), msg))
		require.Equal(t, 2, p.runs)
	})

	t.Run("publish failure releases the key", func(t *testing.T) {
		p := &stubPipeline{}
		w := &stubWriter{fail: 1}
		proc := newProcessor(p, w, false)

		msg := requestMsg(t, "r-5", githubRequest)
		require.ErrorContains(t, proc.processMessage(context.Background(), msg), "publish result")
		require.NoError(t, proc.processMessage(context.Background(), msg))
		require.Len(t, w.msgs, 1)
	})
}

func TestSendToDLQ(t *testing.T) {
	w := &stubWriter{}
	msg := kafka.Message{
		Topic:     "integration_requests",
		Partition: 2,
		Offset:    41,
		Value:     []byte(`{"service_name":"x"}`),
		Headers:   []kafka.Header{{Key: "trace", Value: []byte("t-1")}},
	}

	require.True(t, sendToDLQ(context.Background(), logger.Discard(), w, msg, errors.New("boom")))
	require.Len(t, w.msgs, 1)

	headers := map[string]string{}
	for _, h := range w.msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, "t-1", headers["trace"])
	require.Equal(t, "integration_requests", headers["original_topic"])
	require.Equal(t, "2", headers["original_partition"])
	require.Equal(t, "41", headers["original_offset"])
	require.Equal(t, "boom", headers["error"])
	require.Len(t, msg.Headers, 1)
}

func TestSendToDLQStopsOnCancel(t *testing.T) {
	w := &stubWriter{fail: 100}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.False(t, sendToDLQ(ctx, logger.Discard(), w, kafka.Message{}, errors.New("boom")))
}

func TestIsTransient(t *testing.T) {
	require.False(t, isTransient(models.ErrInvalidRequest))
	require.False(t, isTransient(pipeline.ErrInsufficientContext))
	require.False(t, isTransient(pipeline.ErrNoGenerator))
	require.True(t, isTransient(search.ErrQuota))
	require.True(t, isTransient(errors.New("anthropic generation failed")))
}
