package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/processing"
)

const archiveKeywords = 10

// IndexDocument writes one archived page, replacing any earlier copy of the same URL.
func (c *Client) IndexDocument(ctx context.Context, doc models.ArchivedDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index doc: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index doc failed: %s", strings.TrimSpace(string(body)))
	}
	return nil
}

// Archive stores every non-empty parsed page fetched for req. A failing page
// does not stop the others; all failures are returned joined.
func (c *Client) Archive(ctx context.Context, req models.IntegrationRequest, docs []models.ParsedDocument) error {
	now := time.Now().UTC()
	service := strings.ToLower(strings.TrimSpace(req.ServiceName))

	var errs []error
	stored := 0
	for _, d := range docs {
		if d.Length <= 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := c.IndexDocument(ctx, ToArchived(d, service, now))
		if err != nil {
			errs = append(errs, fmt.Errorf("archive %s: %w", d.URL, err))
			continue
		}
		stored++
	}

	c.log.Debug("documents archived",
		slog.String("service", service),
		slog.Int("stored", stored),
		slog.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

// ToArchived converts a parsed page into its archive form.
func ToArchived(d models.ParsedDocument, service string, at time.Time) models.ArchivedDocument {
	return models.ArchivedDocument{
		ID:             processing.BuildDocumentID(d.URL),
		URL:            d.URL,
		Title:          d.Title,
		Text:           d.BodyText,
		Keywords:       processing.ExtractKeywords(d.Title+" "+d.BodyText, archiveKeywords, 3),
		Service:        service,
		CodeExamples:   d.CodeExamples,
		Endpoints:      endpointStrings(d.Endpoints),
		Authentication: d.Authentication,
		Requirements:   d.Requirements,
		Timestamp:      at,
	}
}

func endpointStrings(eps []models.Endpoint) []string {
	if len(eps) == 0 {
		return nil
	}
	out := make([]string, len(eps))
	for i, ep := range eps {
		out[i] = ep.String()
	}
	return out
}
