// Package fetch retrieves documentation pages. Every failure is recorded on the
// returned document; nothing here returns an error.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/DeafMist/docs-radar/backend/internal/models"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; docs-radar/1.0; documentation retrieval)"

var allowedTypes = map[string]struct{}{
	"text/html":             {},
	"application/xhtml+xml": {},
	"text/plain":            {},
}

// Config bounds a single fetch and the batch fan-out.
type Config struct {
	Timeout     time.Duration
	MaxBytes    int64
	Concurrency int
	UserAgent   string
}

// Fetcher performs HTTP GETs with a content-type allowlist.
type Fetcher struct {
	client *http.Client
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
}

// New creates a Fetcher. The per-fetch timeout is applied through the request
// context so cancellation of the batch reaches in-flight requests.
func New(cfg Config, client *http.Client, logger *slog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 2 << 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fetcher{client: client, cfg: cfg, log: logger, now: time.Now}
}

// FetchBatch fetches every result concurrently, at most Concurrency at a time.
func (f *Fetcher) FetchBatch(ctx context.Context, results []models.SearchResult) []models.FetchedDocument {
	return Batch(ctx, f, results, f.cfg.Concurrency)
}

// Fetch retrieves one URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) models.FetchedDocument {
	doc := models.FetchedDocument{URL: rawURL, FetchedAt: f.now().UTC()}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return failed(doc, models.FetchHTTPError, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.1")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return failed(doc, models.FetchTimeout, err)
		}
		return failed(doc, models.FetchHTTPError, err)
	}
	defer resp.Body.Close()

	doc.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return failed(doc, models.FetchHTTPError, fmt.Errorf("http %d", resp.StatusCode))
	}

	header := resp.Header.Get("Content-Type")
	mediaType := ""
	if header != "" {
		if mt, _, perr := mime.ParseMediaType(header); perr == nil {
			mediaType = mt
		}
	}
	if header != "" {
		if _, ok := allowedTypes[mediaType]; !ok {
			return failed(doc, models.FetchParseError, fmt.Errorf("unsupported content type %q", header))
		}
	}

	body, err := readBody(resp.Body, header, f.cfg.MaxBytes)
	if err != nil {
		if isTimeout(ctx, err) {
			return failed(doc, models.FetchTimeout, err)
		}
		return failed(doc, models.FetchParseError, fmt.Errorf("read body: %w", err))
	}

	if mediaType == "" {
		sniffed, _, _ := mime.ParseMediaType(http.DetectContentType([]byte(body)))
		if _, ok := allowedTypes[sniffed]; !ok {
			return failed(doc, models.FetchParseError, fmt.Errorf("unsupported content type %q", sniffed))
		}
		mediaType = sniffed
	}

	doc.ContentType = mediaType
	doc.RawContent = body
	doc.Status = models.FetchOK
	f.log.Debug("fetched document",
		slog.String("url", rawURL),
		slog.Int("bytes", len(body)),
		slog.String("content_type", mediaType),
	)
	return doc
}

func readBody(r io.Reader, contentType string, limit int64) (string, error) {
	limited := io.LimitReader(r, limit)
	decoded, err := charset.NewReader(limited, contentType)
	if err != nil {
		decoded = limited
	}
	data, err := io.ReadAll(decoded)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

func failed(doc models.FetchedDocument, status models.FetchStatus, err error) models.FetchedDocument {
	doc.Status = status
	doc.RawContent = ""
	if err != nil {
		doc.Err = err.Error()
	}
	return doc
}

func isTimeout(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
