package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/docs-radar/backend/internal/fetch"
	"github.com/DeafMist/docs-radar/backend/internal/models"
)

func newDocsServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><head><title>Docs</title></head><body><p>Hello</p></body></html>"))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("plain docs"))
	})
	mux.HandleFunc("/pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newFetcher(srv *httptest.Server) *fetch.Fetcher {
	return fetch.New(fetch.Config{Timeout: 100 * time.Millisecond, Concurrency: 3}, srv.Client(), nil)
}

func TestFetchStatuses(t *testing.T) {
	srv := newDocsServer(t)
	f := newFetcher(srv)

	tests := []struct {
		path   string
		status models.FetchStatus
		empty  bool
	}{
		{path: "/html", status: models.FetchOK},
		{path: "/plain", status: models.FetchOK},
		{path: "/pdf", status: models.FetchParseError, empty: true},
		{path: "/missing", status: models.FetchHTTPError, empty: true},
		{path: "/slow", status: models.FetchTimeout, empty: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			doc := f.Fetch(context.Background(), srv.URL+tt.path)
			require.Equal(t, tt.status, doc.Status)
			require.Equal(t, srv.URL+tt.path, doc.URL)
			require.False(t, doc.FetchedAt.IsZero())
			if tt.empty {
				require.Empty(t, doc.RawContent)
				require.NotEmpty(t, doc.Err)
			} else {
				require.NotEmpty(t, doc.RawContent)
			}
		})
	}

	missing := f.Fetch(context.Background(), srv.URL+"/missing")
	require.Equal(t, http.StatusNotFound, missing.StatusCode)

	html := f.Fetch(context.Background(), srv.URL+"/html")
	require.Equal(t, "text/html", html.ContentType)
	require.Contains(t, html.RawContent, "<title>Docs</title>")
}

func TestFetchBatchKeepsEveryResult(t *testing.T) {
	srv := newDocsServer(t)
	f := newFetcher(srv)

	results := []models.SearchResult{
		{URL: srv.URL + "/html", SourceRank: 0},
		{URL: srv.URL + "/slow", SourceRank: 1},
		{URL: srv.URL + "/plain", SourceRank: 2},
		{URL: srv.URL + "/slow", SourceRank: 3},
		{URL: srv.URL + "/html", SourceRank: 4},
	}

	start := time.Now()
	docs := f.FetchBatch(context.Background(), results)
	require.Less(t, time.Since(start), time.Second)
	require.Len(t, docs, 5)

	counts := map[models.FetchStatus]int{}
	for i, d := range docs {
		counts[d.Status]++
		require.Equal(t, results[i].URL, d.URL)
		require.Equal(t, results[i].SourceRank, d.SourceRank)
	}
	require.Equal(t, 3, counts[models.FetchOK])
	require.Equal(t, 2, counts[models.FetchTimeout])
}

type stubFetcher struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) models.FetchedDocument {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-time.After(s.delay):
		return models.FetchedDocument{URL: url, Status: models.FetchOK, RawContent: "ok"}
	case <-ctx.Done():
		return models.FetchedDocument{URL: url, Status: models.FetchTimeout}
	}
}

func TestBatchRespectsConcurrencyLimit(t *testing.T) {
	stub := &stubFetcher{delay: 10 * time.Millisecond}
	results := make([]models.SearchResult, 12)
	for i := range results {
		results[i] = models.SearchResult{URL: "https://example.com/" + string(rune('a'+i)), SourceRank: i}
	}

	docs := fetch.Batch(context.Background(), stub, results, 3)
	require.Len(t, docs, 12)
	require.LessOrEqual(t, stub.peak.Load(), int32(3))
	for _, d := range docs {
		require.Equal(t, models.FetchOK, d.Status)
	}
}

func TestBatchCancellation(t *testing.T) {
	stub := &stubFetcher{delay: time.Second}
	results := make([]models.SearchResult, 6)
	for i := range results {
		results[i] = models.SearchResult{URL: "https://example.com/doc", SourceRank: i}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	docs := fetch.Batch(ctx, stub, results, 2)
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Len(t, docs, 6)
	for _, d := range docs {
		require.Equal(t, models.FetchTimeout, d.Status)
	}
}
