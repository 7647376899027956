package elasticsearch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/docs-radar/backend/internal/elasticsearch"
	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/processing"
	"github.com/DeafMist/docs-radar/backend/internal/search"
)

type recorded struct {
	Method string
	Path   string
	Body   string
}

type fakeES struct {
	mu       sync.Mutex
	requests []recorded
	handle   func(w http.ResponseWriter, r *http.Request, body string)
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{Method: r.Method, Path: r.URL.Path, Body: string(raw)})
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	f.handle(w, r, string(raw))
}

func (f *fakeES) calls() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func newClient(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, body string)) (*elasticsearch.Client, *fakeES) {
	t.Helper()
	fake := &fakeES{handle: handle}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := elasticsearch.New(srv.URL, "docs", nil)
	require.NoError(t, err)
	return c, fake
}

func TestSearchMapsHits(t *testing.T) {
	c, fake := newClient(t, func(w http.ResponseWriter, r *http.Request, body string) {
		_, _ = io.WriteString(w, `{"hits":{"hits":[
			{"_source":{"url":"https://docs.github.com/rest/issues","title":"Issues","text":"Create an issue. More text follows here."}},
			{"_source":{"url":"","title":"broken"}},
			{"_source":{"url":"https://docs.github.com/rest/repos","title":"Repos","text":"List repositories."}}
		]}}`)
	})

	got, err := c.Search(context.Background(), search.Query{Text: "github issues", MaxResults: 3})
	require.NoError(t, err)
	require.Equal(t, []models.SearchResult{
		{URL: "https://docs.github.com/rest/issues", Title: "Issues", Snippet: "Create an issue. More text follows here."},
		{URL: "https://docs.github.com/rest/repos", Title: "Repos", Snippet: "List repositories."},
	}, got)

	calls := fake.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "/docs/_search", calls[0].Path)

	var sent struct {
		Size  int `json:"size"`
		Query struct {
			MultiMatch struct {
				Query  string   `json:"query"`
				Fields []string `json:"fields"`
			} `json:"multi_match"`
		} `json:"query"`
	}
	require.NoError(t, json.Unmarshal([]byte(calls[0].Body), &sent))
	require.Equal(t, 3, sent.Size)
	require.Equal(t, "github issues", sent.Query.MultiMatch.Query)
	require.Equal(t, []string{"title^2", "text"}, sent.Query.MultiMatch.Fields)
}

func TestSearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "server error", status: http.StatusInternalServerError, want: search.ErrUnavailable},
		{name: "throttled", status: http.StatusTooManyRequests, want: search.ErrQuota},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request, body string) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":"boom"}`)
			})
			_, err := c.Search(context.Background(), search.Query{Text: "x"})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSearchMissingIndexIsEmpty(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request, body string) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"index_not_found_exception"}}`)
	})
	got, err := c.Search(context.Background(), search.Query{Text: "x"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestArchiveIndexesNonEmptyDocuments(t *testing.T) {
	c, fake := newClient(t, func(w http.ResponseWriter, r *http.Request, body string) {
		if strings.Contains(body, "https://fail.example") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"mapper_parsing_exception"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	})

	docs := []models.ParsedDocument{
		{URL: "https://docs.github.com/rest/issues", Title: "Issues", BodyText: "Create an issue in a repository.", Length: 32},
		{URL: "https://empty.example", Title: "https://empty.example"},
		{URL: "https://fail.example", Title: "Fail", BodyText: "text", Length: 4},
	}

	err := c.Archive(context.Background(), models.IntegrationRequest{ServiceName: " GitHub "}, docs)
	require.Error(t, err)
	require.Contains(t, err.Error(), "https://fail.example")

	calls := fake.calls()
	require.Len(t, calls, 2)
	require.Equal(t, http.MethodPut, calls[0].Method)
	require.Equal(t, "/docs/_doc/"+processing.BuildDocumentID("https://docs.github.com/rest/issues"), calls[0].Path)

	var stored models.ArchivedDocument
	require.NoError(t, json.Unmarshal([]byte(calls[0].Body), &stored))
	require.Equal(t, "github", stored.Service)
	require.Equal(t, "Issues", stored.Title)
	require.Contains(t, stored.Keywords, "issue")
	require.False(t, stored.Timestamp.IsZero())
}

func TestToArchived(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got := elasticsearch.ToArchived(models.ParsedDocument{
		URL:      "https://docs.stripe.com/api/charges",
		Title:    "Charges",
		BodyText: "Create a charge. Charges are billed.",
		Length:   36,
	}, "stripe", at)

	require.Equal(t, processing.BuildDocumentID("https://docs.stripe.com/api/charges"), got.ID)
	require.Equal(t, "stripe", got.Service)
	require.Equal(t, at, got.Timestamp)
	require.Equal(t, "charges", got.Keywords[0])
	require.Nil(t, got.Endpoints)
}

func TestToArchivedKeepsDocumentDetails(t *testing.T) {
	d := models.ParsedDocument{
		URL:            "https://docs.stripe.com/api/charges",
		Title:          "Charges",
		BodyText:       "Create a charge with POST /v1/charges.",
		Length:         38,
		CodeExamples:   []models.CodeExample{{Language: "bash", Code: "curl https://api.stripe.com/v1/charges"}},
		Endpoints:      []models.Endpoint{{Method: "POST", Path: "/v1/charges"}},
		Authentication: &models.AuthInfo{Type: "API Key"},
		Requirements:   &models.Requirements{Dependencies: []string{"stripe-go"}},
	}

	got := elasticsearch.ToArchived(d, "stripe", time.Now())
	require.Equal(t, d.CodeExamples, got.CodeExamples)
	require.Equal(t, []string{"POST /v1/charges"}, got.Endpoints)
	require.Equal(t, d.Authentication, got.Authentication)
	require.Equal(t, d.Requirements, got.Requirements)
}

func TestDeleteOlderThanLoopsUntilShortBatch(t *testing.T) {
	var n int
	c, fake := newClient(t, func(w http.ResponseWriter, r *http.Request, body string) {
		n++
		deleted := 500
		if n > 1 {
			deleted = 120
		}
		_, _ = io.WriteString(w, `{"deleted":`+strconv.Itoa(deleted)+`}`)
	})

	total, err := c.DeleteOlderThan(context.Background(), 30*24*time.Hour, 500)
	require.NoError(t, err)
	require.Equal(t, int64(620), total)

	calls := fake.calls()
	require.Len(t, calls, 2)
	require.Equal(t, "/docs/_delete_by_query", calls[0].Path)
	require.Contains(t, calls[0].Body, `"timestamp"`)
	require.Contains(t, calls[0].Body, `"max_docs":500`)
}

func TestEnsureIndexCreatesWhenMissing(t *testing.T) {
	c, fake := newClient(t, func(w http.ResponseWriter, r *http.Request, body string) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	})

	require.NoError(t, c.EnsureIndex(context.Background()))

	calls := fake.calls()
	require.Len(t, calls, 2)
	require.Equal(t, http.MethodHead, calls[0].Method)
	require.Equal(t, http.MethodPut, calls[1].Method)
	require.Equal(t, "/docs", calls[1].Path)
	require.Contains(t, calls[1].Body, `"timestamp":{"type":"date"}`)
}

func TestEnsureIndexExisting(t *testing.T) {
	c, fake := newClient(t, func(w http.ResponseWriter, r *http.Request, body string) {
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.EnsureIndex(context.Background()))
	require.Len(t, fake.calls(), 1)
}
