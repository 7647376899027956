package processing_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/docs-radar/backend/internal/processing"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "punctuation", input: "Hello!!!   world", want: "Hello world"},
		{name: "collapse whitespace", input: "foo\n\nbar\t baz", want: "foo bar baz"},
		{name: "remove urls", input: "Check https://example.com for info", want: "Check for info"},
		{name: "entities", input: "GET&nbsp;/repos &amp; issues", want: "GET repos issues"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := processing.CleanText(tt.input); got != tt.want {
				t.Fatalf("CleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	got := processing.Tokenize("List the Repositories, and create Issues via /repos/{owner}", 3)
	require.Equal(t, []string{"list", "repositories", "create", "issues", "repos", "owner"}, got)

	require.Nil(t, processing.Tokenize("", 2))
}

func TestExtractKeywords(t *testing.T) {
	text := "issues issues repos repos repos token and and webhook"
	got := processing.ExtractKeywords(text, 3, 3)
	require.Equal(t, []string{"repos", "issues", "token"}, got)

	require.Nil(t, processing.ExtractKeywords("", 5, 3))
}

func TestExtractKeywordsIgnoresURLWords(t *testing.T) {
	text := "webhook events events https://example.com/hooks-guide delivery"
	got := processing.ExtractKeywords(text, 3, 3)
	require.ElementsMatch(t, []string{"events", "delivery", "webhook"}, got)
}

func TestBuildDocumentID(t *testing.T) {
	id1 := processing.BuildDocumentID("https://docs.github.com/rest")
	id2 := processing.BuildDocumentID(" https://docs.github.com/rest ")
	require.NotEmpty(t, id1)
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, processing.BuildDocumentID("https://docs.github.com/graphql"))
}

func TestGenerateTitleFromText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxWords int
		want     string
	}{
		{name: "empty", text: "", maxWords: 10, want: ""},
		{name: "single sentence", text: "Authenticating with the REST API.", maxWords: 10, want: "Authenticating with the REST API"},
		{name: "first line", text: "Webhooks guide\nDeliveries are retried.", maxWords: 10, want: "Webhooks guide"},
		{name: "long text truncated", text: "Use personal access tokens to call every endpoint of the API", maxWords: 5, want: "Use personal access tokens to..."},
		{name: "unlimited words", text: "Rate limits for the API", maxWords: 0, want: "Rate limits for the API"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.GenerateTitleFromText(tt.text, tt.maxWords))
		})
	}
}

func TestTruncateAtSentence(t *testing.T) {
	text := "First sentence here. Second sentence follows. Third one is long"

	tests := []struct {
		name  string
		limit int
		want  string
	}{
		{name: "fits", limit: 200, want: text},
		{name: "cuts at terminator", limit: 50, want: "First sentence here. Second sentence follows."},
		{name: "falls back to space", limit: 18, want: "First sentence"},
		{name: "zero", limit: 0, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := processing.TruncateAtSentence(text, tt.limit)
			require.Equal(t, tt.want, got)
			require.LessOrEqual(t, utf8.RuneCountInString(got), max(tt.limit, 0))
		})
	}
}

func TestTruncateAtSentenceHardCut(t *testing.T) {
	text := strings.Repeat("x", 40)
	require.Equal(t, strings.Repeat("x", 10), processing.TruncateAtSentence(text, 10))
}
