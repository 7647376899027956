package models

import "time"

// SearchResult is one hit returned by a search backend.
type SearchResult struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	SourceRank int    `json:"source_rank"`
}

// FetchStatus records how a fetch attempt ended.
type FetchStatus string

const (
	FetchOK         FetchStatus = "ok"
	FetchTimeout    FetchStatus = "timeout"
	FetchHTTPError  FetchStatus = "http_error"
	FetchParseError FetchStatus = "parse_error"
)

// FetchedDocument is the raw outcome of retrieving one URL.
// RawContent is empty unless Status is FetchOK.
type FetchedDocument struct {
	URL         string      `json:"url"`
	RawContent  string      `json:"-"`
	ContentType string      `json:"content_type,omitempty"`
	Status      FetchStatus `json:"fetch_status"`
	StatusCode  int         `json:"status_code,omitempty"`
	SourceRank  int         `json:"source_rank"`
	FetchedAt   time.Time   `json:"fetched_at"`
	Err         string      `json:"error,omitempty"`
}

// OK reports whether the document can be handed to the parser.
func (d FetchedDocument) OK() bool {
	return d.Status == FetchOK
}

// CodeExample is a code block found in a documentation page.
type CodeExample struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Endpoint is an HTTP method and path mentioned in a documentation page.
type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// String renders the endpoint as "METHOD path".
func (e Endpoint) String() string {
	return e.Method + " " + e.Path
}

// AuthInfo describes how a documentation page says to authenticate.
type AuthInfo struct {
	Type         string `json:"type,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	Example      string `json:"example,omitempty"`
}

// Empty reports whether nothing was found.
func (a *AuthInfo) Empty() bool {
	return a == nil || (a.Type == "" && a.Instructions == "" && a.Example == "")
}

// Requirements lists the prerequisites a documentation page names.
type Requirements struct {
	Version      string   `json:"version,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Empty reports whether nothing was found.
func (r *Requirements) Empty() bool {
	return r == nil || (r.Version == "" && len(r.Dependencies) == 0)
}

// ParsedDocument is the boilerplate-free text of a fetched page.
type ParsedDocument struct {
	URL            string        `json:"url"`
	Title          string        `json:"title"`
	BodyText       string        `json:"body_text"`
	Length         int           `json:"length"`
	SourceRank     int           `json:"source_rank"`
	CodeExamples   []CodeExample `json:"code_examples,omitempty"`
	Endpoints      []Endpoint    `json:"endpoints,omitempty"`
	Authentication *AuthInfo     `json:"authentication,omitempty"`
	Requirements   *Requirements `json:"requirements,omitempty"`
}

// RankedDocument is a parsed document scored against a request.
type RankedDocument struct {
	ParsedDocument
	RelevanceScore float64 `json:"relevance_score"`
}

// ArchivedDocument is the shape persisted in the documentation archive index.
type ArchivedDocument struct {
	ID             string        `json:"id"`
	URL            string        `json:"url"`
	Title          string        `json:"title"`
	Text           string        `json:"text"`
	Keywords       []string      `json:"keywords"`
	Service        string        `json:"service"`
	CodeExamples   []CodeExample `json:"code_examples,omitempty"`
	Endpoints      []string      `json:"endpoints,omitempty"`
	Authentication *AuthInfo     `json:"authentication,omitempty"`
	Requirements   *Requirements `json:"requirements,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}
