package models

import (
	"time"
	"unicode/utf8"
)

// Excerpt is the bounded slice of one ranked document included in a context.
// Everything it carries counts toward the context budget.
type Excerpt struct {
	URL            string        `json:"url"`
	Title          string        `json:"title"`
	Text           string        `json:"excerpt_text"`
	Score          float64       `json:"relevance_score"`
	Endpoints      []Endpoint    `json:"endpoints,omitempty"`
	Authentication *AuthInfo     `json:"authentication,omitempty"`
	Requirements   *Requirements `json:"requirements,omitempty"`
	CodeExamples   []CodeExample `json:"code_examples,omitempty"`
}

// Size returns the number of runes the excerpt contributes to a context budget.
func (e Excerpt) Size() int {
	n := utf8.RuneCountInString(e.Text)
	for _, ep := range e.Endpoints {
		n += EndpointSize(ep)
	}
	n += AuthSize(e.Authentication)
	n += RequirementsSize(e.Requirements)
	for _, c := range e.CodeExamples {
		n += CodeExampleSize(c)
	}
	return n
}

// EndpointSize is the budget cost of one endpoint.
func EndpointSize(ep Endpoint) int {
	return utf8.RuneCountInString(ep.String())
}

// AuthSize is the budget cost of authentication notes.
func AuthSize(a *AuthInfo) int {
	if a.Empty() {
		return 0
	}
	return utf8.RuneCountInString(a.Type) + utf8.RuneCountInString(a.Instructions) + utf8.RuneCountInString(a.Example)
}

// RequirementsSize is the budget cost of a requirements list.
func RequirementsSize(r *Requirements) int {
	if r.Empty() {
		return 0
	}
	n := utf8.RuneCountInString(r.Version)
	for _, d := range r.Dependencies {
		n += utf8.RuneCountInString(d)
	}
	return n
}

// CodeExampleSize is the budget cost of one code example.
func CodeExampleSize(c CodeExample) int {
	return utf8.RuneCountInString(c.Code)
}

// AssembledContext is the payload handed to the generation service.
type AssembledContext struct {
	RequestID   string             `json:"request_id,omitempty"`
	Request     IntegrationRequest `json:"request"`
	Excerpts    []Excerpt          `json:"excerpts"`
	TotalChars  int                `json:"total_chars"`
	Budget      int                `json:"budget"`
	AssembledAt time.Time          `json:"assembled_at"`
}

// Chars returns the budget size of all excerpts.
func (c AssembledContext) Chars() int {
	n := 0
	for _, e := range c.Excerpts {
		n += e.Size()
	}
	return n
}

// Sources lists the excerpt URLs in order.
func (c AssembledContext) Sources() []string {
	out := make([]string, 0, len(c.Excerpts))
	for _, e := range c.Excerpts {
		out = append(out, e.URL)
	}
	return out
}

// CodeBlock is a fenced block extracted from a generation reply.
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Filename string `json:"filename"`
}

// GenerationResult is what the generation service returned for a context.
type GenerationResult struct {
	RequestID    string      `json:"request_id,omitempty"`
	Model        string      `json:"model"`
	Content      string      `json:"content"`
	CodeBlocks   []CodeBlock `json:"code_blocks"`
	Sources      []string    `json:"sources"`
	InputTokens  int64       `json:"input_tokens"`
	OutputTokens int64       `json:"output_tokens"`
}
