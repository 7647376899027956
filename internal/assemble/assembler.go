// Package assemble builds the size-bounded context handed to generation.
package assemble

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/processing"
)

// Assembler packs ranked documents into a character budget.
type Assembler struct {
	budget int
	cap    int
}

// New creates an Assembler. budget bounds the total excerpt runes; perDocCap
// bounds each excerpt and defaults to budget when non-positive.
func New(budget, perDocCap int) *Assembler {
	if budget < 0 {
		budget = 0
	}
	if perDocCap <= 0 || perDocCap > budget {
		perDocCap = budget
	}
	return &Assembler{budget: budget, cap: perDocCap}
}

// Budget returns the configured total character budget.
func (a *Assembler) Budget() int {
	return a.budget
}

// Assemble includes documents in the given order until the next excerpt would
// overflow the budget; that document and the rest are dropped.
func (a *Assembler) Assemble(req models.IntegrationRequest, ranked []models.RankedDocument) models.AssembledContext {
	out := models.AssembledContext{
		Request:  req,
		Excerpts: make([]models.Excerpt, 0, len(ranked)),
		Budget:   a.budget,
	}

	for _, d := range ranked {
		text := processing.TruncateAtSentence(d.BodyText, a.cap)
		if utf8.RuneCountInString(text) == 0 {
			continue
		}
		e := a.excerpt(d, text)
		n := e.Size()
		if out.TotalChars+n > a.budget {
			break
		}
		out.Excerpts = append(out.Excerpts, e)
		out.TotalChars += n
	}
	return out
}

// excerpt attaches the document's endpoints, authentication notes,
// requirements and code examples, in that order, skipping any that would push
// the excerpt past the per-document cap.
func (a *Assembler) excerpt(d models.RankedDocument, text string) models.Excerpt {
	e := models.Excerpt{
		URL:   d.URL,
		Title: d.Title,
		Text:  text,
		Score: d.RelevanceScore,
	}
	size := utf8.RuneCountInString(text)
	fits := func(n int) bool {
		if n == 0 || size+n > a.cap {
			return false
		}
		size += n
		return true
	}

	for _, ep := range d.Endpoints {
		if fits(models.EndpointSize(ep)) {
			e.Endpoints = append(e.Endpoints, ep)
		}
	}
	if fits(models.AuthSize(d.Authentication)) {
		e.Authentication = d.Authentication
	}
	if fits(models.RequirementsSize(d.Requirements)) {
		e.Requirements = d.Requirements
	}
	for _, c := range d.CodeExamples {
		if fits(models.CodeExampleSize(c)) {
			e.CodeExamples = append(e.CodeExamples, c)
		}
	}
	return e
}

// Render formats the context as the prompt body sent to the generation service.
func Render(c models.AssembledContext) string {
	var sb strings.Builder
	req := c.Request

	fmt.Fprintf(&sb, "Service: %s\n", req.ServiceName)
	if req.IntegrationType != "" {
		fmt.Fprintf(&sb, "Integration type: %s\n", req.IntegrationType)
	}
	if req.AuthenticationType != "" {
		fmt.Fprintf(&sb, "Authentication: %s\n", req.AuthenticationType)
	}
	if len(req.Endpoints) > 0 {
		fmt.Fprintf(&sb, "Endpoints: %s\n", strings.Join(req.Endpoints, ", "))
	}
	fmt.Fprintf(&sb, "Requirements: %s\n", req.Description)

	sb.WriteString("\nDocumentation excerpts:\n")
	for i, e := range c.Excerpts {
		fmt.Fprintf(&sb, "\n[%d] %s\nSource: %s\n%s\n", i+1, e.Title, e.URL, e.Text)
		renderDetails(&sb, e)
	}
	return sb.String()
}

func renderDetails(sb *strings.Builder, e models.Excerpt) {
	if len(e.Endpoints) > 0 {
		sb.WriteString("Endpoints found:\n")
		for _, ep := range e.Endpoints {
			fmt.Fprintf(sb, "- %s\n", ep)
		}
	}
	if a := e.Authentication; !a.Empty() {
		sb.WriteString("Authentication notes:")
		if a.Type != "" {
			fmt.Fprintf(sb, " (%s)", a.Type)
		}
		sb.WriteString("\n")
		if a.Instructions != "" {
			fmt.Fprintf(sb, "%s\n", a.Instructions)
		}
		if a.Example != "" {
			fmt.Fprintf(sb, "Example: %s\n", a.Example)
		}
	}
	if r := e.Requirements; !r.Empty() {
		sb.WriteString("Prerequisites:\n")
		if r.Version != "" {
			fmt.Fprintf(sb, "- version %s\n", r.Version)
		}
		for _, d := range r.Dependencies {
			fmt.Fprintf(sb, "- %s\n", d)
		}
	}
	for _, c := range e.CodeExamples {
		fmt.Fprintf(sb, "```%s\n%s\n```\n", c.Language, c.Code)
	}
}
