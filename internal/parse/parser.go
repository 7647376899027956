// Package parse extracts the main text of documentation pages.
package parse

import (
	"io"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
	"golang.org/x/net/html"

	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/processing"
)

const (
	boilerplate = "script, style, noscript, nav, footer, header, aside, iframe, svg, form, template"
	candidates  = "body, main, article, section, div, td, [role=main]"

	maxCodeExamples = 20
	maxEndpoints    = 20
)

var endpointRegex = regexp.MustCompile(`\b(GET|POST|PUT|PATCH|DELETE|HEAD|OPTIONS)\s+(/[A-Za-z0-9_\-./{}:~%]*)`)

var blockElements = map[string]struct{}{
	"p": {}, "div": {}, "section": {}, "article": {}, "main": {}, "li": {}, "ul": {}, "ol": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {}, "pre": {}, "table": {},
	"tr": {}, "td": {}, "th": {}, "br": {}, "blockquote": {}, "dd": {}, "dt": {},
}

// Parser converts fetched documents into ParsedDocuments.
type Parser struct {
	scorer BlockScorer
	log    *slog.Logger
}

// New creates a Parser. A nil scorer selects DensityScorer.
func New(scorer BlockScorer, logger *slog.Logger) *Parser {
	if scorer == nil {
		scorer = DensityScorer{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Parser{scorer: scorer, log: logger}
}

// ParseAll parses every successfully fetched document, preserving order.
func (p *Parser) ParseAll(docs []models.FetchedDocument) []models.ParsedDocument {
	out := make([]models.ParsedDocument, 0, len(docs))
	for _, d := range docs {
		if !d.OK() {
			continue
		}
		out = append(out, p.Parse(d))
	}
	return out
}

// Parse never fails: unusable input yields a document with Length 0.
func (p *Parser) Parse(doc models.FetchedDocument) (parsed models.ParsedDocument) {
	parsed = empty(doc)
	if !doc.OK() || strings.TrimSpace(doc.RawContent) == "" {
		return parsed
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("parse panic", slog.String("url", doc.URL), slog.Any("panic", r))
			parsed = empty(doc)
		}
	}()

	if doc.ContentType == "text/plain" {
		return p.parsePlain(doc)
	}
	return p.parseHTML(doc)
}

func (p *Parser) parsePlain(doc models.FetchedDocument) models.ParsedDocument {
	out := empty(doc)
	body := processing.CollapseWhitespace(doc.RawContent)
	if title := processing.GenerateTitleFromText(doc.RawContent, 12); title != "" {
		out.Title = title
	}
	out.BodyText = body
	out.Length = utf8.RuneCountInString(body)
	out.Endpoints = extractEndpoints(body)
	return out
}

func (p *Parser) parseHTML(doc models.FetchedDocument) models.ParsedDocument {
	out := empty(doc)

	dom, err := goquery.NewDocumentFromReader(strings.NewReader(doc.RawContent))
	if err != nil {
		p.log.Debug("malformed html", slog.String("url", doc.URL), slog.Any("err", err))
		return out
	}

	out.Title = extractTitle(dom, doc.RawContent, doc.URL)

	dom.Find(boilerplate).Remove()

	out.CodeExamples = extractCodeExamples(dom)
	out.Authentication = extractAuthentication(dom)
	out.Requirements = extractRequirements(dom)

	best := p.bestBlock(dom)
	if best == nil {
		return out
	}

	body := processing.CollapseWhitespace(blockText(best))
	out.BodyText = body
	out.Length = utf8.RuneCountInString(body)
	out.Endpoints = extractEndpoints(body)
	return out
}

func (p *Parser) bestBlock(dom *goquery.Document) *html.Node {
	var (
		best      *html.Node
		bestScore float64
	)
	dom.Find(candidates).Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if score := p.scorer.Score(n); score > bestScore {
			best, bestScore = n, score
		}
	})
	if best == nil {
		if body := dom.Find("body").Get(0); body != nil {
			return body
		}
	}
	return best
}

func empty(doc models.FetchedDocument) models.ParsedDocument {
	return models.ParsedDocument{
		URL:        doc.URL,
		Title:      doc.URL,
		SourceRank: doc.SourceRank,
	}
}

func extractTitle(dom *goquery.Document, raw, fallback string) string {
	if title := processing.CollapseWhitespace(dom.Find("title").First().Text()); title != "" {
		return title
	}

	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(strings.NewReader(raw)); err == nil {
		if title := processing.CollapseWhitespace(og.Title); title != "" {
			return title
		}
	}

	if h1 := processing.CollapseWhitespace(dom.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return fallback
}

// blockText renders the text under n, separating block-level elements.
func blockText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			_, block := blockElements[n.Data]
			if block {
				sb.WriteString(" ")
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			if block {
				sb.WriteString(" ")
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func extractCodeExamples(dom *goquery.Document) []models.CodeExample {
	var out []models.CodeExample
	dom.Find("pre").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		code := strings.TrimSpace(s.Text())
		if code == "" {
			return true
		}
		lang := languageOf(s)
		if lang == "" {
			lang = languageOf(s.Find("code").First())
		}
		if lang == "" {
			lang = "text"
		}
		out = append(out, models.CodeExample{Language: lang, Code: code})
		return len(out) < maxCodeExamples
	})
	return out
}

func languageOf(s *goquery.Selection) string {
	class, ok := s.Attr("class")
	if !ok {
		return ""
	}
	for _, c := range strings.Fields(class) {
		for _, prefix := range []string{"language-", "lang-"} {
			if strings.HasPrefix(c, prefix) && len(c) > len(prefix) {
				return strings.ToLower(strings.TrimPrefix(c, prefix))
			}
		}
	}
	return ""
}

func extractEndpoints(text string) []models.Endpoint {
	matches := endpointRegex.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]models.Endpoint, 0, len(matches))
	for _, m := range matches {
		path := strings.TrimRight(m[2], ".,:")
		if path == "" {
			continue
		}
		key := m[1] + " " + path
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, models.Endpoint{Method: m[1], Path: path})
		if len(out) == maxEndpoints {
			break
		}
	}
	return out
}
