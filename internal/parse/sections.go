package parse

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/processing"
)

const (
	headings = "h1, h2, h3, h4"

	authSelector         = ".authentication, #authentication"
	requirementsSelector = ".requirements, #requirements, .prerequisites, #prerequisites"

	maxAuthChars    = 600
	maxExampleChars = 300
	maxDependencies = 20
)

var (
	authHeading         = regexp.MustCompile(`(?i)\b(authenticat|authoriz)`)
	requirementsHeading = regexp.MustCompile(`(?i)\b(requirements|prerequisites)\b`)
	versionRegex        = regexp.MustCompile(`(?i)\bversion\s+(\d+\.[\dx.]*[\dx])`)
)

// authTypes is checked in order; the first marker found names the scheme.
var authTypes = []struct {
	marker string
	name   string
}{
	{"oauth", "OAuth"},
	{"bearer", "Bearer Token"},
	{"api key", "API Key"},
	{"api-key", "API Key"},
	{"apikey", "API Key"},
	{"basic auth", "Basic"},
}

// section returns the first element matching sel, or else the siblings that
// follow the first heading matching re, up to the next heading.
func section(dom *goquery.Document, sel string, re *regexp.Regexp) *goquery.Selection {
	if s := dom.Find(sel).First(); s.Length() > 0 {
		return s
	}
	var found *goquery.Selection
	dom.Find(headings).EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if re.MatchString(h.Text()) {
			found = h.NextUntil(headings)
			return false
		}
		return true
	})
	if found == nil || found.Length() == 0 {
		return nil
	}
	return found
}

func selectionText(s *goquery.Selection) string {
	var sb strings.Builder
	for _, n := range s.Nodes {
		sb.WriteString(blockText(n))
		sb.WriteString(" ")
	}
	return processing.CollapseWhitespace(sb.String())
}

func extractAuthentication(dom *goquery.Document) *models.AuthInfo {
	s := section(dom, authSelector, authHeading)
	if s == nil {
		return nil
	}
	text := selectionText(s)
	if text == "" {
		return nil
	}

	info := &models.AuthInfo{
		Type:         authType(text),
		Instructions: processing.TruncateAtSentence(text, maxAuthChars),
	}
	code := s.Filter("code, pre").First()
	if code.Length() == 0 {
		code = s.Find("code").First()
	}
	if example := strings.TrimSpace(code.Text()); example != "" {
		info.Example = processing.TruncateAtSentence(example, maxExampleChars)
	}
	return info
}

func authType(text string) string {
	lower := strings.ToLower(text)
	for _, t := range authTypes {
		if strings.Contains(lower, t.marker) {
			return t.name
		}
	}
	return ""
}

func extractRequirements(dom *goquery.Document) *models.Requirements {
	s := section(dom, requirementsSelector, requirementsHeading)
	if s == nil {
		return nil
	}

	req := &models.Requirements{}
	if m := versionRegex.FindStringSubmatch(selectionText(s)); m != nil {
		req.Version = m[1]
	}
	s.Find("li").AddSelection(s.Filter("li")).EachWithBreak(func(_ int, li *goquery.Selection) bool {
		if dep := processing.CollapseWhitespace(li.Text()); dep != "" {
			req.Dependencies = append(req.Dependencies, dep)
		}
		return len(req.Dependencies) < maxDependencies
	})

	if req.Empty() {
		return nil
	}
	return req
}
