// Package rank scores parsed documents against an integration request.
package rank

import (
	"sort"
	"strings"

	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/processing"
)

const (
	overlapWeight  = 0.9
	urlBonusWeight = 0.1

	// tfSaturation caps how many occurrences of one term still raise the score.
	tfSaturation = 3
	titleFactor  = 2

	minTermLen      = 2
	descriptionTerm = 8
)

var docIndicators = []string{
	"docs.", "developer.", "developers.", "api.", "documentation.",
	"/docs/", "/api/", "/developer/", "/reference/",
}

// Ranker orders documents by lexical overlap with the request.
type Ranker struct {
	topK int
}

// New creates a Ranker keeping at most topK documents. topK <= 0 keeps all.
func New(topK int) *Ranker {
	return &Ranker{topK: topK}
}

// Rank drops empty documents, scores the rest and returns them sorted by score
// descending, then by SourceRank ascending.
func (r *Ranker) Rank(req models.IntegrationRequest, docs []models.ParsedDocument) []models.RankedDocument {
	terms := RequestTerms(req)

	ranked := make([]models.RankedDocument, 0, len(docs))
	for _, d := range docs {
		if d.Length <= 0 {
			continue
		}
		ranked = append(ranked, models.RankedDocument{
			ParsedDocument: d,
			RelevanceScore: Score(terms, d),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		if a.SourceRank != b.SourceRank {
			return a.SourceRank < b.SourceRank
		}
		return a.URL < b.URL
	})

	if r.topK > 0 && len(ranked) > r.topK {
		ranked = ranked[:r.topK]
	}
	return ranked
}

// RequestTerms maps each normalised request term to its weight. Service and
// integration type terms weigh 2, endpoint and description terms 1.
func RequestTerms(req models.IntegrationRequest) map[string]float64 {
	req = req.Normalize()
	terms := make(map[string]float64)
	add := func(tokens []string, w float64) {
		for _, t := range tokens {
			t = fold(t)
			if terms[t] < w {
				terms[t] = w
			}
		}
	}

	add(processing.Tokenize(req.ServiceName, minTermLen), 2)
	add(processing.Tokenize(req.IntegrationType, minTermLen), 2)
	add(processing.Tokenize(strings.Join(req.Endpoints, " "), 3), 1)
	add(processing.ExtractKeywords(req.Description, descriptionTerm, 3), 1)
	return terms
}

// Score returns a value in [0,1] for doc given weighted request terms.
func Score(terms map[string]float64, doc models.ParsedDocument) float64 {
	var overlap float64
	if len(terms) > 0 {
		body := foldedFrequencies(doc.BodyText)
		title := foldedFrequencies(doc.Title)

		keys := make([]string, 0, len(terms))
		for term := range terms {
			keys = append(keys, term)
		}
		sort.Strings(keys)

		var total, hit float64
		for _, term := range keys {
			w := terms[term]
			total += w
			tf := body[term] + titleFactor*title[term]
			if tf > tfSaturation {
				tf = tfSaturation
			}
			hit += w * float64(tf) / tfSaturation
		}
		if total > 0 {
			overlap = hit / total
		}
	}

	score := overlapWeight*overlap + urlBonusWeight*urlBonus(doc.URL)
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}

// IsDocumentationURL reports whether url looks like official documentation.
func IsDocumentationURL(url string) bool {
	return urlBonus(url) > 0
}

func urlBonus(url string) float64 {
	lower := strings.ToLower(url)
	for _, ind := range docIndicators {
		if strings.Contains(lower, ind) {
			return 1
		}
	}
	return 0
}

func foldedFrequencies(text string) map[string]int {
	out := make(map[string]int)
	for _, t := range processing.Tokenize(text, minTermLen) {
		out[fold(t)]++
	}
	return out
}

// fold collapses simple English plurals so "issues" matches "issue".
func fold(t string) string {
	switch {
	case len(t) > 4 && strings.HasSuffix(t, "ies"):
		return t[:len(t)-3] + "y"
	case len(t) > 3 && strings.HasSuffix(t, "s") && !strings.HasSuffix(t, "ss"):
		return t[:len(t)-1]
	}
	return t
}
