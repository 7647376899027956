package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "for": {}, "of": {}, "on": {},
	"and": {}, "or": {}, "with": {}, "from": {}, "by": {}, "at": {}, "as": {}, "is": {},
	"are": {}, "be": {}, "it": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"can": {}, "will": {}, "should": {}, "must": {}, "into": {}, "using": {}, "use": {},
	"how": {}, "what": {}, "when": {}, "which": {}, "you": {}, "your": {}, "our": {},
	"we": {}, "i": {}, "my": {}, "me": {}, "all": {}, "any": {}, "some": {}, "new": {},
	"want": {}, "need": {}, "via": {}, "then": {}, "also": {}, "not": {}, "but": {},
}

// sentenceTerminators end a sentence for excerpt truncation.
const sentenceTerminators = ".!?。"

// RemoveURLs removes all URLs from the input text.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// CollapseWhitespace squeezes runs of whitespace into single spaces and trims the ends.
func CollapseWhitespace(input string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(input, " "))
}

// CleanText strips HTML entities, punctuation, squeezes whitespace, and removes URLs.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = RemoveURLs(decoded)
	decoded = punctuation.ReplaceAllString(decoded, " ")
	return CollapseWhitespace(decoded)
}

// IsStopword reports whether token is ignored by keyword and term extraction.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

// Tokenize lower-cases text and returns its non-stopword tokens of at least minLen runes.
func Tokenize(text string, minLen int) []string {
	clean := strings.ToLower(CleanText(text))
	if clean == "" {
		return nil
	}

	fields := strings.Fields(clean)
	out := make([]string, 0, len(fields))
	for _, token := range fields {
		token = strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if token == "" || utf8.RuneCountInString(token) < minLen {
			continue
		}
		if IsStopword(token) {
			continue
		}
		out = append(out, token)
	}
	return out
}

// TermFrequencies counts the tokens of text.
func TermFrequencies(text string, minLen int) map[string]int {
	freq := make(map[string]int)
	for _, token := range Tokenize(text, minLen) {
		freq[token]++
	}
	return freq
}

// ExtractKeywords returns the most frequent words that are not stop-words.
// Ties are broken alphabetically so the result is stable.
func ExtractKeywords(text string, limit, minLen int) []string {
	freq := TermFrequencies(text, minLen)
	if len(freq) == 0 {
		return nil
	}

	type kv struct {
		word  string
		count int
	}

	pairs := make([]kv, 0, len(freq))
	for word, count := range freq {
		pairs = append(pairs, kv{word: word, count: count})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count == pairs[j].count {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].count > pairs[j].count
	})

	max := limit
	if max <= 0 || max > len(pairs) {
		max = len(pairs)
	}

	keywords := make([]string, 0, max)
	for i := 0; i < max; i++ {
		keywords = append(keywords, pairs[i].word)
	}

	return keywords
}

// BuildDocumentID hashes a URL into a stable archive identifier.
func BuildDocumentID(url string) string {
	s := sha1.Sum([]byte(strings.TrimSpace(url)))
	return hex.EncodeToString(s[:])
}

// GenerateTitleFromText creates a title from the first sentence or first N words of text.
// Returns empty string if text is empty.
func GenerateTitleFromText(text string, maxWords int) string {
	if text == "" {
		return ""
	}

	textWithoutURLs := RemoveURLs(text)

	sentenceEnd := strings.IndexAny(textWithoutURLs, ".!?\n")
	var firstSentence string
	if sentenceEnd > 0 {
		firstSentence = strings.TrimSpace(textWithoutURLs[:sentenceEnd])
	} else {
		firstSentence = textWithoutURLs
	}

	words := strings.Fields(firstSentence)
	if len(words) == 0 {
		return ""
	}

	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
		return strings.Join(words, " ") + "..."
	}

	return strings.Join(words, " ")
}

// TruncateAtSentence shortens text to at most limit runes. It cuts after the last
// sentence terminator inside the limit when one lies in the second half, otherwise
// at the last space, otherwise exactly at the limit.
func TruncateAtSentence(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	cut := runes[:limit]
	half := limit / 2

	for i := len(cut) - 1; i >= half; i-- {
		if strings.ContainsRune(sentenceTerminators, cut[i]) {
			return strings.TrimSpace(string(cut[:i+1]))
		}
	}
	for i := len(cut) - 1; i >= half; i-- {
		if unicode.IsSpace(cut[i]) {
			return strings.TrimSpace(string(cut[:i]))
		}
	}
	return string(cut)
}
