package parse

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// BlockScorer rates how likely a container element is to hold the main text
// of a page. The parser keeps the highest scoring candidate.
type BlockScorer interface {
	Score(n *html.Node) float64
}

// DensityScorer prefers large blocks with a high text-to-tag ratio and few links.
// Score = text · density/(density+Smoothing) · (1 - linkShare), boosted for
// main and article elements.
type DensityScorer struct {
	// Smoothing damps the density term so that small, tag-free fragments do not
	// beat long sections. Zero means 10.
	Smoothing float64
	// MinText discards candidates with fewer runes of text. Zero means 25.
	MinText int
}

var semanticBoost = map[string]float64{
	"main":    1.5,
	"article": 1.5,
}

// Score implements BlockScorer.
func (s DensityScorer) Score(n *html.Node) float64 {
	if n == nil || n.Type != html.ElementNode {
		return 0
	}
	smoothing := s.Smoothing
	if smoothing <= 0 {
		smoothing = 10
	}
	minText := s.MinText
	if minText <= 0 {
		minText = 25
	}

	st := measure(n)
	if st.text < minText {
		return 0
	}

	text := float64(st.text)
	density := text / float64(st.tags+1)
	linkShare := float64(st.linkText) / text
	if linkShare > 1 {
		linkShare = 1
	}

	score := text * (density / (density + smoothing)) * (1 - linkShare)
	if boost, ok := semanticBoost[n.Data]; ok {
		score *= boost
	}
	for _, a := range n.Attr {
		if a.Key == "role" && a.Val == "main" {
			score *= 1.5
			break
		}
	}
	return score
}

type blockStats struct {
	text     int
	tags     int
	linkText int
}

func measure(root *html.Node) blockStats {
	var st blockStats
	var walk func(n *html.Node, inLink bool)
	walk = func(n *html.Node, inLink bool) {
		switch n.Type {
		case html.TextNode:
			l := utf8.RuneCountInString(strings.TrimSpace(n.Data))
			st.text += l
			if inLink {
				st.linkText += l
			}
		case html.ElementNode:
			if n != root {
				st.tags++
			}
			if n.Data == "a" {
				inLink = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inLink)
		}
	}
	walk(root, false)
	return st
}
