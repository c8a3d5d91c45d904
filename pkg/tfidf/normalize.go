package tfidf

import (
	"strings"
	"unicode"
)

var (
	// Define common abbreviations
	abbreviations = map[string]string{
		"avenue":    "ave",
		"boulevard": "blvd",
		"parkway":   "pkwy",
		"circle":    "cir",
		"court":     "ct",
		"center":    "ctr",
		"drive":     "dr",
		"highway":   "hwy",
		"lane":      "ln",
		"place":     "pl",
		"road":      "rd",
		"street":    "st",
		"terrace":   "ter",
		"northwest": "nw",
		"southeast": "se",
		"southwest": "sw",
		"northeast": "ne",
		"suite":     "ste",
		"apartment": "apt",
		"floor":     "fl",
		"north":     "n",
		"south":     "s",
		"east":      "e",
		"west":      "w",
	}
)

// Normalize lowercases text, drops punctuation and symbols, collapses runs
// of whitespace and shortens common address words, so that spelling
// variants land on the same vocabulary terms.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))

	text = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, text)

	words := strings.Fields(text)
	for i, w := range words {
		if abbr, ok := abbreviations[w]; ok {
			words[i] = abbr
		}
	}
	return strings.Join(words, " ")
}
