// Package compat ranks candidate conversation partners for a seeker.
//
// Scores mix topic similarity between free-text prompts with a points-based
// comparison of structured profile fields. It is a heuristic, not a model:
// the keyword lists and region table below are curated by hand.
package compat

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {}, "have": {}, "has": {},
	"had": {}, "are": {}, "was": {}, "were": {}, "been": {}, "being": {}, "but": {}, "not": {},
	"you": {}, "your": {}, "our": {}, "ours": {}, "their": {}, "they": {}, "them": {}, "she": {},
	"her": {}, "his": {}, "him": {}, "its": {}, "who": {}, "whom": {}, "what": {}, "which": {},
	"when": {}, "where": {}, "why": {}, "how": {}, "all": {}, "any": {}, "can": {}, "could": {},
	"would": {}, "should": {}, "will": {}, "just": {}, "about": {}, "from": {}, "into": {},
	"since": {}, "some": {}, "such": {}, "than": {}, "then": {}, "there": {}, "these": {},
	"those": {}, "too": {}, "very": {}, "also": {}, "really": {}, "like": {}, "want": {},
	"anyone": {}, "else": {}, "much": {}, "more": {}, "most": {}, "other": {}, "over": {},
	"only": {}, "own": {}, "same": {}, "out": {}, "off": {}, "did": {}, "does": {}, "doing": {},
	"get": {}, "got": {}, "let": {}, "lot": {}, "lots": {}, "i'm": {}, "im": {}, "ive": {},
	"dont": {}, "didnt": {}, "doesnt": {}, "isnt": {}, "wasnt": {}, "mine": {}, "myself": {},
}

// Tokenize lowercases text, strips punctuation other than hyphens and drops
// stop words and tokens of two characters or fewer.
func Tokenize(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len([]rune(f)) <= 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
