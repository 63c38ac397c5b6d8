package dedupe

import "strings"

// similarityStopwords are connective words that carry no identity. "a" stays:
// in transit titles it is a subway route as often as an article.
var similarityStopwords = map[string]struct{}{
	"an": {}, "the": {}, "and": {}, "or": {},
	"at": {}, "by": {}, "in": {}, "on": {}, "of": {}, "for": {}, "to": {},
	"from": {}, "with": {}, "after": {}, "before": {}, "as": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"this": {}, "that": {}, "its": {},
}

// synonymClasses folds the incident words outlets use interchangeably onto one
// token, so "delays" and "disrupted" land on the same canonical form. Applied
// after stemming.
var synonymClasses = map[string]string{
	"delay":       "disruption",
	"disrupt":     "disruption",
	"disruption":  "disruption",
	"issue":       "problem",
	"trouble":     "problem",
	"malfunction": "problem",
}

// Similarity computes the Jaccard similarity of two titles over canonical
// token sets: lowercased, punctuation stripped, stopwords removed, lightly
// stemmed, incident synonyms folded. 1 means identical canonical sets, 0
// means disjoint. Word order and repetition do not matter, so "Signal problem
// delays G train" stays close to "G Train Service Disrupted by Signal Issue"
// while topically adjacent but distinct events stay apart.
func Similarity(a, b string) float64 {
	setA, setB := canonicalSet(a), canonicalSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	common := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			common++
		}
	}
	union := len(setA) + len(setB) - common
	return float64(common) / float64(union)
}

func canonicalSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokens(s) {
		if _, skip := similarityStopwords[tok]; skip {
			continue
		}
		tok = stem(tok)
		if class, ok := synonymClasses[tok]; ok {
			tok = class
		}
		set[tok] = struct{}{}
	}
	return set
}

// stem strips the common English suffixes. Deliberately crude: it only has to
// map morphological variants of the same headline word together, and the
// length guards keep short words intact.
func stem(tok string) string {
	switch {
	case strings.HasSuffix(tok, "ies") && len(tok) > 4:
		return tok[:len(tok)-3] + "y"
	case strings.HasSuffix(tok, "ing") && len(tok) > 6:
		return tok[:len(tok)-3]
	case strings.HasSuffix(tok, "ed") && len(tok) > 5:
		return tok[:len(tok)-2]
	case strings.HasSuffix(tok, "s") && len(tok) > 3 &&
		!strings.HasSuffix(tok, "ss") && !strings.HasSuffix(tok, "us") && !strings.HasSuffix(tok, "is"):
		return tok[:len(tok)-1]
	}
	return tok
}
