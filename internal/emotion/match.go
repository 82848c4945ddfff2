package emotion

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultFuzzyThreshold    = 0.92
	defaultPhoneticThreshold = 0.85

	// minFuzzyLen is the shortest word that may match a keyword without
	// being spelled exactly. Short words ("mad", "joy") produce too many
	// near-misses.
	minFuzzyLen = 5
)

// matcher decides whether a transcribed word is a keyword. Speech
// recognisers misspell emotional words often enough ("anxios", "exausted")
// that exact matching misses real signals, so near matches are accepted by
// Jaro-Winkler similarity or by a shared Double Metaphone code backed by a
// slightly lower similarity.
type matcher struct {
	fuzzyThreshold    float64
	phoneticThreshold float64
}

func (m matcher) match(word, keyword string) bool {
	if word == keyword {
		return true
	}
	if len(word) < minFuzzyLen || len(keyword) < minFuzzyLen {
		return false
	}
	score := matchr.JaroWinkler(word, keyword, false)
	if score >= m.fuzzyThreshold {
		return true
	}
	return score >= m.phoneticThreshold && codesOverlap(word, keyword)
}

// codesOverlap reports whether a and b share a Double Metaphone code.
func codesOverlap(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

// normalize lower-cases text and folds typographic apostrophes.
func normalize(text string) string {
	text = strings.ToLower(text)
	return strings.NewReplacer("’", "'", "‘", "'").Replace(text)
}

// tokenize splits normalized text into words of letters, digits,
// apostrophes and hyphens.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
}

// containsPhrase reports whether the token sequence phrase occurs in words.
func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(words) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(words); i++ {
		for j, p := range phrase {
			if words[i+j] != p {
				continue outer
			}
		}
		return true
	}
	return false
}
