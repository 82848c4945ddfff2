// Package emotion detects the dominant emotion in a user message and derives
// the companion's reaction from it: a conversational mode, a tone of voice
// and a coping suggestion. Messages that signal a crisis are flagged so the
// caller can answer with crisis resources instead of a normal reply.
//
// Detection is keyword based. Each message is tokenised and every token is
// compared with the keyword lists of six categories, tolerating the
// misspellings typical of speech recognition. A message without any keyword
// falls back to its sentiment polarity: clearly negative reads as sad and
// clearly positive as happy.
package emotion

import (
	"math/rand/v2"
	"strings"
)

// Emotion categories, in tie-breaking order.
const (
	Sad     = "sad"
	Anxious = "anxious"
	Lonely  = "lonely"
	Angry   = "angry"
	Happy   = "happy"
	Tired   = "tired"
	Neutral = "neutral"
)

// category is one emotion with its trigger words. Keywords may be phrases.
type category struct {
	name     string
	keywords []string
}

var categories = []category{
	{Sad, []string{"sad", "down", "depressed", "unhappy", "miserable", "heartbroken", "grief"}},
	{Anxious, []string{"anxious", "worried", "nervous", "stressed", "panic", "fear", "scared"}},
	{Lonely, []string{"lonely", "alone", "isolated", "disconnected", "empty", "abandoned"}},
	{Angry, []string{"angry", "mad", "furious", "irritated", "frustrated", "upset"}},
	{Happy, []string{"happy", "joy", "excited", "great", "wonderful", "amazing", "good"}},
	{Tired, []string{"tired", "exhausted", "drained", "fatigued", "weary", "burned out"}},
}

// intensifiers raise the intensity of whatever emotion was detected.
var intensifiers = map[string]struct{}{
	"very": {}, "so": {}, "really": {}, "extremely": {}, "completely": {},
	"totally": {}, "incredibly": {}, "super": {}, "too": {}, "always": {},
}

// Analysis is the outcome of analysing one message.
type Analysis struct {
	// Primary is the dominant category, or Neutral.
	Primary string

	// Hits maps each matched category to its number of distinct keyword
	// matches.
	Hits map[string]int

	// Intensity in [0, 1]. Zero for neutral messages.
	Intensity float64

	// Crisis is set when the message contains a crisis phrase.
	Crisis bool

	// Sentiment is the lexicon score of the whole message.
	Sentiment Sentiment
}

// Option configures an [Analyzer].
type Option func(*Analyzer)

// WithFuzzyThreshold sets the Jaro-Winkler score at which a misspelled word
// counts as a keyword. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(a *Analyzer) { a.match.fuzzyThreshold = threshold }
}

// WithPhoneticThreshold sets the lower Jaro-Winkler score accepted when the
// word and keyword also share a Double Metaphone code. Default: 0.85.
func WithPhoneticThreshold(threshold float64) Option {
	return func(a *Analyzer) { a.match.phoneticThreshold = threshold }
}

// WithPicker replaces the random choice of coping suggestions. pick(n) must
// return a value in [0, n).
func WithPicker(pick func(n int) int) Option {
	return func(a *Analyzer) {
		if pick != nil {
			a.pick = pick
		}
	}
}

// Analyzer is safe for concurrent use; it is read-only after construction.
type Analyzer struct {
	match matcher
	pick  func(n int) int
}

// New returns an Analyzer configured with the supplied options.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		match: matcher{
			fuzzyThreshold:    defaultFuzzyThreshold,
			phoneticThreshold: defaultPhoneticThreshold,
		},
		pick: rand.IntN,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze classifies text.
func (a *Analyzer) Analyze(text string) Analysis {
	norm := normalize(text)
	words := tokenize(norm)
	res := Analysis{
		Primary:   Neutral,
		Hits:      make(map[string]int),
		Crisis:    IsCrisis(text),
		Sentiment: analyzeSentiment(words),
	}

	best, total := 0, 0
	for _, c := range categories {
		n := 0
		for _, kw := range c.keywords {
			if a.contains(words, kw) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		res.Hits[c.name] = n
		total += n
		if n > best {
			best = n
			res.Primary = c.name
		}
	}
	if res.Primary == Neutral {
		switch p := res.Sentiment.Polarity; {
		case p < sadPolarity:
			res.Primary = Sad
		case p > happyPolarity:
			res.Primary = Happy
		default:
			return res
		}
		total = 1
	}

	boost := 0
	for _, w := range words {
		if _, ok := intensifiers[w]; ok {
			boost++
		}
	}
	intensity := 0.5 + 0.15*float64(total-1) + 0.15*float64(boost)
	if strings.Contains(text, "!") {
		intensity += 0.1
	}
	res.Intensity = min(intensity, 1)
	return res
}

func (a *Analyzer) contains(words []string, keyword string) bool {
	if strings.Contains(keyword, " ") {
		return containsPhrase(words, strings.Fields(keyword))
	}
	for _, w := range words {
		if a.match.match(w, keyword) {
			return true
		}
	}
	return false
}
