package emotion

// Sentiment is the overall tone of a message.
type Sentiment struct {
	// Polarity in [-1, 1], negative to positive.
	Polarity float64 `json:"polarity"`

	// Subjectivity in [0, 1], factual to opinionated.
	Subjectivity float64 `json:"subjectivity"`
}

// Polarity thresholds beyond which a message without emotion keywords is
// read as sad or happy.
const (
	sadPolarity   = -0.3
	happyPolarity = 0.3
)

// Mood labels returned by [MoodLabel].
const (
	MoodVeryNegative = "Very Negative"
	MoodNegative     = "Negative"
	MoodNeutral      = "Neutral"
	MoodPositive     = "Positive"
	MoodVeryPositive = "Very Positive"
)

// MoodLabel buckets a polarity score.
func MoodLabel(polarity float64) string {
	switch {
	case polarity < -0.5:
		return MoodVeryNegative
	case polarity < -0.1:
		return MoodNegative
	case polarity <= 0.1:
		return MoodNeutral
	case polarity <= 0.5:
		return MoodPositive
	default:
		return MoodVeryPositive
	}
}

type lexEntry struct {
	polarity     float64
	subjectivity float64
}

// lexicon scores opinion words. Words already listed as emotion keywords
// are scored too so the polarity reflects the whole message.
var lexicon = map[string]lexEntry{
	"awful":      {-1, 1},
	"terrible":   {-1, 1},
	"horrible":   {-1, 1},
	"worst":      {-1, 1},
	"hate":       {-0.8, 0.9},
	"hopeless":   {-0.8, 0.9},
	"worthless":  {-0.8, 0.9},
	"painful":    {-0.7, 0.8},
	"bad":        {-0.7, 0.67},
	"sad":        {-0.5, 1},
	"miserable":  {-1, 1},
	"awkward":    {-0.4, 0.8},
	"wrong":      {-0.5, 0.9},
	"sick":       {-0.7, 0.86},
	"lost":       {-0.4, 0.6},
	"hurt":       {-0.5, 0.7},
	"broken":     {-0.4, 0.6},
	"failed":     {-0.5, 0.6},
	"difficult":  {-0.5, 1},
	"hard":       {-0.3, 0.54},
	"boring":     {-0.6, 1},
	"ugly":       {-0.7, 1},
	"stupid":     {-0.8, 1},
	"poor":       {-0.4, 0.6},
	"love":       {0.5, 0.6},
	"lovely":     {0.5, 0.75},
	"beautiful":  {0.85, 1},
	"wonderful":  {1, 1},
	"amazing":    {0.6, 0.9},
	"awesome":    {1, 1},
	"excellent":  {1, 1},
	"fantastic":  {0.4, 0.9},
	"perfect":    {1, 1},
	"great":      {0.8, 0.75},
	"good":       {0.7, 0.6},
	"nice":       {0.6, 1},
	"glad":       {0.5, 1},
	"happy":      {0.8, 1},
	"pleased":    {0.5, 1},
	"grateful":   {0.6, 0.8},
	"thankful":   {0.6, 0.8},
	"hopeful":    {0.5, 0.8},
	"fun":        {0.3, 0.2},
	"better":     {0.5, 0.5},
	"best":       {1, 0.3},
	"calm":       {0.3, 0.75},
	"peaceful":   {0.5, 0.8},
	"proud":      {0.8, 1},
	"fine":       {0.4, 0.5},
	"okay":       {0.5, 0.5},
}

// negators flip the polarity of the next scored word.
var negators = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "don't": {}, "isn't": {}, "wasn't": {},
	"can't": {}, "didn't": {}, "doesn't": {}, "aren't": {}, "won't": {},
}

// analyzeSentiment scores words: the result is the mean over lexicon words,
// where a preceding intensifier scales a word by 1.3 and a preceding negator
// multiplies it by -0.5.
func analyzeSentiment(words []string) Sentiment {
	var pol, subj float64
	n := 0
	for i, w := range words {
		e, ok := lexicon[w]
		if !ok {
			continue
		}
		p, s := e.polarity, e.subjectivity
		if i > 0 {
			prev := words[i-1]
			if _, ok := intensifiers[prev]; ok {
				p, s = p*1.3, s*1.3
				if i > 1 {
					prev = words[i-2]
				}
			}
			if _, ok := negators[prev]; ok {
				p *= -0.5
			}
		}
		pol += clamp(p, -1, 1)
		subj += clamp(s, 0, 1)
		n++
	}
	if n == 0 {
		return Sentiment{}
	}
	return Sentiment{Polarity: pol / float64(n), Subjectivity: subj / float64(n)}
}

// Sentiment scores the tone of text.
func (a *Analyzer) Sentiment(text string) Sentiment {
	return analyzeSentiment(tokenize(normalize(text)))
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
