package emotion

import (
	"strings"

	"github.com/MrWong99/solace/internal/voice"
)

// Conversational modes.
const (
	ModeSupportive   = "supportive"
	ModeCBT          = "cbt"
	ModeDBT          = "dbt"
	ModeMotivational = "motivational"
	ModeCrisis       = "crisis"
)

// DefaultCopingSuggestion is offered for emotions without a strategy list.
const DefaultCopingSuggestion = "Take a moment to breathe deeply and be kind to yourself."

var copingStrategies = map[string][]string{
	Sad: {
		"Try taking a short walk outside to get some fresh air",
		"Listen to your favorite uplifting music",
		"Reach out to a friend or family member",
		"Write down three things you're grateful for today",
		"Watch a comforting movie or show",
	},
	Anxious: {
		"Practice deep breathing: inhale for 4 counts, hold for 4, exhale for 4",
		"Try the 5-4-3-2-1 grounding technique",
		"Do some gentle stretching or yoga",
		"Limit caffeine and stay hydrated",
		"Focus on what you can control right now",
	},
	Lonely: {
		"Join an online community about your interests",
		"Video call someone you care about",
		"Volunteer for a cause you believe in",
		"Take a class or workshop to meet new people",
		"Spend time in public spaces like cafes or libraries",
	},
	Angry: {
		"Take a 10-minute timeout to cool down",
		"Do some physical exercise to release tension",
		"Write down your feelings without judgment",
		"Practice progressive muscle relaxation",
		"Count backwards from 10 slowly",
	},
	Tired: {
		"Ensure you're getting 7-9 hours of sleep",
		"Take a 20-minute power nap if possible",
		"Stay hydrated throughout the day",
		"Limit screen time before bed",
		"Try a short meditation or relaxation exercise",
	},
}

// CopingSuggestion picks one strategy for emotion.
func (a *Analyzer) CopingSuggestion(emotion string) string {
	list, ok := copingStrategies[emotion]
	if !ok || len(list) == 0 {
		return DefaultCopingSuggestion
	}
	return list[a.pick(len(list))]
}

// Mode chooses the conversational approach. Very intense emotions get plain
// support before anything else.
func Mode(emotion string, intensity float64) string {
	if intensity > 0.8 {
		return ModeSupportive
	}
	switch emotion {
	case Anxious, "worried", "stressed":
		return ModeCBT
	case Angry, "frustrated", "irritated":
		return ModeDBT
	case Tired, "unmotivated", "hopeless":
		return ModeMotivational
	}
	return ModeSupportive
}

// CrisisStyle is the tone used for crisis replies.
var CrisisStyle = voice.Style{Pitch: -0.2, Speed: 0.8, Warmth: 1.0, Energy: 0.4}

// Tone returns the voice style that suits a reply to emotion.
func Tone(emotion string, intensity float64) voice.Style {
	s := voice.Style{Pitch: 0, Speed: 1.0, Warmth: 0.8, Energy: 0.5}
	switch emotion {
	case Sad, Lonely, Tired:
		s = voice.Style{Pitch: -0.1, Speed: 0.85, Warmth: 0.95, Energy: 0.3}
	case Anxious, "stressed":
		s = voice.Style{Pitch: 0, Speed: 0.9, Warmth: 0.9, Energy: 0.4}
	case Angry:
		s = voice.Style{Pitch: -0.2, Speed: 0.8, Warmth: 0.85, Energy: 0.3}
	case Happy:
		s = voice.Style{Pitch: 0.1, Speed: 1.1, Warmth: 1.0, Energy: 0.7}
	}
	if intensity > 0.8 {
		s.Speed *= 0.9
		s.Warmth = min(1, s.Warmth+0.1)
	}
	return s
}

// crisisPhrases are matched as whole-word sequences.
var crisisPhrases = []string{
	"suicide", "suicidal", "kill myself", "end my life", "want to die",
	"better off dead", "harm myself", "overdose", "cutting myself",
	"self-harm", "hurt myself", "no point", "can't go on",
}

// IsCrisis reports whether text contains a crisis phrase.
func IsCrisis(text string) bool {
	words := tokenize(normalize(text))
	for _, p := range crisisPhrases {
		if containsPhrase(words, strings.Fields(p)) {
			return true
		}
	}
	return false
}

// CrisisResponse is the reply given instead of a normal answer when a
// message signals a crisis.
const CrisisResponse = `I'm really concerned about what you're sharing, and I want you to know that your life has value and meaning. What you're feeling right now is temporary, even though it doesn't feel that way.

Please reach out to immediate support:
- National Suicide Prevention Lifeline: 988 (US), available 24/7
- Crisis Text Line: Text HOME to 741741
- International: https://www.iasp.info/resources/Crisis_Centres/

I care about your safety. Can you tell me, are you currently safe? Do you have someone nearby you can talk to right now?`
