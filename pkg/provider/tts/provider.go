// Package tts defines the Provider interface for text-to-speech synthesis.
//
// A provider turns one utterance into raw 16-bit little-endian PCM, writing
// audio to the caller's [io.Writer] as soon as it arrives so playback can
// begin before synthesis has finished.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"io"
)

// ErrEmptyText is returned when a request carries no speakable text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Settings are backend-neutral delivery parameters. Zero values select the
// provider's defaults.
type Settings struct {
	// Speed is a rate multiplier; 1 is the voice's natural rate.
	Speed float64

	// Stability in [0, 1]. Lower values sound more expressive and variable.
	Stability float64

	// SimilarityBoost in [0, 1] controls adherence to the reference voice.
	SimilarityBoost float64

	// Style in [0, 1] exaggerates the speaking style of the voice.
	Style float64
}

// Request is one utterance to synthesise.
type Request struct {
	Text string

	// VoiceID selects the voice. Empty uses the provider default.
	VoiceID string

	Settings Settings
}

// Provider synthesises speech.
type Provider interface {
	// Synthesize streams the audio for req into w and returns once the
	// utterance is complete, ctx ends or the backend fails. Audio already
	// written stays written.
	Synthesize(ctx context.Context, req Request, w io.Writer) error
}
