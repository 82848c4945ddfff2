// Package stt defines the Provider interface for streaming speech-to-text.
//
// A provider opens a [Session] per listen. The caller pushes raw PCM into
// the session and receives interim and final transcripts, in order, on a
// single channel that is closed when the session ends.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Transcript is one recognition result.
type Transcript struct {
	// Text is the recognised text. Interim results are replaced by later
	// ones; finals are stable.
	Text string

	// IsFinal marks a stable result.
	IsFinal bool

	// Confidence in [0, 1] when reported by the backend, otherwise 0.
	Confidence float64
}

// StreamConfig describes the audio sent to a session.
type StreamConfig struct {
	// SampleRate in Hz. Zero uses the provider default.
	SampleRate int

	// Channels. Zero uses the provider default.
	Channels int

	// Language is a BCP-47 code. Empty uses the provider default.
	Language string
}

// Session is one live recognition stream.
type Session interface {
	// SendAudio queues a chunk of 16-bit little-endian PCM.
	SendAudio(pcm []byte) error

	// Transcripts delivers results in recognition order. It is closed when
	// the session ends, whether by Close, by ctx or by the backend.
	Transcripts() <-chan Transcript

	// Err reports why the session ended. It returns nil while the session
	// is live and after a clean close.
	Err() error

	// Close ends the session. It is safe to call more than once.
	Close() error
}

// Provider opens recognition sessions.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (Session, error)
}
