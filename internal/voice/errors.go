package voice

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedCapability is returned when an operation needs a
	// capability (speech input) the session was built without. Text
	// interaction keeps working.
	ErrUnsupportedCapability = errors.New("voice: capability unavailable")

	// ErrInputUnavailable is recorded when the input source keeps ending
	// without ever producing a transcript.
	ErrInputUnavailable = errors.New("voice: speech input keeps ending")

	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("voice: controller closed")

	// ErrEmptyText is returned by SubmitText for blank messages.
	ErrEmptyText = errors.New("voice: empty message")
)

// PlaybackError wraps a failure reported by the speech output sink.
type PlaybackError struct {
	UtteranceID uint64
	Err         error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("voice: playback of utterance %d failed: %v", e.UtteranceID, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
