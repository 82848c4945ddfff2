// Package respond turns a user message into a companion reply.
//
// [Client] calls a remote backend over HTTP, [Local] answers in-process with
// an LLM and the emotion analyzer, and [Failover] chains several responders
// behind circuit breakers. All of them implement voice.Responder.
//
// The JSON types in this file are the backend's wire format. The gateway
// serves the same shapes, so a solace server can act as the backend of
// another one.
package respond

import (
	"errors"
	"fmt"

	"github.com/MrWong99/solace/internal/emotion"
	"github.com/MrWong99/solace/internal/voice"
)

// ErrEmptyResponse is returned when a backend answers without reply text.
var ErrEmptyResponse = errors.New("respond: empty response")

// StatusError reports a non-2xx answer from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("respond: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("respond: unexpected status %d: %s", e.Code, e.Body)
}

// MessageRequest is the body of POST /api/therapy and POST /api/chat.
type MessageRequest struct {
	Message string `json:"message"`
}

// TherapyResponse is the body returned by POST /api/therapy.
type TherapyResponse struct {
	Response         string       `json:"response"`
	Emotion          string       `json:"emotion,omitempty"`
	TherapyMode      string       `json:"therapy_mode,omitempty"`
	CopingSuggestion string       `json:"coping_suggestion,omitempty"`
	VoiceTone        *voice.Style `json:"voice_tone,omitempty"`
	IsCrisis         bool         `json:"is_crisis,omitempty"`
	Error            string       `json:"error,omitempty"`
}

// Reply converts the wire form into a voice.Reply.
func (r TherapyResponse) Reply() voice.Reply {
	reply := voice.Reply{
		Text:             r.Response,
		Emotion:          r.Emotion,
		Mode:             r.TherapyMode,
		CopingSuggestion: r.CopingSuggestion,
	}
	if r.VoiceTone != nil {
		s := r.VoiceTone.Clamp()
		reply.Style = &s
	}
	return reply
}

// ChatResponse is the body returned by POST /api/chat.
type ChatResponse struct {
	Response         string             `json:"response"`
	Emotion          string             `json:"emotion,omitempty"`
	Sentiment        *emotion.Sentiment `json:"sentiment,omitempty"`
	MoodLabel        string             `json:"mood_label,omitempty"`
	IsCrisis         bool               `json:"is_crisis"`
	CopingSuggestion string             `json:"coping_suggestion,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// ErrorResponse is the body of a rejected request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Flight-check status values.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
)

// ServiceStatus is one entry of FlightCheck.Services.
type ServiceStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// FlightCheck is the body returned by GET /api/flight-check.
type FlightCheck struct {
	Timestamp     string                   `json:"timestamp,omitempty"`
	Services      map[string]ServiceStatus `json:"services,omitempty"`
	OverallStatus string                   `json:"overall_status"`
	Message       string                   `json:"message,omitempty"`
}

// Ready reports whether the backend considers itself fully operational.
func (f FlightCheck) Ready() bool { return f.OverallStatus == StatusReady }
