package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MrWong99/solace/internal/emotion"
	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/respond"
)

// maxRequestBody bounds /api request bodies.
const maxRequestBody = 1 << 20

// Canned replies used when the in-process responder fails.
const (
	therapyFallback = "I'm here for you. Can you tell me more?"
	chatFallback    = "I'm sorry, I encountered an error. Please try again."
)

// handleTherapy answers with the full analysis. Responder failures still
// return 200 with a fallback reply so simple clients keep talking.
func (s *Server) handleTherapy(w http.ResponseWriter, r *http.Request) {
	msg, ok := readMessage(w, r)
	if !ok {
		return
	}
	t, err := s.turner.Turn(r.Context(), msg)
	if err != nil {
		observe.Logger(r.Context()).Warn("gateway: therapy turn failed", "err", err)
		writeJSON(w, http.StatusOK, respond.TherapyResponse{Response: therapyFallback, Error: err.Error()})
		return
	}
	reply := t.Reply
	writeJSON(w, http.StatusOK, respond.TherapyResponse{
		Response:         reply.Text,
		Emotion:          reply.Emotion,
		TherapyMode:      reply.Mode,
		CopingSuggestion: reply.CopingSuggestion,
		VoiceTone:        reply.Style,
		IsCrisis:         t.Crisis,
	})
}

// handleChat answers with the reply, emotion and crisis flag only.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	msg, ok := readMessage(w, r)
	if !ok {
		return
	}
	t, err := s.turner.Turn(r.Context(), msg)
	if err != nil {
		observe.Logger(r.Context()).Warn("gateway: chat turn failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, respond.ChatResponse{Response: chatFallback, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, respond.ChatResponse{
		Response:         t.Reply.Text,
		Emotion:          t.Reply.Emotion,
		Sentiment:        &t.Sentiment,
		MoodLabel:        emotion.MoodLabel(t.Sentiment.Polarity),
		IsCrisis:         t.Crisis,
		CopingSuggestion: t.Reply.CopingSuggestion,
	})
}

type resetResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.turner.Reset()
	writeJSON(w, http.StatusOK, resetResponse{Status: "success", Message: "Conversation reset"})
}

// readMessage decodes a MessageRequest and rejects blank messages with 400.
func readMessage(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req respond.MessageRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, respond.ErrorResponse{Error: "Message is too large"})
			return "", false
		}
		writeJSON(w, http.StatusBadRequest, respond.ErrorResponse{Error: "Invalid request body"})
		return "", false
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		writeJSON(w, http.StatusBadRequest, respond.ErrorResponse{Error: "Message is required"})
		return "", false
	}
	return msg, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
