// Package llm defines the Provider interface for the language model that
// writes the companion's replies.
//
// A provider wraps a remote or local chat-completion API (OpenAI, Anthropic,
// a local Ollama instance, ...) behind a single Complete call so that the
// in-process responder never depends on a specific SDK.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation history.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text of the turn.
	Content string
}

// Request carries everything the model needs to produce a reply.
type Request struct {
	// SystemPrompt is sent ahead of Messages with the system role.
	SystemPrompt string

	// Messages is the ordered history. The last message is the user's turn.
	Messages []Message

	// Temperature controls randomness. Zero uses the provider default.
	Temperature float64

	// MaxTokens caps the reply length. Zero uses the provider default.
	MaxTokens int
}

// Usage is token accounting reported by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a finished completion.
type Response struct {
	// Content is the assistant's reply text.
	Content string

	// Usage may be zero when the backend does not report it.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete sends req and waits for the full reply. It must return
	// promptly once ctx is cancelled.
	Complete(ctx context.Context, req Request) (*Response, error)
}
