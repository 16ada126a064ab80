// Package llm is the boundary to the language model. Everything the
// orchestrator and executor know about the model goes through the Client
// interface; the Gemini implementation talks raw HTTP so test servers can
// stand in for the real API.
package llm

import "context"

// Chat roles. The Gemini wire protocol calls the assistant role "model";
// the mapping happens inside the client.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat-shaped completion request.
type Message struct {
	// Role is RoleUser or RoleAssistant.
	Role string
	Text string
}

// Client is the completion interface the rest of the system depends on.
type Client interface {
	// Complete sends a bare prompt and returns the completion text.
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteWithSystem sends a prompt under a system instruction.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// CompleteChat sends a multi-turn history under a system instruction.
	CompleteChat(ctx context.Context, systemPrompt string, history []Message) (string, error)
	// CompleteWithSchema enforces a JSON schema on the response. The
	// returned string is the raw JSON text.
	CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error)
}
