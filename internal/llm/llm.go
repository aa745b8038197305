// Package llm is the client side of the generative text service.
package llm

import "context"

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tune one generation call. Zero values leave the model defaults.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Generator produces text from a conversation, either in one piece or as
// an incremental stream.
type Generator interface {
	Generate(ctx context.Context, messages []Message, opts Options) (string, error)
	Stream(ctx context.Context, messages []Message, opts Options) (Stream, error)
}

// Stream yields generated text incrementally. Recv returns io.EOF after
// the last token. Close releases the underlying request and may be called
// at any time, including before the stream is drained.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// UserPrompt wraps a single prompt as a one-message conversation.
func UserPrompt(prompt string) []Message {
	return []Message{{Role: "user", Content: prompt}}
}
