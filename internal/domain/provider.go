package domain

import "context"

// ChatProvider is the interface for a chat-completions backend.
type ChatProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "openai").
	Name() string
}

// StreamingChatProvider extends ChatProvider with streaming support.
type StreamingChatProvider interface {
	ChatProvider
	// ChatStream sends a request and returns a channel of incremental deltas.
	// The channel is closed when the stream ends or ctx is cancelled.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}
