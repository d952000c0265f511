package codegen

import "context"

// Backend is a chat-completion text generator. Implementations apply their
// own upstream timeout and return an error (never hang) when no usable
// result is available.
type Backend interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
