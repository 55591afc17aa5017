package model

import (
	"context"

	ctxpkg "github.com/stupiduntilnot/investbot/internal/context"
)

// CompletionResponse is the common response model for model providers.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the completion API abstraction: an ordered message list in,
// a single reply out.
type Provider interface {
	ChatCompletion(ctx context.Context, messages []ctxpkg.Message) (CompletionResponse, error)
}

// EmptyResponse is returned as content when the model answers with nothing.
const EmptyResponse = "(empty model response)"
