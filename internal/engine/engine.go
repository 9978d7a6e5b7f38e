// Package engine dispatches a persisted user message to the conversational
// backend and yields the assistant's reply messages.
package engine

import (
	"context"

	"chathub/internal/store"
)

// Stream yields reply messages one at a time. Next returns io.EOF when the
// turn is complete. Close releases backend resources and is safe to call
// after an error.
type Stream interface {
	Next(ctx context.Context) (store.ChatMessage, error)
	Close() error
}

// Engine executes one conversation turn. The user message is already
// persisted when either method is called; implementations persist the
// replies they produce.
type Engine interface {
	// ExecuteSync runs the turn to completion and returns every reply.
	ExecuteSync(ctx context.Context, msg store.ChatMessage) ([]store.ChatMessage, error)

	// ExecuteStream starts the turn and returns replies incrementally.
	ExecuteStream(ctx context.Context, msg store.ChatMessage) (Stream, error)
}
