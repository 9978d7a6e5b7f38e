package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"chathub/internal/store"
)

// Local is a self-contained engine that echoes the user's message back as
// a single assistant reply. It stands in for a real model backend in
// development and tests; streaming mode splits the reply into word chunks
// so clients exercise their incremental path.
type Local struct {
	store store.Store
}

func NewLocal(s store.Store) *Local {
	return &Local{store: s}
}

func (l *Local) reply(ctx context.Context, msg store.ChatMessage) (store.ChatMessage, error) {
	start := time.Now()
	reply := store.ChatMessage{
		ID:           store.NewID(),
		AgentID:      msg.AgentID,
		ChatID:       msg.ChatID,
		UserID:       msg.UserID,
		AuthorID:     msg.AgentID,
		AuthorType:   store.AuthorTypeAssistant,
		ThreadType:   msg.ThreadType,
		Message:      fmt.Sprintf("You said: %s", msg.Message),
		ReplyTo:      msg.ID,
		OutputTokens: len(strings.Fields(msg.Message)),
		TimeCost:     time.Since(start).Seconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := l.store.AppendMessage(ctx, reply); err != nil {
		return store.ChatMessage{}, fmt.Errorf("persist reply: %w", err)
	}
	return reply, nil
}

func (l *Local) ExecuteSync(ctx context.Context, msg store.ChatMessage) ([]store.ChatMessage, error) {
	reply, err := l.reply(ctx, msg)
	if err != nil {
		return nil, err
	}
	return []store.ChatMessage{reply}, nil
}

func (l *Local) ExecuteStream(ctx context.Context, msg store.ChatMessage) (Stream, error) {
	reply, err := l.reply(ctx, msg)
	if err != nil {
		return nil, err
	}

	// One chunk per word; each chunk carries the full message envelope so
	// clients can render incrementally without reassembly rules.
	words := strings.Fields(reply.Message)
	chunks := make([]store.ChatMessage, 0, len(words))
	for i := range words {
		chunk := reply
		chunk.Message = strings.Join(words[:i+1], " ")
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		chunks = append(chunks, reply)
	}
	return &sliceStream{chunks: chunks}, nil
}

type sliceStream struct {
	chunks []store.ChatMessage
	pos    int
}

func (s *sliceStream) Next(ctx context.Context) (store.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return store.ChatMessage{}, err
	}
	if s.pos >= len(s.chunks) {
		return store.ChatMessage{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *sliceStream) Close() error {
	s.pos = len(s.chunks)
	return nil
}
