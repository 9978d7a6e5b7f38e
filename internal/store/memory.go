package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store used in development and tests. Semantics
// mirror Postgres, including ownership scoping and pagination boundaries.
type Memory struct {
	mu       sync.RWMutex
	agents   map[string]Agent
	chats    map[string]Chat
	messages map[string]ChatMessage
}

func NewMemory() *Memory {
	return &Memory{
		agents:   make(map[string]Agent),
		chats:    make(map[string]Chat),
		messages: make(map[string]ChatMessage),
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}

func (m *Memory) CreateAgent(_ context.Context, a Agent) (Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.agents[a.ID] = a
	return a, nil
}

func (m *Memory) GetAgent(_ context.Context, id, owner string) (Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok || a.Owner != owner {
		return Agent{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) AgentExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.agents[id]
	return ok, nil
}

func (m *Memory) CreateChat(_ context.Context, c Chat) (Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	m.chats[c.ID] = c
	return c, nil
}

func (m *Memory) GetChat(_ context.Context, agentID, chatID, userID string) (Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chats[chatID]
	if !ok || c.AgentID != agentID || c.UserID != userID {
		return Chat{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) ListChats(_ context.Context, agentID, userID string) ([]Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Chat, 0)
	for _, c := range m.chats {
		if c.AgentID == agentID && c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Memory) DeleteChat(_ context.Context, agentID, chatID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok || c.AgentID != agentID || c.UserID != userID {
		return ErrNotFound
	}
	delete(m.chats, chatID)
	for id, msg := range m.messages {
		if msg.ChatID == chatID {
			delete(m.messages, id)
		}
	}
	return nil
}

func (m *Memory) AppendMessage(_ context.Context, msg ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	m.messages[msg.ID] = msg
	return nil
}

func (m *Memory) ListMessages(_ context.Context, agentID, chatID, cursor string, limit int) (MessagePage, error) {
	limit = ClampLimit(limit)

	m.mu.RLock()
	msgs := make([]ChatMessage, 0)
	for _, msg := range m.messages {
		if msg.AgentID != agentID || msg.ChatID != chatID {
			continue
		}
		if cursor != "" && msg.ID >= cursor {
			continue
		}
		msgs = append(msgs, msg)
	}
	m.mu.RUnlock()

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })
	if len(msgs) > limit+1 {
		msgs = msgs[:limit+1]
	}
	return pageFromRows(msgs, limit), nil
}

func (m *Memory) GetMessage(_ context.Context, id, userID string) (ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok || msg.UserID != userID {
		return ChatMessage{}, ErrNotFound
	}
	return msg, nil
}
