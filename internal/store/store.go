// Package store persists agents, chat threads, and the append-mostly
// message log. All ownership-scoped reads take the owning identity in the
// query itself: an entity that is absent and an entity owned by someone
// else are indistinguishable to the caller (both ErrNotFound).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for entities that are absent or not owned by the
// requesting identity. The two cases are deliberately not distinguished.
var ErrNotFound = errors.New("not found")

type Agent struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Model       string    `json:"model,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Chat struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	UserID    string    `json:"user_id"`
	Summary   string    `json:"summary"`
	Rounds    int       `json:"rounds"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Author types for chat messages.
const (
	AuthorTypeAPI       = "api"
	AuthorTypeWeb       = "web"
	AuthorTypeAssistant = "assistant"
	AuthorTypeSystem    = "system"
	AuthorTypeSkill     = "skill"
)

type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type SkillCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Success    bool           `json:"success"`
	Response   string         `json:"response,omitempty"`
}

// ChatMessage is immutable once created. Ids are time-ordered and totally
// ordered as strings; listMessages pagination depends on that.
type ChatMessage struct {
	ID            string       `json:"id"`
	AgentID       string       `json:"agent_id"`
	ChatID        string       `json:"chat_id"`
	UserID        string       `json:"user_id"`
	AuthorID      string       `json:"author_id"`
	AuthorType    string       `json:"author_type"`
	ThreadType    string       `json:"thread_type"`
	Message       string       `json:"message"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	Model         string       `json:"model,omitempty"`
	ReplyTo       string       `json:"reply_to,omitempty"`
	SkillCalls    []SkillCall  `json:"skill_calls,omitempty"`
	InputTokens   int          `json:"input_tokens"`
	OutputTokens  int          `json:"output_tokens"`
	TimeCost      float64      `json:"time_cost"`
	CreditEventID string       `json:"credit_event_id,omitempty"`
	CreditCost    *float64     `json:"credit_cost,omitempty"`
	ColdStartCost float64      `json:"cold_start_cost"`
	AppID         string       `json:"app_id,omitempty"`
	SearchMode    *bool        `json:"search_mode,omitempty"`
	SuperMode     *bool        `json:"super_mode,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// MessagePage is one page of reverse-chronological history. NextCursor is
// nil on the last page.
type MessagePage struct {
	Data       []ChatMessage `json:"data"`
	HasMore    bool          `json:"has_more"`
	NextCursor *string       `json:"next_cursor"`
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Store is implemented by Postgres for production and Memory for tests.
type Store interface {
	Ping(ctx context.Context) error
	Close()

	CreateAgent(ctx context.Context, a Agent) (Agent, error)
	// GetAgent is owner-scoped.
	GetAgent(ctx context.Context, id, owner string) (Agent, error)
	// AgentExists reports whether the agent exists at all, regardless of
	// owner. Used by message dispatch, which is scoped via the chat thread.
	AgentExists(ctx context.Context, id string) (bool, error)

	CreateChat(ctx context.Context, c Chat) (Chat, error)
	GetChat(ctx context.Context, agentID, chatID, userID string) (Chat, error)
	ListChats(ctx context.Context, agentID, userID string) ([]Chat, error)
	DeleteChat(ctx context.Context, agentID, chatID, userID string) error

	AppendMessage(ctx context.Context, m ChatMessage) error
	// ListMessages pages newest-first. cursor, when non-empty, is an
	// exclusive upper bound on message id.
	ListMessages(ctx context.Context, agentID, chatID, cursor string, limit int) (MessagePage, error)
	GetMessage(ctx context.Context, id, userID string) (ChatMessage, error)
}

// NewID returns a time-ordered id whose lexicographic order matches
// creation order (UUIDv7).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ClampLimit normalizes a requested page size into [1, MaxPageLimit],
// falling back to DefaultPageLimit when unset.
func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultPageLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}
