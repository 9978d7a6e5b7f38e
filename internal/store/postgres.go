package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the production Store over a pgx pool.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *Postgres) Close() {
	p.db.Close()
}

func (p *Postgres) CreateAgent(ctx context.Context, a Agent) (Agent, error) {
	if _, err := p.db.Exec(ctx, `
		insert into agents (id, owner_id, name, description, model)
		values ($1, $2, $3, $4, $5)
	`, a.ID, a.Owner, a.Name, a.Description, a.Model); err != nil {
		return Agent{}, fmt.Errorf("insert agent: %w", err)
	}
	return p.GetAgent(ctx, a.ID, a.Owner)
}

func (p *Postgres) GetAgent(ctx context.Context, id, owner string) (Agent, error) {
	var a Agent
	err := p.db.QueryRow(ctx, `
		select id, owner_id, name, description, model, created_at
		from agents
		where id = $1 and owner_id = $2
	`, id, owner).Scan(&a.ID, &a.Owner, &a.Name, &a.Description, &a.Model, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (p *Postgres) AgentExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := p.db.QueryRow(ctx, `select exists(select 1 from agents where id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("agent exists: %w", err)
	}
	return exists, nil
}

func (p *Postgres) CreateChat(ctx context.Context, c Chat) (Chat, error) {
	if _, err := p.db.Exec(ctx, `
		insert into chats (id, agent_id, user_id, summary, rounds)
		values ($1, $2, $3, $4, $5)
	`, c.ID, c.AgentID, c.UserID, c.Summary, c.Rounds); err != nil {
		return Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	// Read back so defaults filled by the database are returned.
	return p.GetChat(ctx, c.AgentID, c.ID, c.UserID)
}

func (p *Postgres) GetChat(ctx context.Context, agentID, chatID, userID string) (Chat, error) {
	var c Chat
	err := p.db.QueryRow(ctx, `
		select id, agent_id, user_id, summary, rounds, created_at, updated_at
		from chats
		where id = $1 and agent_id = $2 and user_id = $3
	`, chatID, agentID, userID).Scan(&c.ID, &c.AgentID, &c.UserID, &c.Summary, &c.Rounds, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	if err != nil {
		return Chat{}, fmt.Errorf("get chat: %w", err)
	}
	return c, nil
}

func (p *Postgres) ListChats(ctx context.Context, agentID, userID string) ([]Chat, error) {
	rows, err := p.db.Query(ctx, `
		select id, agent_id, user_id, summary, rounds, created_at, updated_at
		from chats
		where agent_id = $1 and user_id = $2
		order by id desc
	`, agentID, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	out := make([]Chat, 0)
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.AgentID, &c.UserID, &c.Summary, &c.Rounds, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteChat(ctx context.Context, agentID, chatID, userID string) error {
	tag, err := p.db.Exec(ctx, `
		delete from chats
		where id = $1 and agent_id = $2 and user_id = $3
	`, chatID, agentID, userID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AppendMessage(ctx context.Context, m ChatMessage) error {
	attachments, err := marshalNullable(m.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	skillCalls, err := marshalNullable(m.SkillCalls)
	if err != nil {
		return fmt.Errorf("encode skill calls: %w", err)
	}

	if _, err := p.db.Exec(ctx, `
		insert into chat_messages (
			id, agent_id, chat_id, user_id, author_id, author_type, thread_type,
			message, attachments, model, reply_to, skill_calls,
			input_tokens, output_tokens, time_cost,
			credit_event_id, credit_cost, cold_start_cost,
			app_id, search_mode, super_mode
		)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		m.ID, m.AgentID, m.ChatID, m.UserID, m.AuthorID, m.AuthorType, m.ThreadType,
		m.Message, attachments, m.Model, m.ReplyTo, skillCalls,
		m.InputTokens, m.OutputTokens, m.TimeCost,
		m.CreditEventID, m.CreditCost, m.ColdStartCost,
		m.AppID, m.SearchMode, m.SuperMode,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

const messageColumns = `
	id, agent_id, chat_id, user_id, author_id, author_type, thread_type,
	message, attachments, model, reply_to, skill_calls,
	input_tokens, output_tokens, time_cost,
	credit_event_id, credit_cost, cold_start_cost,
	app_id, search_mode, super_mode, created_at
`

func (p *Postgres) ListMessages(ctx context.Context, agentID, chatID, cursor string, limit int) (MessagePage, error) {
	limit = ClampLimit(limit)

	// Fetch one row past the limit: a full probe row means another page
	// exists, without a separate count query.
	var (
		rows pgx.Rows
		err  error
	)
	if cursor != "" {
		rows, err = p.db.Query(ctx, `
			select `+messageColumns+`
			from chat_messages
			where agent_id = $1 and chat_id = $2 and id < $3
			order by id desc
			limit $4
		`, agentID, chatID, cursor, limit+1)
	} else {
		rows, err = p.db.Query(ctx, `
			select `+messageColumns+`
			from chat_messages
			where agent_id = $1 and chat_id = $2
			order by id desc
			limit $3
		`, agentID, chatID, limit+1)
	}
	if err != nil {
		return MessagePage{}, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]ChatMessage, 0, limit+1)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return MessagePage{}, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return MessagePage{}, fmt.Errorf("iterate messages: %w", err)
	}
	return pageFromRows(msgs, limit), nil
}

// pageFromRows applies the fetch-one-extra boundary rule: rows holds up to
// limit+1 messages; the probe row is dropped and next_cursor is the id of
// the last returned row.
func pageFromRows(msgs []ChatMessage, limit int) MessagePage {
	page := MessagePage{}
	page.HasMore = len(msgs) > limit
	if page.HasMore {
		msgs = msgs[:limit]
	}
	page.Data = msgs
	if page.HasMore && len(msgs) > 0 {
		cur := msgs[len(msgs)-1].ID
		page.NextCursor = &cur
	}
	return page
}

func (p *Postgres) GetMessage(ctx context.Context, id, userID string) (ChatMessage, error) {
	row := p.db.QueryRow(ctx, `
		select `+messageColumns+`
		from chat_messages
		where id = $1 and user_id = $2
	`, id, userID)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChatMessage{}, ErrNotFound
	}
	if err != nil {
		return ChatMessage{}, err
	}
	return m, nil
}

func scanMessage(row pgx.Row) (ChatMessage, error) {
	var (
		m           ChatMessage
		attachments []byte
		skillCalls  []byte
	)
	err := row.Scan(
		&m.ID, &m.AgentID, &m.ChatID, &m.UserID, &m.AuthorID, &m.AuthorType, &m.ThreadType,
		&m.Message, &attachments, &m.Model, &m.ReplyTo, &skillCalls,
		&m.InputTokens, &m.OutputTokens, &m.TimeCost,
		&m.CreditEventID, &m.CreditCost, &m.ColdStartCost,
		&m.AppID, &m.SearchMode, &m.SuperMode, &m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChatMessage{}, pgx.ErrNoRows
	}
	if err != nil {
		return ChatMessage{}, fmt.Errorf("scan message: %w", err)
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return ChatMessage{}, fmt.Errorf("decode attachments: %w", err)
		}
	}
	if len(skillCalls) > 0 {
		if err := json.Unmarshal(skillCalls, &m.SkillCalls); err != nil {
			return ChatMessage{}, fmt.Errorf("decode skill calls: %w", err)
		}
	}
	return m, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case []Attachment:
		if len(t) == 0 {
			return nil, nil
		}
	case []SkillCall:
		if len(t) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
