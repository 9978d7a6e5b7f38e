package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chathub/internal/engine"
	"chathub/internal/identity"
	"chathub/internal/store"
)

const testSecret = "unit-test-secret"

func newTestRouter(t *testing.T) (http.Handler, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	h := NewRouter(Deps{
		Store:    st,
		Engine:   engine.NewLocal(st),
		Verifier: identity.NewSecretVerifier(testSecret),
		Release:  "test",
	})
	return h, st
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject(userID).
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	require.NoError(t, err)
	return string(signed)
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func createAgent(t *testing.T, h http.Handler, token, name string) store.Agent {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, "/agents", token, map[string]string{"name": name})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[store.Agent](t, rec)
}

func createChat(t *testing.T, h http.Handler, token, agentID string) store.Chat {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, "/agents/"+agentID+"/chats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[store.Chat](t, rec)
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doRequest(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, "chathub-api", body["service"])
}

func TestAuthRequired(t *testing.T) {
	h, _ := newTestRouter(t)

	t.Run("missing token", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/agents/a-1", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeBody[map[string]string](t, rec)
		assert.Equal(t, "missing bearer token", body["error"])
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/agents/a-1", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/agents/a-1", "garbage", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeBody[map[string]string](t, rec)
		assert.Equal(t, "invalid or expired token", body["error"])
	})

	t.Run("valid token passes", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/agents/a-1", tokenFor(t, "alice"), nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAgentCreateAndGet(t *testing.T) {
	h, _ := newTestRouter(t)
	alice := tokenFor(t, "alice")
	bob := tokenFor(t, "bob")

	agent := createAgent(t, h, alice, "helper")
	assert.NotEmpty(t, agent.ID)
	assert.Equal(t, "alice", agent.Owner)
	assert.Equal(t, "helper", agent.Name)

	rec := doRequest(t, h, http.MethodGet, "/agents/"+agent.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Someone else's agent looks absent, not forbidden.
	rec = doRequest(t, h, http.MethodGet, "/agents/"+agent.ID, bob, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Agent not found", decodeBody[map[string]string](t, rec)["error"])

	t.Run("missing name", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/agents", alice, map[string]string{"description": "x"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/agents", strings.NewReader("{not json"))
		req.Header.Set("Authorization", "Bearer "+alice)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestChatLifecycle(t *testing.T) {
	h, _ := newTestRouter(t)
	alice := tokenFor(t, "alice")
	bob := tokenFor(t, "bob")

	agent := createAgent(t, h, alice, "helper")

	t.Run("create requires owned agent", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/agents/nope/chats", alice, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)

		rec = doRequest(t, h, http.MethodPost, "/agents/"+agent.ID+"/chats", bob, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	chat := createChat(t, h, alice, agent.ID)
	assert.Equal(t, agent.ID, chat.AgentID)
	assert.Equal(t, "alice", chat.UserID)
	assert.Equal(t, "", chat.Summary)
	assert.Equal(t, 0, chat.Rounds)

	base := "/agents/" + agent.ID + "/chats/" + chat.ID

	t.Run("get and list", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, base, alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(t, h, http.MethodGet, "/agents/"+agent.ID+"/chats", alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		chats := decodeBody[[]store.Chat](t, rec)
		require.Len(t, chats, 1)
		assert.Equal(t, chat.ID, chats[0].ID)
	})

	t.Run("isolation", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, base, bob, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Chat not found", decodeBody[map[string]string](t, rec)["error"])

		rec = doRequest(t, h, http.MethodGet, "/agents/"+agent.ID+"/chats", bob, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeBody[[]store.Chat](t, rec))
	})

	t.Run("patch echoes unchanged", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPatch, base, alice, map[string]string{"summary": "new summary"})
		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeBody[store.Chat](t, rec)
		assert.Equal(t, "", got.Summary)
	})

	t.Run("delete", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodDelete, base, alice, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(t, h, http.MethodGet, base, alice, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)

		rec = doRequest(t, h, http.MethodDelete, base, alice, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

type sendBody struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
	Stream  bool   `json:"stream,omitempty"`
}

func TestSendMessageBuffered(t *testing.T) {
	h, _ := newTestRouter(t)
	alice := tokenFor(t, "alice")

	agent := createAgent(t, h, alice, "helper")
	chat := createChat(t, h, alice, agent.ID)
	msgPath := "/agents/" + agent.ID + "/chats/" + chat.ID + "/messages"

	rec := doRequest(t, h, http.MethodPost, msgPath, alice, sendBody{UserID: "alice", Message: "hello"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	replies := decodeBody[[]store.ChatMessage](t, rec)
	require.Len(t, replies, 1)
	assert.Equal(t, store.AuthorTypeAssistant, replies[0].AuthorType)
	assert.Equal(t, "You said: hello", replies[0].Message)

	// Both the user turn and the reply are in the log, newest first.
	rec = doRequest(t, h, http.MethodGet, msgPath, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[store.MessagePage](t, rec)
	require.Len(t, page.Data, 2)
	assert.Equal(t, store.AuthorTypeAssistant, page.Data[0].AuthorType)
	assert.Equal(t, store.AuthorTypeAPI, page.Data[1].AuthorType)
	assert.Equal(t, "hello", page.Data[1].Message)
	assert.Equal(t, page.Data[1].ID, page.Data[0].ReplyTo)
	assert.False(t, page.HasMore)

	t.Run("validation", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, msgPath, alice, sendBody{Message: "hi"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		rec = doRequest(t, h, http.MethodPost, msgPath, alice, sendBody{UserID: "alice"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		rec = doRequest(t, h, http.MethodPost, msgPath, alice, sendBody{UserID: "alice", Message: strings.Repeat("x", 65536)})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown agent", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/agents/nope/chats/"+chat.ID+"/messages", alice, sendBody{UserID: "alice", Message: "hi"})
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Agent not found", decodeBody[map[string]string](t, rec)["error"])
	})

	t.Run("someone else's chat", func(t *testing.T) {
		bob := tokenFor(t, "bob")
		rec := doRequest(t, h, http.MethodPost, msgPath, bob, sendBody{UserID: "bob", Message: "hi"})
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Chat not found", decodeBody[map[string]string](t, rec)["error"])
	})

	t.Run("retry not implemented", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, msgPath+"/retry", alice, nil)
		require.Equal(t, http.StatusNotImplemented, rec.Code)
	})
}

func TestSendMessageStreamed(t *testing.T) {
	h, _ := newTestRouter(t)
	alice := tokenFor(t, "alice")

	agent := createAgent(t, h, alice, "helper")
	chat := createChat(t, h, alice, agent.ID)
	msgPath := "/agents/" + agent.ID + "/chats/" + chat.ID + "/messages"

	rec := doRequest(t, h, http.MethodPost, msgPath, alice, sendBody{UserID: "alice", Message: "hello streaming world", Stream: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Greater(t, len(lines), 1)

	var last store.ChatMessage
	for _, line := range lines {
		var chunk store.ChatMessage
		require.NoError(t, json.Unmarshal([]byte(line), &chunk), "each line is a standalone JSON document")
		assert.Equal(t, store.AuthorTypeAssistant, chunk.AuthorType)
		last = chunk
	}
	assert.Equal(t, "You said: hello streaming world", last.Message)

	// The full reply was persisted once, not once per chunk.
	rec = doRequest(t, h, http.MethodGet, msgPath, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[store.MessagePage](t, rec)
	assert.Len(t, page.Data, 2)
}

func TestGetMessageByID(t *testing.T) {
	h, _ := newTestRouter(t)
	alice := tokenFor(t, "alice")
	bob := tokenFor(t, "bob")

	agent := createAgent(t, h, alice, "helper")
	chat := createChat(t, h, alice, agent.ID)
	msgPath := "/agents/" + agent.ID + "/chats/" + chat.ID + "/messages"

	rec := doRequest(t, h, http.MethodPost, msgPath, alice, sendBody{UserID: "alice", Message: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	replies := decodeBody[[]store.ChatMessage](t, rec)
	require.Len(t, replies, 1)

	rec = doRequest(t, h, http.MethodGet, "/messages/"+replies[0].ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[store.ChatMessage](t, rec)
	assert.Equal(t, replies[0].Message, got.Message)

	rec = doRequest(t, h, http.MethodGet, "/messages/"+replies[0].ID, bob, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Message not found", decodeBody[map[string]string](t, rec)["error"])

	rec = doRequest(t, h, http.MethodGet, "/messages/nope", alice, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMessagesPaginationWalk(t *testing.T) {
	h, st := newTestRouter(t)
	alice := tokenFor(t, "alice")

	agent := createAgent(t, h, alice, "helper")
	chat := createChat(t, h, alice, agent.ID)
	msgPath := "/agents/" + agent.ID + "/chats/" + chat.ID + "/messages"

	const total = 23
	for i := 0; i < total; i++ {
		require.NoError(t, st.AppendMessage(context.Background(), store.ChatMessage{
			ID:         store.NewID(),
			AgentID:    agent.ID,
			ChatID:     chat.ID,
			UserID:     "alice",
			AuthorID:   "alice",
			AuthorType: store.AuthorTypeAPI,
			Message:    fmt.Sprintf("msg %d", i),
		}))
	}

	t.Run("limit clamps", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, msgPath+"?limit=1000", alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		page := decodeBody[store.MessagePage](t, rec)
		assert.Len(t, page.Data, total)
		assert.False(t, page.HasMore)
	})

	t.Run("walk", func(t *testing.T) {
		seen := map[string]bool{}
		cursor := ""
		last := ""
		pages := 0
		for {
			url := msgPath + "?limit=5"
			if cursor != "" {
				url += "&cursor=" + cursor
			}
			rec := doRequest(t, h, http.MethodGet, url, alice, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			page := decodeBody[store.MessagePage](t, rec)
			pages++

			for _, m := range page.Data {
				assert.False(t, seen[m.ID])
				if last != "" {
					assert.Less(t, m.ID, last)
				}
				seen[m.ID] = true
				last = m.ID
			}
			if !page.HasMore {
				assert.Nil(t, page.NextCursor)
				break
			}
			require.NotNil(t, page.NextCursor)
			cursor = *page.NextCursor
		}
		assert.Len(t, seen, total)
		assert.Equal(t, 5, pages)
	})

	t.Run("unknown chat", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/agents/"+agent.ID+"/chats/nope/messages", alice, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}
