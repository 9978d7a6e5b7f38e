package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"chathub/internal/store"
)

func (s server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	agentID := chi.URLParam(r, "agentID")
	chatID := chi.URLParam(r, "chatID")

	cursor := r.URL.Query().Get("cursor")
	limit := queryInt(r, "limit", 0)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if _, err := s.store.GetChat(ctx, agentID, chatID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Chat not found")
			return
		}
		logError(r.Context(), "get chat failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	page, err := s.store.ListMessages(ctx, agentID, chatID, cursor, limit)
	if err != nil {
		logError(r.Context(), "list messages failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type sendMessageRequest struct {
	AppID       string             `json:"app_id"`
	UserID      string             `json:"user_id"`
	Message     string             `json:"message"`
	Stream      bool               `json:"stream"`
	SearchMode  *bool              `json:"search_mode"`
	SuperMode   *bool              `json:"super_mode"`
	Attachments []store.Attachment `json:"attachments"`
}

func (s server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	agentID := chi.URLParam(r, "agentID")
	chatID := chi.URLParam(r, "chatID")

	var req sendMessageRequest
	if !readJSONLimited(w, r, &req, 256*1024) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusUnprocessableEntity, "missing user_id")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusUnprocessableEntity, "missing message")
		return
	}
	if len(req.Message) > 65535 {
		writeError(w, http.StatusUnprocessableEntity, "message too long")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	exists, err := s.store.AgentExists(ctx, agentID)
	if err != nil {
		logError(r.Context(), "agent lookup failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "Agent not found")
		return
	}
	if _, err := s.store.GetChat(ctx, agentID, chatID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Chat not found")
			return
		}
		logError(r.Context(), "get chat failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	// The request body's user_id is required but not trusted: the message
	// is attributed to the authenticated identity.
	userMsg := store.ChatMessage{
		ID:          store.NewID(),
		AgentID:     agentID,
		ChatID:      chatID,
		UserID:      userID,
		AuthorID:    userID,
		AuthorType:  store.AuthorTypeAPI,
		ThreadType:  store.AuthorTypeAPI,
		Message:     req.Message,
		Attachments: req.Attachments,
		AppID:       req.AppID,
		SearchMode:  req.SearchMode,
		SuperMode:   req.SuperMode,
		CreatedAt:   time.Now().UTC(),
	}

	// Durably record the user turn first. A dispatch failure below must not
	// lose it.
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		logError(r.Context(), "persist user message failed", err)
		writeError(w, http.StatusInternalServerError, "persist message failed")
		return
	}

	if req.Stream {
		s.streamReplies(w, r, userMsg)
		return
	}

	messagesDispatched.WithLabelValues("sync").Inc()
	execCtx, cancelExec := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancelExec()

	replies, err := s.engine.ExecuteSync(execCtx, userMsg)
	if err != nil {
		logError(r.Context(), "execute failed", err)
		writeError(w, http.StatusInternalServerError, "agent execution failed")
		return
	}
	writeJSON(w, http.StatusOK, replies)
}

// streamReplies writes newline-delimited JSON, one reply chunk per line,
// flushed as soon as it is produced. Once the first chunk is on the wire
// the status is committed: a later engine error just ends the stream.
func (s server) streamReplies(w http.ResponseWriter, r *http.Request, userMsg store.ChatMessage) {
	messagesDispatched.WithLabelValues("stream").Inc()

	stream, err := s.engine.ExecuteStream(r.Context(), userMsg)
	if err != nil {
		logError(r.Context(), "execute stream failed", err)
		writeError(w, http.StatusInternalServerError, "agent execution failed")
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			logError(r.Context(), "close stream failed", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	enc := json.NewEncoder(w)
	for {
		chunk, err := stream.Next(r.Context())
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			// Already-sent chunks stand; nothing to retract.
			logError(r.Context(), "stream next failed", err)
			return
		}
		if err := enc.Encode(chunk); err != nil {
			logError(r.Context(), "write chunk failed", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s server) handleRetryMessage(w http.ResponseWriter, r *http.Request) {
	if _, ok := userIDFromCtx(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeError(w, http.StatusNotImplemented, "Not Implemented")
}

func (s server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	messageID := chi.URLParam(r, "messageID")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	msg, err := s.store.GetMessage(ctx, messageID, userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Message not found")
		return
	}
	if err != nil {
		logError(r.Context(), "get message failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
