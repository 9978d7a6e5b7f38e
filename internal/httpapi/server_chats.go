package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"chathub/internal/store"
)

func (s server) handleListChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	agentID := chi.URLParam(r, "agentID")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	chats, err := s.store.ListChats(ctx, agentID, userID)
	if err != nil {
		logError(r.Context(), "list chats failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	agentID := chi.URLParam(r, "agentID")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Threads can only be opened against agents the caller owns.
	if _, err := s.store.GetAgent(ctx, agentID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Agent not found")
			return
		}
		logError(r.Context(), "agent lookup failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	chat, err := s.store.CreateChat(ctx, store.Chat{
		ID:      store.NewID(),
		AgentID: agentID,
		UserID:  userID,
		Summary: "",
		Rounds:  0,
	})
	if err != nil {
		logError(r.Context(), "create chat failed", err)
		writeError(w, http.StatusInternalServerError, "create chat failed")
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	agentID := chi.URLParam(r, "agentID")
	chatID := chi.URLParam(r, "chatID")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	chat, err := s.store.GetChat(ctx, agentID, chatID, userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}
	if err != nil {
		logError(r.Context(), "get chat failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

type updateChatRequest struct {
	Summary *string `json:"summary"`
}

// handleUpdateChat accepts a summary but does not persist it yet: the
// thread is loaded (scoping applies) and echoed back unchanged.
// TODO: persist summary updates once the summarizer writes through here.
func (s server) handleUpdateChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	agentID := chi.URLParam(r, "agentID")
	chatID := chi.URLParam(r, "chatID")

	var req updateChatRequest
	if !readJSONLimited(w, r, &req, 64*1024) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	chat, err := s.store.GetChat(ctx, agentID, chatID, userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}
	if err != nil {
		logError(r.Context(), "get chat failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	agentID := chi.URLParam(r, "agentID")
	chatID := chi.URLParam(r, "chatID")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := s.store.DeleteChat(ctx, agentID, chatID, userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}
	if err != nil {
		logError(r.Context(), "delete chat failed", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
