package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"chathub/internal/store"
)

type createAgentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Model       string `json:"model"`
}

func (s server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createAgentRequest
	if !readJSONLimited(w, r, &req, 64*1024) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "missing name")
		return
	}
	if len(req.Name) > 64 {
		writeError(w, http.StatusUnprocessableEntity, "name too long")
		return
	}
	if len(req.Description) > 512 {
		writeError(w, http.StatusUnprocessableEntity, "description too long")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	agent, err := s.store.CreateAgent(ctx, store.Agent{
		ID:          store.NewID(),
		Owner:       userID,
		Name:        req.Name,
		Description: req.Description,
		Model:       req.Model,
	})
	if err != nil {
		logError(r.Context(), "create agent failed", err)
		writeError(w, http.StatusInternalServerError, "create agent failed")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	agentID := chi.URLParam(r, "agentID")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	agent, err := s.store.GetAgent(ctx, agentID, userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Agent not found")
		return
	}
	if err != nil {
		logError(r.Context(), "get agent failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}
