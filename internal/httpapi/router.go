package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(serverErrorLoggerMiddleware)
	r.Use(corsMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(newIPRateLimiter(240, time.Minute).middleware)

	s := server{
		store:    d.Store,
		engine:   d.Engine,
		verifier: d.Verifier,
		release:  d.Release,
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metricsHandler())

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/agents", s.handleCreateAgent)
		r.Get("/agents/{agentID}", s.handleGetAgent)

		r.Get("/agents/{agentID}/chats", s.handleListChats)
		r.Post("/agents/{agentID}/chats", s.handleCreateChat)
		r.Get("/agents/{agentID}/chats/{chatID}", s.handleGetChat)
		r.Patch("/agents/{agentID}/chats/{chatID}", s.handleUpdateChat)
		r.Delete("/agents/{agentID}/chats/{chatID}", s.handleDeleteChat)

		r.Get("/agents/{agentID}/chats/{chatID}/messages", s.handleListMessages)
		r.Post("/agents/{agentID}/chats/{chatID}/messages", s.handleSendMessage)
		r.Post("/agents/{agentID}/chats/{chatID}/messages/retry", s.handleRetryMessage)

		r.Get("/messages/{messageID}", s.handleGetMessage)
	})

	return r
}
