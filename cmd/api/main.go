package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"chathub/internal/config"
	"chathub/internal/db"
	"chathub/internal/engine"
	"chathub/internal/httpapi"
	"chathub/internal/identity"
	"chathub/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	pool, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	st := store.NewPostgres(pool)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Store:  st,
			Engine: engine.NewLocal(st),
			Verifier: identity.FromConfig(identity.Config{
				ProviderBaseURL:   cfg.ProviderBaseURL,
				ProviderAppID:     cfg.ProviderAppID,
				ProviderAppSecret: cfg.ProviderAppSecret,
				JWTSecret:         cfg.JWTSecret,
			}),
			Release: cfg.Release,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("api listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
