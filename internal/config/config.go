package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	HTTPAddr    string
	Release     string

	// Identity provider (external-identity mode). All three must be set
	// for provider verification to be active.
	ProviderBaseURL   string
	ProviderAppID     string
	ProviderAppSecret string

	// Pre-shared secret (local-secret mode). Ignored when the provider is
	// configured.
	JWTSecret string
}

func Load() (Config, error) {
	// Optional: load local .env for development. Missing file is fine.
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL: os.Getenv("CHATHUB_DATABASE_URL"),
		HTTPAddr:    getenvDefault("CHATHUB_HTTP_ADDR", ":8080"),
		Release:     getenvDefault("CHATHUB_RELEASE", "dev"),

		ProviderBaseURL:   strings.TrimRight(strings.TrimSpace(os.Getenv("CHATHUB_PROVIDER_BASE_URL")), "/"),
		ProviderAppID:     strings.TrimSpace(os.Getenv("CHATHUB_PROVIDER_APP_ID")),
		ProviderAppSecret: strings.TrimSpace(os.Getenv("CHATHUB_PROVIDER_APP_SECRET")),

		JWTSecret: os.Getenv("CHATHUB_JWT_SECRET"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("CHATHUB_DATABASE_URL is required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
