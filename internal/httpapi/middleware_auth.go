package httpapi

import (
	"context"
	"errors"
	"net/http"

	"chathub/internal/identity"
)

func (s server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := s.verifier.Verify(r.Context(), token)
		if errors.Is(err, identity.ErrMissingToken) {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
