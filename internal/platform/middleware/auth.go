package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "canopy/pkg/domain"
	"canopy/pkg/requestcontext"
)

// TokenValidator validates a substrate-issued bearer token and returns the
// account identifier it binds. The core never creates identities; it trusts
// the account id the substrate signed.
type TokenValidator interface {
	ValidateToken(tokenString string) (id.AccountID, error)
}

// RequireAccount extracts the caller's account id from the Authorization
// header and injects it into the request context. Requests without a valid
// token are rejected before reaching any handler.
func RequireAccount(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				unauthorized(w)
				return
			}
			account, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w)
				return
			}
			ctx := requestcontext.WithAccountID(r.Context(), account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Invalid or missing token"}`))
}
