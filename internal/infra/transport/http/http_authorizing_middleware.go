package http

import (
	"context"
	"net/http"
	"strings"

	context_ "github.com/mkrupp/nutrifit-client/internal/infra/context"
	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
)

const unauthorizedMessage = "Token inválido ou expirado."

// TokenValidator resolves a bearer token to the user it was issued for.
type TokenValidator interface {
	// ValidateToken returns the user ID for token and whether the token is valid.
	ValidateToken(ctx context.Context, token string) (string, bool)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}

	return token, true
}

// AuthorizingMiddleware creates middleware that validates bearer tokens.
// Requests without a valid token are rejected with 401 and a JSON error body.
// On successful validation, the user ID is added to the request context.
func AuthorizingMiddleware(
	next http.Handler,
	validator TokenValidator,
	log logging.Logger,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			log.WarnContext(r.Context(), "no token provided")
			WriteError(w, http.StatusUnauthorized, unauthorizedMessage)

			return
		}

		userID, ok := validator.ValidateToken(r.Context(), token)
		if !ok {
			log.WarnContext(r.Context(), "invalid token", "token", logging.Redact(token))
			WriteError(w, http.StatusUnauthorized, unauthorizedMessage)

			return
		}

		next.ServeHTTP(w, r.WithContext(context_.WithUserID(r.Context(), userID)))
	})
}
