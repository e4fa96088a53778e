package middleware

import (
	"net/http"
	"strings"

	"github.com/example/ewaste-exchange/internal/api/respond"
	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/example/ewaste-exchange/internal/auth"
	"github.com/example/ewaste-exchange/internal/logger"
)

const AccessTokenCookie = "access_token"

var (
	errMissingToken = apperr.New(apperr.CodeUnauthorized, "authentication required")
	errWrongRole    = apperr.New(apperr.CodeForbidden, "role not permitted")
)

// TokenVerifier is satisfied by *auth.TokenService.
type TokenVerifier interface {
	VerifyAccess(token string) (*auth.Claims, error)
}

// ExtractToken reads the access token from the cookie set at login, falling
// back to an Authorization bearer header.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// Authenticate rejects requests without a valid access token and puts the
// actor on the context.
func Authenticate(tokens TokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				respond.Error(r.Context(), log, w, errMissingToken)
				return
			}
			claims, err := tokens.VerifyAccess(token)
			if err != nil {
				respond.Error(r.Context(), log, w, err)
				return
			}

			actor := actorFromClaims(claims)
			ctx := WithActor(r.Context(), actor)
			if log != nil {
				ctx = log.WithActor(ctx, actor.ID, actor.Role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after Authenticate.
func RequireRole(log *logger.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				respond.Error(r.Context(), log, w, errMissingToken)
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respond.Error(r.Context(), log, w, errWrongRole.WithDetails(map[string]any{"required": roles}))
		})
	}
}
