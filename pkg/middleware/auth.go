package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Openverse-iiitk/mess-rating/pkg/httputil"
	"github.com/Openverse-iiitk/mess-rating/pkg/logger"
)

type contextKeyType string

const claimsKey contextKeyType = "session_claims"

// Claims is what a valid session token tells us about the caller.
type Claims struct {
	Email string
	Name  string
	// Subject is a stable pseudonym for logs and rate limiting.
	Subject string
}

// TokenValidator validates a session token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

// Session resolves the caller's session from a Bearer token or, failing
// that, the named cookie. Requests without a valid session pass through
// anonymously; use RequireSession on routes that need one.
func Session(validate TokenValidator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r, cookieName)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := validate(token)
			if err != nil {
				logger.FromContext(r.Context()).DebugContext(r.Context(), "ignoring invalid session token",
					"error", err.Error(),
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			if claims.Subject != "" {
				ctx = logger.WithSubject(ctx, claims.Subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession rejects requests that Session did not authenticate with 401.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ClaimsFromContext(r.Context()) == nil {
			httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClaimsFromContext returns the session claims, or nil for anonymous requests.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// EmailFromContext returns the signed-in email, or "" when anonymous.
func EmailFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Email
	}
	return ""
}

// WithClaims stores claims in ctx. Handlers under test use it to skip token
// validation.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// tokenFromRequest prefers a Bearer Authorization header. Any other scheme,
// such as Basic added by a proxy, falls through to the session cookie.
func tokenFromRequest(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, _ := strings.Cut(h, " ")
		if strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
