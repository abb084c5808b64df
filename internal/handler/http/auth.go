package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Openverse-iiitk/mess-rating/internal/auth"
	"github.com/Openverse-iiitk/mess-rating/internal/service"
	"github.com/Openverse-iiitk/mess-rating/pkg/httputil"
	"github.com/Openverse-iiitk/mess-rating/pkg/middleware"
	"github.com/Openverse-iiitk/mess-rating/pkg/validator"
)

// AuthHandler handles sign-in and session endpoints.
type AuthHandler struct {
	service      *service.IdentityService
	sessionTTL   time.Duration
	cookieSecure bool
	logger       *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler. sessionTTL sets the
// session cookie's Max-Age.
func NewAuthHandler(svc *service.IdentityService, sessionTTL time.Duration, cookieSecure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:      svc,
		sessionTTL:   sessionTTL,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

// GoogleSignInRequest carries a Google ID token, or an authorization code
// with the redirect URI it was issued for.
type GoogleSignInRequest struct {
	Credential  string `json:"credential" validate:"required_without=Code"`
	Code        string `json:"code" validate:"required_without=Credential"`
	RedirectURI string `json:"redirectUri" validate:"required_with=Code"`
}

// SessionResponse describes the signed-in caller.
type SessionResponse struct {
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// GoogleSignIn handles POST /api/v1/auth/google
func (h *AuthHandler) GoogleSignIn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	var req GoogleSignInRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	session, err := h.service.SignIn(r.Context(), service.SignInInput{
		Credential:  req.Credential,
		Code:        req.Code,
		RedirectURI: req.RedirectURI,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	httputil.WriteData(w, http.StatusOK, SessionResponse{
		Email:     session.Email,
		Name:      session.Name,
		Token:     session.Token,
		ExpiresAt: &session.ExpiresAt,
	})
}

// Session handles GET /api/v1/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "no active session")
		return
	}
	httputil.WriteData(w, http.StatusOK, SessionResponse{Email: claims.Email, Name: claims.Name})
}

// Logout handles POST /api/v1/auth/logout. Tokens are stateless, so this
// only clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
