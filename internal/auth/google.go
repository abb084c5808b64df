package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Openverse-iiitk/mess-rating/internal/domain"
	apperrors "github.com/Openverse-iiitk/mess-rating/pkg/errors"
	"github.com/Openverse-iiitk/mess-rating/pkg/httpclient"
)

const upstreamGoogle = "google identity"

// GoogleConfig configures the Google identity verifier.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	TokenInfoURL string
	TokenURL     string
}

// GoogleVerifier verifies Google ID tokens with the tokeninfo endpoint and
// exchanges OAuth authorization codes for ID tokens. Calls go through a
// circuit breaker.
type GoogleVerifier struct {
	cfg    GoogleConfig
	client *httpclient.CircuitBreakerClient
	logger *slog.Logger
	now    func() time.Time
}

// NewGoogleVerifier creates a verifier.
func NewGoogleVerifier(cfg GoogleConfig, client *httpclient.CircuitBreakerClient, logger *slog.Logger) *GoogleVerifier {
	return &GoogleVerifier{
		cfg:    cfg,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// tokenInfo is the tokeninfo response. Google encodes booleans and
// timestamps in it as strings.
type tokenInfo struct {
	Issuer        string `json:"iss"`
	Audience      string `json:"aud"`
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Expiry        string `json:"exp"`
}

type tokenResponse struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// VerifyIDToken checks an ID token and returns the identity it asserts.
func (v *GoogleVerifier) VerifyIDToken(ctx context.Context, idToken string) (*domain.Identity, error) {
	if idToken == "" {
		return nil, apperrors.Unauthorized("missing identity token")
	}

	endpoint := v.cfg.TokenInfoURL + "?" + url.Values{"id_token": {idToken}}.Encode()
	resp, err := v.client.Get(ctx, endpoint)
	if err != nil {
		return nil, v.transportError(ctx, "tokeninfo", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, upstreamGoogle)
	}
	defer func() { _ = resp.Body.Close() }()

	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode tokeninfo response: %w", err)
	}

	if err := v.checkClaims(&info); err != nil {
		return nil, err
	}

	return &domain.Identity{
		Email:         NormalizeEmail(info.Email),
		EmailVerified: true,
		Name:          info.Name,
		Picture:       info.Picture,
		Subject:       info.Subject,
	}, nil
}

func (v *GoogleVerifier) checkClaims(info *tokenInfo) error {
	if info.Audience != v.cfg.ClientID {
		return apperrors.Unauthorized("identity token was issued for another client")
	}
	if info.Issuer != "accounts.google.com" && info.Issuer != "https://accounts.google.com" {
		return apperrors.Unauthorized("identity token has an unexpected issuer")
	}
	if info.Email == "" {
		return apperrors.Unauthorized("identity token carries no email")
	}
	if verified, _ := strconv.ParseBool(info.EmailVerified); !verified {
		return apperrors.Unauthorized("email address is not verified")
	}
	if info.Expiry != "" {
		exp, err := strconv.ParseInt(info.Expiry, 10, 64)
		if err != nil || !v.now().Before(time.Unix(exp, 0)) {
			return apperrors.Unauthorized("identity token has expired")
		}
	}
	return nil
}

// ExchangeCode redeems an authorization code at the token endpoint and
// verifies the ID token it returns.
func (v *GoogleVerifier) ExchangeCode(ctx context.Context, code, redirectURI string) (*domain.Identity, error) {
	if code == "" {
		return nil, apperrors.Unauthorized("missing authorization code")
	}
	if v.cfg.ClientSecret == "" {
		return nil, apperrors.Unavailable("authorization code sign-in is not configured")
	}

	form := url.Values{
		"code":          {code},
		"client_id":     {v.cfg.ClientID},
		"client_secret": {v.cfg.ClientSecret},
		"redirect_uri":  {redirectURI},
		"grant_type":    {"authorization_code"},
	}
	resp, err := v.client.PostForm(ctx, v.cfg.TokenURL, form)
	if err != nil {
		return nil, v.transportError(ctx, "token", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, upstreamGoogle)
	}
	defer func() { _ = resp.Body.Close() }()

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tok.IDToken == "" {
		return nil, apperrors.Unauthorized("token response carries no id_token")
	}

	return v.VerifyIDToken(ctx, tok.IDToken)
}

// transportError maps network failures and an open breaker to 503. A
// canceled caller context is returned as is.
func (v *GoogleVerifier) transportError(ctx context.Context, endpoint string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	v.logger.WarnContext(ctx, "identity provider call failed",
		slog.String("endpoint", endpoint),
		slog.String("error", err.Error()),
	)
	if errors.Is(err, httpclient.ErrCircuitOpen) {
		return apperrors.Unavailable("identity provider temporarily unavailable")
	}
	return apperrors.Unavailable("identity provider unreachable")
}
