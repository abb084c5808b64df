package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/Openverse-iiitk/mess-rating/pkg/errors"
)

// OAuthErrorResponse is the error body returned by OAuth 2.0 endpoints
// (RFC 6749 section 5.2), including Google's token and tokeninfo endpoints.
type OAuthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ParseResponseError consumes and closes a non-2xx response from upstream
// and maps it to an AppError. Credential rejections (400, 401, 403) become
// Unauthorized so they never surface as server faults.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", upstream, resp.StatusCode, err)
	}

	detail := string(body)
	var oauthErr OAuthErrorResponse
	if json.Unmarshal(body, &oauthErr) == nil && (oauthErr.Error != "" || oauthErr.ErrorDescription != "") {
		detail = oauthErr.Error
		if oauthErr.ErrorDescription != "" {
			if detail != "" {
				detail += ": "
			}
			detail += oauthErr.ErrorDescription
		}
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return apperrors.Unauthorized(fmt.Sprintf("%s rejected the credential: %s", upstream, detail))
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return apperrors.Unavailable(fmt.Sprintf("%s unavailable (status %d)", upstream, resp.StatusCode))
	default:
		return fmt.Errorf("%s returned status %d: %s", upstream, resp.StatusCode, detail)
	}
}
