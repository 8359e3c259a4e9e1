package idealista

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aluiziolira/idealista-price-trends/models"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token exchanges creds for a bearer token using the client-credentials
// grant. The HTTP status is logged but never decides the outcome: only an
// undecodable body or an absent access_token is a failure.
func (c *Client) Token(ctx context.Context, creds models.Credentials) (string, error) {
	if creds.Empty() {
		return "", ErrNoCredentials
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "read")

	hdr := http.Header{}
	hdr.Set("Authorization", "Basic "+basicAuth(creds.Key, creds.Secret))
	hdr.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.post(ctx, phaseToken, c.cfg.TokenURL, strings.NewReader(form.Encode()), hdr)
	if err != nil {
		return "", err
	}

	var payload tokenResponse
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		slog.Error("error decoding token response",
			slog.Int("status", resp.status),
			slog.Any("error", err),
		)
		decodeErr := fmt.Errorf("%w (HTTP status code: %d): %v", ErrTokenDecode, resp.status, err)
		c.recordError(decodeErr)
		return "", decodeErr
	}
	if payload.AccessToken == "" {
		slog.Error("token response has no access_token", slog.Int("status", resp.status))
		c.recordError(ErrTokenMissing)
		return "", ErrTokenMissing
	}
	slog.Debug("token acquired",
		slog.String("token_type", payload.TokenType),
		slog.Int("expires_in", payload.ExpiresIn),
	)
	return payload.AccessToken, nil
}

func basicAuth(key, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(key + ":" + secret))
}
