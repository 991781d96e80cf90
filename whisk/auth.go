package whisk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"batchgen/core"
)

// Session is the bearer token obtained from the browser cookie.
// ExpiresAt is zero when the expiry could not be looked up.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Expired reports whether the token is known to have expired at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type sessionResponse struct {
	AccessToken      string `json:"access_token"`
	AccessTokenCamel string `json:"accessToken"`
}

type tokenInfoResponse struct {
	// tokeninfo returns exp as a quoted number
	Exp json.Number `json:"exp"`
}

// Authenticate exchanges the cookie for an access token and looks up its
// expiry. The token is kept for later calls.
func (c *Client) Authenticate(ctx context.Context) (Session, error) {
	if c.cookie == "" {
		return Session{}, ErrNoCookie
	}

	token, err := c.fetchSessionToken(ctx)
	if err != nil {
		return Session{}, err
	}

	s := Session{AccessToken: token}
	if exp, err := c.tokenExpiry(ctx, token); err != nil {
		c.logger.Warn("token expiry lookup failed", zap.Error(err))
	} else {
		s.ExpiresAt = exp
	}

	c.setSession(s)
	c.logger.Info("authenticated", zap.Time("expires_at", s.ExpiresAt))
	return s, nil
}

// EnsureSession authenticates unless a token is already present.
func (c *Client) EnsureSession(ctx context.Context) (Session, error) {
	if s := c.Session(); s.AccessToken != "" && !s.Expired(c.now()) {
		return s, nil
	}
	return c.Authenticate(ctx)
}

func (c *Client) fetchSessionToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AuthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.LabsURL+"/fx/api/auth/session", nil)
	if err != nil {
		return "", fmt.Errorf("whisk: create session request: %w", err)
	}
	req.Header.Set("Cookie", c.cookie)
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	req.Header.Set("User-Agent", core.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &APIError{Op: "session", Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("session", "", resp.StatusCode)
	}

	var body sessionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", &APIError{Op: "session", StatusCode: resp.StatusCode, Reason: "bad session response", Err: err}
	}

	token := body.AccessToken
	if token == "" {
		token = body.AccessTokenCamel
	}
	if token == "" {
		return "", ErrNoAccessToken
	}
	return token, nil
}

func (c *Client) tokenExpiry(ctx context.Context, token string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	u := c.cfg.TokenInfoURL + "?access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("whisk: create tokeninfo request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("whisk: tokeninfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("whisk: tokeninfo: HTTP %d", resp.StatusCode)
	}

	var info tokenInfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return time.Time{}, fmt.Errorf("whisk: decode tokeninfo: %w", err)
	}
	secs, err := strconv.ParseInt(info.Exp.String(), 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}, fmt.Errorf("whisk: tokeninfo has no expiry")
	}
	return time.Unix(secs, 0), nil
}
