package whisk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"batchgen/core"
	"batchgen/logging"
	"batchgen/orchestrator"
	"batchgen/reference"
)

// Fixed client context values the web client sends.
const (
	captionWorkflowID = "be042ce0-b110-463c-be13-5d23c5bf82b3"
	toolName          = "BACKBONE"
	labsOrigin        = "https://labs.google"
	labsReferer       = "https://labs.google/fx/tools/whisk"
	maxResponseBytes  = 64 << 20
)

// Config configures a Client.
type Config struct {
	Cookie      string
	AccessToken string

	BaseURL      string // generation API, e.g. https://aisandbox-pa.googleapis.com
	LabsURL      string // session, caption and upload API, e.g. https://labs.google
	TokenInfoURL string

	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	CaptionTimeout time.Duration
	AuthTimeout    time.Duration

	RequestsPerMinute     int
	MaxReferenceDimension int

	HTTPClient *http.Client
}

// DefaultConfig returns production endpoints and timeouts.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://aisandbox-pa.googleapis.com",
		LabsURL:           "https://labs.google",
		TokenInfoURL:      "https://www.googleapis.com/oauth2/v3/tokeninfo",
		RequestTimeout:    60 * time.Second,
		UploadTimeout:     60 * time.Second,
		CaptionTimeout:    40 * time.Second,
		AuthTimeout:       20 * time.Second,
		RequestsPerMinute: 30,
	}
}

// ConfigFromCore maps application configuration onto a Client config.
func ConfigFromCore(cfg *core.Config) Config {
	c := DefaultConfig()
	c.Cookie = cfg.WhiskCookie
	c.AccessToken = cfg.WhiskAccessToken
	c.BaseURL = cfg.WhiskBaseURL
	c.LabsURL = cfg.WhiskLabsURL
	c.RequestTimeout = cfg.RequestTimeout
	c.UploadTimeout = cfg.UploadTimeout
	c.RequestsPerMinute = cfg.RequestsPerMinute
	c.MaxReferenceDimension = cfg.MaxReferenceDimension
	c.HTTPClient = core.GetHTTPClient(cfg, 0)
	return c
}

// Client talks to the Whisk service. It is safe for concurrent use.
type Client struct {
	cfg     Config
	cookie  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *logging.Logger
	now     func() time.Time

	mu      sync.RWMutex
	session Session
}

var (
	_ orchestrator.GenerationCapability = (*Client)(nil)
	_ orchestrator.CredentialSource     = (*Client)(nil)
	_ reference.UploadCapability        = (*Client)(nil)
)

// NewClient creates a Client. A token in cfg.AccessToken is used directly;
// otherwise call Authenticate before generating.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.LabsURL == "" {
		cfg.LabsURL = def.LabsURL
	}
	if cfg.TokenInfoURL == "" {
		cfg.TokenInfoURL = def.TokenInfoURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = def.UploadTimeout
	}
	if cfg.CaptionTimeout <= 0 {
		cfg.CaptionTimeout = def.CaptionTimeout
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = def.AuthTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Client{
		cfg:     cfg,
		cookie:  ParseCookie(cfg.Cookie),
		http:    cfg.HTTPClient,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("whisk"),
		now:     time.Now,
		session: Session{AccessToken: strings.TrimSpace(cfg.AccessToken)},
	}
}

// AccessToken returns the current bearer token, or "" before
// authentication.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.AccessToken
}

// Session returns the current session.
func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) setSession(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// sessionID is the ";<unix millis>" value the web client sends.
func (c *Client) sessionID() string {
	return ";" + strconv.FormatInt(c.now().UnixMilli(), 10)
}

func (c *Client) apiHeaders(h http.Header, token string) {
	h.Set("Authorization", "Bearer "+token)
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", core.UserAgent)
	h.Set("Origin", labsOrigin)
	h.Set("Referer", labsReferer)
	h.Set("Accept-Language", "en-US,en;q=0.9")
	if c.cookie != "" {
		h.Set("Cookie", c.cookie)
	}
}

// postJSON sends body to url with the API headers and decodes a 200 response
// into out. It returns the HTTP status; transport and decode failures come
// back as err with status 0.
func (c *Client) postJSON(ctx context.Context, timeout time.Duration, url string, body, out any) (int, error) {
	token := c.AccessToken()
	if token == "" {
		return 0, ErrNotAuthenticated
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("whisk: marshal request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("whisk: create request: %w", err)
	}
	c.apiHeaders(req.Header, token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("whisk: decode response: %w", err)
	}
	return resp.StatusCode, nil
}
