// Package agent delivers settings changes to the remote Windows-service
// agent. Payloads are authenticated with a shared-secret HMAC rather than a
// session token; delivery is at-least-once with a bounded retry budget.
package agent

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"prosite.org/internal/obs"
)

// SignatureHeader carries the hex-encoded HMAC-SHA-256 of the exact request
// body.
const SignatureHeader = "X-HMAC-Signature"

// ErrDeliveryFailed means the retry budget was exhausted without a 2xx
// response. The local settings write has already committed by the time this
// surfaces; callers treat it as a warning, not a rollback trigger.
var ErrDeliveryFailed = errors.New("agent: delivery failed")

const (
	defaultAttempts = 3
	defaultDelay    = time.Second
	defaultTimeout  = 10 * time.Second
)

// Client signs and pushes settings payloads. Stateless given its
// configuration; safe for concurrent use.
type Client struct {
	baseURL    string
	secret     []byte
	httpClient *http.Client
	attempts   int
	delay      time.Duration
}

// Option configures Client.
type Option func(*Client)

// WithAttempts caps HTTP attempts per push.
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.delay = d
		}
	}
}

// WithTimeout bounds each individual attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient swaps the underlying HTTP client (useful for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New constructs a Client. The shared secret is injected configuration, held
// immutable for the process lifetime.
func New(baseURL, secret string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("agent: base URL is empty")
	}
	if secret == "" {
		return nil, errors.New("agent: shared secret is empty")
	}
	c := &Client{
		baseURL:    baseURL,
		secret:     []byte(secret),
		httpClient: &http.Client{Timeout: defaultTimeout},
		attempts:   defaultAttempts,
		delay:      defaultDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type pushPayload struct {
	CastleID string `json:"castleId"`
	Settings any    `json:"settings"`
}

// PushSettings serializes {castleId, settings}, signs the bytes and POSTs
// them to the agent endpoint for the castle, retrying on any non-2xx
// response or transport error. Permanent rejections are not distinguished
// from outages; both consume the retry budget.
func (c *Client) PushSettings(ctx context.Context, castleID string, settings any) error {
	if strings.TrimSpace(castleID) == "" {
		return errors.New("agent: castle id is empty")
	}
	body, err := json.Marshal(pushPayload{CastleID: castleID, Settings: settings})
	if err != nil {
		return fmt.Errorf("agent: encode payload: %w", err)
	}
	signature := c.sign(body)
	url := c.baseURL + "/windows-api/castles/" + castleID

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				obs.ObserveDelivery("canceled", attempt-1)
				return ctx.Err()
			}
		}
		if lastErr = c.attempt(ctx, url, body, signature); lastErr == nil {
			obs.ObserveDelivery("ok", attempt)
			return nil
		}
	}
	obs.ObserveDelivery("failed", c.attempts)
	return fmt.Errorf("%w after %d attempts: %v", ErrDeliveryFailed, c.attempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, url string, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("agent returned %s", resp.Status)
	}
	return nil
}

func (c *Client) sign(body []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under the shared secret.
// The agent side uses the same check; kept here so both ends share one
// definition in tests.
func Verify(secret, signature string, body []byte) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
