package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/betfoundry/playerlink/internal/metrics"
	"github.com/betfoundry/playerlink/internal/models"
)

// RefreshPath is the token refresh endpoint. A 401 from this endpoint is
// terminal and never triggers another refresh.
const RefreshPath = "/api/v1/auth/refresh"

// TokenStore is the client's view of the session store. Token mutation only
// happens through it, never directly by request call sites.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	SetAccessToken(token string) error
	ClearTokens() error
}

// Client is the single choke point for all authenticated REST calls.
// It attaches the bearer token, decodes the uniform response envelope and
// enforces the single-flight token refresh protocol on 401 responses.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	limiter    *rate.Limiter
	logger     zerolog.Logger
	onExpired  func()

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
}

type refreshResult struct {
	token string
	err   error
}

// Option configures the Client
type Option func(*Client)

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying http client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit caps outbound request rate
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "api_client").Logger()
	}
}

// WithSessionExpiredHandler registers the callback invoked on terminal
// session teardown, the client-side equivalent of a redirect to the
// logged-out landing route
func WithSessionExpiredHandler(fn func()) Option {
	return func(c *Client) {
		c.onExpired = fn
	}
}

// New creates a Client against the given base URL
func New(baseURL string, tokens TokenStore, options ...Option) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		tokens: tokens,
		logger: zerolog.Nop(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// Get performs a GET request and decodes the envelope data into out
func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post performs a POST request and decodes the envelope data into out
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Do performs a request with bearer auth and envelope decoding
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	return c.do(ctx, method, path, query, body, out, false)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}, retried bool) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	resp, respBody, err := c.send(ctx, method, path, query, body, c.tokens.AccessToken())
	if err != nil {
		metrics.RecordAPIRequest("transport_error")
		return fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// A 401 from the refresh endpoint itself is terminal, never recursive
		if path == RefreshPath {
			metrics.RecordAPIRequest("unauthorized")
			c.terminate()
			return ErrSessionExpired
		}

		if !retried {
			metrics.RecordAPIRequest("unauthorized")
			if _, err := c.refreshAccessToken(ctx); err != nil {
				return err
			}
			// Replay exactly once with the refreshed token
			return c.do(ctx, method, path, query, body, out, true)
		}
	}

	return c.decode(resp, respBody, out)
}

// send builds and executes a single HTTP request
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body interface{}, token string) (*http.Response, []byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	metrics.APIRequestSeconds.Observe(duration.Seconds())

	if err != nil {
		c.logger.Error().
			Err(err).
			Str("method", method).
			Str("path", path).
			Dur("duration", duration).
			Msg("Request failed")
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("Request completed")

	return resp, respBody, nil
}

// decode unpacks the uniform response envelope into out. A response without
// a usable envelope is synthesized into an equivalent error.
func (c *Client) decode(resp *http.Response, respBody []byte, out interface{}) error {
	var envelope models.Envelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		metrics.RecordAPIRequest("bad_envelope")
		return &Error{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("unexpected response with status %d", resp.StatusCode),
		}
	}

	if !envelope.Success {
		metrics.RecordAPIRequest("api_error")
		apiErr := &Error{Status: resp.StatusCode}
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return apiErr
	}

	metrics.RecordAPIRequest("success")

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}
	return nil
}

// refreshAccessToken mints a new access token, guaranteeing at most one
// refresh call in flight system-wide. Callers that observe a 401 while a
// refresh is running park on a waiter channel and are released with the
// refreshed token or the refresh error.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.refreshing {
		waiter := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, waiter)
		c.mu.Unlock()

		select {
		case result := <-waiter:
			return result.token, result.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	token, err := c.performRefresh(ctx)

	c.mu.Lock()
	c.refreshing = false
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- refreshResult{token: token, err: err}
	}

	return token, err
}

// performRefresh executes the actual refresh call. Any failure is terminal:
// both tokens are cleared and the session-expired handler fires.
func (c *Client) performRefresh(ctx context.Context) (string, error) {
	refreshToken := c.tokens.RefreshToken()
	if refreshToken == "" {
		metrics.RecordTokenRefresh("no_token")
		c.terminate()
		return "", ErrSessionExpired
	}

	body := map[string]string{"refresh_token": refreshToken}
	resp, respBody, err := c.send(ctx, http.MethodPost, RefreshPath, nil, body, "")
	if err != nil {
		metrics.RecordTokenRefresh("transport_error")
		c.logger.Error().Err(err).Msg("Token refresh request failed")
		c.terminate()
		return "", ErrSessionExpired
	}

	var envelope models.Envelope
	if unmarshalErr := json.Unmarshal(respBody, &envelope); unmarshalErr != nil || !envelope.Success {
		metrics.RecordTokenRefresh("rejected")
		c.logger.Warn().Int("status", resp.StatusCode).Msg("Token refresh rejected")
		c.terminate()
		return "", ErrSessionExpired
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.AccessToken == "" {
		metrics.RecordTokenRefresh("rejected")
		c.terminate()
		return "", ErrSessionExpired
	}

	if err := c.tokens.SetAccessToken(payload.AccessToken); err != nil {
		metrics.RecordTokenRefresh("store_error")
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	metrics.RecordTokenRefresh("success")
	c.logger.Info().Msg("Access token refreshed")
	return payload.AccessToken, nil
}

// terminate clears the session and signals the logged-out state
func (c *Client) terminate() {
	if err := c.tokens.ClearTokens(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear tokens")
	}
	if c.onExpired != nil {
		c.onExpired()
	}
}
