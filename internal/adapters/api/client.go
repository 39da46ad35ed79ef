package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/andrescamacho/takaro-connector/internal/adapters/metrics"
	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 3
	defaultBackoffBase = 500 * time.Millisecond
)

// ClientOptions configures the platform client
type ClientOptions struct {
	BaseURL           string
	AdminToken        string
	Timeout           time.Duration
	RequestsPerSecond int
	Burst             int
	MaxRetries        int
	BackoffBase       time.Duration
	BreakerThreshold  int
	BreakerCoolDown   time.Duration
}

// APIError is a non-retryable response from the platform
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform API error (status %d): %s", e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from the platform
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Variable is a persisted key/value owned by user code
type Variable struct {
	ID           string `json:"id"`
	Key          string `json:"key"`
	Value        string `json:"value"`
	GameServerID string `json:"gameServerId,omitempty"`
	ModuleID     string `json:"moduleId,omitempty"`
}

// CommandResult is the outcome of a raw console command
type CommandResult struct {
	RawResult string `json:"rawResult"`
	Success   bool   `json:"success"`
}

// PlatformClient talks to the Takaro platform API. Domain-scoped calls take
// the caller's token; the admin token is only used for the token exchange.
type PlatformClient struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	breaker     *CircuitBreaker
	baseURL     string
	adminToken  string
	maxRetries  int
	backoffBase time.Duration
	clock       shared.Clock
}

// NewPlatformClient creates a client. Zero options fall back to defaults;
// a nil clock means the real clock.
func NewPlatformClient(opts ClientOptions, clock shared.Clock) *PlatformClient {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = opts.RequestsPerSecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerCoolDown <= 0 {
		opts.BreakerCoolDown = 30 * time.Second
	}

	return &PlatformClient{
		httpClient:  &http.Client{Timeout: opts.Timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		breaker:     NewCircuitBreaker(opts.BreakerThreshold, opts.BreakerCoolDown, clock),
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		adminToken:  opts.AdminToken,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		clock:       clock,
	}
}

func (c *PlatformClient) BaseURL() string {
	return c.baseURL
}

func (c *PlatformClient) Breaker() *CircuitBreaker {
	return c.breaker
}

// Token exchanges the admin token for a token scoped to domainID
func (c *PlatformClient) Token(ctx context.Context, domainID string) (string, error) {
	if c.adminToken == "" {
		return "", fmt.Errorf("platform admin token is not configured")
	}
	var response struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	path := "/domain/" + url.PathEscape(domainID) + "/token"
	if err := c.request(ctx, http.MethodPost, path, c.adminToken, nil, &response); err != nil {
		return "", fmt.Errorf("failed to get token for domain %s: %w", domainID, err)
	}
	if response.Data.Token == "" {
		return "", fmt.Errorf("platform returned an empty token for domain %s", domainID)
	}
	return response.Data.Token, nil
}

// SendMessage broadcasts msg on a game server, or whispers it when recipient is set
func (c *PlatformClient) SendMessage(ctx context.Context, token, gameServerID, msg, recipientGameID string) error {
	body := map[string]any{"message": msg}
	if recipientGameID != "" {
		body["opts"] = map[string]any{"recipient": map[string]string{"gameId": recipientGameID}}
	}
	path := "/gameserver/" + url.PathEscape(gameServerID) + "/message"
	if err := c.request(ctx, http.MethodPost, path, token, body, nil); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// ExecuteCommand runs a raw console command on a game server
func (c *PlatformClient) ExecuteCommand(ctx context.Context, token, gameServerID, command string) (*CommandResult, error) {
	var response struct {
		Data CommandResult `json:"data"`
	}
	path := "/gameserver/" + url.PathEscape(gameServerID) + "/command"
	if err := c.request(ctx, http.MethodPost, path, token, map[string]string{"command": command}, &response); err != nil {
		return nil, fmt.Errorf("failed to execute command: %w", err)
	}
	return &response.Data, nil
}

// GiveItem gives amount of item to a player
func (c *PlatformClient) GiveItem(ctx context.Context, token, gameServerID, playerGameID, item string, amount int) error {
	path := "/gameserver/" + url.PathEscape(gameServerID) + "/player/" + url.PathEscape(playerGameID) + "/giveItem"
	body := map[string]any{"name": item, "amount": amount}
	if err := c.request(ctx, http.MethodPost, path, token, body, nil); err != nil {
		return fmt.Errorf("failed to give item: %w", err)
	}
	return nil
}

// ListPlayers returns the players currently online
func (c *PlatformClient) ListPlayers(ctx context.Context, token, gameServerID string) ([]gameserver.Player, error) {
	var response struct {
		Data []gameserver.Player `json:"data"`
	}
	path := "/gameserver/" + url.PathEscape(gameServerID) + "/players"
	if err := c.request(ctx, http.MethodGet, path, token, nil, &response); err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return response.Data, nil
}

// GetVariable returns the variable matching key and scope, or nil
func (c *PlatformClient) GetVariable(ctx context.Context, token string, v Variable) (*Variable, error) {
	filters := map[string][]string{"key": {v.Key}}
	if v.GameServerID != "" {
		filters["gameServerId"] = []string{v.GameServerID}
	}
	if v.ModuleID != "" {
		filters["moduleId"] = []string{v.ModuleID}
	}

	var response struct {
		Data []Variable `json:"data"`
	}
	if err := c.request(ctx, http.MethodPost, "/variables/search", token, map[string]any{"filters": filters}, &response); err != nil {
		return nil, fmt.Errorf("failed to search variables: %w", err)
	}
	if len(response.Data) == 0 {
		return nil, nil
	}
	return &response.Data[0], nil
}

// SetVariable creates the variable or updates the existing one's value
func (c *PlatformClient) SetVariable(ctx context.Context, token string, v Variable) error {
	existing, err := c.GetVariable(ctx, token, v)
	if err != nil {
		return err
	}
	if existing != nil {
		path := "/variables/" + url.PathEscape(existing.ID)
		if err := c.request(ctx, http.MethodPut, path, token, map[string]string{"value": v.Value}, nil); err != nil {
			return fmt.Errorf("failed to update variable %s: %w", v.Key, err)
		}
		return nil
	}
	if err := c.request(ctx, http.MethodPost, "/variables", token, v, nil); err != nil {
		return fmt.Errorf("failed to create variable %s: %w", v.Key, err)
	}
	return nil
}

func addJitter(d time.Duration) time.Duration {
	jitter := 0.5 + rand.Float64() // 0.5 to 1.5
	return time.Duration(float64(d) * jitter)
}

// request sends one API call through the breaker, rate limiter and retry
// loop. Client errors (4xx other than 429) are returned as *APIError without
// counting against the breaker.
func (c *PlatformClient) request(ctx context.Context, method, path, token string, body, result interface{}) error {
	var clientErr error
	err := c.breaker.Call(func() error {
		err := c.doWithRetries(ctx, method, path, token, body, result)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			clientErr = err
			return nil
		}
		return err
	})
	metrics.SetPlatformCircuitState(c.breaker.State().String())
	if clientErr != nil {
		return clientErr
	}
	return err
}

func (c *PlatformClient) doWithRetries(ctx context.Context, method, path, token string, body, result interface{}) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				return fmt.Errorf("context cancelled: %w", ctx.Err())
			}
			delay := addJitter(c.backoffBase * time.Duration(1<<(attempt-1)))
			var re *retryableError
			if errors.As(lastErr, &re) {
				metrics.RecordPlatformRetry(endpointLabel(path), re.reason)
				if re.retryAfter > 0 {
					delay = re.retryAfter
				}
			}
			c.clock.Sleep(delay)
		}

		waitStart := time.Now()
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}
		metrics.RecordRateLimitWait(time.Since(waitStart))

		err := c.do(ctx, method, path, token, payload, result)
		if err == nil {
			return nil
		}
		var re *retryableError
		if !errors.As(err, &re) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *PlatformClient) do(ctx context.Context, method, path, token string, payload []byte, result interface{}) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &retryableError{reason: "network", message: fmt.Sprintf("network error: %v", err)}
	}
	defer resp.Body.Close()
	metrics.RecordPlatformCall(endpointLabel(path), method, resp.StatusCode, time.Since(started))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{reason: "read", message: fmt.Sprintf("failed to read response: %v", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		re := &retryableError{reason: "rate_limited", message: "rate limited (429)"}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			re.retryAfter = time.Duration(secs) * time.Second
		}
		return re
	case resp.StatusCode >= 500:
		return &retryableError{reason: "server_error", message: fmt.Sprintf("server error (%d)", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// endpointLabel keeps the first path segment so ids do not explode label cardinality
func endpointLabel(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return "/" + trimmed
}

// retryableError marks a failure worth another attempt. reason is a short
// fixed label for metrics.
type retryableError struct {
	reason     string
	message    string
	retryAfter time.Duration
}

func (e *retryableError) Error() string {
	return e.message
}
