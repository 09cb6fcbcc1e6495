package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultPollInterval = 2 * time.Second
	storePath           = "/api/store"
)

// Failure reasons reported by the relay. Keep in sync with the server.
const (
	ReasonMissingState  = "missing_state"
	ReasonNoCodeStored  = "no_code_stored"
	ReasonStateMismatch = "state_mismatch"
	ReasonProviderError = "provider_error"
	ReasonInternal      = "internal"
)

// RelayError is a failed withdrawal as reported by the relay.
type RelayError struct {
	StatusCode int
	Message    string
	Reason     string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Message)
}

// Pending reports whether polling again may succeed.
func (e *RelayError) Pending() bool {
	switch e.Reason {
	case ReasonNoCodeStored, ReasonStateMismatch, ReasonInternal:
		return true
	}
	return e.StatusCode >= http.StatusInternalServerError
}

// Client withdraws codes from a relay.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	pollInterval   time.Duration
	withdrawMethod string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithPollInterval(d time.Duration) Option {
	return func(cl *Client) { cl.pollInterval = d }
}

// WithWithdrawMethod sets the verb used to withdraw. It must match the
// relay's configuration; GET sends the state as a query parameter.
func WithWithdrawMethod(method string) Option {
	return func(cl *Client) { cl.withdrawMethod = strings.ToUpper(method) }
}

// New creates a client for the relay at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     http.DefaultClient,
		pollInterval:   defaultPollInterval,
		withdrawMethod: http.MethodPost,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Withdraw makes a single attempt to collect the code for state.
func (c *Client) Withdraw(ctx context.Context, state string) (string, error) {
	req, err := c.newWithdrawRequest(ctx, state)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("[Client Withdraw] request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Code   string `json:"code"`
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", &RelayError{StatusCode: resp.StatusCode, Message: "unreadable response"}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &RelayError{StatusCode: resp.StatusCode, Message: body.Error, Reason: body.Reason}
	}
	if body.Code == "" {
		return "", &RelayError{StatusCode: resp.StatusCode, Message: "empty code", Reason: ReasonInternal}
	}
	return body.Code, nil
}

// Poll withdraws repeatedly until a code arrives, the relay reports a
// failure that will not clear by waiting, or ctx is done.
func (c *Client) Poll(ctx context.Context, state string) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		code, err := c.Withdraw(ctx, state)
		if err == nil {
			return code, nil
		}

		var relayErr *RelayError
		if errors.As(err, &relayErr) && !relayErr.Pending() {
			return "", err
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("Code not available yet")

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("[Client Poll] gave up after %d attempts: %w", attempt, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) newWithdrawRequest(ctx context.Context, state string) (*http.Request, error) {
	if c.withdrawMethod == http.MethodGet {
		u := c.baseURL + storePath + "?" + url.Values{"state": {state}}.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("[Client Withdraw] build request: %w", err)
		}
		return req, nil
	}

	payload, err := json.Marshal(map[string]string{"state": state})
	if err != nil {
		return nil, fmt.Errorf("[Client Withdraw] encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, c.withdrawMethod, c.baseURL+storePath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("[Client Withdraw] build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
