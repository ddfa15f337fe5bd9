package aleph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	ethchecksum "github.com/ethchecksum/ethchecksum"
	"github.com/ethchecksum/ethchecksum/checksum"
)

// ============================================================================
// HTTP Aggregate Client
// ============================================================================

// Client reads and writes aggregates through an Aleph API node.
// Implements ethchecksum.AggregateStore.
type Client struct {
	url        string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	reads      singleflight.Group
	clock      clockwork.Clock
	logger     *slog.Logger
}

// Config configures the aggregate client
type Config struct {
	// URL is the base URL of the API node
	URL string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration

	// Clock stamps message times (optional)
	Clock clockwork.Clock

	// Logger (optional)
	Logger *slog.Logger
}

// DefaultAPIURL is the public Aleph API node
const DefaultAPIURL = "https://api2.aleph.im"

// requestRetries is the number of attempts on 429 rate limit errors
const requestRetries = 3

// requestRetryBaseDelay is the base delay for exponential backoff on retries
const requestRetryBaseDelay = 1 * time.Second

// NewClient creates a new aggregate client
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}

	baseURL := config.URL
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		url:        baseURL,
		httpClient: httpClient,
		clock:      clock,
		logger:     logger,
	}

	// Not-found is a normal answer and must not trip the breaker.
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "aleph-read",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ethchecksum.ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return c
}

// Read fetches the value stored under key for account.
// Returns ethchecksum.ErrNotFound when the account has no such aggregate.
// Concurrent reads of the same (account, key) share one request.
func (c *Client) Read(ctx context.Context, account, key string) (json.RawMessage, error) {
	addr, err := checksum.Normalize(account)
	if err != nil {
		return nil, err
	}

	v, err, _ := c.reads.Do(addr+"/"+key, func() (interface{}, error) {
		return c.breaker.Execute(func() (interface{}, error) {
			return c.readHTTP(ctx, addr, key)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.Join(ethchecksum.ErrTransport, err)
		}
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// Write signs and submits an AGGREGATE message that replaces key for account.
func (c *Client) Write(ctx context.Context, provider ethchecksum.Provider, account, key string, content interface{}, channel string) error {
	now := float64(c.clock.Now().UnixMilli()) / 1000
	msg, err := NewAggregateMessage(account, key, content, channel, now)
	if err != nil {
		return err
	}

	if err := Sign(ctx, provider, msg); err != nil {
		return err
	}

	body, err := json.Marshal(PostRequest{Sync: true, Message: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	status, responseBody, err := c.do(ctx, http.MethodPost, c.url+"/api/v0/messages", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return errors.Join(ethchecksum.ErrTransport, fmt.Errorf("aleph message rejected (%d): %s", status, string(responseBody)))
	}

	c.logger.Debug("aggregate message posted", "account", msg.Sender, "key", key, "item_hash", msg.ItemHash)
	return nil
}

// ============================================================================
// Internal HTTP Methods
// ============================================================================

func (c *Client) readHTTP(ctx context.Context, account, key string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/api/v0/aggregates/%s.json?keys=%s", c.url, account, url.QueryEscape(key))

	status, responseBody, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ethchecksum.ErrNotFound
	default:
		return nil, errors.Join(ethchecksum.ErrTransport, fmt.Errorf("aleph aggregate read failed (%d): %s", status, string(responseBody)))
	}

	var aggregate AggregateResponse
	if err := json.Unmarshal(responseBody, &aggregate); err != nil {
		return nil, errors.Join(ethchecksum.ErrTransport, fmt.Errorf("failed to decode aggregate response: %w", err))
	}

	value, ok := aggregate.Data[key]
	if !ok || len(value) == 0 || string(value) == "null" {
		return nil, ethchecksum.ErrNotFound
	}
	return value, nil
}

// do sends one request, retrying with exponential backoff on 429.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	var (
		status       int
		responseBody []byte
	)

	for attempt := 0; attempt < requestRetries; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, nil, errors.Join(ethchecksum.ErrTransport, fmt.Errorf("%s request failed: %w", method, err))
		}

		responseBody, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return 0, nil, errors.Join(ethchecksum.ErrTransport, fmt.Errorf("failed to read response body: %w", err))
		}
		status = resp.StatusCode

		// Retry on 429 with exponential backoff, except on the last attempt
		if status == http.StatusTooManyRequests && attempt < requestRetries-1 {
			delay := requestRetryBaseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-c.clock.After(delay):
				continue
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			}
		}
		break
	}

	return status, responseBody, nil
}

var _ ethchecksum.AggregateStore = (*Client)(nil)
