package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/dynhost/pkg/httputil"
)

// Webhook API request/response types. They define the contract between
// dynhost and webhook endpoints.

// Record is one address record on the wire.
type Record struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
	TTL   int    `json:"ttl"`
	ID    string `json:"id,omitempty"`
}

// ChangeRequest is the body of POST /changes. The endpoint applies it as
// one transaction: all of it or none of it.
type ChangeRequest struct {
	Deletions []Record `json:"deletions"`
	Additions []Record `json:"additions"`
}

// ErrorResponse is the expected error response format from webhooks.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StatusError is a non-success response from the endpoint.
type StatusError struct {
	Op     string
	Status int
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s failed: %s (status %d)", e.Op, e.Msg, e.Status)
	}
	return fmt.Sprintf("%s failed: unexpected status %d", e.Op, e.Status)
}

// Client is a webhook HTTP client.
type Client struct {
	baseURL    string
	authHeader string
	authToken  string
	httpClient *http.Client
	logger     *slog.Logger
	retries    int
	retryDelay time.Duration
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetries sets the number of retry attempts for transient failures.
func WithRetries(retries int) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.retries = retries
		}
	}
}

// WithRetryDelay sets the base delay between retry attempts.
func WithRetryDelay(delay time.Duration) ClientOption {
	return func(c *Client) {
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// NewClient creates a new webhook client.
func NewClient(baseURL, authHeader, authToken string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		authHeader: authHeader,
		authToken:  authToken,
		httpClient: httputil.DefaultClient(),
		logger:     slog.Default(),
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// isRetryable returns true if the status code indicates the request was
// not processed.
func isRetryable(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// doRequest performs an HTTP request, retrying transient failures up to
// retries times. body is re-sent in full on each attempt.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, retries int) (int, []byte, error) {
	reqURL := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1))
			c.logger.Debug("retrying webhook request",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
		if err != nil {
			return 0, nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.authHeader != "" && c.authToken != "" {
			req.Header.Set(c.authHeader, c.authToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			lastErr = fmt.Errorf("executing request: %w", err)
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response body: %w", err)
			continue
		}

		if isRetryable(resp.StatusCode) && attempt < retries {
			lastErr = fmt.Errorf("server returned %d", resp.StatusCode)
			continue
		}
		return resp.StatusCode, respBody, nil
	}

	if retries == 0 {
		return 0, nil, lastErr
	}
	return 0, nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func statusError(op string, status int, body []byte) error {
	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		msg := errResp.Error
		if errResp.Message != "" {
			msg += ": " + errResp.Message
		}
		return &StatusError{Op: op, Status: status, Msg: msg}
	}
	return &StatusError{Op: op, Status: status}
}

// Ping checks connectivity to the webhook endpoint.
// Sends GET /ping and expects 200 OK. Ping is the only call that retries.
func (c *Client) Ping(ctx context.Context) error {
	status, body, err := c.doRequest(ctx, http.MethodGet, "/ping", nil, c.retries)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if status != http.StatusOK {
		return statusError("ping", status, body)
	}
	return nil
}

// Records returns the records named name of the given types.
// Sends GET /records?name=<name>&type=<type>... once and expects a JSON array.
func (c *Client) Records(ctx context.Context, name string, types ...string) ([]Record, error) {
	q := url.Values{"name": {name}}
	for _, t := range types {
		q.Add("type", t)
	}

	status, body, err := c.doRequest(ctx, http.MethodGet, "/records?"+q.Encode(), nil, 0)
	if err != nil {
		return nil, fmt.Errorf("records failed: %w", err)
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, statusError("records", status, body)
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("parsing records response: %w", err)
	}
	return records, nil
}

// Change sends one change request.
// Sends POST /changes exactly once and accepts 200 OK or 204 No Content.
// A lost response may hide a committed change, so a resend could be
// rejected for records it already replaced.
func (c *Client) Change(ctx context.Context, change ChangeRequest) error {
	body, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	status, respBody, err := c.doRequest(ctx, http.MethodPost, "/changes", body, 0)
	if err != nil {
		return fmt.Errorf("change failed: %w", err)
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return statusError("change", status, respBody)
	}
	return nil
}
