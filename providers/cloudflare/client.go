package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	cf "github.com/cloudflare/cloudflare-go"

	"gitlab.bluewillows.net/root/dynhost/pkg/httputil"
)

// DefaultAPIEndpoint is the base URL for Cloudflare API v4.
const DefaultAPIEndpoint = "https://api.cloudflare.com/client/v4"

// apiError represents an error from the Cloudflare API.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// apiResponse is the standard Cloudflare API response wrapper.
type apiResponse struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

// batchDelete identifies a record to remove in a batch.
type batchDelete struct {
	ID string `json:"id"`
}

// batchPost is a record to create in a batch.
type batchPost struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

// batchRequest is the body of POST /zones/{id}/dns_records/batch. Cloudflare
// executes the deletes and posts in a single transaction.
type batchRequest struct {
	Deletes []batchDelete `json:"deletes,omitempty"`
	Posts   []batchPost   `json:"posts,omitempty"`
}

// StatusError carries the HTTP status of a failed API call.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v (http %d)", e.Err, e.Status)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Client talks to the Cloudflare v4 API. Reads go through cloudflare-go;
// the batch write is issued directly.
type Client struct {
	api         *cf.API
	apiEndpoint string
	token       string
	httpClient  *http.Client
	logger      *slog.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAPIEndpoint sets a custom API endpoint (useful for testing).
func WithAPIEndpoint(endpoint string) ClientOption {
	return func(o *clientOptions) {
		o.endpoint = strings.TrimSuffix(endpoint, "/")
	}
}

// WithMaxRetries sets how often the SDK retries rate-limited or failed reads.
// The default is 0.
func WithMaxRetries(n int) ClientOption {
	return func(o *clientOptions) {
		o.maxRetries = n
	}
}

// NewClient creates a new Cloudflare API client.
func NewClient(token string, opts ...ClientOption) (*Client, error) {
	o := &clientOptions{
		endpoint: DefaultAPIEndpoint,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = httputil.NewClient(&httputil.ClientConfig{Logger: o.logger})
	}

	// Wrap the transport so failed SDK calls can be classified by status.
	httpClient := *o.httpClient
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient.Transport = &statusTransport{base: base}

	api, err := cf.NewWithAPIToken(token,
		cf.BaseURL(o.endpoint),
		cf.HTTPClient(&httpClient),
		cf.UsingRetryPolicy(o.maxRetries, 1, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cloudflare API client: %w", err)
	}

	return &Client{
		api:         api,
		apiEndpoint: o.endpoint,
		token:       token,
		httpClient:  &httpClient,
		logger:      o.logger,
	}, nil
}

// Ping verifies the API token.
func (c *Client) Ping(ctx context.Context) error {
	ctx, status := withStatus(ctx)
	if _, err := c.api.VerifyAPIToken(ctx); err != nil {
		return &StatusError{Status: *status, Err: fmt.Errorf("verifying token: %w", err)}
	}
	return nil
}

// ZoneID resolves a zone name to its identifier.
func (c *Client) ZoneID(name string) (string, error) {
	id, err := c.api.ZoneIDByName(strings.TrimSuffix(name, "."))
	if err != nil {
		return "", fmt.Errorf("looking up zone %s: %w", name, err)
	}
	return id, nil
}

// ListRecords returns every record named name in the zone.
func (c *Client) ListRecords(ctx context.Context, zoneID, name string) ([]cf.DNSRecord, error) {
	ctx, status := withStatus(ctx)
	records, _, err := c.api.ListDNSRecords(ctx, cf.ZoneIdentifier(zoneID), cf.ListDNSRecordsParams{
		Name: strings.TrimSuffix(name, "."),
	})
	if err != nil {
		return nil, &StatusError{Status: *status, Err: fmt.Errorf("listing records: %w", err)}
	}

	c.logger.Debug("listed records",
		slog.String("zone_id", zoneID),
		slog.String("name", name),
		slog.Int("count", len(records)),
	)
	return records, nil
}

// Batch deletes and creates records in one transaction.
func (c *Client) Batch(ctx context.Context, zoneID string, req batchRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	path := fmt.Sprintf("/zones/%s/dns_records/batch", zoneID)
	if _, err := c.doRequest(ctx, http.MethodPost, path, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("batch update: %w", err)
	}

	c.logger.Info("applied DNS record batch",
		slog.String("zone_id", zoneID),
		slog.Int("deletes", len(req.Deletes)),
		slog.Int("posts", len(req.Posts)),
	)
	return nil
}

// doRequest performs an HTTP request to the Cloudflare API.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*apiResponse, error) {
	reqURL := c.apiEndpoint + path

	c.logger.Debug("making API request",
		slog.String("method", method),
		slog.String("path", path),
	)

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var apiResp apiResponse
	parseErr := json.Unmarshal(respBody, &apiResp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parseErr == nil && len(apiResp.Errors) > 0 {
			return nil, &StatusError{
				Status: resp.StatusCode,
				Err:    fmt.Errorf("API error: %s (code: %d)", apiResp.Errors[0].Message, apiResp.Errors[0].Code),
			}
		}
		return nil, &StatusError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(respBody))),
		}
	}

	if parseErr != nil {
		return nil, fmt.Errorf("parsing response JSON: %w", parseErr)
	}

	if !apiResp.Success {
		if len(apiResp.Errors) > 0 {
			return nil, fmt.Errorf("API error: %s (code: %d)", apiResp.Errors[0].Message, apiResp.Errors[0].Code)
		}
		return nil, fmt.Errorf("API request failed with unknown error")
	}

	return &apiResp, nil
}

type statusKey struct{}

// withStatus returns a context whose requests record their HTTP status.
func withStatus(ctx context.Context) (context.Context, *int) {
	status := new(int)
	return context.WithValue(ctx, statusKey{}, status), status
}

// statusTransport stores the status of each response in the slot carried by
// the request context, if any.
type statusTransport struct {
	base http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if resp != nil {
		if slot, ok := req.Context().Value(statusKey{}).(*int); ok {
			*slot = resp.StatusCode
		}
	}
	return resp, err
}
