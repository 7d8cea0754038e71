package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// the league provider's player catalog is several megabytes
const maxResponseBodySize = 16 << 20 // 16MB

// connection pooling limits; every provider call goes to one of two hosts
const (
	defaultMaxIdleConns        = 50
	defaultMaxIdleConnsPerHost = 20
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 90 * time.Second
)

// Client is an HTTP client wrapper for JSON provider reads.
//
// Client applies a per-request timeout via context when one is configured.
// A zero timeout leaves the request bounded only by the transport defaults
// and the caller's context.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a new provider [Client].
//
// Connection pooling configuration:
//   - MaxIdleConns: 50 total idle connections
//   - MaxIdleConnsPerHost: 20 idle connections per host
//   - MaxConnsPerHost: 20 concurrent connections per host
//   - IdleConnTimeout: 90 seconds before closing idle connections
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		timeout: timeout,
	}
}

// Fetch performs a GET request and returns the response body as raw JSON.
//
// Transport failures, non-2xx responses and bodies that are not valid JSON
// are all reported as *[UpstreamError]. Provider is left empty; [Gateway]
// fills it in.
func (c *Client) Fetch(ctx context.Context, url string) (json.RawMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &UpstreamError{URL: url, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{URL: url, Message: fmt.Sprintf("request failed: %v", err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &UpstreamError{URL: url, Status: resp.StatusCode, Message: "failed to read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{URL: url, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if !json.Valid(body) {
		return nil, &UpstreamError{URL: url, Status: resp.StatusCode, Message: "response is not valid JSON"}
	}

	return json.RawMessage(body), nil
}

// Close closes all idle connections in the client's connection pool.
// Safe to call multiple times and on a nil receiver.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
