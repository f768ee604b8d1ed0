// Package emqx is a read-only client for the broker's management API.
package emqx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when the API key or secret is missing.
var ErrNotConfigured = errors.New("EMQX API credentials not configured")

// DefaultPath is requested when the caller gives none.
const DefaultPath = "clients"

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 8 << 20

// UpstreamError reports a non-2xx answer from the management API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("EMQX API error: status %d: %s", e.StatusCode, e.Body)
}

// Client performs authenticated GETs against /api/v5.
type Client struct {
	apiKey     string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a client; empty credentials make every call fail with
// ErrNotConfigured.
func NewClient(apiKey, secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Configured reports whether both credentials are set.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.secretKey != ""
}

// SanitizeHost strips mqtt://, mqtts://, wss:// and ws:// and any :port.
func SanitizeHost(host string) string {
	for _, prefix := range []string{"mqtt://", "mqtts://", "wss://", "ws://"} {
		host = strings.ReplaceAll(host, prefix, "")
	}
	host, _, _ = strings.Cut(host, ":")
	return host
}

// URL builds the upstream address for host and path.
func URL(host, path string) string {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		path = DefaultPath
	}
	return "http://" + SanitizeHost(host) + "/api/v5/" + path
}

// Get fetches path from the management API on host and returns the JSON body.
func (c *Client) Get(ctx context.Context, host, path string) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, URL(host, path), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("EMQX API error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read EMQX response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("EMQX API error: response is not JSON")
	}
	return json.RawMessage(body), nil
}
