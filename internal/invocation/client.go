package invocation

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

	log "github.com/sirupsen/logrus"
)

// DefaultEndpoint is the agent invocation URL used when none is configured.
const DefaultEndpoint = "http://localhost:8080/invocations"

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 64 * 1024

// ErrNoBody reports a successful response that carried no stream.
var ErrNoBody = errors.New("response has no body")

// APIError represents a non-2xx response from the agent endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("agent endpoint error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("agent endpoint error: status %d: %s", e.StatusCode, e.Body)
}

// Request is one agent invocation.
type Request struct {
	// Prompt is the user's message.
	Prompt string
	// Fields are extra top-level body fields sent alongside the prompt.
	Fields map[string]any
}

// MarshalJSON flattens Fields next to the prompt.
func (r Request) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(r.Fields)+1)
	for key, value := range r.Fields {
		body[key] = value
	}
	body["prompt"] = r.Prompt
	return json.Marshal(body)
}

// Option configures a Client.
type Option func(*Client)

// WithHeader adds a request header sent on every invocation.
func WithHeader(key string, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets the entry used for request diagnostics.
func WithLogger(entry *log.Entry) Option {
	return func(c *Client) {
		if entry != nil {
			c.logger = entry
		}
	}
}

// Client talks to an agent invocation endpoint.
type Client struct {
	// endpoint is the full invocation URL.
	endpoint string
	// headers are added to every request.
	headers http.Header
	// httpClient executes requests with timeouts.
	httpClient *http.Client
	// logger receives request diagnostics.
	logger *log.Entry
}

// NewClient constructs a client for endpoint. A zero timeout means none.
func NewClient(endpoint string, timeout time.Duration, opts ...Option) *Client {
	client := &Client{
		endpoint: endpoint,
		headers:  http.Header{},
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.WithField("component", "invocation"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Endpoint returns the invocation URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Invoke posts the request and returns the response stream. The caller must
// close the returned body.
func (c *Client) Invoke(ctx context.Context, req Request) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal invocation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create invocation request: %w", err)
	}
	for key, values := range c.headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.WithFields(log.Fields{"endpoint": c.endpoint, "bytes": len(payload)}).Debug("invoking agent")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send invocation request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr != nil {
			return nil, fmt.Errorf("read invocation error body: %w", readErr)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrNoBody
	}
	c.logger.WithField("status", resp.StatusCode).Debug("agent stream opened")
	return resp.Body, nil
}

// NormalizeEndpoint trims the endpoint, defaults the scheme to http and
// validates the result.
func NormalizeEndpoint(raw string) (string, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", errors.New("endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported endpoint scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", raw)
	}
	return parsed.String(), nil
}
