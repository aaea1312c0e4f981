package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/terra-clan/interview-recorder/pkg/auth"
)

// DefaultBaseURL is the backend used when none is configured
const DefaultBaseURL = "http://127.0.0.1:8000/api"

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is returned for any non-2xx response
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Is lets callers match status classes with errors.Is
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// Client talks to the recruiting backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *auth.Session
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout. Per-call contexts may be shorter.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithSession attaches the dashboard login used by authenticated calls
func WithSession(s *auth.Session) Option {
	return func(c *Client) {
		c.session = s
	}
}

// NewClient creates a new backend client
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Session returns the attached dashboard session, nil if none
func (c *Client) Session() *auth.Session {
	return c.session
}

// doJSON sends a JSON request and decodes a JSON response into out (if non-nil).
// Authenticated requests attach the bearer token and refresh it once on 401.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}, authed bool) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var token string
	if authed {
		if c.session == nil {
			return auth.ErrUnauthenticated
		}
		var err error
		token, err = c.session.AccessToken(ctx)
		if err != nil {
			return err
		}
	}

	resp, err := c.doRequest(ctx, method, path, body, token)
	if authed && errors.Is(err, ErrUnauthorized) {
		token, err = c.session.Refresh(ctx, token, c.refreshTokens)
		if err != nil {
			return err
		}
		resp, err = c.doRequest(ctx, method, path, body, token)
	}
	if err != nil {
		return err
	}

	if out == nil || len(resp) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, token string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.send(req)
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	return respBody, nil
}
