// Package client provides the HTTP client for the importsize API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/importsize/importsize/internal/bundler"
	"github.com/importsize/importsize/internal/entry"
)

// Client is the importsize API client
type Client struct {
	// BaseURL is the importsize server URL
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// Debug enables debug logging
	Debug bool

	// UserAgent to use for requests
	UserAgent string
}

// ClientOption configures the client
type ClientOption func(*Client)

// NewClient creates a new API client for the server at baseURL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		UserAgent: "importsize-cli/1.0",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithDebug enables debug mode
func WithDebug(debug bool) ClientOption {
	return func(c *Client) {
		c.Debug = debug
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.HTTPClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.HTTPClient = hc
	}
}

// Bundle asks the server to bundle imports
func (c *Client) Bundle(ctx context.Context, imports []entry.Import) (*bundler.Outcome, error) {
	var outcome bundler.Outcome
	body := map[string]interface{}{"imports": imports}
	if err := c.DoPost(ctx, "/api/v1/bundle", body, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// Resolve asks the server to resolve a specifier imported by importer
func (c *Client) Resolve(ctx context.Context, specifier, importer string) (string, error) {
	query := url.Values{}
	query.Set("specifier", specifier)
	if importer != "" {
		query.Set("importer", importer)
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := c.DoGet(ctx, "/api/v1/resolve", query, &result); err != nil {
		return "", err
	}
	return result.URL, nil
}

// Request makes an API request
func (c *Client) Request(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	return c.RequestWithQuery(ctx, method, path, body, nil)
}

// RequestWithQuery makes an API request with query parameters
func (c *Client) RequestWithQuery(ctx context.Context, method, path string, body interface{}, query url.Values) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)

	if c.Debug {
		fmt.Printf("DEBUG: %s %s\n", method, u.String())
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	return c.RequestWithQuery(ctx, http.MethodGet, path, nil, query)
}

// Post performs a POST request
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.Request(ctx, http.MethodPost, path, body)
}

// DoGet performs a GET request and decodes the response into target
func (c *Client) DoGet(ctx context.Context, path string, query url.Values, target interface{}) error {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeBody(resp, target)
}

// DoPost performs a POST request and decodes the response into target
func (c *Client) DoPost(ctx context.Context, path string, body interface{}, target interface{}) error {
	resp, err := c.Post(ctx, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeBody(resp, target)
}

// decodeBody decodes the response body into target
func decodeBody(resp *http.Response, target interface{}) error {
	if resp.StatusCode >= 400 {
		return parseErrorBody(resp)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// parseErrorBody parses an error response body
func parseErrorBody(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read error response: %v", err),
		}
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	apiErr.StatusCode = resp.StatusCode
	return &apiErr
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Error_     string `json:"error"`
	Code       string `json:"code"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Error_ != "" {
		if e.Code != "" {
			return fmt.Sprintf("%s (%s)", e.Error_, e.Code)
		}
		return e.Error_
	}
	return fmt.Sprintf("API error with status %d", e.StatusCode)
}
