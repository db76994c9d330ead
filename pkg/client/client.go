// Package client is the REST gateway to the Lista content API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nkkko/lista/internal/metrics"
	"github.com/nkkko/lista/internal/telemetry"
	"github.com/nkkko/lista/pkg/proto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// maxResponseSize bounds how much of a response body is read
const maxResponseSize = 4 << 20

// APIError is returned when the content API answers with a non-2xx status
// or a body carrying success=false
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (%d) %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Client is an HTTP client for the content API
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    http.Header

	mu    sync.RWMutex
	token string

	metrics *metrics.Metrics
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout; zero disables it
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithToken sets the bearer token sent with every request
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithHeaders sets additional HTTP headers
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers.Set(k, v)
		}
	}
}

// New creates a new content API client
func New(baseURL string, options ...ClientOption) *Client {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")

	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		headers:    headers,
		metrics:    metrics.GetMetrics(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// SetToken replaces the bearer token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// envelope is the response wrapper used by the content API
type envelope struct {
	Success   *bool           `json:"success"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Error     json.RawMessage `json:"error"`
}

// do issues a request and decodes the data section of the response into out
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	ctx, span := telemetry.StartClientSpan(ctx, "gateway."+op,
		attribute.String("http.method", method),
		attribute.String("lista.op", op),
	)
	defer span.End()

	start := time.Now()
	status := "transport_error"
	defer func() {
		c.metrics.GatewayRequestsTotal.WithLabelValues(op, status).Inc()
		c.metrics.GatewayRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		telemetry.MarkSpanError(ctx, err)
	}()

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}

	for k, v := range c.headers {
		req.Header[k] = v
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	wrapped := len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &env) == nil && env.Success != nil

	if resp.StatusCode >= 300 || (wrapped && !*env.Success) {
		return decodeAPIError(resp, raw, &env, wrapped)
	}

	if out == nil {
		return nil
	}

	data := json.RawMessage(raw)
	if wrapped {
		data = env.Data
	}
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// decodeAPIError builds an APIError from whatever error shape the server sent
func decodeAPIError(resp *http.Response, raw []byte, env *envelope, wrapped bool) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	if wrapped {
		apiErr.RequestID = env.RequestID
		if len(env.Error) > 0 {
			// The error is either an object or a plain string
			if json.Unmarshal(env.Error, apiErr) != nil {
				var msg string
				if json.Unmarshal(env.Error, &msg) == nil {
					apiErr.Message = msg
				}
			}
		}
	} else {
		var plain struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &plain) == nil {
			apiErr.Message = plain.Message
			if apiErr.Message == "" {
				apiErr.Message = plain.Error
			}
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	// A 2xx with success=false keeps its status but is still a failure
	return apiErr
}

func idPath(format string, ids ...proto.ID) string {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = url.PathEscape(id.String())
	}
	return fmt.Sprintf(format, args...)
}

// DevLogin asks the development backend for a token for the named user
func (c *Client) DevLogin(ctx context.Context, name, email string) (string, *proto.User, error) {
	req := struct {
		Name  string `json:"name"`
		Email string `json:"email,omitempty"`
	}{Name: name, Email: email}

	var out struct {
		Token string      `json:"token"`
		User  *proto.User `json:"user"`
	}
	if err := c.do(ctx, "dev_login", http.MethodPost, "/api/v1/auth/dev-login", req, &out); err != nil {
		return "", nil, err
	}
	return out.Token, out.User, nil
}

// Me returns the authenticated user
func (c *Client) Me(ctx context.Context) (*proto.User, error) {
	var user proto.User
	if err := c.do(ctx, "me", http.MethodGet, "/api/v1/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
