package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/user/agentflow/internal/types"
)

// DefaultEndpoint is the chat endpoint of a locally running server.
const DefaultEndpoint = "http://localhost:8000/api/v1/agents/chat"

const maxErrorBody = 4 * 1024

// TransportError reports a failed request or a non-2xx response.
type TransportError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("failed to send message: %v", e.Err)
	case e.Body != "":
		return fmt.Sprintf("failed to send message: %s - %s", e.Status, e.Body)
	default:
		return fmt.Sprintf("failed to send message: %s", e.Status)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client posts chat requests to the execution endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithHeaderTimeout bounds the wait for response headers. The body may
// stream for longer.
func WithHeaderTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.ResponseHeaderTimeout = d
		cl.http = &http.Client{Transport: tr}
	}
}

// NewClient creates a Client for endpoint, or DefaultEndpoint when empty.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send posts req and returns the streaming response body.
func (c *Client) Send(ctx context.Context, req types.ChatRequest) (io.ReadCloser, error) {
	if req.History == nil {
		req.History = []types.Message{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return resp.Body, nil
}
