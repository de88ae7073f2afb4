package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/agentflow/pkg/llm"
)

const maxErrorBody = 64 * 1024

// APIError is a non-2xx response from the completions endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying: rate limiting and
// server errors.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client implements the llm.Provider interface for OpenAI-compatible APIs.
type Client struct {
	config     *llm.Config
	httpClient *http.Client
}

// New creates a new OpenAI-compatible client with the given configuration.
// An empty BaseURL selects llm.DefaultBaseURL.
func New(config *llm.Config) *Client {
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = llm.DefaultBaseURL
	}
	return &Client{
		config:     &cfg,
		httpClient: newHTTPClient(headerTimeout),
	}
}

// headerTimeout bounds the wait for response headers. Streamed bodies are
// limited only by the caller's context.
const headerTimeout = 120 * time.Second

func newHTTPClient(d time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = d
	return &http.Client{Transport: tr}
}

// Factory returns an llm.Factory producing Clients.
func Factory() llm.Factory {
	return func(cfg llm.Config) llm.Provider {
		return New(&cfg)
	}
}

// chatRequest is the OpenAI chat completions request body.
type chatRequest struct {
	Model         string           `json:"model"`
	Messages      []requestMessage `json:"messages"`
	Tools         []llm.Tool       `json:"tools,omitempty"`
	MaxTokens     int              `json:"max_tokens,omitempty"`
	Temperature   *float32         `json:"temperature,omitempty"`
	Stream        bool             `json:"stream,omitempty"`
	StreamOptions *streamOptions   `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// requestMessage is the OpenAI message format for requests.
type requestMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// wireToolCall carries arguments as a JSON-encoded string, as the API does.
type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// chatResponse is the OpenAI chat completions response body.
type chatResponse struct {
	Choices []choice      `json:"choices"`
	Usage   responseUsage `json:"usage"`
}

// choice represents a single completion choice.
type choice struct {
	Message responseMessage `json:"message"`
}

// responseMessage is the OpenAI message format in responses.
type responseMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

// responseUsage is the OpenAI token usage format.
type responseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u responseUsage) toLLM() llm.Usage {
	return llm.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}

func toWire(calls []llm.ToolCall) []wireToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]wireToolCall, len(calls))
	for i, tc := range calls {
		w := wireToolCall{ID: tc.ID, Type: tc.Type}
		if w.Type == "" {
			w.Type = "function"
		}
		w.Function.Name = tc.Function.Name
		w.Function.Arguments = string(tc.Function.Arguments)
		out[i] = w
	}
	return out
}

func fromWire(calls []wireToolCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llm.ToolCall, len(calls))
	for i, w := range calls {
		out[i] = llm.ToolCall{
			ID:   w.ID,
			Type: w.Type,
			Function: llm.FunctionCall{
				Name:      w.Function.Name,
				Arguments: json.RawMessage(w.Function.Arguments),
			},
		}
	}
	return out
}

func (c *Client) buildRequest(messages []llm.Message, tools []llm.Tool) chatRequest {
	reqMessages := make([]requestMessage, len(messages))
	for i, msg := range messages {
		reqMessages[i] = requestMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCalls:  toWire(msg.Tools),
			ToolCallID: msg.ToolCallID,
		}
	}

	reqBody := chatRequest{
		Model:    c.config.Model,
		Messages: reqMessages,
	}

	if len(tools) > 0 {
		reqBody.Tools = tools
	}

	if c.config.MaxTokens > 0 {
		reqBody.MaxTokens = c.config.MaxTokens
	}

	if c.config.Temperature != 0 {
		temp := c.config.Temperature
		reqBody.Temperature = &temp
	}
	return reqBody
}

// post sends reqBody and returns the open response. Non-200 responses are
// drained, closed and returned as *APIError.
func (c *Client) post(ctx context.Context, reqBody chatRequest) (*http.Response, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if reqBody.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return resp, nil
}

// Complete sends a chat completion request and returns the full response.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	resp, err := c.post(ctx, c.buildRequest(messages, tools))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := chatResp.Choices[0]
	return &llm.Response{
		Content:   choice.Message.Content,
		ToolCalls: fromWire(choice.Message.ToolCalls),
		Usage:     chatResp.Usage.toLLM(),
	}, nil
}
