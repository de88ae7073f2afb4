package llm

import (
	"context"
	"iter"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// DefaultTemperature matches the sampling used by the execution service.
const DefaultTemperature float32 = 0.7

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request formatting,
// authentication, and response parsing.
type Provider interface {
	// Complete sends a chat completion request and returns the full response.
	Complete(ctx context.Context, messages []Message, tools []Tool) (*Response, error)

	// Stream sends a chat completion request and yields incremental deltas.
	// An error ends the sequence.
	Stream(ctx context.Context, messages []Message, tools []Tool) iter.Seq2[Delta, error]
}

// Factory builds a provider for one request's model and credentials.
type Factory func(cfg Config) Provider

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// Collect drains a stream into a Response.
func Collect(seq iter.Seq2[Delta, error]) (*Response, error) {
	resp := &Response{}
	for d, err := range seq {
		if err != nil {
			return resp, err
		}
		resp.Content += d.Content
		resp.ToolCalls = append(resp.ToolCalls, d.ToolCalls...)
		if d.Usage != nil {
			resp.Usage = *d.Usage
		}
	}
	return resp, nil
}
