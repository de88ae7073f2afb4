// internal/context/engine.go
package context

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/agentflow/internal/types"
	"github.com/user/agentflow/pkg/llm"
)

// Counter measures text in tokens.
type Counter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewTiktokenCounter returns a Counter using the tokenizer for model, or
// cl100k_base when the model is unknown to tiktoken.
func NewTiktokenCounter(model string) (Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return tiktokenCounter{enc: enc}, nil
}

// Engine assembles token-budgeted prompts for the LLM.
type Engine struct {
	counter   Counter
	maxTokens int
	reserve   int
}

// New creates a context engine with the specified token budget.
// model is used to select the appropriate tokenizer (e.g. "gpt-4").
// maxTokens is the model's context window size.
// reserve is the number of tokens to reserve for the model's response.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	c, err := NewTiktokenCounter(model)
	if err != nil {
		return nil, err
	}
	return NewWithCounter(c, maxTokens, reserve), nil
}

// NewWithCounter creates a context engine measuring text with c.
func NewWithCounter(c Counter, maxTokens, reserve int) *Engine {
	return &Engine{
		counter:   c,
		maxTokens: maxTokens,
		reserve:   reserve,
	}
}

// BuildPrompt assembles the system prompt, as much recent history as fits the
// budget, and the new user message. The oldest history is dropped first; the
// system prompt and the new message are always included. Message status is
// display state and is never sent upstream.
func (e *Engine) BuildPrompt(systemPrompt string, history []types.Message, message string, toolNames []string) ([]llm.Message, error) {
	sysPrompt, err := RenderSystemPrompt(systemPrompt, toolNames)
	if err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}

	inputBudget := e.maxTokens - e.reserve
	remaining := inputBudget - e.counter.Count(sysPrompt) - e.counter.Count(message)

	// Walk backwards so the most recent turns survive truncation.
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Role != types.RoleUser && msg.Role != types.RoleAssistant {
			continue
		}
		cost := e.counter.Count(msg.Content)
		if cost > remaining {
			break
		}
		remaining -= cost
		start = i
	}

	messages := make([]llm.Message, 0, 2+len(history)-start)
	messages = append(messages, llm.Message{Role: "system", Content: sysPrompt})
	for _, msg := range history[start:] {
		switch msg.Role {
		case types.RoleUser, types.RoleAssistant:
			if msg.Content == "" {
				continue
			}
			messages = append(messages, llm.Message{Role: string(msg.Role), Content: msg.Content})
		}
	}
	messages = append(messages, llm.Message{Role: "user", Content: message})
	return messages, nil
}
