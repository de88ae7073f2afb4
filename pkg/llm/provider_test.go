package llm

import (
	"context"
	"errors"
	"iter"
	"testing"
)

// MockProvider is a test double that satisfies the Provider interface.
type MockProvider struct {
	CompleteFunc func(ctx context.Context, messages []Message, tools []Tool) (*Response, error)
	StreamFunc   func(ctx context.Context, messages []Message, tools []Tool) iter.Seq2[Delta, error]
}

func (m *MockProvider) Complete(ctx context.Context, messages []Message, tools []Tool) (*Response, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages, tools)
	}
	return &Response{Content: "mock response"}, nil
}

func (m *MockProvider) Stream(ctx context.Context, messages []Message, tools []Tool) iter.Seq2[Delta, error] {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, messages, tools)
	}
	return func(yield func(Delta, error) bool) {
		yield(Delta{Content: "mock stream"}, nil)
	}
}

func TestProviderInterface(t *testing.T) {
	var provider Provider = &MockProvider{}
	ctx := context.Background()
	messages := []Message{{Role: "user", Content: "test"}}

	resp, err := provider.Complete(ctx, messages, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content == "" {
		t.Error("expected non-empty response")
	}

	var got string
	for d, err := range provider.Stream(ctx, messages, nil) {
		if err != nil {
			t.Fatal(err)
		}
		got += d.Content
	}
	if got != "mock stream" {
		t.Errorf("expected 'mock stream', got %q", got)
	}
}

func TestCollect(t *testing.T) {
	seq := func(yield func(Delta, error) bool) {
		if !yield(Delta{Content: "Hel"}, nil) {
			return
		}
		if !yield(Delta{Content: "lo"}, nil) {
			return
		}
		yield(Delta{
			ToolCalls: []ToolCall{{ID: "call_1", Function: FunctionCall{Name: "get_weather"}}},
			Usage:     &Usage{TotalTokens: 7},
		}, nil)
	}

	resp, err := Collect(seq)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Hello" {
		t.Errorf("expected 'Hello', got %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Name != "get_weather" {
		t.Errorf("expected one get_weather call, got %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("expected 7 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestCollectError(t *testing.T) {
	boom := errors.New("boom")
	seq := func(yield func(Delta, error) bool) {
		if !yield(Delta{Content: "partial"}, nil) {
			return
		}
		yield(Delta{}, boom)
	}

	resp, err := Collect(seq)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if resp.Content != "partial" {
		t.Errorf("expected partial content to survive, got %q", resp.Content)
	}
}
