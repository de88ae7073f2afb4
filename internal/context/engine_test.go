package context

import (
	"strings"
	"testing"

	"github.com/user/agentflow/internal/types"
)

// wordCounter counts whitespace-separated words, standing in for a tokenizer.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func TestNewEngine(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	if err != nil {
		t.Skipf("tokenizer unavailable: %v", err)
	}
	if e == nil {
		t.Fatal("expected non-nil engine")
	}
	if n := e.counter.Count("hello world"); n == 0 {
		t.Error("expected a positive token count")
	}
}

func TestBuildPromptBasic(t *testing.T) {
	e := NewWithCounter(wordCounter{}, 128000, 4096)

	history := []types.Message{
		{Role: types.RoleUser, Content: "hello"},
		{Role: types.RoleAssistant, Content: "hi there", Status: "thinking"},
	}

	messages, err := e.BuildPrompt("You are a helpful AI assistant.", history, "what's new?", nil)
	if err != nil {
		t.Fatal(err)
	}

	// system + 2 history + new message
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" {
		t.Errorf("expected system message first, got %q", messages[0].Role)
	}
	if !strings.HasPrefix(messages[0].Content, "You are a helpful AI assistant.") {
		t.Errorf("expected configured prompt first, got %q", messages[0].Content)
	}
	if messages[1].Role != "user" || messages[1].Content != "hello" {
		t.Errorf("expected user 'hello', got %+v", messages[1])
	}
	if messages[2].Role != "assistant" || messages[2].Content != "hi there" {
		t.Errorf("expected assistant 'hi there', got %+v", messages[2])
	}
	if messages[3].Role != "user" || messages[3].Content != "what's new?" {
		t.Errorf("expected new user message last, got %+v", messages[3])
	}
}

func TestBuildPromptSkipsEmptyPlaceholders(t *testing.T) {
	e := NewWithCounter(wordCounter{}, 1000, 100)
	history := []types.Message{
		{Role: types.RoleUser, Content: "q"},
		{Role: types.RoleAssistant, Content: ""},
	}

	messages, err := e.BuildPrompt("sys", history, "again", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
}

func TestBuildPromptToolList(t *testing.T) {
	e := NewWithCounter(wordCounter{}, 1000, 100)

	messages, err := e.BuildPrompt("sys", nil, "weather?", []string{"get_weather", "read_url"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(messages[0].Content, "get_weather, read_url") {
		t.Errorf("expected tool list in system prompt, got %q", messages[0].Content)
	}

	messages, err = e.BuildPrompt("sys", nil, "weather?", nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(messages[0].Content, "Available tools") {
		t.Errorf("expected no tool section, got %q", messages[0].Content)
	}
}

func TestBuildPromptBudgetTruncation(t *testing.T) {
	e := NewWithCounter(wordCounter{}, 200, 50)

	history := make([]types.Message, 50)
	for i := range history {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		history[i] = types.Message{Role: role, Content: "This is a message that takes up tokens in the budget."}
	}
	history[len(history)-1].Content = "most recent reply"

	messages, err := e.BuildPrompt("sys", history, "next", nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(messages) >= 52 {
		t.Errorf("expected truncation, got %d messages for 50 history entries", len(messages))
	}
	if messages[0].Role != "system" {
		t.Fatal("expected system prompt first")
	}
	if got := messages[len(messages)-2].Content; got != "most recent reply" {
		t.Errorf("expected the most recent history to survive, got %q", got)
	}
	if got := messages[len(messages)-1].Content; got != "next" {
		t.Errorf("expected the new message last, got %q", got)
	}
}

func TestBuildPromptNoBudgetKeepsMessage(t *testing.T) {
	e := NewWithCounter(wordCounter{}, 10, 10)

	messages, err := e.BuildPrompt("sys", []types.Message{{Role: types.RoleUser, Content: "old"}}, "new", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected system + new message, got %d", len(messages))
	}
}
