// internal/types/models.go
package types

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry. Status is empty when no status is pending.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Status  string `json:"status,omitempty"`
}

// AgentConfig is the flattened configuration sent to the execution service.
type AgentConfig struct {
	ModelName    string   `json:"model_name"`
	APIKey       string   `json:"api_key"`
	SystemPrompt string   `json:"system_prompt"`
	Tools        []string `json:"tools"`
}

// ChatRequest is the body of POST /api/v1/agents/chat.
type ChatRequest struct {
	Message string      `json:"message"`
	Config  AgentConfig `json:"config"`
	History []Message   `json:"history"`
}
