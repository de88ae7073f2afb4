package context

import (
	"strings"
	"text/template"
	"time"
)

// DefaultPrompt wraps the agent's configured system prompt. It uses Go
// text/template syntax with PromptData fields.
const DefaultPrompt = `{{.SystemPrompt}}

## Current Context

- Time: {{.Time}}
{{- if .Tools}}
- Available tools: {{.ToolList}}

Use a tool when it would help answer the question instead of guessing. If a
tool call fails, explain what happened.
{{- end}}
`

// PromptData is the data passed to DefaultPrompt.
type PromptData struct {
	SystemPrompt string
	Time         string
	Tools        []string
	ToolList     string
}

var promptTemplate = template.Must(template.New("system").Parse(DefaultPrompt))

// RenderSystemPrompt fills DefaultPrompt for one turn.
func RenderSystemPrompt(systemPrompt string, toolNames []string) (string, error) {
	var b strings.Builder
	err := promptTemplate.Execute(&b, PromptData{
		SystemPrompt: strings.TrimSpace(systemPrompt),
		Time:         time.Now().Format(time.RFC3339),
		Tools:        toolNames,
		ToolList:     strings.Join(toolNames, ", "),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
