package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	ctxengine "github.com/user/agentflow/internal/context"
	"github.com/user/agentflow/internal/stream"
	"github.com/user/agentflow/internal/types"
	"github.com/user/agentflow/pkg/llm"
)

var (
	ErrMissingModel  = errors.New("model_name is required")
	ErrMissingAPIKey = errors.New("api_key is required")
)

// Emitter receives the events of a turn in order.
type Emitter interface {
	WriteEvent(ev stream.Event) error
}

// Runtime implements the agentic turn loop.
type Runtime struct {
	factory   llm.Factory
	engine    *ctxengine.Engine
	registry  *Registry
	base      llm.Config
	retry     *RetryPolicy
	maxRounds int
}

// New creates a Runtime. base supplies the endpoint, sampling settings and
// the fallback API key; the model and key of each request override it.
func New(factory llm.Factory, engine *ctxengine.Engine, registry *Registry, base llm.Config, maxRounds int) *Runtime {
	if maxRounds <= 0 {
		maxRounds = 10
	}
	return &Runtime{
		factory:   factory,
		engine:    engine,
		registry:  registry,
		base:      base,
		retry:     DefaultRetryPolicy(),
		maxRounds: maxRounds,
	}
}

// SetRetryPolicy replaces the policy used for model calls.
func (rt *Runtime) SetRetryPolicy(p *RetryPolicy) {
	rt.retry = p
}

// Turn is one prepared request, ready to execute.
type Turn struct {
	ID       types.TurnID
	rt       *Runtime
	provider llm.Provider
	tools    []Tool
	llmTools []llm.Tool
	messages []llm.Message
}

// Prepare validates req and builds its provider, tool set and prompt.
// Nothing is sent upstream yet.
func (rt *Runtime) Prepare(req types.ChatRequest) (*Turn, error) {
	if strings.TrimSpace(req.Config.ModelName) == "" {
		return nil, ErrMissingModel
	}
	cfg := rt.base
	cfg.Model = req.Config.ModelName
	if req.Config.APIKey != "" {
		cfg.APIKey = req.Config.APIKey
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	turn := &Turn{ID: types.NewTurnID(), rt: rt}

	tools, unknown := rt.registry.Select(req.Config.Tools)
	if len(unknown) > 0 {
		slog.Warn("ignoring unknown tools", "turn_id", turn.ID, "tools", unknown)
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	turn.tools = tools
	turn.llmTools = AsLLMTools(tools)

	messages, err := rt.engine.BuildPrompt(req.Config.SystemPrompt, req.History, req.Message, names)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}
	turn.messages = messages
	turn.provider = rt.factory(cfg)

	slog.Info("turn prepared", "turn_id", turn.ID, "model", cfg.Model, "tools", names, "messages", len(messages))
	return turn, nil
}

// Execute runs the model until it answers without calling tools. Content is
// emitted as it streams; each tool call is announced with a status event
// before it runs. The returned error has not been emitted.
func (t *Turn) Execute(ctx context.Context, out Emitter) error {
	for round := 0; round < t.rt.maxRounds; round++ {
		resp, err := t.complete(ctx, out)
		if err != nil {
			return fmt.Errorf("LLM call: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			slog.Info("turn complete", "turn_id", t.ID, "rounds", round+1)
			return nil
		}

		t.messages = append(t.messages, llm.Message{Role: "assistant", Content: resp.Content, Tools: resp.ToolCalls})
		for _, tc := range resp.ToolCalls {
			if err := out.WriteEvent(stream.Status("Using " + tc.Function.Name)); err != nil {
				return fmt.Errorf("write status: %w", err)
			}
			result := t.runTool(ctx, tc)
			t.messages = append(t.messages, llm.Message{Role: "tool", Content: result, ToolCallID: tc.ID})
		}
	}
	return fmt.Errorf("max tool rounds (%d) exceeded", t.rt.maxRounds)
}

// permanent stops the retry policy. Once content has reached the client a
// retry would duplicate it.
type permanent struct{ err error }

func (p permanent) Error() string   { return p.err.Error() }
func (p permanent) Unwrap() error   { return p.err }
func (p permanent) Retryable() bool { return false }

func (t *Turn) complete(ctx context.Context, out Emitter) (*llm.Response, error) {
	var resp *llm.Response
	err := t.rt.retry.Execute(ctx, func() error {
		resp = &llm.Response{}
		emitted := false
		for d, err := range t.provider.Stream(ctx, t.messages, t.llmTools) {
			if err != nil {
				if emitted {
					return permanent{err}
				}
				slog.Warn("model call failed", "turn_id", t.ID, "error", err)
				return err
			}
			if d.Content != "" {
				if err := out.WriteEvent(stream.Content(d.Content)); err != nil {
					return permanent{fmt.Errorf("write content: %w", err)}
				}
				emitted = true
				resp.Content += d.Content
			}
			resp.ToolCalls = append(resp.ToolCalls, d.ToolCalls...)
			if d.Usage != nil {
				resp.Usage = *d.Usage
			}
		}
		return nil
	})
	var p permanent
	if errors.As(err, &p) {
		err = p.err
	}
	return resp, err
}

func (t *Turn) runTool(ctx context.Context, tc llm.ToolCall) string {
	var tool Tool
	for _, candidate := range t.tools {
		if candidate.Name() == tc.Function.Name {
			tool = candidate
			break
		}
	}
	if tool == nil {
		slog.Warn("model called unavailable tool", "turn_id", t.ID, "tool", tc.Function.Name)
		return fmt.Sprintf("error: unknown tool %q", tc.Function.Name)
	}

	args := repairArgs(tc.Function.Arguments)
	slog.Info("executing tool", "turn_id", t.ID, "tool", tc.Function.Name, "call_id", tc.ID)
	result, err := tool.Execute(ctx, args)
	if err != nil {
		slog.Warn("tool failed", "turn_id", t.ID, "tool", tc.Function.Name, "error", err)
		return fmt.Sprintf("error: %v", err)
	}
	return result
}

// repairArgs returns raw when it is valid JSON, an empty object when it is
// blank, and otherwise the best repair jsonrepair can make.
func repairArgs(raw json.RawMessage) json.RawMessage {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(raw) {
		return raw
	}
	fixed, err := jsonrepair.JSONRepair(string(raw))
	if err != nil {
		slog.Warn("could not repair tool arguments", "error", err)
		return raw
	}
	return json.RawMessage(fixed)
}
