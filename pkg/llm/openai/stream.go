package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"strings"

	"github.com/user/agentflow/pkg/llm"
)

const maxSSELineSize = 1 * 1024 * 1024

// streamChunk is one chat.completion.chunk payload.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   *string `json:"content,omitempty"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id,omitempty"`
				Type     string `json:"type,omitempty"`
				Function struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				} `json:"function"`
			} `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *responseUsage `json:"usage,omitempty"`
}

// pendingCall accumulates one tool call's fragments.
type pendingCall struct {
	id, typ, name string
	args          strings.Builder
}

// Stream sends a streaming chat completion request. Content deltas are
// yielded as they arrive; tool calls are assembled from their fragments and
// yielded together once the stream ends.
func (c *Client) Stream(ctx context.Context, messages []llm.Message, tools []llm.Tool) iter.Seq2[llm.Delta, error] {
	return func(yield func(llm.Delta, error) bool) {
		reqBody := c.buildRequest(messages, tools)
		reqBody.Stream = true
		reqBody.StreamOptions = &streamOptions{IncludeUsage: true}

		resp, err := c.post(ctx, reqBody)
		if err != nil {
			yield(llm.Delta{}, err)
			return
		}
		defer resp.Body.Close()

		calls := map[int]*pendingCall{}
		var usage *llm.Usage

		err = scanSSE(resp.Body, func(payload string) bool {
			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				yield(llm.Delta{}, fmt.Errorf("parsing stream chunk: %w", err))
				return false
			}
			if chunk.Usage != nil {
				u := chunk.Usage.toLLM()
				usage = &u
			}
			for _, ch := range chunk.Choices {
				for _, part := range ch.Delta.ToolCalls {
					pc, ok := calls[part.Index]
					if !ok {
						pc = &pendingCall{}
						calls[part.Index] = pc
					}
					if part.ID != "" {
						pc.id = part.ID
					}
					if part.Type != "" {
						pc.typ = part.Type
					}
					if part.Function.Name != "" {
						pc.name = part.Function.Name
					}
					pc.args.WriteString(part.Function.Arguments)
				}
				if ch.Delta.Content != nil && *ch.Delta.Content != "" {
					if !yield(llm.Delta{Content: *ch.Delta.Content}, nil) {
						return false
					}
				}
			}
			return true
		})
		if errors.Is(err, errStopped) {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			yield(llm.Delta{}, err)
			return
		}

		final := llm.Delta{ToolCalls: assemble(calls), Usage: usage}
		if len(final.ToolCalls) > 0 || final.Usage != nil {
			yield(final, nil)
		}
	}
}

// errStopped marks a scan ended by the consumer.
var errStopped = errors.New("stream consumer stopped")

func assemble(calls map[int]*pendingCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	idx := make([]int, 0, len(calls))
	for i := range calls {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]llm.ToolCall, 0, len(idx))
	for _, i := range idx {
		pc := calls[i]
		typ := pc.typ
		if typ == "" {
			typ = "function"
		}
		out = append(out, llm.ToolCall{
			ID:   pc.id,
			Type: typ,
			Function: llm.FunctionCall{
				Name:      pc.name,
				Arguments: json.RawMessage(pc.args.String()),
			},
		})
	}
	return out
}

// scanSSE calls fn with each data payload until the [DONE] sentinel, EOF, or
// fn returns false. Comments and non-data fields are skipped.
func scanSSE(r io.Reader, fn func(payload string) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}
		if !fn(data) {
			return errStopped
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}
