//go:build integration

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxengine "github.com/user/agentflow/internal/context"
	"github.com/user/agentflow/internal/conversation"
	"github.com/user/agentflow/internal/graph"
	"github.com/user/agentflow/internal/runtime"
	"github.com/user/agentflow/internal/server"
	"github.com/user/agentflow/internal/types"
	"github.com/user/agentflow/pkg/llm"
	"github.com/user/agentflow/pkg/llm/openai"
)

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

type cityWeather struct{}

func (cityWeather) Name() string        { return "get_weather" }
func (cityWeather) Description() string { return "Get the current weather for a city." }
func (cityWeather) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`)
}
func (cityWeather) Execute(_ context.Context, args json.RawMessage) (string, error) {
	var p struct{ City string }
	if err := json.Unmarshal(args, &p); err != nil {
		return "", err
	}
	return "Current weather in " + p.City + ": 72°F, Clear sky.", nil
}

// fakeModel speaks the OpenAI streaming protocol: it asks for get_weather
// first and answers once the tool result is in the conversation.
type fakeModel struct {
	mu       sync.Mutex
	apiKeys  []string
	requests []map[string]any
}

func (m *fakeModel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	m.mu.Lock()
	m.apiKeys = append(m.apiKeys, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	m.requests = append(m.requests, body)
	m.mu.Unlock()

	msgs, _ := body["messages"].([]any)
	last, _ := msgs[len(msgs)-1].(map[string]any)

	w.Header().Set("Content-Type", "text/event-stream")
	var chunks []string
	if last["role"] == "tool" {
		chunks = []string{
			`{"choices":[{"delta":{"content":"It's sunny "}}]}`,
			`{"choices":[{"delta":{"content":"in Paris."}}]}`,
		}
	} else {
		chunks = []string{
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"Paris\"}"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		}
	}
	for _, c := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", c)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func newStack(t *testing.T) (*fakeModel, *httptest.Server) {
	t.Helper()
	model := &fakeModel{}
	modelSrv := httptest.NewServer(model)
	t.Cleanup(modelSrv.Close)

	engine := ctxengine.NewWithCounter(wordCounter{}, 100000, 1000)
	rt := runtime.New(openai.Factory(), engine, runtime.NewRegistry(cityWeather{}), llm.Config{
		BaseURL: modelSrv.URL,
		APIKey:  "server-key",
	}, 5)
	srv := httptest.NewServer(server.NewServer(rt, 2, ""))
	t.Cleanup(srv.Close)
	return model, srv
}

func TestEndToEnd(t *testing.T) {
	model, srv := newStack(t)

	store := graph.DefaultStore()
	var (
		mu       sync.Mutex
		statuses []string
	)
	session := conversation.NewSession(
		conversation.NewClient(srv.URL+server.ChatPath),
		func() (types.AgentConfig, error) { return graph.Derive(store) },
		conversation.WithObserver(func(t []types.Message, _ conversation.State) {
			if len(t) == 0 {
				return
			}
			if s := t[len(t)-1].Status; s != "" {
				mu.Lock()
				statuses = append(statuses, s)
				mu.Unlock()
			}
		}),
	)

	require.NoError(t, session.Submit(context.Background(), "What's the weather in Paris?"))

	transcript := session.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, types.Message{Role: types.RoleAssistant, Content: "It's sunny in Paris."}, transcript[1])
	assert.Contains(t, statuses, "Using get_weather")
	assert.Equal(t, conversation.Idle, session.State())

	model.mu.Lock()
	defer model.mu.Unlock()
	require.Len(t, model.requests, 2)
	assert.Equal(t, graph.DefaultModelName, model.requests[0]["model"])
	// No key on the model node, so the server's key is used.
	assert.Equal(t, []string{"server-key", "server-key"}, model.apiKeys)
}

func TestEndToEndGraphEdits(t *testing.T) {
	model, srv := newStack(t)

	store := graph.NewStore()
	session := conversation.NewSession(
		conversation.NewClient(srv.URL+server.ChatPath),
		func() (types.AgentConfig, error) { return graph.Derive(store) },
	)

	err := session.Submit(context.Background(), "hello")
	assert.ErrorIs(t, err, graph.ErrNoModelNode)
	assert.Empty(t, session.Transcript())

	id, err := store.AddNode(graph.Node{Kind: graph.KindModel, Fields: map[string]string{
		graph.FieldModelName: "gemini-2.5-pro",
		graph.FieldAPIKey:    "node-key",
	}})
	require.NoError(t, err)
	_, err = store.AddNode(graph.Node{Kind: graph.KindTool, Fields: map[string]string{graph.FieldToolName: "get_weather"}})
	require.NoError(t, err)

	require.NoError(t, session.Submit(context.Background(), "weather?"))
	assert.Equal(t, "It's sunny in Paris.", session.Transcript()[1].Content)

	require.NoError(t, store.RemoveNode(id))
	err = session.Submit(context.Background(), "again")
	assert.ErrorIs(t, err, graph.ErrNoModelNode)
	assert.Len(t, session.Transcript(), 2)

	model.mu.Lock()
	defer model.mu.Unlock()
	assert.Equal(t, "node-key", model.apiKeys[0])
	assert.Equal(t, "gemini-2.5-pro", model.requests[0]["model"])
}

func TestEndToEndServerValidation(t *testing.T) {
	_, srv := newStack(t)

	resp, err := http.Post(srv.URL+server.ChatPath, "application/json", strings.NewReader(`{"message":"hi","config":{}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, strings.TrimSpace(string(body)))
}
