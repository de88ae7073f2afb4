package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/agentflow/internal/stream"
	"github.com/user/agentflow/internal/types"
)

func turn(content, status string) []types.Message {
	return []types.Message{
		{Role: types.RoleUser, Content: "What's the weather?"},
		{Role: types.RoleAssistant, Content: content, Status: status},
	}
}

func TestApply_Precedence(t *testing.T) {
	t.Run("content after status clears status", func(t *testing.T) {
		got := ApplyAll(turn("", ""), stream.Status("Using get_weather"), stream.Content("It's sunny"))
		tail, _ := Tail(got)
		assert.Equal(t, "It's sunny", tail.Content)
		assert.Empty(t, tail.Status)
	})

	t.Run("status after content keeps content", func(t *testing.T) {
		got := ApplyAll(turn("", ""), stream.Content("Checking"), stream.Status("Using get_weather"))
		tail, _ := Tail(got)
		assert.Equal(t, "Checking", tail.Content)
		assert.Equal(t, "Using get_weather", tail.Status)
	})

	t.Run("content concatenates", func(t *testing.T) {
		got := ApplyAll(turn("", ""), stream.Content("It's "), stream.Content("sunny"))
		tail, _ := Tail(got)
		assert.Equal(t, "It's sunny", tail.Content)
	})

	t.Run("status replaces", func(t *testing.T) {
		got := ApplyAll(turn("", ""), stream.Status("a"), stream.Status("b"))
		tail, _ := Tail(got)
		assert.Equal(t, "b", tail.Status)
	})

	t.Run("empty content chunk still clears status", func(t *testing.T) {
		got := Apply(turn("x", "thinking"), stream.Content(""))
		tail, _ := Tail(got)
		assert.Equal(t, "x", tail.Content)
		assert.Empty(t, tail.Status)
	})
}

func TestApply_WeatherScenario(t *testing.T) {
	got := ApplyAll(turn("", ""),
		stream.Status("Using get_weather"),
		stream.Content("It's sunny"),
		stream.Event{Type: stream.EventDone},
	)
	require.Len(t, got, 2)
	assert.Equal(t, types.Message{Role: types.RoleAssistant, Content: "It's sunny"}, got[1])
}

func TestApply_OnlyTouchesAssistantTail(t *testing.T) {
	t.Run("empty transcript", func(t *testing.T) {
		assert.Empty(t, Apply(nil, stream.Content("x")))
	})

	t.Run("user tail", func(t *testing.T) {
		in := []types.Message{{Role: types.RoleUser, Content: "hi"}}
		got := Apply(in, stream.Content("x"))
		assert.Equal(t, in, got)
	})

	t.Run("earlier messages untouched", func(t *testing.T) {
		in := []types.Message{
			{Role: types.RoleAssistant, Content: "old", Status: "s"},
			{Role: types.RoleUser, Content: "q"},
			{Role: types.RoleAssistant},
		}
		got := Apply(in, stream.Content("new"))
		assert.Equal(t, in[:2], got[:2])
		assert.Equal(t, "new", got[2].Content)
	})

	t.Run("never adds a message", func(t *testing.T) {
		got := ApplyAll(turn("", ""), stream.Content("a"), stream.Status("b"), stream.Content("c"))
		assert.Len(t, got, 2)
	})
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := turn("before", "thinking")
	snapshot := append([]types.Message(nil), in...)

	out := Apply(in, stream.Content(" after"))

	assert.Equal(t, snapshot, in)
	assert.Equal(t, "before after", out[1].Content)
}

func TestApply_ReturnsFreshSlice(t *testing.T) {
	in := turn("", "")
	out := Apply(in, stream.Content("x"))

	out[0].Content = "edited"
	assert.Equal(t, "What's the weather?", in[0].Content)
}

func TestAppend_CopiesOnWrite(t *testing.T) {
	backing := make([]types.Message, 1, 4)
	backing[0] = types.Message{Role: types.RoleUser, Content: "hi"}

	a := Append(backing, types.Message{Role: types.RoleAssistant, Content: "a"})
	b := Append(backing, types.Message{Role: types.RoleAssistant, Content: "b"})

	assert.Equal(t, "a", a[1].Content)
	assert.Equal(t, "b", b[1].Content)
	assert.Len(t, backing, 1)
}

func TestTail(t *testing.T) {
	_, ok := Tail(nil)
	assert.False(t, ok)

	m, ok := Tail(turn("x", ""))
	assert.True(t, ok)
	assert.Equal(t, "x", m.Content)
}
