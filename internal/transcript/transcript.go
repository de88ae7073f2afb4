// Package transcript folds stream events into an ordered message list.
//
// Transcripts are treated as immutable values: every operation returns a new
// slice and leaves its input untouched, so a reader holding an older
// transcript never observes a later edit. Apply copies the prefix into a fresh
// slice; Append reuses it, since a capped append cannot write into the input.
package transcript

import (
	"github.com/user/agentflow/internal/stream"
	"github.com/user/agentflow/internal/types"
)

// Apply folds one event into the tail of t.
//
// Content events append to the tail's content and clear its status. Status
// events replace the tail's status and leave content alone. Apply only ever
// touches the last element, and only when it is an assistant message; in
// every other case t is returned unchanged.
func Apply(t []types.Message, ev stream.Event) []types.Message {
	if len(t) == 0 || t[len(t)-1].Role != types.RoleAssistant {
		return t
	}

	tail := t[len(t)-1]
	switch ev.Type {
	case stream.EventContent:
		tail.Content += ev.Content
		tail.Status = ""
	case stream.EventStatus:
		tail.Status = ev.Content
	default:
		return t
	}
	return replaceTail(t, tail)
}

// ApplyAll folds events in order.
func ApplyAll(t []types.Message, events ...stream.Event) []types.Message {
	for _, ev := range events {
		t = Apply(t, ev)
	}
	return t
}

// Append adds msg to the end of t without writing into t's backing array.
func Append(t []types.Message, msg types.Message) []types.Message {
	return append(t[:len(t):len(t)], msg)
}

// Tail returns the last message, if any.
func Tail(t []types.Message) (types.Message, bool) {
	if len(t) == 0 {
		return types.Message{}, false
	}
	return t[len(t)-1], true
}

func replaceTail(t []types.Message, tail types.Message) []types.Message {
	out := make([]types.Message, len(t))
	copy(out, t[:len(t)-1])
	out[len(out)-1] = tail
	return out
}
