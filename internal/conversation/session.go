// Package conversation runs chat turns against the execution endpoint and
// keeps the resulting transcript.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/user/agentflow/internal/stream"
	"github.com/user/agentflow/internal/transcript"
	"github.com/user/agentflow/internal/types"
)

var (
	ErrBusy         = errors.New("a turn is already in flight")
	ErrEmptyMessage = errors.New("message is empty")
)

// State is the session's position in the turn lifecycle.
type State int32

const (
	Idle State = iota
	Sending
	Streaming
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Streaming:
		return "streaming"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Transport opens the response stream for one turn. The caller closes the
// returned body.
type Transport interface {
	Send(ctx context.Context, req types.ChatRequest) (io.ReadCloser, error)
}

// ConfigSource supplies the agent config at the moment a turn starts.
type ConfigSource func() (types.AgentConfig, error)

// Observer is told about every transcript or state change. It runs on the
// submitting goroutine and must not call back into Submit.
type Observer func(t []types.Message, state State)

// Option configures a Session.
type Option func(*Session)

// WithObserver registers fn to receive updates.
func WithObserver(fn Observer) Option {
	return func(s *Session) { s.observer = fn }
}

// WithTranscript seeds the session with earlier messages.
func WithTranscript(t []types.Message) Option {
	return func(s *Session) { s.transcript = append([]types.Message(nil), t...) }
}

// Session drives one conversation. At most one turn is in flight at a time;
// a Submit while another turn runs fails with ErrBusy rather than waiting.
type Session struct {
	transport Transport
	config    ConfigSource
	observer  Observer

	state atomic.Int32

	mu         sync.Mutex
	transcript []types.Message
	cancel     context.CancelFunc
}

// NewSession creates an idle session.
func NewSession(transport Transport, config ConfigSource, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		config:    config,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Transcript returns the current transcript. The returned slice is never
// modified by the session.
func (s *Session) Transcript() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// Submit runs one turn for text and blocks until the turn ends.
//
// A config error aborts before anything is sent and leaves the transcript
// unchanged. Transport failures are recorded in the transcript as an
// assistant message starting with "Error: " and also returned. Cancelling
// ctx stops reading the stream and returns ctx.Err(). The session is Idle
// again whenever Submit returns.
func (s *Session) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	// The cancel func is installed under the same lock as the Idle check so
	// a Close that sees the turn started always reaches it.
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if !s.state.CompareAndSwap(int32(Idle), int32(Sending)) {
		s.mu.Unlock()
		cancel()
		return ErrBusy
	}
	s.cancel = cancel
	history := s.transcript
	s.mu.Unlock()
	defer s.setState(Idle)
	defer func() {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	cfg, err := s.config()
	if err != nil {
		return fmt.Errorf("derive config: %w", err)
	}

	turnID := types.NewTurnID()
	slog.Debug("starting turn", "turn_id", turnID, "model", cfg.ModelName, "tools", len(cfg.Tools), "history", len(history))

	s.update(func(t []types.Message) []types.Message {
		return transcript.Append(t, types.Message{Role: types.RoleUser, Content: text})
	}, Sending)

	body, err := s.transport.Send(ctx, types.ChatRequest{
		Message: text,
		Config:  cfg,
		History: history,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("turn failed", "turn_id", turnID, "error", err)
		s.update(func(t []types.Message) []types.Message {
			return transcript.Append(t, types.Message{Role: types.RoleAssistant, Content: "Error: " + err.Error()})
		}, Failed)
		return err
	}
	defer body.Close()

	s.update(func(t []types.Message) []types.Message {
		return transcript.Append(t, types.Message{Role: types.RoleAssistant})
	}, Streaming)

	for ev, err := range stream.Decode(body) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("stream interrupted", "turn_id", turnID, "error", err)
			s.update(func(t []types.Message) []types.Message {
				return transcript.Apply(t, stream.Content(errorSuffix(t, err)))
			}, Failed)
			return &TransportError{Err: err}
		}
		if ev.Type == stream.EventDone {
			break
		}
		s.update(func(t []types.Message) []types.Message {
			return transcript.Apply(t, ev)
		}, Streaming)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	slog.Debug("turn complete", "turn_id", turnID)
	return nil
}

// Close cancels the in-flight turn, if any. The session stays usable.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Reset clears the transcript. It fails with ErrBusy while a turn runs.
func (s *Session) Reset() error {
	if !s.state.CompareAndSwap(int32(Idle), int32(Sending)) {
		return ErrBusy
	}
	s.mu.Lock()
	s.transcript = nil
	s.mu.Unlock()
	s.state.Store(int32(Idle))
	s.notify(nil, Idle)
	return nil
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.notify(s.Transcript(), st)
}

func (s *Session) update(fn func([]types.Message) []types.Message, st State) {
	s.mu.Lock()
	s.transcript = fn(s.transcript)
	t := s.transcript
	s.mu.Unlock()
	s.state.Store(int32(st))
	s.notify(t, st)
}

func (s *Session) notify(t []types.Message, st State) {
	if s.observer != nil {
		s.observer(t, st)
	}
}

// errorSuffix formats err for appending to the tail's content.
func errorSuffix(t []types.Message, err error) string {
	msg := "Error: " + err.Error()
	if tail, ok := transcript.Tail(t); ok && tail.Content != "" {
		return "\n\n" + msg
	}
	return msg
}
