// Package console is the interactive front-end: a line REPL that edits the
// agent graph with slash commands and submits every other line as a turn.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/user/agentflow/internal/conversation"
	"github.com/user/agentflow/internal/graph"
	"github.com/user/agentflow/internal/types"
)

const prompt = "> "

// errQuit ends Run without error.
var errQuit = errors.New("quit")

// Console owns one graph and one conversation.
type Console struct {
	store   *graph.Store
	reducer graph.Reducer
	session *conversation.Session
	in      LineReader
	out     io.Writer
	st      styles
	view    *view

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New wires a console around store. Turns are sent through transport with
// the config derived from store at the moment each line is submitted.
func New(store *graph.Store, reducer graph.Reducer, transport conversation.Transport, in LineReader, out io.Writer) *Console {
	c := &Console{
		store:   store,
		reducer: reducer,
		in:      in,
		out:     out,
		st:      newStyles(out),
	}
	c.view = newView(out, c.st)
	c.session = conversation.NewSession(transport, c.derive, conversation.WithObserver(c.view.observe))
	return c
}

func (c *Console) derive() (types.AgentConfig, error) {
	return c.reducer.Derive(c.store)
}

// Session exposes the underlying conversation.
func (c *Console) Session() *conversation.Session {
	return c.session
}

// Run performs the run trigger, then reads lines until EOF, /quit or ctx
// is done.
func (c *Console) Run(ctx context.Context) error {
	defer c.in.Close()

	c.trigger()
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := c.in.ReadLine(prompt)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(c.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			err := c.command(line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				c.notice(c.st.err, "[error] %v", err)
			}
			continue
		}
		c.submit(ctx, line)
	}
}

// Interrupt cancels the in-flight turn. It reports false when no turn is
// running.
func (c *Console) Interrupt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

// trigger derives the config once up front so a broken graph is reported
// before the first turn.
func (c *Console) trigger() {
	cfg, err := c.derive()
	if err != nil {
		c.configNotice(err)
		return
	}
	c.notice(c.st.label, "agent ready: model %s, tools [%s]", cfg.ModelName, strings.Join(cfg.Tools, ", "))
	c.notice(c.st.status, "type /help for commands")
}

func (c *Console) submit(ctx context.Context, text string) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	err := c.session.Submit(ctx, text)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		c.notice(c.st.notice, "[cancelled]")
	case errors.Is(err, conversation.ErrEmptyMessage):
	default:
		var cfgErr *graph.ConfigError
		if errors.As(err, &cfgErr) {
			c.configNotice(err)
			return
		}
		// Transport failures are already in the transcript.
		slog.Debug("turn ended with error", "error", err)
	}
}

func (c *Console) configNotice(err error) {
	switch {
	case errors.Is(err, graph.ErrNoModelNode):
		c.notice(c.st.notice, "cannot run: add a model node first (/add model)")
	case errors.Is(err, graph.ErrMultipleModelNodes):
		c.notice(c.st.notice, "cannot run: keep exactly one model node (%v)", err)
	default:
		c.notice(c.st.notice, "cannot run: %v", err)
	}
}

func (c *Console) notice(style lipgloss.Style, format string, args ...any) {
	fmt.Fprintln(c.out, style.Render(fmt.Sprintf(format, args...)))
}
