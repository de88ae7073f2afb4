package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/user/agentflow/internal/conversation"
	"github.com/user/agentflow/internal/types"
)

type styles struct {
	status lipgloss.Style
	notice lipgloss.Style
	err    lipgloss.Style
	label  lipgloss.Style
}

// newStyles binds styles to out so color is only emitted for terminals.
func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		status: r.NewStyle().Foreground(lipgloss.Color("8")),
		notice: r.NewStyle().Foreground(lipgloss.Color("3")),
		err:    r.NewStyle().Foreground(lipgloss.Color("1")),
		label:  r.NewStyle().Foreground(lipgloss.Color("6")),
	}
}

// view draws the assistant tail incrementally as the transcript changes.
// Content only ever grows, so each update prints the unseen suffix.
type view struct {
	out io.Writer
	st  styles

	mu      sync.Mutex
	index   int
	written int
	status  string
	midLine bool
}

func newView(out io.Writer, st styles) *view {
	return &view{out: out, st: st, index: -1}
}

// observe implements conversation.Observer.
func (v *view) observe(t []types.Message, state conversation.State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(t) == 0 {
		v.index, v.written, v.status = -1, 0, ""
		return
	}

	idx := len(t) - 1
	tail := t[idx]
	if tail.Role == types.RoleAssistant {
		if idx != v.index {
			v.index, v.written, v.status = idx, 0, ""
		}
		if tail.Status != "" && tail.Status != v.status {
			v.breakLine()
			fmt.Fprintln(v.out, v.st.status.Render("· "+tail.Status))
		}
		v.status = tail.Status

		if len(tail.Content) < v.written {
			// Not produced by Apply; redraw from scratch.
			v.breakLine()
			v.written = 0
		}
		if chunk := tail.Content[v.written:]; chunk != "" {
			fmt.Fprint(v.out, chunk)
			v.written = len(tail.Content)
			v.midLine = chunk[len(chunk)-1] != '\n'
		}
	}

	if state == conversation.Idle {
		v.breakLine()
	}
}

func (v *view) breakLine() {
	if v.midLine {
		fmt.Fprintln(v.out)
		v.midLine = false
	}
}
