package console

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/user/agentflow/internal/graph"
	"github.com/user/agentflow/internal/types"
)

const helpText = `commands:
  /nodes                              list nodes
  /edges                              list edges
  /config                             show the derived agent config
  /set <id> key=value...              update node fields
  /add model|tool|agent [id] [k=v...] add a node
  /rm <id>                            remove a node
  /connect <src> <dst> [handle]       connect two nodes
  /disconnect <edge-id>               remove an edge
  /move <id> <x> <y>                  move a node
  /save <file>                        write the graph as a TOML seed
  /history                            show the transcript
  /reset                              clear the transcript
  /help                               show this help
  /quit                               exit
anything else is sent to the agent`

func (c *Console) command(line string) error {
	args, err := splitArgs(line)
	if err != nil {
		return err
	}
	name, args := strings.ToLower(args[0]), args[1:]

	switch name {
	case "/help", "/?":
		fmt.Fprintln(c.out, helpText)
	case "/quit", "/exit":
		return errQuit
	case "/nodes":
		c.printNodes()
	case "/edges":
		c.printEdges()
	case "/config":
		c.printConfig()
	case "/set":
		return c.setFields(args)
	case "/add":
		return c.addNode(args)
	case "/rm":
		if len(args) != 1 {
			return errors.New("usage: /rm <id>")
		}
		if err := c.store.RemoveNode(types.NodeID(args[0])); err != nil {
			return err
		}
		c.notice(c.st.status, "removed %s", args[0])
	case "/connect":
		return c.connect(args)
	case "/disconnect":
		if len(args) != 1 {
			return errors.New("usage: /disconnect <edge-id>")
		}
		if err := c.store.Disconnect(types.EdgeID(args[0])); err != nil {
			return err
		}
		c.notice(c.st.status, "disconnected %s", args[0])
	case "/move":
		return c.move(args)
	case "/save":
		if len(args) != 1 {
			return errors.New("usage: /save <file>")
		}
		return c.save(args[0])
	case "/history":
		c.printHistory()
	case "/reset":
		if err := c.session.Reset(); err != nil {
			return err
		}
		c.notice(c.st.status, "transcript cleared")
	default:
		return fmt.Errorf("unknown command: %s (type /help for commands)", name)
	}
	return nil
}

func (c *Console) printNodes() {
	snap := c.store.Snapshot()
	if len(snap.Nodes) == 0 {
		fmt.Fprintln(c.out, "no nodes")
		return
	}
	for _, n := range snap.Nodes {
		var b strings.Builder
		fmt.Fprintf(&b, "%-10s %-6s (%g, %g)", n.ID, n.Kind, n.Position.X, n.Position.Y)
		for _, key := range n.Kind.Fields() {
			v := n.Field(key)
			if key == graph.FieldAPIKey && v != "" {
				v = "***"
			}
			fmt.Fprintf(&b, " %s=%q", key, v)
		}
		if n.Kind == graph.KindAgent {
			if snap.IsActive(n.ID) {
				b.WriteString(" [active]")
			} else {
				b.WriteString(" [inactive]")
			}
		}
		fmt.Fprintln(c.out, b.String())
	}
}

func (c *Console) printEdges() {
	snap := c.store.Snapshot()
	if len(snap.Edges) == 0 {
		fmt.Fprintln(c.out, "no edges")
		return
	}
	for _, e := range snap.Edges {
		line := fmt.Sprintf("%-10s %s -> %s", e.ID, e.Source, e.Target)
		if e.Handle != "" {
			line += " [" + e.Handle + "]"
		}
		fmt.Fprintln(c.out, line)
	}
}

func (c *Console) printConfig() {
	cfg, err := c.derive()
	if err != nil {
		c.configNotice(err)
		return
	}
	key := "(server default)"
	if cfg.APIKey != "" {
		key = "***"
	}
	fmt.Fprintf(c.out, "model:         %s\n", cfg.ModelName)
	fmt.Fprintf(c.out, "api_key:       %s\n", key)
	fmt.Fprintf(c.out, "system_prompt: %s\n", cfg.SystemPrompt)
	fmt.Fprintf(c.out, "tools:         [%s]\n", strings.Join(cfg.Tools, ", "))
}

func (c *Console) printHistory() {
	t := c.session.Transcript()
	if len(t) == 0 {
		fmt.Fprintln(c.out, "no messages")
		return
	}
	for _, m := range t {
		line := fmt.Sprintf("%s: %s", m.Role, m.Content)
		if m.Status != "" {
			line += " (" + m.Status + ")"
		}
		fmt.Fprintln(c.out, line)
	}
}

func (c *Console) setFields(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: /set <id> key=value...")
	}
	fields, err := parseFields(args[1:])
	if err != nil {
		return err
	}
	if err := c.store.UpdateNodeFields(types.NodeID(args[0]), fields); err != nil {
		return err
	}
	c.notice(c.st.status, "updated %s", args[0])
	return nil
}

func (c *Console) addNode(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: /add model|tool|agent [id] [key=value...]")
	}
	kind, err := graph.ParseKind(args[0])
	if err != nil {
		return err
	}
	args = args[1:]

	var id types.NodeID
	if len(args) > 0 && !strings.Contains(args[0], "=") {
		id = types.NodeID(args[0])
		args = args[1:]
	}
	fields, err := parseFields(args)
	if err != nil {
		return err
	}

	id, err = c.store.AddNode(graph.Node{ID: id, Kind: kind, Fields: fields})
	if err != nil {
		return err
	}
	c.notice(c.st.status, "added %s %s", kind, id)
	return nil
}

func (c *Console) connect(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: /connect <src> <dst> [handle]")
	}
	handle := ""
	if len(args) == 3 {
		handle = args[2]
	}
	id, err := c.store.Connect(types.NodeID(args[0]), types.NodeID(args[1]), handle)
	if err != nil {
		return err
	}
	c.notice(c.st.status, "connected %s -> %s (%s)", args[0], args[1], id)
	return nil
}

func (c *Console) move(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: /move <id> <x> <y>")
	}
	x, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid x: %w", err)
	}
	y, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("invalid y: %w", err)
	}
	if err := c.store.MoveNode(types.NodeID(args[0]), graph.Position{X: x, Y: y}); err != nil {
		return err
	}
	c.notice(c.st.status, "moved %s", args[0])
	return nil
}

func (c *Console) save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	if err := graph.EncodeSeed(f, c.store.Snapshot()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	c.notice(c.st.status, "saved %s", path)
	return nil
}

func parseFields(args []string) (map[string]string, error) {
	fields := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		fields[k] = v
	}
	return fields, nil
}

// splitArgs splits on whitespace. Double quotes group words and may appear
// mid-token, as in system_prompt="Be brief.".
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
		started bool
	)
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '\\' && inQuote && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case ch == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && unicode.IsSpace(rune(ch)):
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteByte(ch)
			started = true
		}
	}
	if inQuote {
		return nil, errors.New("unterminated quote")
	}
	if started {
		args = append(args, cur.String())
	}
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	return args, nil
}
