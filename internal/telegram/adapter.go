// Package telegram serves the agent over a Telegram bot. Each chat gets its
// own conversation; the reply is one message edited in place while it streams.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/agentflow/internal/conversation"
	"github.com/user/agentflow/internal/graph"
	"github.com/user/agentflow/internal/types"
)

const (
	maxTelegramMessage  = 4096
	defaultEditInterval = time.Second

	busyText = "Still working on your previous message."
)

// Bot is the part of the Bot API the adapter uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Adapter bridges Telegram chats to conversation sessions.
type Adapter struct {
	bot       Bot
	transport conversation.Transport
	config    conversation.ConfigSource
	editEvery time.Duration

	mu    sync.Mutex
	chats map[int64]*chat
	wg    sync.WaitGroup
}

// New connects to the Bot API with token.
func New(token string, transport conversation.Transport, config conversation.ConfigSource) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return NewWithBot(bot, transport, config), nil
}

// NewWithBot creates an adapter around an existing bot client.
func NewWithBot(bot Bot, transport conversation.Transport, config conversation.ConfigSource) *Adapter {
	return &Adapter{
		bot:       bot,
		transport: transport,
		config:    config,
		editEvery: defaultEditInterval,
		chats:     make(map[int64]*chat),
	}
}

// Start long-polls for updates until ctx is done, then cancels running
// turns and waits for them.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	defer a.wg.Wait()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			a.closeAll()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(msg)
		return
	}

	c := a.chat(msg.Chat.ID)
	if c.session.State() != conversation.Idle {
		a.sendText(c.id, busyText)
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := c.session.Submit(ctx, msg.Text)
		var cfgErr *graph.ConfigError
		switch {
		case err == nil:
		case errors.Is(err, conversation.ErrBusy):
			a.sendText(c.id, busyText)
		case errors.As(err, &cfgErr):
			a.sendText(c.id, "The agent is not configured: "+cfgErr.Error())
		case errors.Is(err, context.Canceled):
		default:
			slog.Warn("telegram turn failed", "chat_id", c.id, "error", err)
		}
	}()
}

func (a *Adapter) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		a.sendText(chatID, "Hello! Send me a message and I'll pass it to the agent. /new starts over.")

	case "new":
		if err := a.chat(chatID).session.Reset(); err != nil {
			a.sendText(chatID, busyText)
			return
		}
		a.sendText(chatID, "Started a new conversation.")

	case "status":
		s := a.chat(chatID).session
		var b strings.Builder
		fmt.Fprintf(&b, "Messages: %d\nState: %s\n", len(s.Transcript()), s.State())
		if cfg, err := a.config(); err != nil {
			fmt.Fprintf(&b, "Config: %v", err)
		} else {
			fmt.Fprintf(&b, "Model: %s\nTools: %s", cfg.ModelName, strings.Join(cfg.Tools, ", "))
		}
		a.sendText(chatID, b.String())

	default:
		a.sendText(chatID, "Unknown command. Available: /start, /new, /status")
	}
}

// chat returns the state for id, creating it on first use.
func (a *Adapter) chat(id int64) *chat {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.chats[id]
	if !ok {
		c = &chat{id: id, adapter: a, index: -1}
		c.session = conversation.NewSession(a.transport, a.config, conversation.WithObserver(c.observe))
		a.chats[id] = c
	}
	return c
}

func (a *Adapter) closeAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.chats {
		c.session.Close()
	}
}

// sendText sends text as new messages, trying Markdown first.
func (a *Adapter) sendText(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		if _, err := a.send(tgbotapi.NewMessage(chatID, part), true); err != nil {
			slog.Error("send message failed", "chat_id", chatID, "error", err)
		}
	}
}

// send delivers c, retrying without Markdown when Telegram rejects it.
func (a *Adapter) send(c tgbotapi.Chattable, markdown bool) (tgbotapi.Message, error) {
	if !markdown {
		return a.bot.Send(c)
	}
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		m.ParseMode = tgbotapi.ModeMarkdown
		if sent, err := a.bot.Send(m); err == nil {
			return sent, nil
		}
	case tgbotapi.EditMessageTextConfig:
		m.ParseMode = tgbotapi.ModeMarkdown
		if sent, err := a.bot.Send(m); err == nil {
			return sent, nil
		}
	}
	return a.bot.Send(c)
}

// chat tracks the reply message for the assistant tail of one session.
type chat struct {
	id      int64
	adapter *Adapter
	session *conversation.Session

	mu       sync.Mutex
	index    int
	msgID    int
	shown    string
	lastEdit time.Time
	finished bool
}

// observe implements conversation.Observer.
func (c *chat) observe(t []types.Message, state conversation.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(t) == 0 {
		c.index = -1
		return
	}
	idx := len(t) - 1
	tail := t[idx]
	if tail.Role != types.RoleAssistant {
		return
	}
	if idx != c.index {
		c.index, c.msgID, c.shown, c.finished = idx, 0, "", false
	}
	if c.finished {
		return
	}

	parts := splitMessage(display(tail))
	if state != conversation.Idle {
		if parts[0] == c.shown {
			return
		}
		if c.msgID != 0 && time.Since(c.lastEdit) < c.adapter.editEvery {
			return
		}
		c.put(parts[0], false)
		return
	}

	c.finished = true
	if parts[0] != c.shown || hasMarkup(parts[0]) {
		c.put(parts[0], true)
	}
	for _, p := range parts[1:] {
		if _, err := c.adapter.send(tgbotapi.NewMessage(c.id, p), true); err != nil {
			slog.Error("send message failed", "chat_id", c.id, "error", err)
		}
	}
}

// put shows text in the reply message, creating it if needed.
func (c *chat) put(text string, markdown bool) {
	var msg tgbotapi.Chattable
	if c.msgID == 0 {
		msg = tgbotapi.NewMessage(c.id, text)
	} else {
		msg = tgbotapi.NewEditMessageText(c.id, c.msgID, text)
	}
	sent, err := c.adapter.send(msg, markdown)
	if err != nil {
		slog.Warn("update reply failed", "chat_id", c.id, "error", err)
		return
	}
	if c.msgID == 0 {
		c.msgID = sent.MessageID
	}
	c.shown = text
	c.lastEdit = time.Now()
}

// display renders a message for the chat: content once there is any,
// otherwise the current status.
func display(m types.Message) string {
	switch {
	case m.Content != "":
		return m.Content
	case m.Status != "":
		return m.Status + "…"
	default:
		return "…"
	}
}

func hasMarkup(s string) bool {
	return strings.ContainsAny(s, "*_`[")
}

// splitMessage cuts text into pieces Telegram accepts, preferring line
// breaks and never splitting a UTF-8 sequence.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > maxTelegramMessage {
		end := maxTelegramMessage
		for end > 0 && !utf8.RuneStart(text[end]) {
			end--
		}
		if nl := strings.LastIndexByte(text[:end], '\n'); nl > maxTelegramMessage/2 {
			end = nl + 1
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
