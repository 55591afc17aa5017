package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	cmdpkg "github.com/stupiduntilnot/investbot/internal/commander"
)

// MaxMessageRunes is the longest reply sent in one message.
const MaxMessageRunes = 3900

// Client is a Commander backed by the Telegram Bot API with long polling.
type Client struct {
	bot     *bot.Bot
	logger  *slog.Logger
	handler cmdpkg.Handler
}

type options struct {
	serverURL   string
	httpClient  *http.Client
	pollTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*options)

// WithServerURL points the client at a Bot API server other than
// api.telegram.org.
func WithServerURL(u string) Option {
	return func(o *options) { o.serverURL = u }
}

// WithHTTPClient sets the HTTP client and the getUpdates long-poll timeout.
func WithHTTPClient(pollTimeout time.Duration, c *http.Client) Option {
	return func(o *options) {
		o.pollTimeout = pollTimeout
		o.httpClient = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewClient creates a Telegram client and verifies the token with getMe.
func NewClient(token string, opts ...Option) (*Client, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{logger: o.logger.With("component", "telegram")}
	botOpts := []bot.Option{
		bot.WithDefaultHandler(c.dispatch),
		bot.WithErrorsHandler(func(err error) {
			c.logger.Warn("telegram polling error", "err", err)
		}),
	}
	if o.serverURL != "" {
		botOpts = append(botOpts, bot.WithServerURL(o.serverURL))
	}
	if o.httpClient != nil {
		botOpts = append(botOpts, bot.WithHTTPClient(o.pollTimeout, o.httpClient))
	}

	b, err := bot.New(token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("telegram client init failed: %w", err)
	}
	c.bot = b
	return c, nil
}

// Run long-polls for updates and passes each text message to handler until
// ctx is done. Handlers may run concurrently.
func (c *Client) Run(ctx context.Context, handler cmdpkg.Handler) error {
	c.handler = handler
	c.logger.InfoContext(ctx, "telegram polling started")
	c.bot.Start(ctx)
	c.logger.InfoContext(ctx, "telegram polling stopped")
	return nil
}

func (c *Client) dispatch(ctx context.Context, _ *bot.Bot, u *models.Update) {
	update, ok := toUpdate(u)
	if !ok || c.handler == nil {
		return
	}
	c.handler(ctx, update)
}

// SendMessage sends a text message to the given chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   truncate(text, MaxMessageRunes),
	})
	if err != nil {
		return fmt.Errorf("telegram sendMessage failed chat_id=%d: %w", chatID, err)
	}
	return nil
}

// toUpdate converts a Bot API update. Only messages with text are kept.
func toUpdate(u *models.Update) (cmdpkg.Update, bool) {
	if u == nil || u.Message == nil || u.Message.Text == "" {
		return cmdpkg.Update{}, false
	}
	m := u.Message
	text := m.Text
	msg := &cmdpkg.Message{
		Chat: cmdpkg.Chat{ID: m.Chat.ID},
		Text: &text,
		Date: int64(m.Date),
	}
	if m.From != nil {
		msg.From = &cmdpkg.User{ID: m.From.ID, Username: m.From.Username}
	}
	return cmdpkg.Update{UpdateID: u.ID, Message: msg}, true
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}

var _ cmdpkg.Commander = (*Client)(nil)
