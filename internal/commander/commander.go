package commander

import "context"

// Handler receives updates one at a time from a Commander. Its outcome is
// not reported back to the Commander; replies go through SendMessage.
type Handler func(ctx context.Context, update Update)

// Commander is the message-dispatch abstraction used by the bot.
type Commander interface {
	// Run delivers updates to handler until ctx is done or the source is
	// exhausted.
	Run(ctx context.Context, handler Handler) error
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Update represents an incoming command/update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message represents a source message.
type Message struct {
	Chat Chat    `json:"chat"`
	From *User   `json:"from,omitempty"`
	Text *string `json:"text,omitempty"`
	Date int64   `json:"date"`
}

// Chat identifies a conversation.
type Chat struct {
	ID int64 `json:"id"`
}

// User identifies the sender of a message.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// SenderID returns the id whose history a message belongs to: the sender
// when known, otherwise the chat.
func (m *Message) SenderID() int64 {
	if m.From != nil && m.From.ID != 0 {
		return m.From.ID
	}
	return m.Chat.ID
}
