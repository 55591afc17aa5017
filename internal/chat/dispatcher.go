package chat

import (
	"context"
	"time"

	cmdpkg "github.com/stupiduntilnot/investbot/internal/commander"
	ctxpkg "github.com/stupiduntilnot/investbot/internal/context"
	"github.com/stupiduntilnot/investbot/internal/control"
	"github.com/stupiduntilnot/investbot/internal/db"
)

// Dispatcher feeds a Commander's updates through a Service and sends the
// replies back to the originating chat.
type Dispatcher struct {
	service   *Service
	commander cmdpkg.Commander

	// SendPolicy bounds how many times a failed reply is re-sent.
	SendPolicy control.Policy
	// Backoff returns the wait before retry attempt n (1-based).
	Backoff func(attempt int) time.Duration
}

func NewDispatcher(service *Service, commander cmdpkg.Commander) *Dispatcher {
	return &Dispatcher{
		service:    service,
		commander:  commander,
		SendPolicy: control.Policy{MaxRetries: 2},
		Backoff: func(attempt int) time.Duration {
			return time.Duration(control.RetryBackoffSeconds(attempt)) * time.Second
		},
	}
}

// Run blocks until the commander stops.
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.commander.Run(ctx, d.Handle)
}

// Handle serves one update. Errors are logged and journaled, never returned.
func (d *Dispatcher) Handle(ctx context.Context, update cmdpkg.Update) {
	msg := update.Message
	if msg == nil || msg.Text == nil {
		return
	}

	res := d.service.Handle(ctx, Inbound{
		UserID: ctxpkg.UserIDFromInt(msg.SenderID()),
		Text:   *msg.Text,
	})
	if res.Kind == KindIgnored || res.Text == "" {
		return
	}
	d.send(ctx, res.EventID, update.UpdateID, msg.Chat.ID, res.Text)
}

func (d *Dispatcher) send(ctx context.Context, eventID, updateID, chatID int64, text string) {
	logger := d.service.logger.With("update_id", updateID, "chat_id", chatID)
	for attempt := 0; ; attempt++ {
		err := d.commander.SendMessage(ctx, chatID, text)
		if err == nil {
			d.service.recorder.Record(ctx, eventID, db.EventReplySent, map[string]any{
				"chat_id":  chatID,
				"chars":    len([]rune(text)),
				"attempts": attempt + 1,
			})
			return
		}

		if !control.ShouldRetry(d.SendPolicy, attempt+1) || ctx.Err() != nil {
			d.service.recorder.Record(ctx, eventID, db.EventReplyFailed, map[string]any{
				"chat_id":     chatID,
				"attempts":    attempt + 1,
				"error_class": control.ClassifyError(err),
				"error":       err.Error(),
			})
			logger.ErrorContext(ctx, "send reply failed", "attempts", attempt+1, "err", err)
			return
		}

		wait := d.Backoff(attempt + 1)
		logger.WarnContext(ctx, "send reply failed, retrying", "attempt", attempt+1, "backoff", wait, "err", err)
		if wait <= 0 {
			continue
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
}
