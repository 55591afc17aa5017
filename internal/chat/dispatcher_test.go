package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmdpkg "github.com/stupiduntilnot/investbot/internal/commander"
	ctxpkg "github.com/stupiduntilnot/investbot/internal/context"
	"github.com/stupiduntilnot/investbot/internal/db"
	"github.com/stupiduntilnot/investbot/internal/dummy"
	"github.com/stupiduntilnot/investbot/internal/journal"
)

func noBackoff(int) time.Duration { return 0 }

func TestDispatcher_EndToEnd(t *testing.T) {
	f := newFixture(t, "msg:markets are up", pinned())
	commander, err := dummy.NewCommander("from:7,msg:how are markets?,msg:/price ZZZZ,msg:  ,from:8,msg:/price msft", "ok")
	require.NoError(t, err)

	d := NewDispatcher(f.svc, commander)
	require.NoError(t, d.Run(context.Background()))

	sent := commander.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, dummy.Sent{ChatID: 7, Text: "markets are up"}, sent[0])
	assert.Equal(t, int64(7), sent[1].ChatID)
	assert.Contains(t, sent[1].Text, "ZZZZ")
	assert.Equal(t, dummy.Sent{ChatID: 8, Text: "MSFT: $411.22"}, sent[2])

	assert.Equal(t, 3, f.store.Len(ctxpkg.UserIDFromInt(7)))
	assert.Equal(t, 0, f.store.Len(ctxpkg.UserIDFromInt(8)))
}

func TestDispatcher_CompletionFailureSendsApology(t *testing.T) {
	f := newFixture(t, "err:provider_api", pinned())
	commander, err := dummy.NewCommander("msg:hello", "ok")
	require.NoError(t, err)

	require.NoError(t, NewDispatcher(f.svc, commander).Run(context.Background()))

	sent := commander.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, Apology, sent[0].Text)
	assert.Equal(t, 2, f.store.Len(ctxpkg.UserIDFromInt(1)))
}

func TestDispatcher_RetriesSend(t *testing.T) {
	database := journalDB(t)
	f := newFixture(t, "ok", pinned(), WithRecorder(journal.NewSQLiteRecorder(database, nil), 0))
	commander, err := dummy.NewCommander("msg:/help", "err:command_source_api,ok")
	require.NoError(t, err)

	d := NewDispatcher(f.svc, commander)
	d.Backoff = noBackoff
	require.NoError(t, d.Run(context.Background()))

	require.Len(t, commander.Sent(), 1)
	assert.Equal(t, 1, countEvents(t, database, db.EventReplySent))
	assert.Equal(t, 0, countEvents(t, database, db.EventReplyFailed))
}

func TestDispatcher_SendFailureIsJournaled(t *testing.T) {
	database := journalDB(t)
	f := newFixture(t, "ok", pinned(), WithRecorder(journal.NewSQLiteRecorder(database, nil), 0))
	commander, err := dummy.NewCommander("msg:/help", "err:command_source_api")
	require.NoError(t, err)

	d := NewDispatcher(f.svc, commander)
	d.Backoff = noBackoff
	d.SendPolicy.MaxRetries = 1
	require.NoError(t, d.Run(context.Background()))

	assert.Empty(t, commander.Sent())
	assert.Equal(t, 1, countEvents(t, database, db.EventReplyFailed))
}

func TestDispatcher_DefaultSendPolicy(t *testing.T) {
	cases := []struct {
		name       string
		sendScript string
		sent       int
		failed     int
	}{
		{"third attempt succeeds", "err:command_source_api,err:command_source_api,ok", 1, 0},
		{"gives up after three attempts", "err:command_source_api,err:command_source_api,err:command_source_api,ok", 0, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			database := journalDB(t)
			f := newFixture(t, "ok", pinned(), WithRecorder(journal.NewSQLiteRecorder(database, nil), 0))
			commander, err := dummy.NewCommander("msg:/help", c.sendScript)
			require.NoError(t, err)

			d := NewDispatcher(f.svc, commander)
			d.Backoff = noBackoff
			require.NoError(t, d.Run(context.Background()))

			assert.Len(t, commander.Sent(), c.sent)
			assert.Equal(t, c.sent, countEvents(t, database, db.EventReplySent))
			assert.Equal(t, c.failed, countEvents(t, database, db.EventReplyFailed))
		})
	}
}

func TestDispatcher_SkipsUpdatesWithoutText(t *testing.T) {
	f := newFixture(t, "ok", pinned())
	commander, err := dummy.NewCommander("ok", "ok")
	require.NoError(t, err)

	d := NewDispatcher(f.svc, commander)
	d.Handle(context.Background(), cmdpkg.Update{UpdateID: 1})
	d.Handle(context.Background(), cmdpkg.Update{UpdateID: 2, Message: &cmdpkg.Message{Chat: cmdpkg.Chat{ID: 3}}})

	assert.Empty(t, commander.Sent())
	assert.Empty(t, f.provider.Calls())
}
