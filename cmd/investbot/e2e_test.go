package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupiduntilnot/investbot/internal/db"
)

// TestE2E_TelegramDummy drives the telegram command end to end with the
// scripted commander and provider, then checks the journal it leaves behind.
func TestE2E_TelegramDummy(t *testing.T) {
	dbPath := t.TempDir() + "/e2e.db"
	t.Setenv("INVESTBOT_CONFIG_DIR", t.TempDir())
	t.Setenv("INVESTBOT_COMMANDER", "dummy")
	t.Setenv("INVESTBOT_DUMMY_COMMANDER_SCRIPT", "msg:what moved markets today?,msg:/price aapl,from:2,msg:/price,msg:/nope")
	t.Setenv("INVESTBOT_DUMMY_SEND_SCRIPT", "ok")
	t.Setenv("INVESTBOT_MODEL_PROVIDER", "dummy")
	t.Setenv("INVESTBOT_DUMMY_PROVIDER_SCRIPT", "msg:Rates held steady.")
	t.Setenv("INVESTBOT_QUOTE_PROVIDER", "dummy")
	t.Setenv("INVESTBOT_EVENTS_DB", dbPath)

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"telegram"})
	require.NoError(t, rootCmd.Execute())

	database, err := db.OpenReadOnly(dbPath)
	require.NoError(t, err)
	defer database.Close()

	counts := map[string]int{
		db.EventProcessStarted:      1,
		db.EventProcessStopped:      1,
		db.EventMessageReceived:     4,
		db.EventCompletionCompleted: 1,
		db.EventQuoteCompleted:      1,
		db.EventCommandRejected:     2,
		db.EventReplySent:           4,
		db.EventReplyFailed:         0,
	}
	for eventType, want := range counts {
		n, err := db.CountEvents(database, eventType)
		require.NoError(t, err)
		assert.Equal(t, want, n, eventType)
	}

	rootID, err := db.LatestProcessRoot(database)
	require.NoError(t, err)
	events, err := db.QuerySubtree(database, rootID)
	require.NoError(t, err)
	// Lifecycle pair, five events for the conversation and three for each command.
	assert.Len(t, events, 2+5+3+3+3)
	root := db.BuildTree(events, rootID)
	require.NotNil(t, root)
	assert.Contains(t, root.Payload.String, `"role":"telegram"`)
}

func TestE2E_TelegramRequiresToken(t *testing.T) {
	t.Setenv("INVESTBOT_CONFIG_DIR", t.TempDir())
	t.Setenv("INVESTBOT_COMMANDER", "telegram")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("INVESTBOT_MODEL_PROVIDER", "dummy")

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"telegram"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
}
