package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/store/storetest"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "parley.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMsgStore_Contract(t *testing.T) {
	storetest.MessageStore(t, func(t *testing.T) chat.MessageStore {
		return openTestDB(t).Messages()
	})
}

func TestPeerDir_Contract(t *testing.T) {
	storetest.PeerDirectory(t, func(t *testing.T) chat.PeerDirectory {
		return openTestDB(t).Peers()
	})
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "parley.db")
	ctx := context.Background()

	db, err := Open(path)
	require.NoError(t, err)
	id, err := db.Messages().Append(ctx, chat.Message{Sender: "alice", Receiver: "bob", Text: "hi", SentAt: storetest.T0})
	require.NoError(t, err)
	require.NoError(t, db.Peers().Upsert(ctx, "bob", "10.0.0.2:5000", storetest.T0))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	latest, ok, err := db.Messages().LatestID(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, latest)

	addr, err := db.Peers().Resolve(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:5000", addr)
}

func TestMsgStore_TimesRoundTrip(t *testing.T) {
	store := openTestDB(t).Messages()
	ctx := context.Background()
	sent := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)

	_, err := store.Append(ctx, chat.Message{Sender: "alice", Receiver: "bob", Text: "hi", SentAt: sent})
	require.NoError(t, err)

	got, err := store.Query(ctx, "bob", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].SentAt.Equal(sent))
}
