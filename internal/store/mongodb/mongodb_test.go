package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/store/storetest"
	"github.com/hay-kot/parley/pkg/randid"
)

// connectTestDB connects to PARLEY_TEST_MONGO_URI with a fresh database per
// test. The test is skipped when the variable is unset.
func connectTestDB(t *testing.T) *DB {
	t.Helper()

	uri := os.Getenv("PARLEY_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PARLEY_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	name := randid.Name("parley_test", "_", 10)
	db, err := Connect(ctx, uri, name)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = db.Close(ctx)
	})
	return db
}

func TestMsgStore_Contract(t *testing.T) {
	storetest.MessageStore(t, func(t *testing.T) chat.MessageStore {
		return connectTestDB(t).Messages()
	})
}

func TestPeerDir_Contract(t *testing.T) {
	storetest.PeerDirectory(t, func(t *testing.T) chat.PeerDirectory {
		return connectTestDB(t).Peers()
	})
}
