package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/store/storetest"
	"github.com/hay-kot/parley/pkg/randid"
)

// newMiniDir returns a directory on an in-process miniredis server.
func newMiniDir(t *testing.T) *PeerDir {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewPeerDir(client)
}

// newTestDir returns a directory on PARLEY_TEST_REDIS_ADDR under a unique key
// prefix. The test is skipped when the variable is unset.
func newTestDir(t *testing.T) *PeerDir {
	t.Helper()

	addr := os.Getenv("PARLEY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PARLEY_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, addr)
	require.NoError(t, err)

	prefix := randid.Name("parley_test", ":", 10) + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
		_ = client.Close()
	})

	return NewPeerDir(client).WithPrefix(prefix)
}

func TestPeerDir_Contract(t *testing.T) {
	storetest.PeerDirectory(t, func(t *testing.T) chat.PeerDirectory {
		return newTestDir(t)
	})
}

func TestPeerDir_ContractMiniredis(t *testing.T) {
	storetest.PeerDirectory(t, func(t *testing.T) chat.PeerDirectory {
		return newMiniDir(t)
	})
}

func TestPeerDir_ListOnlineMillisecondBoundary(t *testing.T) {
	ctx := context.Background()
	dir := newMiniDir(t)
	window := 5 * time.Minute

	seen := storetest.T0.Add(500 * time.Microsecond)
	require.NoError(t, dir.Upsert(ctx, "bob", "10.0.0.2:5000", seen))

	online, err := dir.ListOnline(ctx, seen.Add(window), window, "me")
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "bob", online[0].Username)
	assert.True(t, online[0].LastSeen.Equal(storetest.T0), "last_seen = %s", online[0].LastSeen)

	online, err = dir.ListOnline(ctx, seen.Add(window+time.Millisecond), window, "me")
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestParsePeer(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		want   chat.Peer
	}{
		{
			name:   "full entry",
			fields: map[string]string{"address": "10.0.0.2:5000", "last_seen": "1740830400000", "left": "0"},
			want:   chat.Peer{Username: "bob", Address: "10.0.0.2:5000", LastSeen: storetest.T0},
		},
		{
			name:   "left without address",
			fields: map[string]string{"last_seen": "1740830400000", "left": "1"},
			want:   chat.Peer{Username: "bob", LastSeen: storetest.T0, Left: true},
		},
		{
			name:   "garbage last_seen",
			fields: map[string]string{"address": "10.0.0.2:5000", "last_seen": "soon"},
			want:   chat.Peer{Username: "bob", Address: "10.0.0.2:5000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parsePeer("bob", tt.fields)
			assert.Equal(t, tt.want.Username, got.Username)
			assert.Equal(t, tt.want.Address, got.Address)
			assert.Equal(t, tt.want.Left, got.Left)
			assert.True(t, tt.want.LastSeen.Equal(got.LastSeen), "last_seen = %s", got.LastSeen)
		})
	}
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := Dial(ctx, "127.0.0.1:1")
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrStorageUnavailable)
}
