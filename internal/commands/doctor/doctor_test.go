package doctor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/store/memory"
	"github.com/hay-kot/parley/internal/transport/httpapi"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type mockStatusClient struct {
	status map[string]httpapi.StatusResponse
}

func (m *mockStatusClient) Status(_ context.Context, address string) (httpapi.StatusResponse, error) {
	st, ok := m.status[address]
	if !ok {
		return httpapi.StatusResponse{}, errors.New("connection refused")
	}
	return st, nil
}

type brokenDir struct {
	chat.PeerDirectory
}

func (brokenDir) List(context.Context) ([]chat.Peer, error) {
	return nil, chat.ErrStorageUnavailable
}

func TestRunAllAndSummary(t *testing.T) {
	messages := memory.NewMsgStore()
	_, err := messages.Append(context.Background(), chat.Message{Sender: "bob", Receiver: "alice", Text: "hi", SentAt: now})
	require.NoError(t, err)

	peers := memory.NewPeerDir()
	require.NoError(t, peers.Upsert(context.Background(), "bob", "10.0.0.2:5000", now))

	results := RunAll(context.Background(), []Check{
		NewStorageCheck(messages, peers, "alice"),
	})

	require.Len(t, results, 1)
	assert.Equal(t, "Storage", results[0].Name)
	require.Len(t, results[0].Items, 2)
	assert.Equal(t, "1 message(s) for alice", results[0].Items[0].Detail)
	assert.Equal(t, "1 known peer(s)", results[0].Items[1].Detail)
	assert.Equal(t, "pass", results[0].Items[0].StatusStr)

	passed, warned, failed := Summary(results)
	assert.Equal(t, 2, passed)
	assert.Zero(t, warned)
	assert.Zero(t, failed)
}

func TestStorageCheck_DirectoryFailure(t *testing.T) {
	result := NewStorageCheck(memory.NewMsgStore(), brokenDir{}, "alice").Run(context.Background())

	require.Len(t, result.Items, 2)
	assert.Equal(t, StatusPass, result.Items[0].Status)
	assert.Equal(t, StatusFail, result.Items[1].Status)
	assert.Contains(t, result.Items[1].Detail, "storage unavailable")
}

func TestPeerCheck(t *testing.T) {
	ctx := context.Background()
	peers := memory.NewPeerDir()
	require.NoError(t, peers.Upsert(ctx, "alice", "10.0.0.1:5000", now))
	require.NoError(t, peers.Upsert(ctx, "bob", "10.0.0.2:5000", now.Add(-time.Second)))
	require.NoError(t, peers.Upsert(ctx, "carol", "10.0.0.3:5000", now.Add(-2*time.Second)))
	require.NoError(t, peers.Upsert(ctx, "dave", "10.0.0.4:5000", now.Add(-3*time.Second)))
	require.NoError(t, peers.Touch(ctx, "erin", now.Add(-4*time.Second)))

	client := &mockStatusClient{status: map[string]httpapi.StatusResponse{
		"10.0.0.2:5000": {Status: "online", Username: "bob"},
		"10.0.0.3:5000": {Status: "online", Username: "mallory"},
	}}

	result := NewPeerCheck(peers, client, "alice", time.Second).Run(ctx)

	assert.Equal(t, "Peers", result.Name)
	require.Len(t, result.Items, 4)

	tests := []struct {
		label  string
		status Status
		detail string
	}{
		{"bob", StatusPass, "10.0.0.2:5000 online"},
		{"carol", StatusFail, `answers as "mallory"`},
		{"dave", StatusWarn, "unreachable: connection refused"},
		{"erin", StatusWarn, "no address known"},
	}
	for i, tt := range tests {
		assert.Equal(t, tt.label, result.Items[i].Label)
		assert.Equal(t, tt.status, result.Items[i].Status, tt.label)
		assert.Contains(t, result.Items[i].Detail, tt.detail)
	}
}

func TestPeerCheck_NoPeers(t *testing.T) {
	result := NewPeerCheck(memory.NewPeerDir(), &mockStatusClient{}, "alice", time.Second).Run(context.Background())

	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusPass, result.Items[0].Status)
	assert.Equal(t, "No peers", result.Items[0].Label)
}

func TestConfigCheck(t *testing.T) {
	t.Run("not loaded", func(t *testing.T) {
		result := NewConfigCheck(nil, "").Run(context.Background())
		require.Len(t, result.Items, 1)
		assert.Equal(t, StatusFail, result.Items[0].Status)
	})

	t.Run("errors and warnings", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.DataDir = t.TempDir()
		cfg.Username = "alice"
		cfg.Listen = "nowhere"
		cfg.Storage.Backend = config.BackendMemory
		cfg.Peers.Backend = config.BackendMemory

		result := NewConfigCheck(&cfg, "").Run(context.Background())

		passed, warned, failed := Summary([]Result{result})
		assert.Equal(t, 4, passed)
		assert.Equal(t, 1, failed)
		assert.Equal(t, 3, warned)

		items := itemsByLabel(result)
		assert.Equal(t, StatusWarn, items["Config file"].Status)
		assert.Equal(t, StatusFail, items["listen"].Status)
		assert.Equal(t, "memory (in memory)", items["storage"].Detail)
	})

	t.Run("resolved backends", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("username: alice\n"), 0o644))

		cfg := config.DefaultConfig()
		cfg.DataDir = t.TempDir()
		cfg.Username = "alice"
		cfg.Advertise = "10.0.0.1:5000"
		cfg.Storage.Backend = config.BackendSQLite
		cfg.Peers.Backend = config.BackendRedis
		cfg.Peers.Redis.Addr = "cache:6379"

		result := NewConfigCheck(&cfg, path).Run(context.Background())

		_, _, failed := Summary([]Result{result})
		assert.Zero(t, failed)

		items := itemsByLabel(result)
		assert.Equal(t, StatusPass, items["Config file"].Status)
		assert.Equal(t, path, items["Config file"].Detail)
		assert.Equal(t, "10.0.0.1:5000", items["advertise"].Detail)
		assert.Equal(t, "sqlite ("+cfg.DatabaseFile()+")", items["storage"].Detail)
		assert.Equal(t, "redis (cache:6379)", items["peers"].Detail)
	})
}

func itemsByLabel(r Result) map[string]CheckItem {
	items := make(map[string]CheckItem, len(r.Items))
	for _, item := range r.Items {
		if _, ok := items[item.Label]; !ok {
			items[item.Label] = item
		}
	}
	return items
}

func TestFailed(t *testing.T) {
	results := RunAll(context.Background(), []Check{Failed("Storage", "Open backends", errors.New("dial tcp: refused"))})

	require.Len(t, results, 1)
	assert.Equal(t, "Storage", results[0].Name)
	assert.Equal(t, "fail", results[0].Items[0].StatusStr)
	assert.Equal(t, "dial tcp: refused", results[0].Items[0].Detail)
}
