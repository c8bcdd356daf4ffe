package node

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/store/memory"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

var errBoom = errors.New("boom")

// mockTransport records deliveries and fails for addresses listed in fail.
type mockTransport struct {
	mu        sync.Mutex
	delivered map[string][]chat.Message
	fail      map[string]error
	block     chan struct{}
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		delivered: make(map[string][]chat.Message),
		fail:      make(map[string]error),
	}
}

func (m *mockTransport) Deliver(ctx context.Context, address string, msg chat.Message) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.fail[address]; ok {
		return err
	}
	m.delivered[address] = append(m.delivered[address], msg)
	return nil
}

func (m *mockTransport) count(address string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.delivered[address])
}

// failingStore wraps a message store and fails selected operations.
type failingStore struct {
	chat.MessageStore
	appendErr   error
	latestErr   error
	markReadErr error
	// failMarkAfter lets that many MarkRead calls succeed before failing.
	failMarkAfter int
	marks         int
}

func (f *failingStore) Append(ctx context.Context, msg chat.Message) (string, error) {
	if f.appendErr != nil {
		return "", f.appendErr
	}
	return f.MessageStore.Append(ctx, msg)
}

func (f *failingStore) LatestID(ctx context.Context, p string) (string, bool, error) {
	if f.latestErr != nil {
		return "", false, f.latestErr
	}
	return f.MessageStore.LatestID(ctx, p)
}

func (f *failingStore) MarkRead(ctx context.Context, id string) error {
	if f.markReadErr != nil && f.marks >= f.failMarkAfter {
		return f.markReadErr
	}
	f.marks++
	return f.MessageStore.MarkRead(ctx, id)
}

// failingDir wraps a peer directory and fails selected operations.
type failingDir struct {
	chat.PeerDirectory
	listErr  error
	touchErr error
}

func (f *failingDir) ListOnline(ctx context.Context, now time.Time, window time.Duration, exclude string) ([]chat.Peer, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.PeerDirectory.ListOnline(ctx, now, window, exclude)
}

func (f *failingDir) Touch(ctx context.Context, username string, now time.Time) error {
	if f.touchErr != nil {
		return f.touchErr
	}
	return f.PeerDirectory.Touch(ctx, username, now)
}

// slowStore blocks Append until the context is done.
type slowStore struct {
	chat.MessageStore
}

func (s slowStore) Append(ctx context.Context, msg chat.Message) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// stalledStore blocks LatestID until the context is done.
type stalledStore struct {
	chat.MessageStore
}

func (s stalledStore) LatestID(ctx context.Context, _ string) (string, bool, error) {
	<-ctx.Done()
	return "", false, ctx.Err()
}

// stalledDir blocks Touch until the context is done.
type stalledDir struct {
	chat.PeerDirectory
}

func (d stalledDir) Touch(ctx context.Context, _ string, _ time.Time) error {
	<-ctx.Done()
	return ctx.Err()
}

func newStores() (*memory.MsgStore, *memory.PeerDir) {
	return memory.NewMsgStore(), memory.NewPeerDir()
}
