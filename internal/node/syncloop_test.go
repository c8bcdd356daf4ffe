package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
)

type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) observe(_ context.Context, c Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func TestSyncLoop_Tick(t *testing.T) {
	ctx := context.Background()
	messages, peers := newStores()
	rec := &recorder{}
	loop := NewSyncLoop(messages, peers, "me", time.Second, rec.observe, zerolog.Nop()).
		WithClock(func() time.Time { return t0 })

	loop.Tick(ctx)
	assert.Zero(t, rec.len(), "no messages, no change")

	id1, err := messages.Append(ctx, chat.Message{Sender: "bob", Receiver: "me", Text: "hi"})
	require.NoError(t, err)

	loop.Tick(ctx)
	require.Equal(t, 1, rec.len())
	assert.Equal(t, Change{Participant: "me", LatestID: id1, Previous: "", At: t0}, rec.changes[0])

	loop.Tick(ctx)
	assert.Equal(t, 1, rec.len(), "unchanged latest id is not reported again")

	_, err = messages.Append(ctx, chat.Message{Sender: "carol", Receiver: "dave", Text: "unrelated"})
	require.NoError(t, err)
	loop.Tick(ctx)
	assert.Equal(t, 1, rec.len())

	id2, err := messages.Append(ctx, chat.Message{Sender: "me", Receiver: "bob", Text: "reply"})
	require.NoError(t, err)
	loop.Tick(ctx)
	require.Equal(t, 2, rec.len())
	assert.Equal(t, id1, rec.changes[1].Previous)
	assert.Equal(t, id2, rec.changes[1].LatestID)
	assert.Equal(t, id2, loop.Latest())
}

func TestSyncLoop_TickHeartbeats(t *testing.T) {
	ctx := context.Background()
	messages, peers := newStores()
	loop := NewSyncLoop(messages, peers, "me", time.Second, nil, zerolog.Nop()).
		WithClock(func() time.Time { return t0 })

	loop.Tick(ctx)

	all, err := peers.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "me", all[0].Username)
	assert.True(t, all[0].LastSeen.Equal(t0))
}

func TestSyncLoop_ObserverFailures(t *testing.T) {
	tests := []struct {
		name     string
		observer Observer
	}{
		{
			name:     "error",
			observer: func(context.Context, Change) error { return errBoom },
		},
		{
			name:     "panic",
			observer: func(context.Context, Change) error { panic("observer exploded") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			messages, peers := newStores()
			loop := NewSyncLoop(messages, peers, "me", time.Second, tt.observer, zerolog.Nop())

			id, err := messages.Append(ctx, chat.Message{Sender: "bob", Receiver: "me", Text: "hi"})
			require.NoError(t, err)

			assert.NotPanics(t, func() { loop.Tick(ctx) })
			assert.Equal(t, id, loop.Latest(), "change is recorded even when the observer fails")
		})
	}
}

func TestSyncLoop_StoreErrorKeepsState(t *testing.T) {
	ctx := context.Background()
	messages, peers := newStores()
	store := &failingStore{MessageStore: messages}
	rec := &recorder{}
	loop := NewSyncLoop(store, peers, "me", time.Second, rec.observe, zerolog.Nop())

	id, err := messages.Append(ctx, chat.Message{Sender: "bob", Receiver: "me", Text: "hi"})
	require.NoError(t, err)

	store.latestErr = chat.ErrStorageUnavailable
	loop.Tick(ctx)
	assert.Zero(t, rec.len())
	assert.Empty(t, loop.Latest())

	store.latestErr = nil
	loop.Tick(ctx)
	assert.Equal(t, 1, rec.len())
	assert.Equal(t, id, loop.Latest())
}

func TestSyncLoop_StalledStoreTimesOut(t *testing.T) {
	messages, peers := newStores()
	rec := &recorder{}
	loop := NewSyncLoop(stalledStore{messages}, stalledDir{peers}, "me", time.Second, rec.observe, zerolog.Nop()).
		WithStoreTimeout(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		loop.Tick(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick blocked on a stalled store")
	}
	assert.Zero(t, rec.len())
	assert.Empty(t, loop.Latest())
}

func TestSyncLoop_StorageErrors(t *testing.T) {
	messages, peers := newStores()
	loop := NewSyncLoop(stalledStore{messages}, stalledDir{peers}, "me", time.Second, nil, zerolog.Nop()).
		WithStoreTimeout(10 * time.Millisecond)

	err := loop.touch(context.Background(), t0)
	require.ErrorIs(t, err, chat.ErrStorageUnavailable)

	_, _, err = loop.latestID(context.Background())
	require.ErrorIs(t, err, chat.ErrStorageUnavailable)
}

func TestSyncLoop_ObserverMayUseStore(t *testing.T) {
	ctx := context.Background()
	messages, peers := newStores()

	var loop *SyncLoop
	var seen string
	loop = NewSyncLoop(messages, peers, "me", time.Second, func(ctx context.Context, c Change) error {
		// Re-entering the loop from the callback must not deadlock.
		seen = loop.Latest()
		_, _, err := messages.LatestID(ctx, "me")
		return err
	}, zerolog.Nop())

	_, err := messages.Append(ctx, chat.Message{Sender: "bob", Receiver: "me", Text: "hi"})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		loop.Tick(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick deadlocked")
	}
	assert.Empty(t, seen)
}

func TestSyncLoop_Run(t *testing.T) {
	messages, peers := newStores()
	rec := &recorder{}
	loop := NewSyncLoop(messages, peers, "me", 10*time.Millisecond, rec.observe, zerolog.Nop())

	_, err := messages.Append(context.Background(), chat.Message{Sender: "bob", Receiver: "me", Text: "hi"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return rec.len() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewSyncLoop_DefaultInterval(t *testing.T) {
	loop := NewSyncLoop(nil, nil, "me", 0, nil, zerolog.Nop())
	assert.Equal(t, DefaultSyncInterval, loop.interval)
	assert.Equal(t, DefaultStoreTimeout, loop.timeout)

	loop.WithStoreTimeout(-time.Second)
	assert.Equal(t, DefaultStoreTimeout, loop.timeout)
}
