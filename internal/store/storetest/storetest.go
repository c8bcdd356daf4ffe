// Package storetest holds the behavioural contract every chat.MessageStore and
// chat.PeerDirectory backend must satisfy. Backend packages run it from their
// own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
)

// T0 is the reference time used by the contract. It has no sub-millisecond
// part so backends with coarse timestamps compare equal.
var T0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// MessageStore runs the message store contract against stores built by newStore.
// Each subtest gets a fresh, empty store.
func MessageStore(t *testing.T, newStore func(t *testing.T) chat.MessageStore) {
	t.Helper()
	ctx := context.Background()

	msg := func(sender, receiver, text string, offset time.Duration) chat.Message {
		return chat.Message{Sender: sender, Receiver: receiver, Text: text, SentAt: T0.Add(offset)}
	}

	t.Run("append assigns ids and received_at", func(t *testing.T) {
		store := newStore(t)

		id1, err := store.Append(ctx, msg("alice", "bob", "one", 0))
		require.NoError(t, err)
		id2, err := store.Append(ctx, msg("alice", "bob", "two", time.Second))
		require.NoError(t, err)

		assert.NotEmpty(t, id1)
		assert.NotEqual(t, id1, id2)

		got, err := store.Query(ctx, "bob", 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, id2, got[0].ID)
		assert.False(t, got[0].ReceivedAt.IsZero(), "received_at should be set")
		assert.False(t, got[0].Read)
		assert.True(t, got[0].SentAt.Equal(T0.Add(time.Second)))
	})

	t.Run("append keeps explicit received_at", func(t *testing.T) {
		store := newStore(t)
		m := msg("alice", "bob", "hi", 0)
		m.ReceivedAt = T0.Add(time.Minute)

		_, err := store.Append(ctx, m)
		require.NoError(t, err)

		got, err := store.Query(ctx, "bob", 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].ReceivedAt.Equal(T0.Add(time.Minute)))
	})

	t.Run("query filters by participant newest first", func(t *testing.T) {
		store := newStore(t)
		_, _ = store.Append(ctx, msg("alice", "bob", "a->b", 0))
		_, _ = store.Append(ctx, msg("carol", "dave", "c->d", time.Second))
		_, _ = store.Append(ctx, msg("bob", "alice", "b->a", 2*time.Second))
		_, _ = store.Append(ctx, msg("carol", chat.Broadcast, "c->all", 3*time.Second))

		got, err := store.Query(ctx, "alice", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"c->all", "b->a", "a->b"}, texts(got))

		got, err = store.Query(ctx, "dave", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"c->all", "c->d"}, texts(got))

		got, err = store.Query(ctx, "nobody", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"c->all"}, texts(got))
	})

	t.Run("query truncates to limit", func(t *testing.T) {
		store := newStore(t)
		for i := range 5 {
			_, err := store.Append(ctx, msg("alice", "bob", fmt.Sprintf("m%d", i), time.Duration(i)*time.Second))
			require.NoError(t, err)
		}

		got, err := store.Query(ctx, "alice", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"m4", "m3"}, texts(got))

		got, err = store.Query(ctx, "alice", 0)
		require.NoError(t, err)
		assert.Len(t, got, 5)
	})

	t.Run("query on empty store", func(t *testing.T) {
		store := newStore(t)
		got, err := store.Query(ctx, "alice", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unread for receiver oldest first", func(t *testing.T) {
		store := newStore(t)
		_, _ = store.Append(ctx, msg("alice", "bob", "first", 0))
		_, _ = store.Append(ctx, msg("bob", "alice", "reply", time.Second))
		_, _ = store.Append(ctx, msg("carol", "bob", "second", 2*time.Second))
		_, _ = store.Append(ctx, msg("carol", chat.Broadcast, "everyone", 3*time.Second))

		got, err := store.UnreadFor(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, texts(got))
		for _, m := range got {
			assert.Equal(t, "bob", m.Receiver)
			assert.False(t, m.Read)
		}
	})

	t.Run("mark read is idempotent", func(t *testing.T) {
		store := newStore(t)
		id, err := store.Append(ctx, msg("alice", "bob", "hi", 0))
		require.NoError(t, err)
		_, err = store.Append(ctx, msg("alice", "bob", "again", time.Second))
		require.NoError(t, err)

		require.NoError(t, store.MarkRead(ctx, id))
		once, err := store.Query(ctx, "bob", 0)
		require.NoError(t, err)

		require.NoError(t, store.MarkRead(ctx, id))
		twice, err := store.Query(ctx, "bob", 0)
		require.NoError(t, err)

		assert.Equal(t, readFlags(once), readFlags(twice))

		unread, err := store.UnreadFor(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, []string{"again"}, texts(unread))
	})

	t.Run("mark read unknown id is a no-op", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Append(ctx, msg("alice", "bob", "hi", 0))
		require.NoError(t, err)

		assert.NoError(t, store.MarkRead(ctx, "does-not-exist"))
		assert.NoError(t, store.MarkRead(ctx, "999999"))

		unread, err := store.UnreadFor(ctx, "bob")
		require.NoError(t, err)
		assert.Len(t, unread, 1)
	})

	t.Run("latest id tracks exchanged messages", func(t *testing.T) {
		store := newStore(t)

		_, ok, err := store.LatestID(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, ok)

		first, err := store.Append(ctx, msg("bob", "alice", "hi", 0))
		require.NoError(t, err)
		latest, ok, err := store.LatestID(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, first, latest)

		_, err = store.Append(ctx, msg("carol", chat.Broadcast, "noise", time.Second))
		require.NoError(t, err)
		_, err = store.Append(ctx, msg("carol", "dave", "elsewhere", 2*time.Second))
		require.NoError(t, err)
		latest, _, err = store.LatestID(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, first, latest, "unrelated messages must not move the latest id")

		sent, err := store.Append(ctx, msg("alice", "bob", "reply", 3*time.Second))
		require.NoError(t, err)
		latest, _, err = store.LatestID(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, sent, latest)
	})

	t.Run("count", func(t *testing.T) {
		store := newStore(t)
		_, _ = store.Append(ctx, msg("alice", "bob", "1", 0))
		_, _ = store.Append(ctx, msg("bob", "alice", "2", time.Second))
		_, _ = store.Append(ctx, msg("carol", chat.Broadcast, "3", 2*time.Second))

		n, err := store.Count(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = store.Count(ctx, "nobody")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("concurrent appends get unique ids", func(t *testing.T) {
		store := newStore(t)
		const writers = 20

		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			ids = make(map[string]bool)
		)
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := store.Append(ctx, msg("alice", "bob", fmt.Sprintf("m%d", i), 0))
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				ids[id] = true
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Len(t, ids, writers)
		n, err := store.Count(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, writers, n)
	})
}

// PeerDirectory runs the peer directory contract against directories built by
// newDir. Each subtest gets a fresh, empty directory.
func PeerDirectory(t *testing.T, newDir func(t *testing.T) chat.PeerDirectory) {
	t.Helper()
	ctx := context.Background()
	window := 300 * time.Second

	t.Run("upsert then resolve", func(t *testing.T) {
		dir := newDir(t)
		require.NoError(t, dir.Upsert(ctx, "bob", "10.0.0.2:5000", T0))

		addr, err := dir.Resolve(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.2:5000", addr)

		require.NoError(t, dir.Upsert(ctx, "bob", "10.0.0.9:5001", T0.Add(time.Second)))
		addr, err = dir.Resolve(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.9:5001", addr)
	})

	t.Run("upsert rejects invalid address", func(t *testing.T) {
		dir := newDir(t)
		err := dir.Upsert(ctx, "bob", "not-an-address", T0)
		assert.True(t, errors.Is(err, chat.ErrInvalidAddress), "got %v", err)

		_, err = dir.Resolve(ctx, "bob")
		assert.True(t, errors.Is(err, chat.ErrPeerNotFound), "got %v", err)
	})

	t.Run("resolve unknown peer", func(t *testing.T) {
		dir := newDir(t)
		_, err := dir.Resolve(ctx, "ghost")
		assert.True(t, errors.Is(err, chat.ErrPeerNotFound), "got %v", err)
	})

	t.Run("presence window scenario", func(t *testing.T) {
		dir := newDir(t)
		require.NoError(t, dir.Upsert(ctx, "bob", "10.0.0.2:5000", T0))

		online, err := dir.ListOnline(ctx, T0.Add(290*time.Second), window, "me")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, usernames(online))

		online, err = dir.ListOnline(ctx, T0.Add(window), window, "me")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, usernames(online), "boundary is inclusive")

		online, err = dir.ListOnline(ctx, T0.Add(310*time.Second), window, "me")
		require.NoError(t, err)
		assert.Empty(t, online)
	})

	t.Run("boundary is inclusive with sub-millisecond heartbeats", func(t *testing.T) {
		dir := newDir(t)
		seen := T0.Add(500*time.Microsecond + 123*time.Nanosecond)
		require.NoError(t, dir.Upsert(ctx, "bob", "10.0.0.2:5000", seen))

		online, err := dir.ListOnline(ctx, seen.Add(window), window, "me")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, usernames(online))

		online, err = dir.ListOnline(ctx, seen.Add(window+time.Second), window, "me")
		require.NoError(t, err)
		assert.Empty(t, online)
	})

	t.Run("list online excludes self and orders by last seen", func(t *testing.T) {
		dir := newDir(t)
		require.NoError(t, dir.Upsert(ctx, "me", "10.0.0.1:5000", T0.Add(30*time.Second)))
		require.NoError(t, dir.Upsert(ctx, "carol", "10.0.0.3:5000", T0.Add(10*time.Second)))
		require.NoError(t, dir.Upsert(ctx, "bob", "10.0.0.2:5000", T0.Add(10*time.Second)))
		require.NoError(t, dir.Upsert(ctx, "dave", "10.0.0.4:5000", T0.Add(20*time.Second)))
		require.NoError(t, dir.Upsert(ctx, "stale", "10.0.0.5:5000", T0.Add(-time.Hour)))

		online, err := dir.ListOnline(ctx, T0.Add(time.Minute), window, "me")
		require.NoError(t, err)
		assert.Equal(t, []string{"dave", "bob", "carol"}, usernames(online))
		assert.Equal(t, "10.0.0.4:5000", online[0].Address)
	})

	t.Run("last seen never moves backwards", func(t *testing.T) {
		dir := newDir(t)
		require.NoError(t, dir.Upsert(ctx, "bob", "10.0.0.2:5000", T0.Add(time.Minute)))
		require.NoError(t, dir.Upsert(ctx, "bob", "10.0.0.2:5000", T0))
		require.NoError(t, dir.Touch(ctx, "bob", T0.Add(-time.Hour)))

		peers, err := dir.List(ctx)
		require.NoError(t, err)
		require.Len(t, peers, 1)
		assert.True(t, peers[0].LastSeen.Equal(T0.Add(time.Minute)), "last_seen = %s", peers[0].LastSeen)
	})

	t.Run("touch keeps address", func(t *testing.T) {
		dir := newDir(t)
		require.NoError(t, dir.Upsert(ctx, "bob", "10.0.0.2:5000", T0))
		require.NoError(t, dir.Touch(ctx, "bob", T0.Add(time.Hour)))

		addr, err := dir.Resolve(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.2:5000", addr)

		online, err := dir.ListOnline(ctx, T0.Add(time.Hour+time.Minute), window, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, usernames(online))
	})

	t.Run("touch unknown creates unresolvable peer", func(t *testing.T) {
		dir := newDir(t)
		require.NoError(t, dir.Touch(ctx, "carol", T0))

		_, err := dir.Resolve(ctx, "carol")
		assert.True(t, errors.Is(err, chat.ErrPeerNotFound), "got %v", err)

		peers, err := dir.List(ctx)
		require.NoError(t, err)
		require.Len(t, peers, 1)
		assert.Equal(t, "carol", peers[0].Username)
		assert.False(t, peers[0].Resolvable())

		require.NoError(t, dir.Upsert(ctx, "carol", "10.0.0.3:5000", T0.Add(time.Second)))
		addr, err := dir.Resolve(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.3:5000", addr)
	})

	t.Run("mark offline until next heartbeat", func(t *testing.T) {
		dir := newDir(t)
		require.NoError(t, dir.Upsert(ctx, "bob", "10.0.0.2:5000", T0))
		require.NoError(t, dir.MarkOffline(ctx, "bob"))
		require.NoError(t, dir.MarkOffline(ctx, "ghost"))

		online, err := dir.ListOnline(ctx, T0, window, "")
		require.NoError(t, err)
		assert.Empty(t, online)

		addr, err := dir.Resolve(ctx, "bob")
		require.NoError(t, err, "offline peers stay resolvable")
		assert.Equal(t, "10.0.0.2:5000", addr)

		require.NoError(t, dir.Touch(ctx, "bob", T0.Add(time.Second)))
		online, err = dir.ListOnline(ctx, T0.Add(time.Second), window, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, usernames(online))
	})

	t.Run("list returns every peer", func(t *testing.T) {
		dir := newDir(t)
		require.NoError(t, dir.Upsert(ctx, "bob", "10.0.0.2:5000", T0))
		require.NoError(t, dir.Upsert(ctx, "old", "10.0.0.8:5000", T0.Add(-24*time.Hour)))
		require.NoError(t, dir.Touch(ctx, "carol", T0.Add(time.Second)))

		peers, err := dir.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"carol", "bob", "old"}, usernames(peers))
	})

	t.Run("concurrent heartbeats", func(t *testing.T) {
		dir := newDir(t)
		require.NoError(t, dir.Upsert(ctx, "bob", "10.0.0.2:5000", T0))

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, dir.Touch(ctx, "bob", T0.Add(time.Duration(i)*time.Second)))
			}()
		}
		wg.Wait()

		peers, err := dir.List(ctx)
		require.NoError(t, err)
		require.Len(t, peers, 1)
		assert.True(t, peers[0].LastSeen.Equal(T0.Add(19*time.Second)), "last_seen = %s", peers[0].LastSeen)
		assert.Equal(t, "10.0.0.2:5000", peers[0].Address)
	})
}

func texts(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func readFlags(msgs []chat.Message) map[string]bool {
	out := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		out[m.ID] = m.Read
	}
	return out
}

func usernames(peers []chat.Peer) []string {
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.Username)
	}
	return out
}
