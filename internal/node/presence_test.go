package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
)

func TestPresence_MarkSelfOnlineAndOffline(t *testing.T) {
	ctx := context.Background()
	_, peers := newStores()
	p := NewPresence(peers, "me", "10.0.0.1:5000", 0)

	assert.Equal(t, chat.DefaultPresenceWindow, p.Window())

	require.NoError(t, p.MarkSelfOnline(ctx, t0))
	addr, err := peers.Resolve(ctx, "me")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:5000", addr)

	all, err := peers.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, chat.StatusOnline, p.Classify(all[0], t0.Add(time.Minute)))

	require.NoError(t, p.MarkSelfOffline(ctx))
	all, err = peers.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, chat.StatusOffline, p.Classify(all[0], t0.Add(time.Minute)))
}

func TestPresence_MarkSelfOnlineWithoutAddress(t *testing.T) {
	ctx := context.Background()
	_, peers := newStores()
	p := NewPresence(peers, "me", "", time.Minute)

	require.NoError(t, p.MarkSelfOnline(ctx, t0))

	_, err := peers.Resolve(ctx, "me")
	assert.ErrorIs(t, err, chat.ErrPeerNotFound)

	all, err := peers.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].LastSeen.Equal(t0))
}

func TestPresence_Classify(t *testing.T) {
	p := NewPresence(nil, "me", "", 300*time.Second)
	bob := chat.Peer{Username: "bob", LastSeen: t0}

	assert.Equal(t, chat.StatusOnline, p.Classify(bob, t0.Add(290*time.Second)))
	assert.Equal(t, chat.StatusOnline, p.Classify(bob, t0.Add(300*time.Second)))
	assert.Equal(t, chat.StatusOffline, p.Classify(bob, t0.Add(310*time.Second)))
}
