package commands

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/hooks"
	"github.com/hay-kot/parley/internal/node"
	"github.com/hay-kot/parley/internal/transport/httpapi"
	"github.com/hay-kot/parley/pkg/executil"
)

func TestNodeRunner_Lifecycle(t *testing.T) {
	flags := testFlags(t)

	changes := make(chan node.Change, 8)
	runner, err := newNodeRunner(flags, func(_ context.Context, c node.Change) error {
		changes <- c
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	addr := runner.Addr().String()
	client := httpapi.NewClient(time.Second, "10.0.0.2:5000")

	require.Eventually(t, func() bool {
		st, err := client.Status(context.Background(), addr)
		return err == nil && st.Username == "alice"
	}, 2*time.Second, 10*time.Millisecond)

	// Self is online while running.
	online, err := flags.Backends.Peers.List(context.Background())
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, chat.StatusOnline, chat.Classify(online[0], time.Now(), chat.DefaultPresenceWindow))

	// A delivered message reaches the observer through the sync loop.
	require.NoError(t, client.Deliver(context.Background(), addr, chat.Message{Sender: "bob", Receiver: "alice", Text: "hi", SentAt: time.Now()}))

	select {
	case c := <-changes:
		assert.Equal(t, "alice", c.Participant)
		assert.NotEmpty(t, c.LatestID)
	case <-time.After(2 * time.Second):
		t.Fatal("observer was not notified")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}

	peers, err := flags.Backends.Peers.List(context.Background())
	require.NoError(t, err)
	byName := map[string]chat.Peer{}
	for _, p := range peers {
		byName[p.Username] = p
	}
	assert.True(t, byName["alice"].Left, "self is marked offline on shutdown")
	assert.Equal(t, "10.0.0.2:5000", byName["bob"].Address, "sender learned from reply_to")
}

func TestNodeRunner_PortInUse(t *testing.T) {
	flags := testFlags(t)

	first, err := newNodeRunner(flags, nil)
	require.NoError(t, err)
	defer first.ln.Close() //nolint:errcheck

	flags.Config.Listen = first.Addr().String()
	_, err = newNodeRunner(flags, nil)
	assert.ErrorContains(t, err, "listen on")
}

func TestServeCmd_HandleChange(t *testing.T) {
	flags := testFlags(t)
	flags.Config.Hooks = []config.Hook{{From: "bob", Commands: []string{"echo {{ .Text | shq }}"}}}
	seedInbox(t, flags)

	recorder := &executil.RecordingExecutor{}
	cmd := NewServeCmd(flags)
	cmd.hooks = hooks.NewRunner(zerolog.Nop(), recorder, flags.Config.Hooks)
	cmd.queue = cmd.hooks.Start(context.Background(), hooks.DefaultQueueSize)

	require.NoError(t, cmd.handleChange(context.Background(), node.Change{Participant: "alice"}))
	cmd.queue.Close()

	unread, err := flags.Service.DrainUnread(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, unread, "handled messages are marked read")

	var ran []string
	for _, c := range recorder.Commands() {
		ran = append(ran, c.Args[1])
	}
	assert.Equal(t, []string{"echo 'one'", "echo 'three'"}, ran)
}

// slowExecutor blocks every command until its context is done.
type slowExecutor struct{}

func (slowExecutor) Run(ctx context.Context, _ string, _ ...string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestServeCmd_HandleChangeDoesNotWaitForHooks(t *testing.T) {
	flags := testFlags(t)
	flags.Config.Hooks = []config.Hook{{Commands: []string{"sleep 60"}}}
	seedInbox(t, flags)

	cmd := NewServeCmd(flags)
	cmd.hooks = hooks.NewRunner(zerolog.Nop(), slowExecutor{}, flags.Config.Hooks)

	ctx, cancel := context.WithCancel(context.Background())
	cmd.queue = cmd.hooks.Start(ctx, hooks.DefaultQueueSize)
	t.Cleanup(func() {
		cancel()
		cmd.queue.Close()
	})

	done := make(chan error, 1)
	go func() { done <- cmd.handleChange(context.Background(), node.Change{Participant: "alice"}) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handleChange waited for hook commands")
	}
}

func TestServeCmd_SetupRejectsBadHook(t *testing.T) {
	flags := testFlags(t)
	cmd := NewServeCmd(flags)
	cmd.onMessage = []string{"echo {{ .Text"}

	_, err := cmd.setup()
	assert.ErrorContains(t, err, "parse template")
}
