package commands

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/node"
)

func seedInbox(t *testing.T, flags *Flags) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)

	for i, in := range []node.Inbound{
		{Sender: "bob", Receiver: "alice", Text: "one", SentAt: base},
		{Sender: "carol", Receiver: chat.Broadcast, Text: "two", SentAt: base.Add(time.Minute)},
		{Sender: "bob", Receiver: "alice", Text: "three", SentAt: base.Add(2 * time.Minute)},
	} {
		_, err := flags.Service.Receive(ctx, in, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
}

func TestHistoryCmd(t *testing.T) {
	flags := testFlags(t)
	flags.Config.History.Limit = 2
	seedInbox(t, flags)
	ta := newTestApp(flags)

	require.NoError(t, ta.run(t, "history"))
	lines := strings.Split(strings.TrimSpace(ta.stdout.String()), "\n")
	require.Len(t, lines, 2, "default limit from config")
	assert.Contains(t, lines[0], "carol -> all: two")
	assert.Contains(t, lines[1], "bob -> alice: three")

	require.NoError(t, ta.run(t, "history", "--limit", "0", "--format", "json"))
	var msgs []chat.Message
	require.NoError(t, json.Unmarshal(ta.stdout.Bytes(), &msgs))
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Text)
}

func TestUnreadCmd(t *testing.T) {
	flags := testFlags(t)
	ta := newTestApp(flags)

	require.NoError(t, ta.run(t, "unread"))
	assert.Contains(t, ta.stderr.String(), "no unread messages")

	seedInbox(t, flags)

	require.NoError(t, ta.run(t, "unread"))
	out := ta.stdout.String()
	assert.Contains(t, out, "bob -> alice: one")
	assert.Contains(t, out, "bob -> alice: three")
	assert.NotContains(t, out, "two", "broadcasts are not addressed to alice")

	require.NoError(t, ta.run(t, "unread", "--format", "json"))
	assert.JSONEq(t, "[]", ta.stdout.String())
}

func TestConfigValidateCmd(t *testing.T) {
	flags := testFlags(t)
	ta := newTestApp(flags)

	require.NoError(t, ta.run(t, "config", "validate"))
	out := ta.stderr.String()
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "memory backend loses all messages")
	assert.Regexp(t, `username\s+alice`, out)
	assert.Regexp(t, `storage\s+memory \(in memory\)`, out)
	assert.Regexp(t, `advertise\s+127\.0\.0\.1:5000`, out)
}

func TestConfigValidateCmd_JSON(t *testing.T) {
	flags := testFlags(t)
	ta := newTestApp(flags)

	require.NoError(t, ta.run(t, "config", "validate", "--format", "json"))

	var out struct {
		Valid    bool             `json:"valid"`
		Settings []config.Setting `json:"settings"`
		Warnings []struct {
			Item string `json:"item"`
		} `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(ta.stdout.Bytes(), &out))
	assert.True(t, out.Valid)
	assert.Contains(t, out.Settings, config.Setting{Key: "peers", Value: "memory (in memory)"})
	assert.Contains(t, out.Settings, config.Setting{Key: "hooks", Value: "none"})
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, "storage.backend", out.Warnings[0].Item)
}

func TestDoctorCmd_JSON(t *testing.T) {
	flags := testFlags(t)
	ta := newTestApp(flags)

	require.NoError(t, ta.run(t, "doctor", "--format", "json"))

	var out struct {
		Healthy bool `json:"healthy"`
		Checks  []struct {
			Name string `json:"name"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(ta.stdout.Bytes(), &out))
	assert.True(t, out.Healthy)

	names := make([]string, 0, len(out.Checks))
	for _, c := range out.Checks {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Configuration", "Storage", "Peers"}, names)
}
