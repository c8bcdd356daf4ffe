package commands

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/printer"
)

// testConfig returns an in-memory configuration for alice.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Username = "alice"
	cfg.Listen = "127.0.0.1:0"
	cfg.Advertise = "127.0.0.1:5000"
	cfg.Storage.Backend = config.BackendMemory
	cfg.Peers.Backend = config.BackendMemory
	cfg.Transport.Timeout = 500 * time.Millisecond
	cfg.Sync.Interval = 20 * time.Millisecond
	cfg.DataDir = t.TempDir()
	return &cfg
}

// testFlags returns Flags with an opened in-memory node.
func testFlags(t *testing.T) *Flags {
	t.Helper()
	flags := &Flags{Config: testConfig(t)}
	_, err := flags.OpenNode(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = flags.Close(context.Background()) })
	return flags
}

type testApp struct {
	flags  *Flags
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// newTestApp runs commands against flags with captured output.
func newTestApp(flags *Flags) *testApp {
	return &testApp{flags: flags, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
}

// run registers every command on a fresh root so flag values never leak
// between runs.
func (ta *testApp) run(t *testing.T, args ...string) error {
	t.Helper()
	ta.stdout.Reset()
	ta.stderr.Reset()

	app := &cli.Command{Name: "parley", Writer: ta.stdout, ErrWriter: ta.stderr}
	app = NewServeCmd(ta.flags).Register(app)
	app = NewSendCmd(ta.flags).Register(app)
	app = NewHistoryCmd(ta.flags).Register(app)
	app = NewPeersCmd(ta.flags).Register(app)
	app = NewConfigValidateCmd(ta.flags).Register(app)
	app = NewDoctorCmd(ta.flags).Register(app)

	ctx := printer.NewContext(context.Background(), printer.New(ta.stderr).WithPlain(true))
	return app.Run(ctx, append([]string{"parley"}, args...))
}
