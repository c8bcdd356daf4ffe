package commands

import (
	"context"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/hooks"
	"github.com/hay-kot/parley/internal/node"
	"github.com/hay-kot/parley/internal/printer"
	"github.com/hay-kot/parley/pkg/executil"
	"github.com/hay-kot/parley/pkg/tmpl"
)

type ServeCmd struct {
	flags *Flags

	onMessage []string
	hooks     *hooks.Runner
	queue     *hooks.Queue
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the node without the interactive menu",
		UsageText: "parley serve [--on-message <command>]",
		Description: `Starts the HTTP server other nodes deliver to and the sync loop that
keeps this node's presence fresh. New messages are logged as they arrive and
passed to the configured hooks.

The node marks itself online on start and offline on SIGINT/SIGTERM.

Examples:
  parley serve
  parley serve --on-message 'notify-send {{ .Sender | shq }} {{ .Text | oneline | trunc 80 | shq }}'`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "on-message",
				Usage:       "shell command template run for every new message (repeatable)",
				Destination: &cmd.onMessage,
			},
		},
		Before: cmd.flags.OpenNode,
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	runner, err := cmd.setup()
	if err != nil {
		return err
	}

	printer.Ctx(ctx).Successf("%s listening on %s (advertised as %s)", cmd.flags.Service.Self(), runner.Addr(), cmd.flags.Address)
	if n := cmd.hooks.Len(); n > 0 {
		printer.Ctx(ctx).Infof("%d message hook(s) configured", n)
	}

	hookCtx, cancel := context.WithCancel(ctx)
	cmd.queue = cmd.hooks.Start(hookCtx, hooks.DefaultQueueSize)

	err = runner.Run(ctx)

	// The sync loop has stopped; abandon hooks still queued.
	cancel()
	cmd.queue.Close()
	return err
}

// setup builds the hook runner and binds the listen address.
func (cmd *ServeCmd) setup() (*nodeRunner, error) {
	all := slices.Clone(cmd.flags.Config.Hooks)
	if len(cmd.onMessage) > 0 {
		for _, c := range cmd.onMessage {
			if err := tmpl.Check(c); err != nil {
				return nil, err
			}
		}
		all = append(all, config.Hook{Commands: cmd.onMessage})
	}

	if cmd.hooks == nil {
		exec := &executil.RealExecutor{Env: []string{"PARLEY_USERNAME=" + cmd.flags.Service.Self()}}
		cmd.hooks = hooks.NewRunner(log.With().Str("component", "hooks").Logger(), exec, all)
	}

	return newNodeRunner(cmd.flags, cmd.handleChange)
}

// handleChange drains unread messages whenever the newest message changes,
// logging each one and queueing its hooks so the sync loop keeps ticking.
func (cmd *ServeCmd) handleChange(ctx context.Context, change node.Change) error {
	msgs, err := cmd.flags.Service.DrainUnread(ctx, change.Participant)
	for _, m := range msgs {
		logMessage(m)
		cmd.queue.Enqueue(m)
	}
	return err
}

func logMessage(m chat.Message) {
	log.Info().
		Str("id", m.ID).
		Str("from", m.Sender).
		Str("to", m.Receiver).
		Str("text", m.Text).
		Msg("message received")
}
