package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/printer"
)

type SendCmd struct {
	flags *Flags

	to  string
	all bool
}

// NewSendCmd creates a new send command
func NewSendCmd(flags *Flags) *SendCmd {
	return &SendCmd{flags: flags}
}

// Register adds the send command to the application
func (cmd *SendCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "send",
		Usage:     "Send a message to a peer or to every online peer",
		UsageText: "parley send --to <user> [text] | parley send --all [text]",
		Description: `Stores the message locally and delivers it to the receiver's node.

The text is read from the arguments, or from stdin when no argument is given.
A message that cannot be delivered stays in local history.

Examples:
  parley send --to bob "lunch?"
  parley send --all "back in 5"
  echo "build done" | parley send --to carol`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "to",
				Aliases:     []string{"t"},
				Usage:       "receiver username",
				Destination: &cmd.to,
			},
			&cli.BoolFlag{
				Name:        "all",
				Aliases:     []string{"a"},
				Usage:       "send to every online peer",
				Destination: &cmd.all,
			},
		},
		Before: cmd.flags.OpenNode,
		Action: cmd.run,
	})

	return app
}

func (cmd *SendCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.all == (cmd.to != "") {
		return fmt.Errorf("exactly one of --to or --all is required")
	}

	text, err := messageText(c.Args().Slice(), os.Stdin)
	if err != nil {
		return err
	}

	p := printer.Ctx(ctx)
	svc := cmd.flags.Service

	if cmd.all {
		res, err := svc.SendToAll(ctx, svc.Self(), text, time.Now())
		if err != nil {
			return fmt.Errorf("send to all: %w", err)
		}
		reportSendAll(p, res.Delivered, res.FailedPeers())
		return nil
	}

	id, err := svc.Send(ctx, svc.Self(), cmd.to, text, time.Now())
	switch {
	case errors.Is(err, chat.ErrDeliveryFailed):
		p.Warnf("message %s stored but not delivered: %v", id, err)
		return nil
	case err != nil:
		return fmt.Errorf("send: %w", err)
	}

	p.Successf("sent to %s", cmd.to)
	return nil
}

// messageText joins args, or reads stdin when there are none.
func messageText(args []string, stdin io.Reader) (string, error) {
	text := strings.Join(args, " ")
	if text == "" && stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("message text is empty")
	}
	return text, nil
}

func reportSendAll(p *printer.Printer, delivered int, failed []string) {
	if delivered == 0 && len(failed) == 0 {
		p.Infof("no peers online")
		return
	}
	if delivered > 0 {
		p.Successf("delivered to %d peer(s)", delivered)
	}
	if len(failed) > 0 {
		p.Warnf("not delivered to %s", strings.Join(failed, ", "))
	}
}
