package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/printer"
)

type HistoryCmd struct {
	flags *Flags

	limit  int
	format string
}

// NewHistoryCmd creates a new history command
func NewHistoryCmd(flags *Flags) *HistoryCmd {
	return &HistoryCmd{flags: flags}
}

// Register adds the history and unread commands to the application
func (cmd *HistoryCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:      "history",
			Usage:     "Show messages sent and received by this node",
			UsageText: "parley history [--limit N]",
			Description: `Lists the most recent messages exchanged by the local user, oldest first.
Broadcasts are included. The default limit comes from history.limit; 0 shows everything.`,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:        "limit",
					Aliases:     []string{"n"},
					Usage:       "number of messages to show (0 for all)",
					Value:       -1,
					Destination: &cmd.limit,
				},
				formatFlag(&cmd.format),
			},
			Before: cmd.flags.OpenNode,
			Action: cmd.runHistory,
		},
		&cli.Command{
			Name:        "unread",
			Usage:       "Show unread messages and mark them read",
			UsageText:   "parley unread",
			Description: "Prints messages addressed to the local user that have not been shown yet, oldest first, and marks them read.",
			Flags:       []cli.Flag{formatFlag(&cmd.format)},
			Before:      cmd.flags.OpenNode,
			Action:      cmd.runUnread,
		},
	)

	return app
}

func (cmd *HistoryCmd) runHistory(ctx context.Context, c *cli.Command) error {
	limit := cmd.limit
	if limit < 0 {
		limit = cmd.flags.Config.History.Limit
	}

	svc := cmd.flags.Service
	msgs, err := svc.History(ctx, svc.Self(), limit)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	return cmd.output(c, msgs, "no messages yet")
}

func (cmd *HistoryCmd) runUnread(ctx context.Context, c *cli.Command) error {
	svc := cmd.flags.Service
	msgs, err := svc.DrainUnread(ctx, svc.Self())
	if outErr := cmd.output(c, msgs, "no unread messages"); outErr != nil {
		return outErr
	}
	if err != nil {
		return fmt.Errorf("unread: %w", err)
	}
	return nil
}

func (cmd *HistoryCmd) output(c *cli.Command, msgs []chat.Message, empty string) error {
	if cmd.format == "json" {
		if msgs == nil {
			msgs = []chat.Message{}
		}
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(msgs)
	}

	stdoutPrinter(c.Root().Writer).Messages(msgs, cmd.flags.Service.Self(), empty)
	return nil
}

func formatFlag(dest *string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "format",
		Usage:       "output format (text, json)",
		Value:       "text",
		Destination: dest,
	}
}

// stdoutPrinter returns a printer for w that only colors terminals.
func stdoutPrinter(w io.Writer) *printer.Printer {
	plain := true
	if f, ok := w.(*os.File); ok {
		plain = !term.IsTerminal(int(f.Fd()))
	}
	return printer.New(w).WithPlain(plain)
}
