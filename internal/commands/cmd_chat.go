package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/validate"
	"github.com/hay-kot/parley/internal/node"
	"github.com/hay-kot/parley/internal/printer"
	"github.com/hay-kot/parley/internal/styles"
)

// Menu actions.
const (
	actionSend    = "send"
	actionSendAll = "send-all"
	actionHistory = "history"
	actionUnread  = "unread"
	actionOnline  = "online"
	actionAddPeer = "add-peer"
	actionQuit    = "quit"
)

type ChatCmd struct {
	flags *Flags

	// pending is the unread count seen by the last sync loop change
	pending atomic.Int64
}

// NewChatCmd creates a new chat command
func NewChatCmd(flags *Flags) *ChatCmd {
	return &ChatCmd{flags: flags}
}

// Register adds the chat command to the application
func (cmd *ChatCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "chat",
		Usage:     "Run the node with an interactive menu",
		UsageText: "parley chat",
		Description: `Starts the node in the background and opens a menu to send messages,
read history and unread messages, list online users and add peers.

Requires an interactive terminal. Use 'parley serve' for headless nodes.`,
		Before: cmd.flags.OpenNode,
		Action: cmd.run,
	})

	return app
}

func (cmd *ChatCmd) run(ctx context.Context, c *cli.Command) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("chat needs an interactive terminal, use 'parley serve' instead")
	}

	runner, err := newNodeRunner(cmd.flags, cmd.onChange)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	out := c.Root().Writer
	_, _ = fmt.Fprintln(out, styles.BannerStyle.Render(styles.Banner))
	printer.New(out).Infof("%s listening on %s (advertised as %s)", cmd.flags.Service.Self(), runner.Addr(), cmd.flags.Address)

	menuErr := cmd.menuLoop(ctx, out)

	cancel()
	runErr := <-done

	if errors.Is(menuErr, huh.ErrUserAborted) {
		menuErr = nil
	}
	return errors.Join(menuErr, runErr)
}

// onChange records the unread count for the menu title. Messages are shown
// when the user asks for them so output never lands inside an open form. Own
// sends move the newest ID as well but leave nothing unread.
func (cmd *ChatCmd) onChange(ctx context.Context, change node.Change) error {
	n, err := cmd.flags.Service.UnreadCount(ctx, change.Participant)
	if err != nil {
		return err
	}
	cmd.pending.Store(int64(n))
	return nil
}

func (cmd *ChatCmd) menuLoop(ctx context.Context, out io.Writer) error {
	p := printer.New(out)

	for {
		if ctx.Err() != nil {
			return nil
		}

		action, err := cmd.chooseAction()
		if err != nil {
			return err
		}
		if action == actionQuit {
			return nil
		}

		_, _ = fmt.Fprintln(out, styles.Divider(40))
		if err := cmd.perform(ctx, p, action); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				continue
			}
			p.Errorf("%v", err)
		}
		_, _ = fmt.Fprintln(out)
	}
}

func (cmd *ChatCmd) chooseAction() (string, error) {
	title := "What next?"
	if n := cmd.pending.Load(); n > 0 {
		title = fmt.Sprintf("What next? (%d unread)", n)
	}

	var action string
	err := runForm(huh.NewSelect[string]().
		Title(title).
		Options(
			huh.NewOption("Send a message", actionSend),
			huh.NewOption("Send to everyone online", actionSendAll),
			huh.NewOption("Show history", actionHistory),
			huh.NewOption("Show unread", actionUnread),
			huh.NewOption("Online users", actionOnline),
			huh.NewOption("Add a peer", actionAddPeer),
			huh.NewOption("Quit", actionQuit),
		).
		Value(&action))
	return action, err
}

func (cmd *ChatCmd) perform(ctx context.Context, p *printer.Printer, action string) error {
	svc := cmd.flags.Service

	switch action {
	case actionSend:
		to, text, err := cmd.askMessage(ctx)
		if err != nil {
			return err
		}
		return cmd.send(ctx, p, to, text)

	case actionSendAll:
		var text string
		if err := runForm(huh.NewInput().
			Title("Message to everyone").
			Value(&text).
			Validate(required("message"))); err != nil {
			return err
		}
		return cmd.sendAll(ctx, p, text)

	case actionHistory:
		msgs, err := svc.History(ctx, svc.Self(), cmd.flags.Config.History.Limit)
		if err != nil {
			return err
		}
		p.Messages(msgs, svc.Self(), "no messages yet")

	case actionUnread:
		return cmd.showUnread(ctx, p)

	case actionOnline:
		peers, err := svc.OnlinePeers(ctx, time.Now())
		if err != nil {
			return err
		}
		if len(peers) == 0 {
			p.Infof("nobody else is online")
			return nil
		}
		p.PeerTable(peers, time.Now(), svc.Presence().Window())

	case actionAddPeer:
		var username, address string
		if err := runForm(
			huh.NewInput().Title("Username").Value(&username).Validate(validate.Username),
			huh.NewInput().Title("Address").Placeholder("host:port").Value(&address).Validate(validate.Address),
		); err != nil {
			return err
		}
		if err := svc.AddPeer(ctx, username, address, time.Now()); err != nil {
			return err
		}
		p.Successf("added %s at %s", username, address)
	}

	return nil
}

// askMessage prompts for a receiver, suggesting known peers, and the text.
func (cmd *ChatCmd) askMessage(ctx context.Context) (to, text string, err error) {
	var suggestions []string
	if peers, err := cmd.flags.Service.Peers(ctx); err == nil {
		for _, peer := range peers {
			if peer.Username != cmd.flags.Service.Self() {
				suggestions = append(suggestions, peer.Username)
			}
		}
	}

	err = runForm(
		huh.NewInput().Title("To").Suggestions(suggestions).Value(&to).Validate(required("receiver")),
		huh.NewInput().Title("Message").Value(&text).Validate(required("message")),
	)
	return strings.TrimSpace(to), text, err
}

func (cmd *ChatCmd) send(ctx context.Context, p *printer.Printer, to, text string) error {
	svc := cmd.flags.Service

	id, err := svc.Send(ctx, svc.Self(), to, text, time.Now())
	switch {
	case errors.Is(err, chat.ErrDeliveryFailed):
		p.Warnf("message %s stored but not delivered: %v", id, err)
		return nil
	case err != nil:
		return err
	}

	p.Successf("sent to %s", to)
	return nil
}

func (cmd *ChatCmd) sendAll(ctx context.Context, p *printer.Printer, text string) error {
	svc := cmd.flags.Service

	res, err := svc.SendToAll(ctx, svc.Self(), text, time.Now())
	if err != nil {
		return err
	}
	reportSendAll(p, res.Delivered, res.FailedPeers())
	return nil
}

func (cmd *ChatCmd) showUnread(ctx context.Context, p *printer.Printer) error {
	svc := cmd.flags.Service

	msgs, err := svc.DrainUnread(ctx, svc.Self())
	p.Messages(msgs, svc.Self(), "no unread messages")
	if err != nil {
		return err
	}
	cmd.pending.Store(0)
	return nil
}

func runForm(fields ...huh.Field) error {
	return huh.NewForm(huh.NewGroup(fields...)).WithTheme(styles.FormTheme()).Run()
}

// required returns a huh validator rejecting blank input.
func required(label string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", label)
		}
		return nil
	}
}
