package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/printer"
)

type PeersCmd struct {
	flags *Flags

	all    bool
	match  string
	format string
}

// NewPeersCmd creates a new peers command
func NewPeersCmd(flags *Flags) *PeersCmd {
	return &PeersCmd{flags: flags}
}

// Register adds the peers command to the application
func (cmd *PeersCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:   "peers",
		Usage:  "Manage the peer directory",
		Before: cmd.flags.OpenNode,
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add or update a peer",
				UsageText: "parley peers add <user> <host:port>",
				Description: `Records where a peer's node listens. Peers are also learned automatically
when they send a message to this node.`,
				Action: cmd.runAdd,
			},
			{
				Name:      "ls",
				Usage:     "List peers",
				UsageText: "parley peers ls [--all] [--match <glob>]",
				Description: `Lists online peers, most recently seen first. Use --all to include
offline peers and --match to filter usernames with a glob such as "team-*".`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "all",
						Aliases:     []string{"a"},
						Usage:       "include offline peers",
						Destination: &cmd.all,
					},
					&cli.StringFlag{
						Name:        "match",
						Aliases:     []string{"m"},
						Usage:       "only show usernames matching the glob",
						Destination: &cmd.match,
					},
					formatFlag(&cmd.format),
				},
				Action: cmd.runList,
			},
		},
	})

	return app
}

func (cmd *PeersCmd) runAdd(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("usage: parley peers add <user> <host:port>")
	}

	username, address := c.Args().Get(0), c.Args().Get(1)
	if err := cmd.flags.Service.AddPeer(ctx, username, address, time.Now()); err != nil {
		return fmt.Errorf("add peer: %w", err)
	}

	printer.Ctx(ctx).Successf("added %s at %s", username, address)
	return nil
}

func (cmd *PeersCmd) runList(ctx context.Context, c *cli.Command) error {
	if cmd.match != "" && !doublestar.ValidatePattern(cmd.match) {
		return fmt.Errorf("invalid --match pattern %q", cmd.match)
	}

	var (
		svc    = cmd.flags.Service
		now    = time.Now()
		peers  []chat.Peer
		err    error
		window = svc.Presence().Window()
	)

	if cmd.all {
		peers, err = svc.Peers(ctx)
	} else {
		peers, err = svc.OnlinePeers(ctx, now)
	}
	if err != nil {
		return fmt.Errorf("list peers: %w", err)
	}

	peers = filterPeers(peers, svc.Self(), cmd.match)

	if cmd.format == "json" {
		return cmd.outputJSON(c, peers, now, window)
	}

	if len(peers) == 0 {
		printer.Ctx(ctx).Infof("No peers found")
		return nil
	}

	stdoutPrinter(c.Root().Writer).PeerTable(peers, now, window)
	return nil
}

type peerJSON struct {
	Username string      `json:"username"`
	Address  string      `json:"address,omitempty"`
	LastSeen time.Time   `json:"last_seen"`
	Status   chat.Status `json:"status"`
}

func (cmd *PeersCmd) outputJSON(c *cli.Command, peers []chat.Peer, now time.Time, window time.Duration) error {
	out := make([]peerJSON, 0, len(peers))
	for _, p := range peers {
		out = append(out, peerJSON{
			Username: p.Username,
			Address:  p.Address,
			LastSeen: p.LastSeen,
			Status:   chat.Classify(p, now, window),
		})
	}

	enc := json.NewEncoder(c.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// filterPeers drops self and, when pattern is set, usernames that do not
// match it. Order is preserved.
func filterPeers(peers []chat.Peer, self, pattern string) []chat.Peer {
	out := make([]chat.Peer, 0, len(peers))
	for _, p := range peers {
		if p.Username == self {
			continue
		}
		if pattern != "" && !doublestar.MatchUnvalidated(pattern, p.Username) {
			continue
		}
		out = append(out, p)
	}
	return out
}
