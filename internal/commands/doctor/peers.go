package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/transport/httpapi"
)

// StatusClient fetches the status of the node at address.
type StatusClient interface {
	Status(ctx context.Context, address string) (httpapi.StatusResponse, error)
}

// PeerCheck asks every known peer's node for its status.
type PeerCheck struct {
	peers   chat.PeerDirectory
	client  StatusClient
	self    string
	timeout time.Duration
}

// NewPeerCheck creates a reachability check. Each status request is bounded by timeout.
func NewPeerCheck(peers chat.PeerDirectory, client StatusClient, self string, timeout time.Duration) *PeerCheck {
	return &PeerCheck{peers: peers, client: client, self: self, timeout: timeout}
}

func (c *PeerCheck) Name() string {
	return "Peers"
}

func (c *PeerCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	peers, err := c.peers.List(ctx)
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "List peers",
			Status: StatusFail,
			Detail: err.Error(),
		})
		return result
	}

	for _, peer := range peers {
		if peer.Username == c.self {
			continue
		}
		result.Items = append(result.Items, c.checkPeer(ctx, peer))
	}

	if len(result.Items) == 0 {
		result.Items = append(result.Items, CheckItem{
			Label:  "No peers",
			Status: StatusPass,
			Detail: "add one with 'parley peers add'",
		})
	}

	return result
}

func (c *PeerCheck) checkPeer(ctx context.Context, peer chat.Peer) CheckItem {
	item := CheckItem{Label: peer.Username}

	if !peer.Resolvable() {
		item.Status = StatusWarn
		item.Detail = "no address known, messages cannot be delivered"
		return item
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	st, err := c.client.Status(ctx, peer.Address)
	switch {
	case err != nil:
		// Peers go offline routinely.
		item.Status = StatusWarn
		item.Detail = fmt.Sprintf("%s unreachable: %v", peer.Address, err)
	case st.Username != peer.Username:
		item.Status = StatusFail
		item.Detail = fmt.Sprintf("%s answers as %q", peer.Address, st.Username)
	default:
		item.Status = StatusPass
		item.Detail = fmt.Sprintf("%s %s", peer.Address, st.Status)
	}
	return item
}
