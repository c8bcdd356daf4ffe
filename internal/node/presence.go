package node

import (
	"context"
	"time"

	"github.com/hay-kot/parley/internal/core/chat"
)

// Presence tracks the online state of the local identity and classifies
// remote peers against the presence window.
type Presence struct {
	peers   chat.PeerDirectory
	self    string
	address string
	window  time.Duration
}

// NewPresence creates a tracker for self. address is the advertised listen
// address; when empty, self is recorded without one. A non-positive window
// falls back to chat.DefaultPresenceWindow.
func NewPresence(peers chat.PeerDirectory, self, address string, window time.Duration) *Presence {
	if window <= 0 {
		window = chat.DefaultPresenceWindow
	}
	return &Presence{peers: peers, self: self, address: address, window: window}
}

// Window returns the presence window.
func (p *Presence) Window() time.Duration {
	return p.window
}

// Classify reports whether peer is online at now.
func (p *Presence) Classify(peer chat.Peer, now time.Time) chat.Status {
	return chat.Classify(peer, now, p.window)
}

// MarkSelfOnline records a heartbeat for the local identity.
func (p *Presence) MarkSelfOnline(ctx context.Context, now time.Time) error {
	if p.address == "" {
		return p.peers.Touch(ctx, p.self, now)
	}
	return p.peers.Upsert(ctx, p.self, p.address, now)
}

// MarkSelfOffline flags the local identity as gone.
func (p *Presence) MarkSelfOffline(ctx context.Context) error {
	return p.peers.MarkOffline(ctx, p.self)
}
