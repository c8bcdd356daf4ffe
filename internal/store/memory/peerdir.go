package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/validate"
)

// PeerDir implements chat.PeerDirectory in memory.
type PeerDir struct {
	mu    sync.RWMutex
	peers map[string]chat.Peer
}

// NewPeerDir creates an empty peer directory.
func NewPeerDir() *PeerDir {
	return &PeerDir{peers: make(map[string]chat.Peer)}
}

// Upsert records the address of username and refreshes its last_seen.
func (d *PeerDir) Upsert(ctx context.Context, username, address string, now time.Time) error {
	if err := validate.Address(address); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.peers[username]
	p.Username = username
	p.Address = address
	p.Left = false
	if now.After(p.LastSeen) {
		p.LastSeen = now
	}
	d.peers[username] = p
	return nil
}

// Resolve returns the address of username.
func (d *PeerDir) Resolve(ctx context.Context, username string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.peers[username]
	if !ok || !p.Resolvable() {
		return "", fmt.Errorf("%w: %s", chat.ErrPeerNotFound, username)
	}
	return p.Address, nil
}

// ListOnline returns the peers seen within window of now, excluding exclude.
func (d *PeerDir) ListOnline(ctx context.Context, now time.Time, window time.Duration, exclude string) ([]chat.Peer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return chat.FilterOnline(d.snapshot(), now, window, exclude), nil
}

// Touch refreshes the last_seen of username without changing its address.
func (d *PeerDir) Touch(ctx context.Context, username string, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.peers[username]
	p.Username = username
	p.Left = false
	if now.After(p.LastSeen) {
		p.LastSeen = now
	}
	d.peers[username] = p
	return nil
}

// MarkOffline flags username as gone until its next heartbeat.
func (d *PeerDir) MarkOffline(ctx context.Context, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.peers[username]; ok {
		p.Left = true
		d.peers[username] = p
	}
	return nil
}

// List returns every known peer, most recently seen first.
func (d *PeerDir) List(ctx context.Context) ([]chat.Peer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	peers := d.snapshot()
	chat.SortPeers(peers)
	return peers, nil
}

// snapshot copies the peers. Caller must hold d.mu.
func (d *PeerDir) snapshot() []chat.Peer {
	peers := make([]chat.Peer, 0, len(d.peers))
	for _, p := range d.peers {
		peers = append(peers, p)
	}
	return peers
}
