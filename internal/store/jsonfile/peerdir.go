package jsonfile

import (
	"context"
	"fmt"
	"time"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/validate"
)

// PeersFile is the root JSON structure of the peer directory.
type PeersFile struct {
	Peers []chat.Peer `json:"peers"`
}

func (f *PeersFile) find(username string) int {
	for i, p := range f.Peers {
		if p.Username == username {
			return i
		}
	}
	return -1
}

// heartbeat records a sighting of username and returns its index.
func (f *PeersFile) heartbeat(username string, now time.Time) int {
	i := f.find(username)
	if i < 0 {
		f.Peers = append(f.Peers, chat.Peer{Username: username})
		i = len(f.Peers) - 1
	}
	f.Peers[i].Left = false
	if now.After(f.Peers[i].LastSeen) {
		f.Peers[i].LastSeen = now
	}
	return i
}

// PeerDir implements chat.PeerDirectory on a single JSON file.
type PeerDir struct {
	doc *document
}

// NewPeerDir creates a peer directory backed by the file at path.
func NewPeerDir(path string) *PeerDir {
	return &PeerDir{doc: &document{path: path}}
}

// Upsert records the address of username and refreshes its last_seen.
func (d *PeerDir) Upsert(ctx context.Context, username, address string, now time.Time) error {
	if err := validate.Address(address); err != nil {
		return err
	}

	var file PeersFile
	return d.doc.update("upsert peer", &file, func() bool {
		i := file.heartbeat(username, now)
		file.Peers[i].Address = address
		return true
	})
}

// Resolve returns the address of username.
func (d *PeerDir) Resolve(ctx context.Context, username string) (string, error) {
	var file PeersFile
	if err := d.doc.view("resolve peer", &file); err != nil {
		return "", err
	}

	i := file.find(username)
	if i < 0 || !file.Peers[i].Resolvable() {
		return "", fmt.Errorf("%w: %s", chat.ErrPeerNotFound, username)
	}
	return file.Peers[i].Address, nil
}

// ListOnline returns the peers seen within window of now, excluding exclude.
func (d *PeerDir) ListOnline(ctx context.Context, now time.Time, window time.Duration, exclude string) ([]chat.Peer, error) {
	var file PeersFile
	if err := d.doc.view("list online peers", &file); err != nil {
		return nil, err
	}
	return chat.FilterOnline(file.Peers, now, window, exclude), nil
}

// Touch refreshes the last_seen of username without changing its address.
// Unknown users are added without an address.
func (d *PeerDir) Touch(ctx context.Context, username string, now time.Time) error {
	var file PeersFile
	return d.doc.update("touch peer", &file, func() bool {
		file.heartbeat(username, now)
		return true
	})
}

// MarkOffline flags username as gone until its next heartbeat.
func (d *PeerDir) MarkOffline(ctx context.Context, username string) error {
	var file PeersFile
	return d.doc.update("mark peer offline", &file, func() bool {
		i := file.find(username)
		if i < 0 {
			return false
		}
		file.Peers[i].Left = true
		return true
	})
}

// List returns every known peer, most recently seen first.
func (d *PeerDir) List(ctx context.Context) ([]chat.Peer, error) {
	var file PeersFile
	if err := d.doc.view("list peers", &file); err != nil {
		return nil, err
	}
	chat.SortPeers(file.Peers)
	return file.Peers, nil
}
