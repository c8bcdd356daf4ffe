package chat

import (
	"slices"
	"strings"
	"time"
)

// Status is the derived presence of a peer.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// DefaultPresenceWindow is how long a peer stays online after it was last seen.
const DefaultPresenceWindow = 5 * time.Minute

// Peer is a remote (or the local) participant known to the directory.
type Peer struct {
	Username string    `json:"username"`
	Address  string    `json:"address,omitempty"`
	LastSeen time.Time `json:"last_seen"`
	// Left is set when the peer announced it went offline. The next
	// heartbeat clears it.
	Left bool `json:"left,omitempty"`
}

// Resolvable reports whether messages can be sent to the peer.
func (p Peer) Resolvable() bool {
	return p.Address != ""
}

// Classify derives the presence of p at now. A peer seen exactly window ago is
// still online.
func Classify(p Peer, now time.Time, window time.Duration) Status {
	if p.Left {
		return StatusOffline
	}
	if now.Sub(p.LastSeen) <= window {
		return StatusOnline
	}
	return StatusOffline
}

// SortPeers orders peers most recently seen first, then by username.
func SortPeers(peers []Peer) {
	slices.SortFunc(peers, func(a, b Peer) int {
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		return strings.Compare(a.Username, b.Username)
	})
}

// FilterOnline returns the online peers other than exclude, sorted with SortPeers.
func FilterOnline(peers []Peer, now time.Time, window time.Duration, exclude string) []Peer {
	online := make([]Peer, 0, len(peers))
	for _, p := range peers {
		if p.Username == exclude {
			continue
		}
		if Classify(p, now, window) == StatusOnline {
			online = append(online, p)
		}
	}
	SortPeers(online)
	return online
}
