package chat

import (
	"context"
	"time"
)

// MessageStore is an append-only message log. Implementations must be safe for
// concurrent use and make every method atomic. I/O failures are reported
// wrapped in ErrStorageUnavailable.
type MessageStore interface {
	// Append stores msg and returns its assigned ID. ReceivedAt is set to the
	// append time when zero.
	Append(ctx context.Context, msg Message) (string, error)
	// Query returns messages the participant sent, received, or that were
	// broadcast, newest first. A limit of 0 or less returns all of them.
	Query(ctx context.Context, participant string, limit int) ([]Message, error)
	// MarkRead flags a message as read. Unknown IDs and already read
	// messages are not an error.
	MarkRead(ctx context.Context, id string) error
	// UnreadFor returns unread messages addressed to participant, oldest first.
	UnreadFor(ctx context.Context, participant string) ([]Message, error)
	// LatestID returns the ID of the newest message the participant sent or
	// received. ok is false when there is none.
	LatestID(ctx context.Context, participant string) (id string, ok bool, err error)
	// Count returns the number of messages the participant sent or received.
	Count(ctx context.Context, participant string) (int, error)
}

// PeerDirectory maps usernames to addresses and presence timestamps.
// LastSeen never moves backwards. Implementations must be safe for concurrent use.
type PeerDirectory interface {
	// Upsert creates or updates a peer. Returns ErrInvalidAddress when address
	// is not host:port.
	Upsert(ctx context.Context, username, address string, now time.Time) error
	// Resolve returns the address of a peer. Returns ErrPeerNotFound when the
	// peer is unknown or has no address.
	Resolve(ctx context.Context, username string) (string, error)
	// ListOnline returns peers seen within window of now, excluding the named
	// peer, most recently seen first and then by username.
	ListOnline(ctx context.Context, now time.Time, window time.Duration, exclude string) ([]Peer, error)
	// Touch records a heartbeat without changing the address. Unknown peers
	// are created without an address.
	Touch(ctx context.Context, username string, now time.Time) error
	// MarkOffline flags a peer as gone until its next heartbeat. Unknown
	// peers are ignored.
	MarkOffline(ctx context.Context, username string) error
	// List returns every known peer, most recently seen first.
	List(ctx context.Context) ([]Peer, error)
}
