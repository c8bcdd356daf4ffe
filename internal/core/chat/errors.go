package chat

import "errors"

// Sentinel errors shared by every store and the node service. Callers match
// them with errors.Is; implementations wrap them with operation context.
var (
	// ErrInvalidAddress is returned when a peer address is not a host:port pair.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrPeerNotFound is returned when a peer is unknown or has no address yet.
	ErrPeerNotFound = errors.New("peer not found")
	// ErrMalformedMessage is returned when a message misses required fields.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrDeliveryFailed is returned when a remote peer could not be reached.
	// The message is already stored locally when this is returned.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrStorageUnavailable is returned when the backing store cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
