// Package chat defines the messages, peers and storage contracts of a parley node.
package chat

import (
	"fmt"
	"strings"
	"time"
)

// Broadcast is the receiver sentinel for messages addressed to every peer.
const Broadcast = "all"

// Message is a single chat message. Once appended to a store only Read changes.
type Message struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	Receiver   string    `json:"receiver"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
	ReceivedAt time.Time `json:"received_at,omitzero"`
	Read       bool      `json:"read"`
}

// Validate checks the fields every stored message must carry.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Sender) == "" {
		return fmt.Errorf("%w: sender is required", ErrMalformedMessage)
	}
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrMalformedMessage)
	}
	return nil
}

// IsBroadcast reports whether the message is addressed to everyone.
func (m Message) IsBroadcast() bool {
	return m.Receiver == Broadcast
}

// Involves reports whether participant should see the message in its history:
// as sender, as receiver, or through a broadcast.
func (m Message) Involves(participant string) bool {
	return m.Sender == participant || m.Receiver == participant || m.IsBroadcast()
}

// Exchanged reports whether participant sent or directly received the message.
// Broadcasts from other peers do not count.
func (m Message) Exchanged(participant string) bool {
	return m.Sender == participant || m.Receiver == participant
}
