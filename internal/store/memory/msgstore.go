// Package memory provides in-process implementations of the chat stores. They
// are used by tests and by nodes started with the memory backend.
package memory

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/hay-kot/parley/internal/core/chat"
)

// MsgStore implements chat.MessageStore in memory. IDs are decimal sequence
// numbers starting at 1.
type MsgStore struct {
	mu       sync.RWMutex
	messages []chat.Message
	index    map[string]int
	next     int
	now      func() time.Time
}

// NewMsgStore creates an empty message store.
func NewMsgStore() *MsgStore {
	return &MsgStore{
		index: make(map[string]int),
		next:  1,
		now:   time.Now,
	}
}

// WithClock replaces the clock used to stamp ReceivedAt.
func (s *MsgStore) WithClock(now func() time.Time) *MsgStore {
	s.now = now
	return s
}

// Append stores msg under the next sequential ID.
func (s *MsgStore) Append(ctx context.Context, msg chat.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = strconv.Itoa(s.next)
	s.next++
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now()
	}

	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	return msg.ID, nil
}

// Query returns up to limit messages involving participant, newest first.
// A non-positive limit returns them all.
func (s *MsgStore) Query(ctx context.Context, participant string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []chat.Message
	for i := len(s.messages) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if s.messages[i].Involves(participant) {
			out = append(out, s.messages[i])
		}
	}
	return out, nil
}

// MarkRead marks the message read. Unknown IDs are ignored.
func (s *MsgStore) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[id]; ok {
		s.messages[i].Read = true
	}
	return nil
}

// UnreadFor returns the unread messages addressed to participant, oldest first.
func (s *MsgStore) UnreadFor(ctx context.Context, participant string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []chat.Message
	for _, m := range s.messages {
		if m.Receiver == participant && !m.Read {
			out = append(out, m)
		}
	}
	return out, nil
}

// LatestID returns the ID of the newest message participant sent or received.
func (s *MsgStore) LatestID(ctx context.Context, participant string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range slices.Backward(s.messages) {
		if m.Exchanged(participant) {
			return m.ID, true, nil
		}
	}
	return "", false, nil
}

// Count returns the number of messages participant sent or received.
func (s *MsgStore) Count(ctx context.Context, participant string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.messages {
		if m.Exchanged(participant) {
			n++
		}
	}
	return n, nil
}
