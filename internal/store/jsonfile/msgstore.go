package jsonfile

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/hay-kot/parley/internal/core/chat"
)

// MessagesFile is the root JSON structure of the message log.
type MessagesFile struct {
	NextID   int            `json:"next_id"`
	Messages []chat.Message `json:"messages"`
}

// MsgStore implements chat.MessageStore on a single JSON file. IDs are decimal
// sequence numbers persisted in the file.
type MsgStore struct {
	doc *document
	now func() time.Time
}

// NewMsgStore creates a message store backed by the file at path. The file is
// created on first append.
func NewMsgStore(path string) *MsgStore {
	return &MsgStore{
		doc: &document{path: path},
		now: time.Now,
	}
}

// Append stores msg under the next sequential ID kept in the file.
func (s *MsgStore) Append(ctx context.Context, msg chat.Message) (string, error) {
	var file MessagesFile
	err := s.doc.update("append message", &file, func() bool {
		if file.NextID < 1 {
			file.NextID = 1
		}
		msg.ID = strconv.Itoa(file.NextID)
		file.NextID++
		if msg.ReceivedAt.IsZero() {
			msg.ReceivedAt = s.now()
		}
		file.Messages = append(file.Messages, msg)
		return true
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// Query returns up to limit messages involving participant, newest first.
func (s *MsgStore) Query(ctx context.Context, participant string, limit int) ([]chat.Message, error) {
	var file MessagesFile
	if err := s.doc.view("query messages", &file); err != nil {
		return nil, err
	}

	var out []chat.Message
	for _, m := range slices.Backward(file.Messages) {
		if limit > 0 && len(out) == limit {
			break
		}
		if m.Involves(participant) {
			out = append(out, m)
		}
	}
	return out, nil
}

// MarkRead marks the message read. Unknown IDs are ignored.
func (s *MsgStore) MarkRead(ctx context.Context, id string) error {
	var file MessagesFile
	return s.doc.update("mark read", &file, func() bool {
		for i := range file.Messages {
			if file.Messages[i].ID == id {
				if file.Messages[i].Read {
					return false
				}
				file.Messages[i].Read = true
				return true
			}
		}
		return false
	})
}

// UnreadFor returns the unread messages addressed to participant, oldest first.
func (s *MsgStore) UnreadFor(ctx context.Context, participant string) ([]chat.Message, error) {
	var file MessagesFile
	if err := s.doc.view("unread messages", &file); err != nil {
		return nil, err
	}

	var out []chat.Message
	for _, m := range file.Messages {
		if m.Receiver == participant && !m.Read {
			out = append(out, m)
		}
	}
	return out, nil
}

// LatestID returns the ID of the newest message participant sent or received.
func (s *MsgStore) LatestID(ctx context.Context, participant string) (string, bool, error) {
	var file MessagesFile
	if err := s.doc.view("latest message", &file); err != nil {
		return "", false, err
	}

	for _, m := range slices.Backward(file.Messages) {
		if m.Exchanged(participant) {
			return m.ID, true, nil
		}
	}
	return "", false, nil
}

// Count returns the number of messages participant sent or received.
func (s *MsgStore) Count(ctx context.Context, participant string) (int, error) {
	var file MessagesFile
	if err := s.doc.view("count messages", &file); err != nil {
		return 0, err
	}

	n := 0
	for _, m := range file.Messages {
		if m.Exchanged(participant) {
			n++
		}
	}
	return n, nil
}
