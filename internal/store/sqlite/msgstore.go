package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/hay-kot/parley/internal/core/chat"
)

// MsgStore implements chat.MessageStore on the messages table. IDs are the
// decimal row ids.
type MsgStore struct {
	db *DB
}

const selectMessage = `SELECT id, sender, receiver, text, sent_at, received_at, read FROM messages`

// Append inserts msg and returns its row ID.
func (s *MsgStore) Append(ctx context.Context, msg chat.Message) (string, error) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	res, err := s.db.exec(ctx, "append message",
		`INSERT INTO messages (sender, receiver, text, sent_at, received_at, read) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.Sender, msg.Receiver, msg.Text, formatTime(msg.SentAt), formatTime(msg.ReceivedAt), msg.Read)
	if err != nil {
		return "", err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return "", unavailable("append message", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// Query returns up to limit messages involving participant, newest first.
func (s *MsgStore) Query(ctx context.Context, participant string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.query(ctx, "query messages",
		selectMessage+` WHERE sender = ? OR receiver = ? OR receiver = ? ORDER BY id DESC LIMIT ?`,
		participant, participant, chat.Broadcast, limit)
}

// MarkRead marks the message read. Unknown IDs are ignored.
func (s *MsgStore) MarkRead(ctx context.Context, id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}
	_, err = s.db.exec(ctx, "mark read", `UPDATE messages SET read = 1 WHERE id = ?`, n)
	return err
}

// UnreadFor returns the unread messages addressed to participant, oldest first.
func (s *MsgStore) UnreadFor(ctx context.Context, participant string) ([]chat.Message, error) {
	return s.query(ctx, "unread messages",
		selectMessage+` WHERE receiver = ? AND read = 0 ORDER BY id ASC`, participant)
}

// LatestID returns the ID of the newest message participant sent or received.
func (s *MsgStore) LatestID(ctx context.Context, participant string) (string, bool, error) {
	var id int64
	err := s.db.db.QueryRowContext(ctx,
		`SELECT id FROM messages WHERE sender = ? OR receiver = ? ORDER BY id DESC LIMIT 1`,
		participant, participant).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("latest message", err)
	}
	return strconv.FormatInt(id, 10), true, nil
}

// Count returns the number of messages participant sent or received.
func (s *MsgStore) Count(ctx context.Context, participant string) (int, error) {
	var n int
	err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE sender = ? OR receiver = ?`,
		participant, participant).Scan(&n)
	if err != nil {
		return 0, unavailable("count messages", err)
	}
	return n, nil
}

func (s *MsgStore) query(ctx context.Context, op, query string, args ...any) ([]chat.Message, error) {
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []chat.Message
	for rows.Next() {
		var (
			m                  chat.Message
			id                 int64
			sentAt, receivedAt string
		)
		if err := rows.Scan(&id, &m.Sender, &m.Receiver, &m.Text, &sentAt, &receivedAt, &m.Read); err != nil {
			return nil, unavailable(op, err)
		}
		m.ID = strconv.FormatInt(id, 10)
		m.SentAt = parseTime(sentAt)
		m.ReceivedAt = parseTime(receivedAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
