package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/validate"
)

// PeerDir implements chat.PeerDirectory on the peers table. last_seen is
// stored as unix nanoseconds.
type PeerDir struct {
	db *DB
}

// Upsert records the address of username and refreshes its last_seen.
func (d *PeerDir) Upsert(ctx context.Context, username, address string, now time.Time) error {
	if err := validate.Address(address); err != nil {
		return err
	}

	_, err := d.db.exec(ctx, "upsert peer",
		`INSERT INTO peers (username, address, last_seen, departed) VALUES (?, ?, ?, 0)
		ON CONFLICT(username) DO UPDATE SET
			address=excluded.address,
			last_seen=MAX(peers.last_seen, excluded.last_seen),
			departed=0`,
		username, address, now.UnixNano())
	return err
}

// Resolve returns the address of username.
func (d *PeerDir) Resolve(ctx context.Context, username string) (string, error) {
	var address string
	err := d.db.db.QueryRowContext(ctx, `SELECT address FROM peers WHERE username = ?`, username).Scan(&address)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && address == "") {
		return "", fmt.Errorf("%w: %s", chat.ErrPeerNotFound, username)
	}
	if err != nil {
		return "", unavailable("resolve peer", err)
	}
	return address, nil
}

// ListOnline returns the peers seen within window of now, excluding exclude.
func (d *PeerDir) ListOnline(ctx context.Context, now time.Time, window time.Duration, exclude string) ([]chat.Peer, error) {
	return d.list(ctx, "list online peers",
		`SELECT username, address, last_seen, departed FROM peers
		WHERE last_seen >= ? AND departed = 0 AND username != ?
		ORDER BY last_seen DESC, username ASC`,
		now.Add(-window).UnixNano(), exclude)
}

// Touch refreshes the last_seen of username without changing its address.
func (d *PeerDir) Touch(ctx context.Context, username string, now time.Time) error {
	_, err := d.db.exec(ctx, "touch peer",
		`INSERT INTO peers (username, last_seen) VALUES (?, ?)
		ON CONFLICT(username) DO UPDATE SET
			last_seen=MAX(peers.last_seen, excluded.last_seen),
			departed=0`,
		username, now.UnixNano())
	return err
}

// MarkOffline sets the departed flag of username until its next heartbeat.
func (d *PeerDir) MarkOffline(ctx context.Context, username string) error {
	_, err := d.db.exec(ctx, "mark peer offline", `UPDATE peers SET departed = 1 WHERE username = ?`, username)
	return err
}

// List returns every known peer, most recently seen first.
func (d *PeerDir) List(ctx context.Context) ([]chat.Peer, error) {
	return d.list(ctx, "list peers",
		`SELECT username, address, last_seen, departed FROM peers ORDER BY last_seen DESC, username ASC`)
}

func (d *PeerDir) list(ctx context.Context, op, query string, args ...any) ([]chat.Peer, error) {
	rows, err := d.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close() //nolint:errcheck

	var peers []chat.Peer
	for rows.Next() {
		var (
			p        chat.Peer
			lastSeen int64
		)
		if err := rows.Scan(&p.Username, &p.Address, &lastSeen, &p.Left); err != nil {
			return nil, unavailable(op, err)
		}
		p.LastSeen = time.Unix(0, lastSeen).UTC()
		peers = append(peers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return peers, nil
}
