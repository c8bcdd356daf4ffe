// Package redisstore provides a chat.PeerDirectory on Redis so several nodes
// can share presence state. Each peer is a hash under "<prefix>peer:<name>"
// and the set "<prefix>peers" indexes the known usernames.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/validate"
)

// DefaultPrefix namespaces every key written by the directory.
const DefaultPrefix = "parley:"

// heartbeatScript advances last_seen only forwards and clears the left flag.
// ARGV: username, now (unix ms), address, set-address flag.
var heartbeatScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'last_seen') or '0')
if tonumber(ARGV[2]) > cur then
	redis.call('HSET', KEYS[1], 'last_seen', ARGV[2])
end
redis.call('HSET', KEYS[1], 'username', ARGV[1], 'left', '0')
if ARGV[4] == '1' then
	redis.call('HSET', KEYS[1], 'address', ARGV[3])
end
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

var markOfflineScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('HSET', KEYS[1], 'left', '1')
end
return 1
`)

// Dial connects to the Redis server at addr and pings it.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("ping", err)
	}
	return client, nil
}

// PeerDir implements chat.PeerDirectory on Redis.
type PeerDir struct {
	client redis.UniversalClient
	prefix string
}

// NewPeerDir creates a directory using client. The client is owned by the
// caller.
func NewPeerDir(client redis.UniversalClient) *PeerDir {
	return &PeerDir{client: client, prefix: DefaultPrefix}
}

// WithPrefix sets the key namespace.
func (d *PeerDir) WithPrefix(prefix string) *PeerDir {
	d.prefix = prefix
	return d
}

func (d *PeerDir) peerKey(username string) string {
	return d.prefix + "peer:" + username
}

func (d *PeerDir) indexKey() string {
	return d.prefix + "peers"
}

// Upsert records the address of username and refreshes its last_seen.
func (d *PeerDir) Upsert(ctx context.Context, username, address string, now time.Time) error {
	if err := validate.Address(address); err != nil {
		return err
	}
	return d.heartbeat(ctx, "upsert peer", username, address, true, now)
}

// Resolve returns the address of username.
func (d *PeerDir) Resolve(ctx context.Context, username string) (string, error) {
	address, err := d.client.HGet(ctx, d.peerKey(username), "address").Result()
	if errors.Is(err, redis.Nil) || (err == nil && address == "") {
		return "", fmt.Errorf("%w: %s", chat.ErrPeerNotFound, username)
	}
	if err != nil {
		return "", unavailable("resolve peer", err)
	}
	return address, nil
}

// ListOnline returns the peers seen within window of now, excluding exclude.
func (d *PeerDir) ListOnline(ctx context.Context, now time.Time, window time.Duration, exclude string) ([]chat.Peer, error) {
	peers, err := d.load(ctx, "list online peers")
	if err != nil {
		return nil, err
	}
	// last_seen is stored in whole milliseconds; compare at the same
	// precision so the window boundary stays inclusive.
	return chat.FilterOnline(peers, now.Truncate(time.Millisecond), window, exclude), nil
}

// Touch refreshes the last_seen of username without changing its address.
func (d *PeerDir) Touch(ctx context.Context, username string, now time.Time) error {
	return d.heartbeat(ctx, "touch peer", username, "", false, now)
}

// MarkOffline sets the left field of username until its next heartbeat.
func (d *PeerDir) MarkOffline(ctx context.Context, username string) error {
	if err := markOfflineScript.Run(ctx, d.client, []string{d.peerKey(username)}).Err(); err != nil {
		return unavailable("mark peer offline", err)
	}
	return nil
}

// List returns every known peer, most recently seen first.
func (d *PeerDir) List(ctx context.Context) ([]chat.Peer, error) {
	peers, err := d.load(ctx, "list peers")
	if err != nil {
		return nil, err
	}
	chat.SortPeers(peers)
	return peers, nil
}

func (d *PeerDir) heartbeat(ctx context.Context, op, username, address string, setAddress bool, now time.Time) error {
	flag := "0"
	if setAddress {
		flag = "1"
	}

	err := heartbeatScript.Run(ctx, d.client,
		[]string{d.peerKey(username), d.indexKey()},
		username, now.UnixMilli(), address, flag,
	).Err()
	if err != nil {
		return unavailable(op, err)
	}
	return nil
}

// load reads every indexed peer in one pipeline.
func (d *PeerDir) load(ctx context.Context, op string) ([]chat.Peer, error) {
	names, err := d.client.SMembers(ctx, d.indexKey()).Result()
	if err != nil {
		return nil, unavailable(op, err)
	}
	if len(names) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(names))
	_, err = d.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, name := range names {
			cmds[i] = pipe.HGetAll(ctx, d.peerKey(name))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(op, err)
	}

	peers := make([]chat.Peer, 0, len(names))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		peers = append(peers, parsePeer(names[i], fields))
	}
	return peers, nil
}

func parsePeer(username string, fields map[string]string) chat.Peer {
	p := chat.Peer{
		Username: username,
		Address:  fields["address"],
		Left:     fields["left"] == "1",
	}
	if ms, err := strconv.ParseInt(fields["last_seen"], 10, 64); err == nil {
		p.LastSeen = time.UnixMilli(ms).UTC()
	}
	return p
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", chat.ErrStorageUnavailable, op, err)
}
