package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/validate"
)

type userDoc struct {
	Username string    `bson:"username"`
	Address  string    `bson:"address"`
	LastSeen time.Time `bson:"last_seen"`
	Left     bool      `bson:"left"`
}

func (d userDoc) peer() chat.Peer {
	return chat.Peer{
		Username: d.Username,
		Address:  d.Address,
		LastSeen: d.LastSeen.UTC(),
		Left:     d.Left,
	}
}

// PeerDir implements chat.PeerDirectory on a collection keyed by username.
type PeerDir struct {
	coll *mongo.Collection
}

// Upsert records the address of username and refreshes its last_seen.
func (d *PeerDir) Upsert(ctx context.Context, username, address string, now time.Time) error {
	if err := validate.Address(address); err != nil {
		return err
	}

	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "address", Value: address}, {Key: "left", Value: false}}},
		{Key: "$max", Value: bson.D{{Key: "last_seen", Value: now}}},
	}
	return d.upsert(ctx, "upsert peer", username, update)
}

// Resolve returns the address of username.
func (d *PeerDir) Resolve(ctx context.Context, username string) (string, error) {
	var doc userDoc
	err := d.coll.FindOne(ctx, bson.D{{Key: "username", Value: username}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", fmt.Errorf("%w: %s", chat.ErrPeerNotFound, username)
	}
	if err != nil {
		return "", unavailable("resolve peer", err)
	}
	if doc.Address == "" {
		return "", fmt.Errorf("%w: %s", chat.ErrPeerNotFound, username)
	}
	return doc.Address, nil
}

// ListOnline returns the peers seen within window of now, excluding exclude.
func (d *PeerDir) ListOnline(ctx context.Context, now time.Time, window time.Duration, exclude string) ([]chat.Peer, error) {
	filter := bson.D{
		{Key: "last_seen", Value: bson.D{{Key: "$gte", Value: now.Add(-window)}}},
		{Key: "left", Value: bson.D{{Key: "$ne", Value: true}}},
		{Key: "username", Value: bson.D{{Key: "$ne", Value: exclude}}},
	}
	return d.find(ctx, "list online peers", filter)
}

// Touch refreshes the last_seen of username without changing its address.
func (d *PeerDir) Touch(ctx context.Context, username string, now time.Time) error {
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "left", Value: false}}},
		{Key: "$max", Value: bson.D{{Key: "last_seen", Value: now}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "address", Value: ""}}},
	}
	return d.upsert(ctx, "touch peer", username, update)
}

// MarkOffline sets the left field of username until its next heartbeat.
func (d *PeerDir) MarkOffline(ctx context.Context, username string) error {
	_, err := d.coll.UpdateOne(ctx,
		bson.D{{Key: "username", Value: username}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "left", Value: true}}}})
	if err != nil {
		return unavailable("mark peer offline", err)
	}
	return nil
}

// List returns every known peer, most recently seen first.
func (d *PeerDir) List(ctx context.Context) ([]chat.Peer, error) {
	return d.find(ctx, "list peers", bson.D{})
}

func (d *PeerDir) upsert(ctx context.Context, op, username string, update bson.D) error {
	_, err := d.coll.UpdateOne(ctx,
		bson.D{{Key: "username", Value: username}},
		update,
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return unavailable(op, err)
	}
	return nil
}

func (d *PeerDir) find(ctx context.Context, op string, filter bson.D) ([]chat.Peer, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_seen", Value: -1}, {Key: "username", Value: 1}})

	cur, err := d.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, unavailable(op, err)
	}

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable(op, err)
	}

	peers := make([]chat.Peer, 0, len(docs))
	for _, doc := range docs {
		peers = append(peers, doc.peer())
	}
	return peers, nil
}
