// Package mongodb provides chat stores on MongoDB. Messages live in the
// "messages" collection and peers in "users".
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hay-kot/parley/internal/core/chat"
)

const (
	messagesCollection = "messages"
	usersCollection    = "users"
)

// DB is a connected parley database.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri, pings the server and ensures the collection indexes.
func Connect(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, unavailable("connect", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, unavailable("ping", err)
	}

	d := &DB{client: client, db: client.Database(database)}
	if err := d.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return d, nil
}

// Close disconnects the client.
func (d *DB) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// Drop removes the database. Used by tests.
func (d *DB) Drop(ctx context.Context) error {
	return d.db.Drop(ctx)
}

// Messages returns the message store backed by the messages collection.
func (d *DB) Messages() *MsgStore {
	return &MsgStore{coll: d.db.Collection(messagesCollection)}
}

// Peers returns the peer directory backed by the users collection.
func (d *DB) Peers() *PeerDir {
	return &PeerDir{coll: d.db.Collection(usersCollection)}
}

func (d *DB) ensureIndexes(ctx context.Context) error {
	_, err := d.db.Collection(messagesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender", Value: 1}}},
		{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "read", Value: 1}}},
	})
	if err != nil {
		return unavailable("create message indexes", err)
	}

	_, err = d.db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "last_seen", Value: -1}}},
	})
	if err != nil {
		return unavailable("create user indexes", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", chat.ErrStorageUnavailable, op, err)
}
