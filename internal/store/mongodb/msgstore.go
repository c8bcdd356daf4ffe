package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hay-kot/parley/internal/core/chat"
)

type messageDoc struct {
	ID         bson.ObjectID `bson:"_id,omitempty"`
	Sender     string        `bson:"sender"`
	Receiver   string        `bson:"receiver"`
	Text       string        `bson:"text"`
	SentAt     time.Time     `bson:"sent_at"`
	ReceivedAt time.Time     `bson:"received_at"`
	Read       bool          `bson:"read"`
}

func (d messageDoc) message() chat.Message {
	return chat.Message{
		ID:         d.ID.Hex(),
		Sender:     d.Sender,
		Receiver:   d.Receiver,
		Text:       d.Text,
		SentAt:     d.SentAt.UTC(),
		ReceivedAt: d.ReceivedAt.UTC(),
		Read:       d.Read,
	}
}

// MsgStore implements chat.MessageStore on a collection. IDs are hex
// ObjectIDs, which sort in insertion order for a single writer.
type MsgStore struct {
	coll *mongo.Collection
}

// Append inserts msg and returns its ObjectID in hex.
func (s *MsgStore) Append(ctx context.Context, msg chat.Message) (string, error) {
	doc := messageDoc{
		ID:         bson.NewObjectID(),
		Sender:     msg.Sender,
		Receiver:   msg.Receiver,
		Text:       msg.Text,
		SentAt:     msg.SentAt,
		ReceivedAt: msg.ReceivedAt,
		Read:       msg.Read,
	}
	if doc.ReceivedAt.IsZero() {
		doc.ReceivedAt = time.Now()
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return "", unavailable("append message", err)
	}
	return doc.ID.Hex(), nil
}

// Query returns up to limit messages involving participant, newest first.
func (s *MsgStore) Query(ctx context.Context, participant string, limit int) ([]chat.Message, error) {
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "sender", Value: participant}},
		bson.D{{Key: "receiver", Value: participant}},
		bson.D{{Key: "receiver", Value: chat.Broadcast}},
	}}}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, "query messages", filter, opts)
}

// MarkRead marks the message read. Unknown IDs are ignored.
func (s *MsgStore) MarkRead(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}

	_, err = s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "read", Value: true}}}})
	if err != nil {
		return unavailable("mark read", err)
	}
	return nil
}

// UnreadFor returns the unread messages addressed to participant, oldest first.
func (s *MsgStore) UnreadFor(ctx context.Context, participant string) ([]chat.Message, error) {
	filter := bson.D{
		{Key: "receiver", Value: participant},
		{Key: "read", Value: false},
	}
	return s.find(ctx, "unread messages", filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

// LatestID returns the ID of the newest message participant sent or received.
func (s *MsgStore) LatestID(ctx context.Context, participant string) (string, bool, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetProjection(bson.D{{Key: "_id", Value: 1}})

	var doc messageDoc
	err := s.coll.FindOne(ctx, exchangedFilter(participant), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("latest message", err)
	}
	return doc.ID.Hex(), true, nil
}

// Count returns the number of messages participant sent or received.
func (s *MsgStore) Count(ctx context.Context, participant string) (int, error) {
	n, err := s.coll.CountDocuments(ctx, exchangedFilter(participant))
	if err != nil {
		return 0, unavailable("count messages", err)
	}
	return int(n), nil
}

func (s *MsgStore) find(ctx context.Context, op string, filter any, opts *options.FindOptionsBuilder) ([]chat.Message, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, unavailable(op, err)
	}

	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable(op, err)
	}

	out := make([]chat.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.message())
	}
	return out, nil
}

func exchangedFilter(participant string) bson.D {
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "sender", Value: participant}},
		bson.D{{Key: "receiver", Value: participant}},
	}}}
}
