package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mrsingh-rishi/voice-gateway/types"
)

const conversationCollection = "conversations"

// conversationDoc is the durable record: one document per conversation.
type conversationDoc struct {
	ID       string          `bson:"_id"`
	Messages []types.Message `bson:"messages"`
}

// MongoStore persists conversation histories in a MongoDB collection,
// one ReplaceOne-upsert per save so a turn's read-modify-write stays a
// single-key operation.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(conversationCollection),
	}, nil
}

func (s *MongoStore) Load(ctx context.Context, conversationID string) ([]types.Message, error) {
	var doc conversationDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []types.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	return doc.Messages, nil
}

func (s *MongoStore) Save(ctx context.Context, conversationID string, messages []types.Message) error {
	doc := conversationDoc{ID: conversationID, Messages: messages}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": conversationID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", conversationID, err)
	}
	return nil
}

func (s *MongoStore) Clear(ctx context.Context, conversationID string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": conversationID})
	if err != nil {
		return false, fmt.Errorf("clear conversation %s: %w", conversationID, err)
	}
	return res.DeletedCount > 0, nil
}

// Close releases the underlying MongoDB connections.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
