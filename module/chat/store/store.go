package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/TienThuan29/FreelanceIT-App-sub003/module/chat/model"
	"github.com/TienThuan29/FreelanceIT-App-sub003/tools/ids"
)

// Store is the durable chat store: conversations and messages in MongoDB.
type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) conversations() *mongo.Collection {
	return s.db.Collection(model.Conversation{}.TableName())
}

func (s *Store) messages() *mongo.Collection {
	return s.db.Collection(model.Message{}.TableName())
}

// GetConversation returns the conversation or (nil, nil) when it does not
// exist.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.conversations().FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get conversation %s", id)
	}
	return &conv, nil
}

// CreateConversation inserts a new conversation. Used by the marketplace's
// conversation-created path; the gateway only reads.
func (s *Store) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	if conv.ID == "" {
		conv.ID = ids.GenerateString()
	}
	if conv.CreateTime.IsZero() {
		conv.CreateTime = time.Now()
	}
	if _, err := s.conversations().InsertOne(ctx, conv); err != nil {
		return errors.Wrap(err, "create conversation")
	}
	return nil
}

// CreateMessage persists a message and bumps the conversation's
// last_message_at.
func (s *Store) CreateMessage(ctx context.Context, in model.MessageInput) (*model.Message, error) {
	now := time.Now()
	msg := &model.Message{
		ID:             ids.GenerateString(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Attachments:    in.Attachments,
		ClientMsgID:    in.ClientMsgID,
		CreateTime:     now,
	}
	if _, err := s.messages().InsertOne(ctx, msg); err != nil {
		return nil, errors.Wrapf(err, "create message in conversation %s", in.ConversationID)
	}
	_, err := s.conversations().UpdateOne(ctx,
		bson.M{"_id": in.ConversationID},
		bson.M{"$set": bson.M{"last_message_at": now}},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "touch conversation %s", in.ConversationID)
	}
	return msg, nil
}

// UpdateConversationName renames a conversation, returning the updated
// document or (nil, nil) when it does not exist.
func (s *Store) UpdateConversationName(ctx context.Context, id, name string) (*model.Conversation, error) {
	after := options.After
	var conv model.Conversation
	err := s.conversations().FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"name": name}},
		options.FindOneAndUpdate().SetReturnDocument(after),
	).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "rename conversation %s", id)
	}
	return &conv, nil
}

// DeleteConversation removes the conversation and cascades message deletion.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.messages().DeleteMany(ctx, bson.M{"conversation_id": id}); err != nil {
		return errors.Wrapf(err, "delete messages of conversation %s", id)
	}
	if _, err := s.conversations().DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return errors.Wrapf(err, "delete conversation %s", id)
	}
	return nil
}
