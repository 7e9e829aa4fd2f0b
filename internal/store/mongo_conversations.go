package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"knot-backend/internal/model"
)

type mongoConversations struct {
	convs *mongo.Collection
	msgs  *mongo.Collection
}

func (r *mongoConversations) GetOrCreate(ctx context.Context, a, b string) (*model.Conversation, error) {
	id := model.ConversationID(a, b)
	participants := []string{a, b}
	if b < a {
		participants = []string{b, a}
	}

	var out model.Conversation
	err := r.convs.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{"$setOnInsert": bson.M{
			"participants": participants,
			"createdAt":    time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("get or create conversation: %w", mapErr(err))
	}
	return &out, nil
}

func (r *mongoConversations) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return findOne[model.Conversation](ctx, r.convs, bson.M{"_id": id})
}

func (r *mongoConversations) ListForUser(ctx context.Context, userID string) ([]*model.Conversation, error) {
	return findMany[model.Conversation](ctx, r.convs, bson.M{"participants": userID},
		options.Find().SetSort(bson.D{{Key: "lastMessageAt", Value: -1}, {Key: "createdAt", Value: -1}}))
}

func (r *mongoConversations) AddMessage(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = NewID()
	}
	if _, err := r.msgs.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("insert message: %w", mapErr(err))
	}
	_, err := r.convs.UpdateOne(ctx, bson.M{"_id": msg.ConversationID}, bson.M{"$set": bson.M{
		"lastMessage":   msg.Content,
		"lastMessageAt": msg.CreatedAt,
	}})
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (r *mongoConversations) Messages(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findMany[model.Message](ctx, r.msgs, bson.M{"conversationId": conversationID}, opts)
}

func (r *mongoConversations) MarkRead(ctx context.Context, conversationID, userID string) (int64, error) {
	res, err := r.msgs.UpdateMany(ctx, bson.M{
		"conversationId": conversationID,
		"receiverId":     userID,
		"read":           false,
	}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *mongoConversations) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	return r.msgs.CountDocuments(ctx, bson.M{
		"conversationId": conversationID,
		"receiverId":     userID,
		"read":           false,
	})
}
