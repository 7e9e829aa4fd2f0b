package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func uniqueWhenPresent(field string) mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{{Key: field, Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{field: bson.M{"$exists": true}}),
	}
}

func asc(fields ...string) mongo.IndexModel {
	keys := bson.D{}
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	return mongo.IndexModel{Keys: keys}
}

func expiresAt() mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
}

var collectionIndexes = map[string][]mongo.IndexModel{
	colLeads: {
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		uniqueWhenPresent("migrationId"),
		asc("status", "createdAt"),
		asc("followUpDate"),
	},
	colQuestionnaires: {
		uniqueWhenPresent("migrationId"),
		asc("userId"),
		asc("leadId"),
		asc("userEmail"),
		asc("isComplete"),
	},
	colUsers: {
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		uniqueWhenPresent("migrationId"),
		asc("subscription.stripeCustomerId"),
	},
	colConversations: {
		asc("participants", "lastMessageAt"),
	},
	colMessages: {
		asc("conversationId", "createdAt"),
		asc("conversationId", "receiverId", "read"),
	},
	colContacts: {
		asc("submittedAt"),
	},
	colRefreshTokens: {
		asc("userId"),
		expiresAt(),
	},
	colPasswordResets: {
		expiresAt(),
	},
}

// EnsureIndexes creates the unique, lookup and TTL indexes. It is safe to
// run on every start.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	for col, models := range collectionIndexes {
		if _, err := m.DB.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", col, err)
		}
	}
	return nil
}
