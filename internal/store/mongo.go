package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"knot-backend/internal/config"
)

const (
	colLeads          = "leads"
	colQuestionnaires = "questionnaire_responses"
	colUsers          = "users"
	colAdminData      = "admin_data"
	colConversations  = "conversations"
	colMessages       = "messages"
	colContacts       = "contact_submissions"
	colRefreshTokens  = "refresh_tokens"
	colPasswordResets = "password_resets"
)

type Mongo struct {
	Client *mongo.Client
	DB     *mongo.Database
}

func Connect(ctx context.Context, cfg config.MongoConfig) (*Mongo, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Mongo{Client: client, DB: client.Database(cfg.Database)}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

func (m *Mongo) Repositories() *Repositories {
	return &Repositories{
		Leads:          &mongoLeads{col: m.DB.Collection(colLeads)},
		Questionnaires: &mongoQuestionnaires{col: m.DB.Collection(colQuestionnaires)},
		Users:          &mongoUsers{col: m.DB.Collection(colUsers)},
		AdminData:      &mongoAdminData{col: m.DB.Collection(colAdminData)},
		Conversations: &mongoConversations{
			convs: m.DB.Collection(colConversations),
			msgs:  m.DB.Collection(colMessages),
		},
		Contacts: &mongoContacts{col: m.DB.Collection(colContacts)},
		Tokens: &mongoTokens{
			refresh: m.DB.Collection(colRefreshTokens),
			resets:  m.DB.Collection(colPasswordResets),
		},
	}
}

// mapErr translates driver errors into the store sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

func findOne[T any](ctx context.Context, col *mongo.Collection, filter any, opts ...options.Lister[options.FindOneOptions]) (*T, error) {
	var out T
	if err := col.FindOne(ctx, filter, opts...).Decode(&out); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func findMany[T any](ctx context.Context, col *mongo.Collection, filter any, opts ...options.Lister[options.FindOptions]) ([]*T, error) {
	cur, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", col.Name(), err)
	}
	out := []*T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", col.Name(), err)
	}
	return out, nil
}

func pageOptions(page, limit int, sort bson.D) *options.FindOptionsBuilder {
	if page < 1 {
		page = 1
	}
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetSkip(int64((page - 1) * limit)).SetLimit(int64(limit))
	}
	return opts
}

var migratedFilter = bson.M{"migratedFromLocalStorage": true}
