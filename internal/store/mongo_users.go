package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"knot-backend/internal/model"
)

type mongoUsers struct {
	col *mongo.Collection
}

func (r *mongoUsers) Create(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	if _, err := r.col.InsertOne(ctx, u); err != nil {
		return fmt.Errorf("insert user: %w", mapErr(err))
	}
	return nil
}

func (r *mongoUsers) Get(ctx context.Context, id string) (*model.User, error) {
	return findOne[model.User](ctx, r.col, bson.M{"_id": id})
}

func (r *mongoUsers) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return findOne[model.User](ctx, r.col, bson.M{"email": email})
}

func (r *mongoUsers) FindByEmailOrMigrationID(ctx context.Context, email, migrationID string) (*model.User, error) {
	return findOne[model.User](ctx, r.col, emailOrMigration(email, migrationID))
}

func (r *mongoUsers) FindByStripeCustomer(ctx context.Context, customerID string) (*model.User, error) {
	return findOne[model.User](ctx, r.col, bson.M{"subscription.stripeCustomerId": customerID})
}

func (r *mongoUsers) Update(ctx context.Context, u *model.User) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if err != nil {
		return fmt.Errorf("update user: %w", mapErr(err))
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoUsers) List(ctx context.Context, page, limit int) ([]*model.User, int64, error) {
	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	users, err := findMany[model.User](ctx, r.col, bson.M{},
		pageOptions(page, limit, bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *mongoUsers) ListMatchable(ctx context.Context) ([]*model.User, error) {
	return findMany[model.User](ctx, r.col, bson.M{
		"active":        true,
		"compatibility": bson.M{"$exists": true},
	})
}

func (r *mongoUsers) CountMigrated(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, migratedFilter)
}
