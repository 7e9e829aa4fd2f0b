package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"knot-backend/internal/model"
)

type mongoTokens struct {
	refresh *mongo.Collection
	resets  *mongo.Collection
}

func (r *mongoTokens) SaveRefresh(ctx context.Context, t *model.RefreshToken) error {
	if _, err := r.refresh.InsertOne(ctx, t); err != nil {
		return fmt.Errorf("insert refresh token: %w", mapErr(err))
	}
	return nil
}

func (r *mongoTokens) GetRefresh(ctx context.Context, token string) (*model.RefreshToken, error) {
	return findOne[model.RefreshToken](ctx, r.refresh, bson.M{"_id": token})
}

func (r *mongoTokens) DeleteRefresh(ctx context.Context, token string) error {
	_, err := r.refresh.DeleteOne(ctx, bson.M{"_id": token})
	return err
}

func (r *mongoTokens) DeleteUserRefresh(ctx context.Context, userID string) error {
	_, err := r.refresh.DeleteMany(ctx, bson.M{"userId": userID})
	return err
}

func (r *mongoTokens) SaveReset(ctx context.Context, reset *model.PasswordReset) error {
	if _, err := r.resets.InsertOne(ctx, reset); err != nil {
		return fmt.Errorf("insert password reset: %w", mapErr(err))
	}
	return nil
}

func (r *mongoTokens) GetReset(ctx context.Context, tokenHash string) (*model.PasswordReset, error) {
	return findOne[model.PasswordReset](ctx, r.resets, bson.M{"_id": tokenHash})
}

func (r *mongoTokens) MarkResetUsed(ctx context.Context, tokenHash string, at time.Time) error {
	res, err := r.resets.UpdateOne(ctx,
		bson.M{"_id": tokenHash, "usedAt": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"usedAt": at}})
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
