package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"knot-backend/internal/model"
)

type mongoContacts struct {
	col *mongo.Collection
}

func (r *mongoContacts) Create(ctx context.Context, sub *model.ContactSubmission) error {
	if sub.ID == "" {
		sub.ID = NewID()
	}
	if _, err := r.col.InsertOne(ctx, sub); err != nil {
		return fmt.Errorf("insert contact submission: %w", mapErr(err))
	}
	return nil
}

func (r *mongoContacts) Recent(ctx context.Context, limit int) ([]*model.ContactSubmission, error) {
	opts := options.Find().SetSort(bson.D{{Key: "submittedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findMany[model.ContactSubmission](ctx, r.col, bson.M{}, opts)
}

func (r *mongoContacts) Count(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{})
}
