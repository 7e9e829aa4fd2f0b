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

type mongoAdminData struct {
	col *mongo.Collection
}

func (r *mongoAdminData) Upsert(ctx context.Context, key string, data any, migrated bool) (*model.AdminData, bool, error) {
	now := time.Now().UTC()
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": key}, bson.M{
		"$set": bson.M{
			"data":                     data,
			"migratedFromLocalStorage": migrated,
			"updatedAt":                now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return nil, false, fmt.Errorf("upsert admin data %s: %w", key, err)
	}

	rec, err := r.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return rec, res.UpsertedCount > 0, nil
}

func (r *mongoAdminData) Get(ctx context.Context, key string) (*model.AdminData, error) {
	return findOne[model.AdminData](ctx, r.col, bson.M{"_id": key})
}

func (r *mongoAdminData) CountMigrated(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, migratedFilter)
}
