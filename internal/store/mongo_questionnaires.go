package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"knot-backend/internal/model"
)

type mongoQuestionnaires struct {
	col *mongo.Collection
}

var latestFirst = bson.D{{Key: "updatedAt", Value: -1}}

func (r *mongoQuestionnaires) Save(ctx context.Context, resp *model.QuestionnaireResponse) error {
	if resp.ID == "" {
		resp.ID = NewID()
	}
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": resp.ID}, resp, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save questionnaire: %w", mapErr(err))
	}
	return nil
}

func (r *mongoQuestionnaires) Get(ctx context.Context, id string) (*model.QuestionnaireResponse, error) {
	return findOne[model.QuestionnaireResponse](ctx, r.col, bson.M{"_id": id})
}

func (r *mongoQuestionnaires) latest(ctx context.Context, filter bson.M) (*model.QuestionnaireResponse, error) {
	return findOne[model.QuestionnaireResponse](ctx, r.col, filter, options.FindOne().SetSort(latestFirst))
}

func (r *mongoQuestionnaires) FindByUser(ctx context.Context, userID string) (*model.QuestionnaireResponse, error) {
	return r.latest(ctx, bson.M{"userId": userID})
}

func (r *mongoQuestionnaires) FindByLead(ctx context.Context, leadID string) (*model.QuestionnaireResponse, error) {
	return r.latest(ctx, bson.M{"leadId": leadID})
}

func (r *mongoQuestionnaires) FindByEmail(ctx context.Context, email string) (*model.QuestionnaireResponse, error) {
	return r.latest(ctx, bson.M{"userEmail": email})
}

func (r *mongoQuestionnaires) FindByMigrationID(ctx context.Context, migrationID string) (*model.QuestionnaireResponse, error) {
	return findOne[model.QuestionnaireResponse](ctx, r.col, bson.M{"migrationId": migrationID})
}

func (r *mongoQuestionnaires) List(ctx context.Context, page, limit int) ([]*model.QuestionnaireResponse, int64, error) {
	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count questionnaires: %w", err)
	}
	out, err := findMany[model.QuestionnaireResponse](ctx, r.col, bson.M{}, pageOptions(page, limit, latestFirst))
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *mongoQuestionnaires) ListComplete(ctx context.Context) ([]*model.QuestionnaireResponse, error) {
	return findMany[model.QuestionnaireResponse](ctx, r.col, bson.M{"isComplete": true},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (r *mongoQuestionnaires) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete questionnaire: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoQuestionnaires) CountMigrated(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, migratedFilter)
}
