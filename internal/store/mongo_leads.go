package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"knot-backend/internal/model"
)

type mongoLeads struct {
	col *mongo.Collection
}

func (r *mongoLeads) Create(ctx context.Context, lead *model.Lead) error {
	if lead.ID == "" {
		lead.ID = NewID()
	}
	if _, err := r.col.InsertOne(ctx, lead); err != nil {
		return fmt.Errorf("insert lead: %w", mapErr(err))
	}
	return nil
}

func (r *mongoLeads) Get(ctx context.Context, id string) (*model.Lead, error) {
	return findOne[model.Lead](ctx, r.col, bson.M{"_id": id})
}

func (r *mongoLeads) FindByEmail(ctx context.Context, email string) (*model.Lead, error) {
	return findOne[model.Lead](ctx, r.col, bson.M{"email": email})
}

func (r *mongoLeads) FindByEmailOrMigrationID(ctx context.Context, email, migrationID string) (*model.Lead, error) {
	return findOne[model.Lead](ctx, r.col, emailOrMigration(email, migrationID))
}

func (r *mongoLeads) List(ctx context.Context, f model.LeadFilter) ([]*model.Lead, int64, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Search != "" {
		rx := bson.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": rx},
			bson.M{"email": rx},
			bson.M{"phone": rx},
		}
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}
	leads, err := findMany[model.Lead](ctx, r.col, filter,
		pageOptions(f.Page, f.Limit, bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

func (r *mongoLeads) Update(ctx context.Context, id string, upd model.LeadUpdate) (*model.Lead, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.AssignedTo != nil {
		set["assignedTo"] = *upd.AssignedTo
	}
	if upd.FollowUpDate != nil {
		set["followUpDate"] = *upd.FollowUpDate
	}
	if upd.IsActive != nil {
		set["isActive"] = *upd.IsActive
	}
	if upd.BiodataKey != nil {
		set["biodataKey"] = *upd.BiodataKey
	}
	if upd.LeadScore != nil {
		set["leadScore"] = *upd.LeadScore
	}

	update := bson.M{"$set": set}
	if upd.FollowUpDate != nil {
		// a new follow-up date re-arms the reminder
		update["$unset"] = bson.M{"followUpNotifiedAt": "", "followUpAttempts": "", "followUpRetryAt": ""}
	}
	return r.findAndUpdate(ctx, id, update)
}

func (r *mongoLeads) AddNote(ctx context.Context, id string, note model.LeadNote) (*model.Lead, error) {
	return r.findAndUpdate(ctx, id, bson.M{
		"$push": bson.M{"notes": note},
		"$set":  bson.M{"updatedAt": note.AddedAt},
	})
}

func (r *mongoLeads) findAndUpdate(ctx context.Context, id string, update bson.M) (*model.Lead, error) {
	var out model.Lead
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&out)
	if err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (r *mongoLeads) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoLeads) DueFollowUps(ctx context.Context, now time.Time, limit int) ([]*model.Lead, error) {
	filter := bson.M{
		"followUpDate":       bson.M{"$lte": now},
		"followUpNotifiedAt": bson.M{"$exists": false},
		"isActive":           true,
		"status":             bson.M{"$ne": model.LeadStatusDeleted},
		"$or": bson.A{
			bson.M{"followUpRetryAt": bson.M{"$exists": false}},
			bson.M{"followUpRetryAt": bson.M{"$lte": now}},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "followUpDate", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findMany[model.Lead](ctx, r.col, filter, opts)
}

func (r *mongoLeads) MarkFollowUpNotified(ctx context.Context, id string, at time.Time) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"followUpNotifiedAt": at}})
	if err != nil {
		return fmt.Errorf("mark follow-up: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoLeads) DeferFollowUp(ctx context.Context, id string, attempts int, retryAt time.Time) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"followUpAttempts": attempts,
		"followUpRetryAt":  retryAt,
	}})
	if err != nil {
		return fmt.Errorf("defer follow-up: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoLeads) CountMigrated(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, migratedFilter)
}

func emailOrMigration(email, migrationID string) bson.M {
	or := bson.A{bson.M{"email": email}}
	if migrationID != "" {
		or = append(or, bson.M{"migrationId": migrationID})
	}
	return bson.M{"$or": or}
}
