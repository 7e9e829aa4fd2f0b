package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"knot-backend/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

// NewID returns a fresh hex ObjectID, used as the string _id of every
// record so the memory and Mongo drivers agree on id shape.
func NewID() string {
	return bson.NewObjectID().Hex()
}

type LeadRepository interface {
	Create(ctx context.Context, lead *model.Lead) error
	Get(ctx context.Context, id string) (*model.Lead, error)
	FindByEmail(ctx context.Context, email string) (*model.Lead, error)
	FindByEmailOrMigrationID(ctx context.Context, email, migrationID string) (*model.Lead, error)
	List(ctx context.Context, f model.LeadFilter) ([]*model.Lead, int64, error)
	Update(ctx context.Context, id string, upd model.LeadUpdate) (*model.Lead, error)
	AddNote(ctx context.Context, id string, note model.LeadNote) (*model.Lead, error)
	Delete(ctx context.Context, id string) error
	DueFollowUps(ctx context.Context, now time.Time, limit int) ([]*model.Lead, error)
	MarkFollowUpNotified(ctx context.Context, id string, at time.Time) error
	// DeferFollowUp records a failed reminder; the lead is not due again
	// before retryAt.
	DeferFollowUp(ctx context.Context, id string, attempts int, retryAt time.Time) error
	CountMigrated(ctx context.Context) (int64, error)
}

type QuestionnaireRepository interface {
	// Save inserts or replaces the response with the same id.
	Save(ctx context.Context, resp *model.QuestionnaireResponse) error
	Get(ctx context.Context, id string) (*model.QuestionnaireResponse, error)
	FindByUser(ctx context.Context, userID string) (*model.QuestionnaireResponse, error)
	FindByLead(ctx context.Context, leadID string) (*model.QuestionnaireResponse, error)
	FindByEmail(ctx context.Context, email string) (*model.QuestionnaireResponse, error)
	FindByMigrationID(ctx context.Context, migrationID string) (*model.QuestionnaireResponse, error)
	List(ctx context.Context, page, limit int) ([]*model.QuestionnaireResponse, int64, error)
	ListComplete(ctx context.Context) ([]*model.QuestionnaireResponse, error)
	Delete(ctx context.Context, id string) error
	CountMigrated(ctx context.Context) (int64, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	Get(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByEmailOrMigrationID(ctx context.Context, email, migrationID string) (*model.User, error)
	FindByStripeCustomer(ctx context.Context, customerID string) (*model.User, error)
	Update(ctx context.Context, u *model.User) error
	List(ctx context.Context, page, limit int) ([]*model.User, int64, error)
	// ListMatchable returns active users that have a compatibility profile.
	ListMatchable(ctx context.Context) ([]*model.User, error)
	CountMigrated(ctx context.Context) (int64, error)
}

type AdminDataRepository interface {
	// Upsert writes data under key and reports whether the key was new.
	Upsert(ctx context.Context, key string, data any, migrated bool) (*model.AdminData, bool, error)
	Get(ctx context.Context, key string) (*model.AdminData, error)
	CountMigrated(ctx context.Context) (int64, error)
}

type ConversationRepository interface {
	GetOrCreate(ctx context.Context, a, b string) (*model.Conversation, error)
	Get(ctx context.Context, id string) (*model.Conversation, error)
	// ListForUser is ordered by most recent activity first.
	ListForUser(ctx context.Context, userID string) ([]*model.Conversation, error)
	AddMessage(ctx context.Context, msg *model.Message) error
	// Messages is ordered oldest first.
	Messages(ctx context.Context, conversationID string, limit int) ([]*model.Message, error)
	MarkRead(ctx context.Context, conversationID, userID string) (int64, error)
	UnreadCount(ctx context.Context, conversationID, userID string) (int64, error)
}

type ContactRepository interface {
	Create(ctx context.Context, sub *model.ContactSubmission) error
	Recent(ctx context.Context, limit int) ([]*model.ContactSubmission, error)
	Count(ctx context.Context) (int64, error)
}

type TokenRepository interface {
	SaveRefresh(ctx context.Context, t *model.RefreshToken) error
	GetRefresh(ctx context.Context, token string) (*model.RefreshToken, error)
	DeleteRefresh(ctx context.Context, token string) error
	DeleteUserRefresh(ctx context.Context, userID string) error
	SaveReset(ctx context.Context, r *model.PasswordReset) error
	GetReset(ctx context.Context, tokenHash string) (*model.PasswordReset, error)
	MarkResetUsed(ctx context.Context, tokenHash string, at time.Time) error
}

// Repositories bundles every collection the service talks to.
type Repositories struct {
	Leads          LeadRepository
	Questionnaires QuestionnaireRepository
	Users          UserRepository
	AdminData      AdminDataRepository
	Conversations  ConversationRepository
	Contacts       ContactRepository
	Tokens         TokenRepository
}
