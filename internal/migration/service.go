// Package migration moves data a browser kept in local storage into the
// primary store. Every endpoint is idempotent so an interrupted run can
// simply be repeated.
package migration

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"knot-backend/internal/api"
	"knot-backend/internal/instrument"
	"knot-backend/internal/model"
	"knot-backend/internal/store"
	"knot-backend/internal/validate"
)

const (
	KindLead          = "lead"
	KindQuestionnaire = "questionnaire"
	KindUser          = "user"
	KindAdminData     = "admin_data"

	outcomeCreated  = "created"
	outcomeExisting = "existing"
	outcomeFailed   = "failed"
)

// Result reports what a migration call did with one record.
type Result[T any] struct {
	Record  T
	Created bool
}

type Service struct {
	repos   *store.Repositories
	events  instrument.Recorder
	metrics *instrument.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewService(repos *store.Repositories, events instrument.Recorder, metrics *instrument.Metrics, log *zap.Logger) *Service {
	return &Service{repos: repos, events: events, metrics: metrics, log: log, now: time.Now}
}

// LeadRecord is a lead as the browser stored it.
type LeadRecord struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	Answers      map[string]any `json:"answers"`
	Status       string         `json:"status"`
	Source       string         `json:"source"`
	LeadScore    int            `json:"leadScore"`
	Notes        []NoteRecord   `json:"notes"`
	AssignedTo   string         `json:"assignedTo"`
	FollowUpDate Timestamp      `json:"followUpDate"`
	IsActive     *bool          `json:"isActive"`
	CreatedAt    Timestamp      `json:"createdAt"`
	UpdatedAt    Timestamp      `json:"updatedAt"`
}

type NoteRecord struct {
	Message string    `json:"message"`
	AddedBy string    `json:"addedBy"`
	AddedAt Timestamp `json:"addedAt"`
}

func (s *Service) MigrateLead(ctx context.Context, rec LeadRecord) (Result[*model.Lead], error) {
	var errs validate.Errors
	validate.Required(&errs, "name", rec.Name, "Name is required")
	validate.Required(&errs, "email", rec.Email, "Email is required")
	if err := errs.Err(); err != nil {
		s.metrics.Migration(KindLead, outcomeFailed)
		return Result[*model.Lead]{}, err
	}
	email := validate.NormalizeEmail(rec.Email)

	existing, err := s.repos.Leads.FindByEmailOrMigrationID(ctx, email, rec.ID)
	if err == nil {
		s.metrics.Migration(KindLead, outcomeExisting)
		return Result[*model.Lead]{Record: existing}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Result[*model.Lead]{}, fmt.Errorf("find lead: %w", err)
	}

	now := s.now()
	lead := &model.Lead{
		Name:                     strings.TrimSpace(rec.Name),
		Email:                    email,
		Phone:                    strings.TrimSpace(rec.Phone),
		Answers:                  rec.Answers,
		Status:                   rec.Status,
		Source:                   rec.Source,
		LeadScore:                rec.LeadScore,
		AssignedTo:               rec.AssignedTo,
		FollowUpDate:             rec.FollowUpDate.Ptr(),
		IsActive:                 rec.IsActive == nil || *rec.IsActive,
		MigrationID:              rec.ID,
		MigratedFromLocalStorage: true,
		CreatedAt:                rec.CreatedAt.Or(now),
		UpdatedAt:                rec.UpdatedAt.Or(now),
	}
	if lead.Answers == nil {
		lead.Answers = map[string]any{}
	}
	if !model.ValidLeadStatus(lead.Status) {
		lead.Status = model.LeadStatusNew
	}
	if lead.Source == "" {
		lead.Source = model.DefaultLeadSource
	}
	for _, n := range rec.Notes {
		lead.Notes = append(lead.Notes, model.LeadNote{
			Message: n.Message, AddedBy: n.AddedBy, AddedAt: n.AddedAt.Or(now),
		})
	}

	if err := s.repos.Leads.Create(ctx, lead); err != nil {
		s.metrics.Migration(KindLead, outcomeFailed)
		if errors.Is(err, store.ErrDuplicate) {
			return Result[*model.Lead]{}, api.ConflictError("Lead with this email already exists")
		}
		return Result[*model.Lead]{}, fmt.Errorf("create lead: %w", err)
	}
	s.metrics.Migration(KindLead, outcomeCreated)
	s.record(ctx, instrument.EventMigrationLead, "lead", lead.ID, map[string]any{"migrationId": rec.ID})
	return Result[*model.Lead]{Record: lead, Created: true}, nil
}

// QuestionnaireRecord is a questionnaire response as the browser stored it.
type QuestionnaireRecord struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	LeadID         string         `json:"leadId"`
	UserName       string         `json:"userName"`
	UserEmail      string         `json:"userEmail"`
	UserPhone      string         `json:"userPhone"`
	UserType       string         `json:"userType"`
	Responses      map[string]any `json:"responses"`
	IsComplete     bool           `json:"isComplete"`
	CompletedAt    Timestamp      `json:"completedAt"`
	Source         string         `json:"source"`
	CompletionTime float64        `json:"completionTime"`
	CreatedAt      Timestamp      `json:"createdAt"`
	UpdatedAt      Timestamp      `json:"updatedAt"`
}

func (s *Service) MigrateQuestionnaire(ctx context.Context, rec QuestionnaireRecord) (Result[*model.QuestionnaireResponse], error) {
	var errs validate.Errors
	validate.Required(&errs, "id", rec.ID, "id is required")
	if err := errs.Err(); err != nil {
		s.metrics.Migration(KindQuestionnaire, outcomeFailed)
		return Result[*model.QuestionnaireResponse]{}, err
	}

	existing, err := s.repos.Questionnaires.FindByMigrationID(ctx, rec.ID)
	if err == nil {
		s.metrics.Migration(KindQuestionnaire, outcomeExisting)
		return Result[*model.QuestionnaireResponse]{Record: existing}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Result[*model.QuestionnaireResponse]{}, fmt.Errorf("find questionnaire: %w", err)
	}

	now := s.now()
	resp := &model.QuestionnaireResponse{
		ID:                       store.NewID(),
		UserID:                   rec.UserID,
		LeadID:                   rec.LeadID,
		UserName:                 rec.UserName,
		UserEmail:                validate.NormalizeEmail(rec.UserEmail),
		UserPhone:                rec.UserPhone,
		UserType:                 rec.UserType,
		Responses:                rec.Responses,
		IsComplete:               rec.IsComplete,
		CompletedAt:              rec.CompletedAt.Ptr(),
		Source:                   rec.Source,
		CompletionTime:           rec.CompletionTime,
		MigrationID:              rec.ID,
		MigratedFromLocalStorage: true,
		CreatedAt:                rec.CreatedAt.Or(now),
		UpdatedAt:                rec.UpdatedAt.Or(now),
	}
	if resp.Responses == nil {
		resp.Responses = map[string]any{}
	}
	if resp.UserType == "" {
		resp.UserType = model.RespondentLead
		if resp.UserID != "" {
			resp.UserType = model.RespondentUser
		}
	}
	if resp.Source == "" {
		resp.Source = "migration"
	}
	if resp.IsComplete && resp.CompletedAt == nil {
		resp.CompletedAt = &resp.UpdatedAt
	}

	if err := s.repos.Questionnaires.Save(ctx, resp); err != nil {
		s.metrics.Migration(KindQuestionnaire, outcomeFailed)
		return Result[*model.QuestionnaireResponse]{}, fmt.Errorf("save questionnaire: %w", err)
	}
	s.metrics.Migration(KindQuestionnaire, outcomeCreated)
	s.record(ctx, instrument.EventMigrationQuestionnaire, "questionnaire", resp.ID, map[string]any{"migrationId": rec.ID})
	return Result[*model.QuestionnaireResponse]{Record: resp, Created: true}, nil
}

// UserRecord is an account the browser kept locally. Any password it
// carried is ignored.
type UserRecord struct {
	ID                    string              `json:"id"`
	Name                  string              `json:"name"`
	Email                 string              `json:"email"`
	Phone                 string              `json:"phone"`
	Age                   int                 `json:"age"`
	Location              string              `json:"location"`
	Education             string              `json:"education"`
	Profession            string              `json:"profession"`
	Bio                   string              `json:"bio"`
	Interests             []string            `json:"interests"`
	Values                string              `json:"values"`
	PartnerPreferences    string              `json:"partnerPreferences"`
	CommunicationStyle    string              `json:"communicationStyle"`
	QuestionnaireComplete bool                `json:"questionnaireComplete"`
	IsVerified            bool                `json:"isVerified"`
	ProfilePicture        string              `json:"profilePicture"`
	Subscription          *SubscriptionRecord `json:"subscription"`
	CreatedAt             Timestamp           `json:"createdAt"`
}

// legacyMonthlyPlan is the only paid plan the browser app knew about.
const legacyMonthlyPlan = "monthly"

// SubscriptionRecord is the plan state the browser kept: a trial with its
// window, a paid plan with a start date, or a null plan.
type SubscriptionRecord struct {
	Plan           string    `json:"plan"`
	TrialStartedAt Timestamp `json:"trialStartedAt"`
	TrialEndsAt    Timestamp `json:"trialEndsAt"`
	StartedAt      Timestamp `json:"startedAt"`
}

// toModel maps the stored plan onto a subscription. A trial whose window
// has passed is migrated as expired.
func (r *SubscriptionRecord) toModel(now time.Time) model.Subscription {
	if r == nil || r.Plan == "" {
		return model.Subscription{}
	}
	sub := model.Subscription{Plan: r.Plan, StartedAt: r.StartedAt.Ptr()}
	if r.Plan == model.PlanTrial {
		sub.TrialStartedAt = r.TrialStartedAt.Ptr()
		sub.TrialEndsAt = r.TrialEndsAt.Ptr()
		sub.Status = model.SubscriptionTrialing
		if sub.TrialEndsAt != nil && sub.TrialEndsAt.Before(now) {
			sub.Status = model.SubscriptionExpired
		}
		return sub
	}
	if r.Plan == legacyMonthlyPlan {
		sub.Interval = legacyMonthlyPlan
	}
	sub.Status = model.SubscriptionActive
	return sub
}

// SplitName breaks a full name into the first word and the rest.
func SplitName(full string) (first, last string) {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

func (s *Service) MigrateUser(ctx context.Context, rec UserRecord) (Result[*model.User], error) {
	var errs validate.Errors
	validate.Required(&errs, "email", rec.Email, "Email is required")
	if err := errs.Err(); err != nil {
		s.metrics.Migration(KindUser, outcomeFailed)
		return Result[*model.User]{}, err
	}
	email := validate.NormalizeEmail(rec.Email)

	existing, err := s.repos.Users.FindByEmailOrMigrationID(ctx, email, rec.ID)
	if err == nil {
		s.metrics.Migration(KindUser, outcomeExisting)
		return Result[*model.User]{Record: existing}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Result[*model.User]{}, fmt.Errorf("find user: %w", err)
	}

	hash, err := unusablePasswordHash()
	if err != nil {
		return Result[*model.User]{}, err
	}

	first, last := SplitName(rec.Name)
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	now := s.now()
	u := &model.User{
		Email:                    email,
		Name:                     name,
		Phone:                    strings.TrimSpace(rec.Phone),
		Age:                      rec.Age,
		Location:                 rec.Location,
		Education:                rec.Education,
		Profession:               rec.Profession,
		Bio:                      rec.Bio,
		Interests:                rec.Interests,
		Values:                   rec.Values,
		PartnerPreferences:       rec.PartnerPreferences,
		CommunicationStyle:       rec.CommunicationStyle,
		QuestionnaireComplete:    rec.QuestionnaireComplete,
		IsVerified:               rec.IsVerified,
		ProfilePicture:           rec.ProfilePicture,
		Subscription:             rec.Subscription.toModel(now),
		Roles:                    []string{model.RoleUser},
		Active:                   true,
		PasswordHash:             hash,
		MigrationID:              rec.ID,
		MigratedFromLocalStorage: true,
		CreatedAt:                rec.CreatedAt.Or(now),
		UpdatedAt:                now,
	}
	if u.Interests == nil {
		u.Interests = []string{}
	}
	u.RefreshProfileComplete()

	if err := s.repos.Users.Create(ctx, u); err != nil {
		s.metrics.Migration(KindUser, outcomeFailed)
		if errors.Is(err, store.ErrDuplicate) {
			return Result[*model.User]{}, api.ConflictError("User with this email already exists")
		}
		return Result[*model.User]{}, fmt.Errorf("create user: %w", err)
	}
	s.metrics.Migration(KindUser, outcomeCreated)
	s.record(ctx, instrument.EventMigrationUser, "user", u.ID, map[string]any{"migrationId": rec.ID})
	return Result[*model.User]{Record: u, Created: true}, nil
}

// unusablePasswordHash hashes random bytes nobody knows, so the account
// can only be entered after a password reset.
func unusablePasswordHash() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) MigrateAdminData(ctx context.Context, key string, data any) (Result[*model.AdminData], error) {
	key = strings.TrimSpace(key)
	if key == "" {
		s.metrics.Migration(KindAdminData, outcomeFailed)
		return Result[*model.AdminData]{}, api.ValidationError([]api.ErrorDetail{
			{Field: "key", Rule: "required", Message: "key is required"},
		})
	}
	rec, isNew, err := s.repos.AdminData.Upsert(ctx, key, data, true)
	if err != nil {
		s.metrics.Migration(KindAdminData, outcomeFailed)
		return Result[*model.AdminData]{}, fmt.Errorf("upsert admin data %s: %w", key, err)
	}
	outcome := outcomeExisting
	if isNew {
		outcome = outcomeCreated
	}
	s.metrics.Migration(KindAdminData, outcome)
	s.record(ctx, instrument.EventMigrationAdminData, "admin_data", key, map[string]any{"created": isNew})
	return Result[*model.AdminData]{Record: rec, Created: isNew}, nil
}

// AdminData returns a migrated admin blob by key.
func (s *Service) AdminData(ctx context.Context, key string) (*model.AdminData, error) {
	rec, err := s.repos.AdminData.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, api.NotFoundError("admin data", key)
	}
	return rec, err
}

// Counts is the number of migrated records per kind.
type Counts struct {
	Leads          int64 `json:"leads"`
	Questionnaires int64 `json:"questionnaires"`
	Users          int64 `json:"users"`
	AdminData      int64 `json:"adminData"`
}

func (c Counts) Total() int64 {
	return c.Leads + c.Questionnaires + c.Users + c.AdminData
}

func (s *Service) Status(ctx context.Context) (Counts, error) {
	var (
		c   Counts
		err error
	)
	if c.Leads, err = s.repos.Leads.CountMigrated(ctx); err != nil {
		return c, fmt.Errorf("count leads: %w", err)
	}
	if c.Questionnaires, err = s.repos.Questionnaires.CountMigrated(ctx); err != nil {
		return c, fmt.Errorf("count questionnaires: %w", err)
	}
	if c.Users, err = s.repos.Users.CountMigrated(ctx); err != nil {
		return c, fmt.Errorf("count users: %w", err)
	}
	if c.AdminData, err = s.repos.AdminData.CountMigrated(ctx); err != nil {
		return c, fmt.Errorf("count admin data: %w", err)
	}
	return c, nil
}

func (s *Service) record(ctx context.Context, eventType, entity, recordID string, meta map[string]any) {
	s.events.Record(ctx, instrument.Event{
		Type:     eventType,
		Entity:   entity,
		RecordID: recordID,
		Source:   "migration",
		Metadata: meta,
	})
}
