package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"knot-backend/internal/api"
	"knot-backend/internal/instrument"
	"knot-backend/internal/model"
	"knot-backend/internal/store"
)

// Service owns questionnaire responses and questionnaire-based matching.
type Service struct {
	repo    store.QuestionnaireRepository
	leads   store.LeadRepository
	users   store.UserRepository
	catalog *Catalog
	events  instrument.Recorder
	metrics *instrument.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewService(repos *store.Repositories, catalog *Catalog, events instrument.Recorder, metrics *instrument.Metrics, log *zap.Logger) *Service {
	if events == nil {
		events = instrument.NoopRecorder{}
	}
	return &Service{
		repo:    repos.Questionnaires,
		leads:   repos.Leads,
		users:   repos.Users,
		catalog: catalog,
		events:  events,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

func (s *Service) Catalog() *Catalog { return s.catalog }

// Save inserts or replaces a response. Missing respondent details are
// filled in from the referenced lead or user, and complete responses are
// checked against the catalog.
func (s *Service) Save(ctx context.Context, resp *model.QuestionnaireResponse) (*model.QuestionnaireResponse, error) {
	if resp.Responses == nil {
		resp.Responses = map[string]any{}
	}
	if resp.UserID == "" && resp.LeadID == "" && strings.TrimSpace(resp.UserEmail) == "" {
		return nil, api.ValidationError([]api.ErrorDetail{{
			Field: "userId", Rule: "required", Message: "A userId, leadId or userEmail is required",
		}})
	}

	if resp.IsComplete {
		if issues := s.catalog.ValidateComplete(resp.Responses); len(issues) > 0 {
			details := make([]api.ErrorDetail, len(issues))
			for i, is := range issues {
				details[i] = api.ErrorDetail{Field: "responses." + is.QuestionID, Rule: is.Rule, Message: is.Message}
			}
			return nil, api.ValidationError(details)
		}
	}

	now := s.now().UTC()
	wasComplete := false
	if resp.ID != "" {
		existing, err := s.repo.Get(ctx, resp.ID)
		switch {
		case err == nil:
			resp.CreatedAt = existing.CreatedAt
			wasComplete = existing.IsComplete
			if resp.CompletedAt == nil {
				resp.CompletedAt = existing.CompletedAt
			}
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("load questionnaire %s: %w", resp.ID, err)
		}
	} else {
		resp.ID = store.NewID()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = now
	}
	resp.UpdatedAt = now
	resp.UserEmail = strings.ToLower(strings.TrimSpace(resp.UserEmail))

	s.populateRespondent(ctx, resp)

	if resp.IsComplete && resp.CompletedAt == nil {
		resp.CompletedAt = &now
	}

	if err := s.repo.Save(ctx, resp); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, api.ConflictError("Questionnaire response already exists")
		}
		return nil, fmt.Errorf("save questionnaire: %w", err)
	}

	s.events.Record(ctx, instrument.Event{
		Type:     instrument.EventQuestionnaireSaved,
		Entity:   "questionnaire",
		RecordID: resp.ID,
		UserID:   resp.UserID,
		Source:   resp.Source,
		Metadata: map[string]any{"answers": len(resp.Responses), "userType": resp.UserType},
	})
	if resp.IsComplete && !wasComplete {
		s.events.Record(ctx, instrument.Event{
			Type:     instrument.EventQuestionnaireCompleted,
			Entity:   "questionnaire",
			RecordID: resp.ID,
			UserID:   resp.UserID,
			Metadata: map[string]any{"completionTime": resp.CompletionTime},
		})
		s.markUserComplete(ctx, resp.UserID)
	}
	return resp, nil
}

func (s *Service) populateRespondent(ctx context.Context, resp *model.QuestionnaireResponse) {
	if resp.UserName != "" && resp.UserEmail != "" {
		return
	}
	switch {
	case resp.LeadID != "":
		lead, err := s.leads.Get(ctx, resp.LeadID)
		if err != nil {
			s.logLookup("lead", resp.LeadID, err)
			return
		}
		resp.UserName, resp.UserEmail, resp.UserPhone = lead.Name, lead.Email, lead.Phone
		resp.UserType = model.RespondentLead
	case resp.UserID != "":
		user, err := s.users.Get(ctx, resp.UserID)
		if err != nil {
			s.logLookup("user", resp.UserID, err)
			return
		}
		resp.UserName, resp.UserEmail, resp.UserPhone = user.Name, user.Email, user.Phone
		resp.UserType = model.RespondentUser
	}
}

func (s *Service) logLookup(kind, id string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	s.log.Warn("respondent lookup failed", zap.String("kind", kind), zap.String("id", id), zap.Error(err))
}

func (s *Service) markUserComplete(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		s.logLookup("user", userID, err)
		return
	}
	if user.QuestionnaireComplete {
		return
	}
	user.QuestionnaireComplete = true
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		s.log.Warn("mark questionnaire complete", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) Get(ctx context.Context, id string) (*model.QuestionnaireResponse, error) {
	resp, err := s.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, api.NotFoundError("questionnaire response", id)
	}
	return resp, err
}

// ForUser returns the caller's latest response.
func (s *Service) ForUser(ctx context.Context, userID string) (*model.QuestionnaireResponse, error) {
	resp, err := s.repo.FindByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, api.NotFoundError("questionnaire response for user", userID)
	}
	return resp, err
}

func (s *Service) ForLead(ctx context.Context, leadID string) (*model.QuestionnaireResponse, error) {
	resp, err := s.repo.FindByLead(ctx, leadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, api.NotFoundError("questionnaire response for lead", leadID)
	}
	return resp, err
}

func (s *Service) List(ctx context.Context, page, limit int) ([]*model.QuestionnaireResponse, int64, error) {
	return s.repo.List(ctx, page, limit)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return api.NotFoundError("questionnaire response", id)
	}
	return err
}

// LinkToUser attaches an existing response to a newly registered user. It
// looks the response up by lead id first, then by email (directly or via
// the lead captured with that email). It reports whether the linked
// response is complete.
func (s *Service) LinkToUser(ctx context.Context, user *model.User, leadID string) (bool, error) {
	resp, err := s.findForLink(ctx, user.Email, leadID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	resp.UserID = user.ID
	resp.UserType = model.RespondentUser
	if resp.UserName == "" {
		resp.UserName = user.Name
	}
	if resp.UserEmail == "" {
		resp.UserEmail = user.Email
	}
	resp.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, resp); err != nil {
		return false, fmt.Errorf("link questionnaire %s: %w", resp.ID, err)
	}
	return resp.IsComplete, nil
}

func (s *Service) findForLink(ctx context.Context, email, leadID string) (*model.QuestionnaireResponse, error) {
	if leadID != "" {
		resp, err := s.repo.FindByLead(ctx, leadID)
		if !errors.Is(err, store.ErrNotFound) {
			return resp, err
		}
	}
	resp, err := s.repo.FindByEmail(ctx, email)
	if !errors.Is(err, store.ErrNotFound) {
		return resp, err
	}
	lead, err := s.leads.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByLead(ctx, lead.ID)
}

// MatchesFor ranks every complete response against resp. An incomplete
// or missing response has no matches.
func (s *Service) MatchesFor(ctx context.Context, resp *model.QuestionnaireResponse, minScore, limit int) ([]Match, error) {
	if resp == nil || !resp.IsComplete {
		return []Match{}, nil
	}
	all, err := s.repo.ListComplete(ctx)
	if err != nil {
		return nil, fmt.Errorf("list complete questionnaires: %w", err)
	}
	s.metrics.MatchRun("questionnaire")
	return s.catalog.FindCompatible(resp, all, minScore, limit), nil
}

func (s *Service) MatchesForUser(ctx context.Context, userID string, minScore, limit int) ([]Match, error) {
	resp, err := s.repo.FindByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return []Match{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.MatchesFor(ctx, resp, minScore, limit)
}

func (s *Service) MatchesForLead(ctx context.Context, leadID string, minScore, limit int) ([]Match, error) {
	resp, err := s.repo.FindByLead(ctx, leadID)
	if errors.Is(err, store.ErrNotFound) {
		return []Match{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.MatchesFor(ctx, resp, minScore, limit)
}
