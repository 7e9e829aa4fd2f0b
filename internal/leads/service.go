// Package leads captures prospective members before they register and
// gives admins a small CRM over them.
package leads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"knot-backend/internal/api"
	"knot-backend/internal/instrument"
	"knot-backend/internal/model"
	"knot-backend/internal/questionnaire"
	"knot-backend/internal/storage"
	"knot-backend/internal/store"
	"knot-backend/internal/validate"
)

// Notifier receives lead lifecycle events for external systems.
type Notifier interface {
	Notify(event string, record map[string]any)
}

// MatchFinder ranks questionnaire matches for a lead.
type MatchFinder interface {
	MatchesForLead(ctx context.Context, leadID string, minScore, limit int) ([]questionnaire.Match, error)
}

type Service struct {
	repo    store.LeadRepository
	scorer  *Scorer
	files   storage.Driver
	matches MatchFinder
	notify  Notifier
	events  instrument.Recorder
	metrics *instrument.Metrics
	log     *zap.Logger
	now     func() time.Time
}

type Deps struct {
	Scorer   *Scorer
	Files    storage.Driver
	Matches  MatchFinder
	Notifier Notifier
	Events   instrument.Recorder
	Metrics  *instrument.Metrics
}

func NewService(repo store.LeadRepository, deps Deps, log *zap.Logger) *Service {
	if deps.Events == nil {
		deps.Events = instrument.NoopRecorder{}
	}
	if deps.Scorer == nil {
		deps.Scorer = &Scorer{}
	}
	return &Service{
		repo:    repo,
		scorer:  deps.Scorer,
		files:   deps.Files,
		matches: deps.Matches,
		notify:  deps.Notifier,
		events:  deps.Events,
		metrics: deps.Metrics,
		log:     log,
		now:     time.Now,
	}
}

// CreateInput is the public lead signup form.
type CreateInput struct {
	Name    string         `json:"name"`
	Email   string         `json:"email"`
	Phone   string         `json:"phone"`
	Answers map[string]any `json:"answers"`
	Source  string         `json:"source"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Lead, error) {
	var errs validate.Errors
	validate.Name(&errs, "name", in.Name)
	validate.Email(&errs, "email", in.Email)
	validate.Phone(&errs, "phone", in.Phone)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	emailAddr := validate.NormalizeEmail(in.Email)
	if _, err := s.repo.FindByEmail(ctx, emailAddr); err == nil {
		return nil, api.ConflictError("Lead with this email already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check lead email: %w", err)
	}

	now := s.now().UTC()
	lead := &model.Lead{
		ID:        store.NewID(),
		Name:      strings.TrimSpace(in.Name),
		Email:     emailAddr,
		Phone:     strings.TrimSpace(in.Phone),
		Answers:   in.Answers,
		Status:    model.LeadStatusNew,
		Source:    strings.TrimSpace(in.Source),
		Notes:     []model.LeadNote{},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if lead.Answers == nil {
		lead.Answers = map[string]any{}
	}
	if lead.Source == "" {
		lead.Source = model.DefaultLeadSource
	}
	lead.LeadScore, _ = s.scorer.Score(lead)

	if err := s.repo.Create(ctx, lead); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, api.ConflictError("Lead with this email already exists")
		}
		return nil, fmt.Errorf("create lead: %w", err)
	}

	s.metrics.LeadCreated()
	s.events.Record(ctx, instrument.Event{
		Type:     instrument.EventLeadCreated,
		Entity:   "lead",
		RecordID: lead.ID,
		Source:   lead.Source,
		Metadata: map[string]any{"leadScore": lead.LeadScore, "answers": len(lead.Answers)},
	})
	s.fire(instrument.EventLeadCreated, lead)
	s.log.Info("lead created", zap.String("lead_id", lead.ID), zap.Int("score", lead.LeadScore))
	return lead, nil
}

func (s *Service) fire(event string, lead *model.Lead) {
	if s.notify == nil {
		return
	}
	s.notify.Notify(event, record(lead))
}

// record flattens a lead into the map handed to webhook conditions and
// payloads.
func record(l *model.Lead) map[string]any {
	return map[string]any{
		"id":         l.ID,
		"name":       l.Name,
		"email":      l.Email,
		"phone":      l.Phone,
		"status":     l.Status,
		"source":     l.Source,
		"leadScore":  l.LeadScore,
		"answers":    l.Answers,
		"assignedTo": l.AssignedTo,
		"isActive":   l.IsActive,
		"createdAt":  l.CreatedAt,
	}
}

func (s *Service) List(ctx context.Context, f model.LeadFilter) ([]*model.Lead, int64, error) {
	if f.Status != "" && !model.ValidLeadStatus(f.Status) {
		return nil, 0, api.ValidationError([]api.ErrorDetail{{Field: "status", Rule: "enum", Message: "Unknown lead status"}})
	}
	f.Search = strings.TrimSpace(f.Search)
	leads, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	return leads, total, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Lead, error) {
	lead, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, notFound(id, err)
	}
	return lead, nil
}

func notFound(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return api.NotFoundError("Lead", id)
	}
	return fmt.Errorf("lead %s: %w", id, err)
}

func (s *Service) Update(ctx context.Context, id string, upd model.LeadUpdate) (*model.Lead, error) {
	if upd.Status != nil && !model.ValidLeadStatus(*upd.Status) {
		return nil, api.ValidationError([]api.ErrorDetail{{
			Field: "status", Rule: "enum", Message: "Status must be one of new, verified, contacted, deleted",
		}})
	}
	if upd.AssignedTo != nil {
		v := strings.TrimSpace(*upd.AssignedTo)
		upd.AssignedTo = &v
	}
	lead, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		return nil, notFound(id, err)
	}
	s.events.Record(ctx, instrument.Event{
		Type:     instrument.EventLeadUpdated,
		Entity:   "lead",
		RecordID: lead.ID,
		Metadata: map[string]any{"status": lead.Status},
	})
	s.fire(instrument.EventLeadUpdated, lead)
	return lead, nil
}

func (s *Service) Verify(ctx context.Context, id string) (*model.Lead, error) {
	status := model.LeadStatusVerified
	return s.Update(ctx, id, model.LeadUpdate{Status: &status})
}

func (s *Service) AddNote(ctx context.Context, id, message, addedBy string) (*model.Lead, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, api.ValidationError([]api.ErrorDetail{{Field: "message", Rule: "required", Message: "Note message is required"}})
	}
	if addedBy == "" {
		addedBy = "admin"
	}
	lead, err := s.repo.AddNote(ctx, id, model.LeadNote{Message: message, AddedBy: addedBy, AddedAt: s.now().UTC()})
	if err != nil {
		return nil, notFound(id, err)
	}
	return lead, nil
}

// Delete removes the lead and its biodata file.
func (s *Service) Delete(ctx context.Context, id string) error {
	lead, err := s.repo.Get(ctx, id)
	if err != nil {
		return notFound(id, err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFound(id, err)
	}
	if lead.BiodataKey != "" && s.files != nil {
		if err := s.files.Delete(ctx, lead.BiodataKey); err != nil {
			s.log.Warn("delete lead biodata", zap.String("lead_id", id), zap.Error(err))
		}
	}
	s.events.Record(ctx, instrument.Event{Type: instrument.EventLeadDeleted, Entity: "lead", RecordID: id})
	s.fire(instrument.EventLeadDeleted, lead)
	return nil
}

// AttachBiodata stores an uploaded biodata document, replaces any earlier
// one and re-scores the lead.
func (s *Service) AttachBiodata(ctx context.Context, id, filename string, r io.Reader) (*model.Lead, error) {
	contentType, ok := storage.ContentType(storage.BiodataTypes, filename)
	if !ok {
		return nil, api.ValidationError([]api.ErrorDetail{{
			Field: "file", Rule: "type", Message: "Biodata must be a PDF, Word document or image",
		}})
	}
	lead, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, notFound(id, err)
	}

	key := storage.NewKey(storage.KindBiodata, lead.ID, filename)
	if err := s.files.Save(ctx, key, contentType, r); err != nil {
		return nil, fmt.Errorf("save biodata: %w", err)
	}

	previous := lead.BiodataKey
	lead.BiodataKey = key
	score, _ := s.scorer.Score(lead)
	updated, err := s.repo.Update(ctx, id, model.LeadUpdate{BiodataKey: &key, LeadScore: &score})
	if err != nil {
		_ = s.files.Delete(ctx, key)
		return nil, notFound(id, err)
	}
	if previous != "" && previous != key {
		if err := s.files.Delete(ctx, previous); err != nil {
			s.log.Warn("delete replaced biodata", zap.String("key", previous), zap.Error(err))
		}
	}
	return updated, nil
}

// OpenBiodata returns the stored biodata document of a lead.
func (s *Service) OpenBiodata(ctx context.Context, id string) (io.ReadCloser, string, error) {
	lead, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, "", notFound(id, err)
	}
	if lead.BiodataKey == "" {
		return nil, "", api.NewAppError("NOT_FOUND", 404, "Lead has no biodata")
	}
	rc, err := s.files.Open(ctx, lead.BiodataKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", api.NewAppError("NOT_FOUND", 404, "Lead has no biodata")
	}
	if err != nil {
		return nil, "", fmt.Errorf("open biodata: %w", err)
	}
	ct, _ := storage.ContentType(storage.BiodataTypes, lead.BiodataKey)
	return rc, ct, nil
}

// Explain re-runs the scoring rules against a stored lead.
func (s *Service) Explain(ctx context.Context, id string) (int, []RuleResult, error) {
	lead, err := s.Get(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	score, results := s.scorer.Score(lead)
	return score, results, nil
}

func (s *Service) Matches(ctx context.Context, id string, minScore, limit int) ([]questionnaire.Match, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.matches.MatchesForLead(ctx, id, minScore, limit)
}
