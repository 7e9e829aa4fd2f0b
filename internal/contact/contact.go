// Package contact handles the public contact form.
package contact

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"knot-backend/internal/api"
	"knot-backend/internal/instrument"
	"knot-backend/internal/model"
	"knot-backend/internal/store"
	"knot-backend/internal/validate"
)

const minMessageLength = 10

var phoneMask = regexp.MustCompile(`(\d{3})\d{4}(\d{3})`)

// MaskPhone hides the middle digits of a phone number.
func MaskPhone(phone string) string {
	return phoneMask.ReplaceAllString(phone, "$1****$2")
}

// Acknowledger confirms receipt to the sender.
type Acknowledger interface {
	ContactAcknowledgement(ctx context.Context, to, name, topic, method, reference string) error
}

type Service struct {
	repo   store.ContactRepository
	ack    Acknowledger
	events instrument.Recorder
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo store.ContactRepository, ack Acknowledger, events instrument.Recorder, log *zap.Logger) *Service {
	if events == nil {
		events = instrument.NoopRecorder{}
	}
	return &Service{repo: repo, ack: ack, events: events, log: log, now: time.Now}
}

type Input struct {
	Name                   string `json:"name"`
	Email                  string `json:"email"`
	Phone                  string `json:"phone"`
	Subject                string `json:"subject"`
	Message                string `json:"message"`
	PreferredContactMethod string `json:"preferredContactMethod"`
	Source                 string `json:"source"`
}

func (s *Service) Submit(ctx context.Context, in Input) (*model.ContactSubmission, error) {
	if in.PreferredContactMethod == "" {
		in.PreferredContactMethod = "email"
	}
	var errs validate.Errors
	validate.Name(&errs, "name", in.Name)
	validate.Email(&errs, "email", in.Email)
	validate.Phone(&errs, "phone", in.Phone)
	validate.Required(&errs, "subject", in.Subject, "Subject is required")
	validate.MinLength(&errs, "message", in.Message, minMessageLength, "Message must be at least 10 characters long")
	validate.OneOf(&errs, "preferredContactMethod", in.PreferredContactMethod,
		[]string{"email", "phone"}, "Preferred contact method must be email or phone")
	if err := errs.Err(); err != nil {
		return nil, err
	}

	sub := &model.ContactSubmission{
		ID:                     store.NewID(),
		Name:                   strings.TrimSpace(in.Name),
		Email:                  validate.NormalizeEmail(in.Email),
		Phone:                  strings.TrimSpace(in.Phone),
		Subject:                strings.TrimSpace(in.Subject),
		Message:                strings.TrimSpace(in.Message),
		PreferredContactMethod: in.PreferredContactMethod,
		Source:                 strings.TrimSpace(in.Source),
		SubmittedAt:            s.now().UTC(),
	}
	if sub.Source == "" {
		sub.Source = model.DefaultContactSource
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("save contact submission: %w", err)
	}

	s.log.Info("contact form submitted",
		zap.String("submission_id", sub.ID),
		zap.String("subject", sub.Subject),
		zap.String("phone", MaskPhone(validate.NormalizePhone(sub.Phone))))
	if s.ack != nil {
		if err := s.ack.ContactAcknowledgement(ctx, sub.Email, sub.Name, sub.Subject, sub.PreferredContactMethod, sub.ID); err != nil {
			s.log.Warn("contact acknowledgement", zap.String("submission_id", sub.ID), zap.Error(err))
		}
	}
	s.events.Record(ctx, instrument.Event{
		Type:     instrument.EventContactSubmitted,
		Entity:   "contact",
		RecordID: sub.ID,
		Source:   sub.Source,
	})
	return sub, nil
}

// Recent lists the latest submissions with phone numbers masked.
func (s *Service) Recent(ctx context.Context, limit int) ([]*model.ContactSubmission, int64, error) {
	subs, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("recent contacts: %w", err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count contacts: %w", err)
	}
	for _, sub := range subs {
		sub.Phone = MaskPhone(validate.NormalizePhone(sub.Phone))
	}
	return subs, total, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Submit handles POST /api/contact.
func (h *Handler) Submit(c *fiber.Ctx) error {
	var body Input
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	sub, err := h.svc.Submit(c.UserContext(), body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Thank you for contacting us! We will get back to you within 24 hours.",
		"data": fiber.Map{
			"submissionId": sub.ID,
			"submittedAt":  sub.SubmittedAt,
		},
	})
}

// Recent handles GET /api/admin/contacts.
func (h *Handler) Recent(c *fiber.Ctx) error {
	limit := api.IntQuery(c, "limit", 50, 200)
	subs, total, err := h.svc.Recent(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": subs, "total": total})
}

func RegisterRoutes(app *fiber.App, h *Handler, authed, admin fiber.Handler) {
	app.Post("/api/contact", h.Submit)
	app.Get("/api/admin/contacts", authed, admin, h.Recent)
}
