// Package payments serves the plan catalog and turns Stripe checkouts into
// member subscriptions.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"knot-backend/internal/api"
	"knot-backend/internal/config"
	"knot-backend/internal/instrument"
	"knot-backend/internal/model"
	"knot-backend/internal/store"
)

const (
	eventCheckoutCompleted   = "checkout.session.completed"
	eventSubscriptionDeleted = "customer.subscription.deleted"
)

var errPaymentsDisabled = api.NewAppError("PAYMENTS_DISABLED", fiber.StatusServiceUnavailable, "Payments are not configured")

type SubscriptionMailer interface {
	SubscriptionConfirmation(ctx context.Context, to, name, plan, amount, interval string, features []string) error
}

type Service struct {
	users   store.UserRepository
	plans   *Catalog
	gateway Gateway
	mailer  SubscriptionMailer
	cfg     config.StripeConfig
	events  instrument.Recorder
	log     *zap.Logger
	now     func() time.Time
}

// NewService wires checkout and webhook handling. gateway may be nil when
// no Stripe key is configured; checkout then reports 503.
func NewService(users store.UserRepository, plans *Catalog, gateway Gateway, mailer SubscriptionMailer,
	cfg config.StripeConfig, events instrument.Recorder, log *zap.Logger) *Service {
	return &Service{
		users:   users,
		plans:   plans,
		gateway: gateway,
		mailer:  mailer,
		cfg:     cfg,
		events:  events,
		log:     log,
		now:     time.Now,
	}
}

func (s *Service) Plans() *Catalog {
	return s.plans
}

// PriceKey is the key under stripe.prices holding a plan's price id.
func PriceKey(planID, interval string) string {
	return planID + "_" + interval
}

func (s *Service) Checkout(ctx context.Context, userID, planID, interval string) (*CheckoutSession, error) {
	if s.gateway == nil {
		return nil, errPaymentsDisabled
	}
	if interval == "" {
		interval = IntervalMonthly
	}
	plan, ok := s.plans.Plan(planID)
	if !ok {
		return nil, api.ValidationError([]api.ErrorDetail{
			{Field: "plan", Rule: "one_of", Message: "Unknown plan"},
		})
	}
	if _, ok := plan.Amount(interval); !ok {
		return nil, api.ValidationError([]api.ErrorDetail{
			{Field: "interval", Rule: "one_of", Message: "Interval must be monthly or yearly"},
		})
	}
	priceID := s.cfg.Prices[PriceKey(planID, interval)]
	if priceID == "" {
		return nil, api.NewAppError("PLAN_UNAVAILABLE", fiber.StatusBadRequest,
			fmt.Sprintf("%s (%s) cannot be purchased online yet", plan.Name, interval))
	}

	u, err := s.users.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, api.NotFoundError("user", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	sess, err := s.gateway.CreateCheckout(ctx, CheckoutRequest{
		UserID:     u.ID,
		Email:      u.Email,
		CustomerID: u.Subscription.StripeCustomerID,
		PriceID:    priceID,
		PlanID:     plan.ID,
		Interval:   interval,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		return nil, err
	}
	s.events.Record(ctx, instrument.Event{
		Type:     instrument.EventPaymentCheckout,
		Entity:   "user",
		RecordID: u.ID,
		UserID:   u.ID,
		Metadata: map[string]any{"plan": plan.ID, "interval": interval, "sessionId": sess.ID},
	})
	return sess, nil
}

// HandleWebhook verifies a Stripe event and applies it. Unhandled event
// types are accepted and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.cfg.WebhookSecret == "" {
		return errPaymentsDisabled
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.log.Warn("stripe webhook rejected", zap.Error(err))
		return api.BadRequestError("Invalid webhook signature")
	}

	switch string(event.Type) {
	case eventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return api.BadRequestError("Malformed checkout session")
		}
		return s.activate(ctx, &sess)
	case eventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return api.BadRequestError("Malformed subscription")
		}
		return s.cancel(ctx, &sub)
	default:
		s.log.Debug("stripe event ignored", zap.String("type", string(event.Type)), zap.String("id", event.ID))
		return nil
	}
}

func (s *Service) activate(ctx context.Context, sess *stripe.CheckoutSession) error {
	userID := sess.ClientReferenceID
	if userID == "" {
		userID = sess.Metadata["userId"]
	}
	u, err := s.users.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warn("checkout completed for unknown user", zap.String("user_id", userID), zap.String("session", sess.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	customerID := u.Subscription.StripeCustomerID
	if sess.Customer != nil && sess.Customer.ID != "" {
		customerID = sess.Customer.ID
	}
	var subscriptionID string
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
	}
	if u.Subscription.Status == model.SubscriptionActive &&
		subscriptionID != "" && u.Subscription.StripeSubscriptionID == subscriptionID {
		return nil
	}

	plan, ok := s.plans.Plan(sess.Metadata["plan"])
	if !ok {
		s.log.Warn("checkout completed for unknown plan; subscription left unchanged",
			zap.String("plan", sess.Metadata["plan"]), zap.String("user_id", u.ID), zap.String("session", sess.ID))
		return nil
	}
	interval := sess.Metadata["interval"]
	if interval == "" {
		interval = IntervalMonthly
	}

	now := s.now().UTC()
	u.Subscription.Plan = plan.ID
	u.Subscription.Interval = interval
	u.Subscription.Status = model.SubscriptionActive
	u.Subscription.StartedAt = &now
	u.Subscription.StripeCustomerID = customerID
	u.Subscription.StripeSubscriptionID = subscriptionID
	u.UpdatedAt = now
	if err := s.users.Update(ctx, u); err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}

	s.events.Record(ctx, instrument.Event{
		Type:     instrument.EventPaymentCompleted,
		Entity:   "user",
		RecordID: u.ID,
		UserID:   u.ID,
		Metadata: map[string]any{"plan": u.Subscription.Plan, "interval": interval, "sessionId": sess.ID},
	})

	amount, _ := plan.Amount(interval)
	if err := s.mailer.SubscriptionConfirmation(ctx, u.Email, u.Name, plan.Name,
		FormatINR(amount), interval, plan.Features); err != nil {
		s.log.Error("subscription confirmation failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	return nil
}

func (s *Service) cancel(ctx context.Context, sub *stripe.Subscription) error {
	if sub.Customer == nil || sub.Customer.ID == "" {
		return nil
	}
	u, err := s.users.FindByStripeCustomer(ctx, sub.Customer.ID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warn("subscription deleted for unknown customer", zap.String("customer", sub.Customer.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("find customer: %w", err)
	}
	// A customer can own older subscriptions, e.g. one replaced by an upgrade.
	if sub.ID != u.Subscription.StripeSubscriptionID {
		s.log.Info("deleted subscription is not the current one",
			zap.String("user_id", u.ID), zap.String("subscription", sub.ID))
		return nil
	}

	u.Subscription.Status = model.SubscriptionCancelled
	u.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, u); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	s.events.Record(ctx, instrument.Event{
		Type:     instrument.EventPaymentCancelled,
		Entity:   "user",
		RecordID: u.ID,
		UserID:   u.ID,
		Metadata: map[string]any{"subscriptionId": sub.ID},
	})
	return nil
}
