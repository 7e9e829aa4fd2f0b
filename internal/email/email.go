// Package email renders the transactional emails and hands them to a
// Sender: SMTP in production, a logging sender when no relay is
// configured.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"go.uber.org/zap"

	"knot-backend/internal/instrument"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	TemplateWelcome      = "welcome"
	TemplateMatch        = "match"
	TemplateReset        = "password_reset"
	TemplateSubscription = "subscription"
	TemplateContactAck   = "contact_ack"
	TemplateFollowUp     = "followup"
)

var templateNames = []string{
	TemplateWelcome, TemplateMatch, TemplateReset,
	TemplateSubscription, TemplateContactAck, TemplateFollowUp,
}

// Message is a rendered email ready for delivery.
type Message struct {
	To       string
	Subject  string
	Template string
	HTML     string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer renders templates and delivers them through a Sender.
type Mailer struct {
	sender    Sender
	templates map[string]*template.Template
	baseURL   string
	support   string
	metrics   *instrument.Metrics
	log       *zap.Logger
}

func NewMailer(sender Sender, baseURL, support string, metrics *instrument.Metrics, log *zap.Logger) (*Mailer, error) {
	m := &Mailer{
		sender:    sender,
		templates: make(map[string]*template.Template, len(templateNames)),
		baseURL:   baseURL,
		support:   support,
		metrics:   metrics,
		log:       log,
	}
	for _, name := range templateNames {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse email template %s: %w", name, err)
		}
		m.templates[name] = t
	}
	return m, nil
}

func (m *Mailer) send(ctx context.Context, name, to, subject string, data map[string]any) error {
	t, ok := m.templates[name]
	if !ok {
		return fmt.Errorf("unknown email template %q", name)
	}
	data["Subject"] = subject
	data["Support"] = m.support
	data["BaseURL"] = m.baseURL

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s email: %w", name, err)
	}

	err := m.sender.Send(ctx, Message{To: to, Subject: subject, Template: name, HTML: buf.String()})
	m.metrics.EmailSent(name, err)
	if err != nil {
		m.log.Error("email delivery failed", zap.String("template", name), zap.String("to", to), zap.Error(err))
		return fmt.Errorf("send %s email: %w", name, err)
	}
	m.log.Info("email sent", zap.String("template", name), zap.String("to", to))
	return nil
}

func (m *Mailer) Welcome(ctx context.Context, to, name string) error {
	return m.send(ctx, TemplateWelcome, to,
		"Welcome to Make My Knot - Your Journey to Love Begins!",
		map[string]any{"Name": name})
}

func (m *Mailer) MatchNotification(ctx context.Context, to, name, matchName string, score int) error {
	return m.send(ctx, TemplateMatch, to,
		fmt.Sprintf("New %d%% Compatible Match Found!", score),
		map[string]any{"Name": name, "MatchName": matchName, "Score": score})
}

// PasswordReset mails a link carrying the raw reset token. The link is
// valid for one hour.
func (m *Mailer) PasswordReset(ctx context.Context, to, token string) error {
	resetURL := m.baseURL + "/reset-password?token=" + url.QueryEscape(token)
	return m.send(ctx, TemplateReset, to,
		"Reset Your Make My Knot Password",
		map[string]any{"ResetURL": resetURL})
}

func (m *Mailer) SubscriptionConfirmation(ctx context.Context, to, name, plan, amount, interval string, features []string) error {
	return m.send(ctx, TemplateSubscription, to,
		"Subscription Activated - Welcome to Premium!",
		map[string]any{"Name": name, "Plan": plan, "Amount": amount, "Interval": interval, "Features": features})
}

func (m *Mailer) ContactAcknowledgement(ctx context.Context, to, name, topic, method, reference string) error {
	return m.send(ctx, TemplateContactAck, to,
		"We received your message - Make My Knot",
		map[string]any{"Name": name, "Topic": topic, "Method": method, "Reference": reference})
}

// FollowUpLead is the part of a lead a follow-up reminder shows.
type FollowUpLead struct {
	ID     string
	Name   string
	Email  string
	Phone  string
	Status string
	Score  int
	Due    time.Time
}

func (m *Mailer) FollowUpReminder(ctx context.Context, to string, lead FollowUpLead) error {
	return m.send(ctx, TemplateFollowUp, to,
		fmt.Sprintf("Follow-up due: %s", lead.Name),
		map[string]any{
			"LeadID": lead.ID, "LeadName": lead.Name, "LeadEmail": lead.Email,
			"LeadPhone": lead.Phone, "Status": lead.Status, "Score": lead.Score,
			"Due": lead.Due.Format("02 Jan 2006 15:04 MST"),
		})
}
