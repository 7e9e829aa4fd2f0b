package instrument

import (
	"context"
	"sync"
	"time"
)

const (
	EventLeadCreated            = "lead.created"
	EventLeadUpdated            = "lead.updated"
	EventLeadDeleted            = "lead.deleted"
	EventQuestionnaireSaved     = "questionnaire.saved"
	EventQuestionnaireCompleted = "questionnaire.completed"
	EventUserRegistered         = "user.registered"
	EventUserLogin              = "user.login"
	EventContactSubmitted       = "contact.submitted"
	EventMessageSent            = "message.sent"
	EventMigrationLead          = "migration.lead"
	EventMigrationQuestionnaire = "migration.questionnaire"
	EventMigrationUser          = "migration.user"
	EventMigrationAdminData     = "migration.admin_data"
	EventPaymentCheckout        = "payment.checkout"
	EventPaymentCompleted       = "payment.completed"
	EventPaymentCancelled       = "payment.cancelled"
)

// Event is one analytics row.
type Event struct {
	Type      string         `json:"eventType"`
	Entity    string         `json:"entity,omitempty"`
	RecordID  string         `json:"recordId,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	Source    string         `json:"source,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Recorder accepts events without blocking the request path.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// NoopRecorder discards all events. Used when the events sink is disabled.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, Event) {}

// MemoryRecorder keeps events in a slice; tests assert against it.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryRecorder) Record(_ context.Context, e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Types returns the recorded event types in order.
func (m *MemoryRecorder) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}
