// Package messaging implements member-to-member conversations over plain
// request/response endpoints.
package messaging

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

const (
	MaxMessageLength = 2000
	DefaultHistory   = 100
	MaxHistory       = 500
)

type Service struct {
	convs  store.ConversationRepository
	users  store.UserRepository
	events instrument.Recorder
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repos *store.Repositories, events instrument.Recorder, log *zap.Logger) *Service {
	if events == nil {
		events = instrument.NoopRecorder{}
	}
	return &Service{
		convs:  repos.Conversations,
		users:  repos.Users,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

// Thread is a conversation as seen by one participant.
type Thread struct {
	*model.Conversation
	With *model.PublicProfile `json:"with,omitempty"`
}

// Start returns the conversation between userID and otherID, creating it
// on first contact.
func (s *Service) Start(ctx context.Context, userID, otherID string) (*Thread, error) {
	if otherID == "" {
		return nil, api.ValidationError([]api.ErrorDetail{{Field: "userId", Rule: "required", Message: "userId is required"}})
	}
	if otherID == userID {
		return nil, api.BadRequestError("Cannot start a conversation with yourself")
	}
	other, err := s.users.Get(ctx, otherID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !other.Active) {
		return nil, api.NotFoundError("User", otherID)
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", otherID, err)
	}

	conv, err := s.convs.GetOrCreate(ctx, userID, otherID)
	if err != nil {
		return nil, fmt.Errorf("open conversation: %w", err)
	}
	public := other.Public()
	return &Thread{Conversation: conv, With: &public}, nil
}

// List returns userID's conversations, most recent first, with unread
// counts.
func (s *Service) List(ctx context.Context, userID string) ([]Thread, error) {
	convs, err := s.convs.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]Thread, 0, len(convs))
	for _, c := range convs {
		unread, err := s.convs.UnreadCount(ctx, c.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("unread count %s: %w", c.ID, err)
		}
		c.UnreadCount = unread
		t := Thread{Conversation: c}
		if other, err := s.users.Get(ctx, c.Other(userID)); err == nil {
			p := other.Public()
			t.With = &p
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Service) conversationFor(ctx context.Context, id, userID string) (*model.Conversation, error) {
	conv, err := s.convs.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, api.NotFoundError("Conversation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	if !conv.HasParticipant(userID) {
		return nil, api.ForbiddenError("You are not part of this conversation")
	}
	return conv, nil
}

// Messages returns the history of a conversation, oldest first.
func (s *Service) Messages(ctx context.Context, id, userID string, limit int) ([]*model.Message, error) {
	if _, err := s.conversationFor(ctx, id, userID); err != nil {
		return nil, err
	}
	msgs, err := s.convs.Messages(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func (s *Service) Send(ctx context.Context, id, senderID, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	n := len([]rune(content))
	if n == 0 || n > MaxMessageLength {
		return nil, api.ValidationError([]api.ErrorDetail{{
			Field: "content", Rule: "length", Message: "Message must be between 1 and 2000 characters",
		}})
	}
	conv, err := s.conversationFor(ctx, id, senderID)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:             store.NewID(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     conv.Other(senderID),
		Content:        content,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.convs.AddMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	s.events.Record(ctx, instrument.Event{
		Type:     instrument.EventMessageSent,
		Entity:   "conversation",
		RecordID: conv.ID,
		UserID:   senderID,
	})
	return msg, nil
}

// MarkRead marks every message addressed to userID as read.
func (s *Service) MarkRead(ctx context.Context, id, userID string) (int64, error) {
	if _, err := s.conversationFor(ctx, id, userID); err != nil {
		return 0, err
	}
	n, err := s.convs.MarkRead(ctx, id, userID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}
