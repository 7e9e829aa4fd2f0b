package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"knot-backend/internal/model"
	"knot-backend/internal/store"
)

// AdminData

type AdminData struct {
	mu    sync.RWMutex
	items map[string]*model.AdminData
}

func NewAdminData() *AdminData {
	return &AdminData{items: map[string]*model.AdminData{}}
}

func (r *AdminData) Upsert(_ context.Context, key string, data any, migrated bool) (*model.AdminData, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	rec, ok := r.items[key]
	if !ok {
		rec = &model.AdminData{Key: key, CreatedAt: now}
		r.items[key] = rec
	}
	rec.Data = data
	rec.MigratedFromLocalStorage = migrated
	rec.UpdatedAt = now
	c := *rec
	return &c, !ok, nil
}

func (r *AdminData) Get(_ context.Context, key string) (*model.AdminData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.items[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *rec
	return &c, nil
}

func (r *AdminData) CountMigrated(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, rec := range r.items {
		if rec.MigratedFromLocalStorage {
			n++
		}
	}
	return n, nil
}

// Conversations

type Conversations struct {
	mu    sync.RWMutex
	convs map[string]*model.Conversation
	msgs  []*model.Message
}

func NewConversations() *Conversations {
	return &Conversations{convs: map[string]*model.Conversation{}}
}

func (r *Conversations) GetOrCreate(_ context.Context, a, b string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := model.ConversationID(a, b)
	if c, ok := r.convs[id]; ok {
		cc := *c
		return &cc, nil
	}
	participants := []string{a, b}
	if b < a {
		participants = []string{b, a}
	}
	c := &model.Conversation{ID: id, Participants: participants, CreatedAt: time.Now().UTC()}
	r.convs[id] = c
	cc := *c
	return &cc, nil
}

func (r *Conversations) Get(_ context.Context, id string) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.convs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cc := *c
	return &cc, nil
}

func activity(c *model.Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

func (r *Conversations) ListForUser(_ context.Context, userID string) ([]*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*model.Conversation{}
	for _, c := range r.convs {
		if c.HasParticipant(userID) {
			cc := *c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return activity(out[i]).After(activity(out[j])) })
	return out, nil
}

func (r *Conversations) AddMessage(_ context.Context, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[msg.ConversationID]
	if !ok {
		return store.ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = store.NewID()
	}
	m := *msg
	r.msgs = append(r.msgs, &m)
	at := msg.CreatedAt
	c.LastMessage = msg.Content
	c.LastMessageAt = &at
	return nil
}

func (r *Conversations) Messages(_ context.Context, conversationID string, limit int) ([]*model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*model.Message{}
	for _, m := range r.msgs {
		if m.ConversationID == conversationID {
			mm := *m
			out = append(out, &mm)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Conversations) MarkRead(_ context.Context, conversationID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.msgs {
		if m.ConversationID == conversationID && m.ReceiverID == userID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (r *Conversations) UnreadCount(_ context.Context, conversationID, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, m := range r.msgs {
		if m.ConversationID == conversationID && m.ReceiverID == userID && !m.Read {
			n++
		}
	}
	return n, nil
}

// Contacts

type Contacts struct {
	mu    sync.RWMutex
	items []*model.ContactSubmission
}

func NewContacts() *Contacts {
	return &Contacts{}
}

func (r *Contacts) Create(_ context.Context, sub *model.ContactSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.ID == "" {
		sub.ID = store.NewID()
	}
	c := *sub
	r.items = append(r.items, &c)
	return nil
}

func (r *Contacts) Recent(_ context.Context, limit int) ([]*model.ContactSubmission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.ContactSubmission, 0, len(r.items))
	for i := len(r.items) - 1; i >= 0; i-- {
		c := *r.items[i]
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Contacts) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.items)), nil
}

// Tokens

type Tokens struct {
	mu      sync.Mutex
	refresh map[string]model.RefreshToken
	resets  map[string]model.PasswordReset
}

func NewTokens() *Tokens {
	return &Tokens{
		refresh: map[string]model.RefreshToken{},
		resets:  map[string]model.PasswordReset{},
	}
}

func (r *Tokens) SaveRefresh(_ context.Context, t *model.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.refresh[t.Token]; ok {
		return store.ErrDuplicate
	}
	r.refresh[t.Token] = *t
	return nil
}

func (r *Tokens) GetRefresh(_ context.Context, token string) (*model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.refresh[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (r *Tokens) DeleteRefresh(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.refresh, token)
	return nil
}

func (r *Tokens) DeleteUserRefresh(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, t := range r.refresh {
		if t.UserID == userID {
			delete(r.refresh, k)
		}
	}
	return nil
}

func (r *Tokens) SaveReset(_ context.Context, reset *model.PasswordReset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets[reset.TokenHash] = *reset
	return nil
}

func (r *Tokens) GetReset(_ context.Context, tokenHash string) (*model.PasswordReset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reset, ok := r.resets[tokenHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &reset, nil
}

func (r *Tokens) MarkResetUsed(_ context.Context, tokenHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reset, ok := r.resets[tokenHash]
	if !ok || reset.UsedAt != nil {
		return store.ErrNotFound
	}
	reset.UsedAt = &at
	r.resets[tokenHash] = reset
	return nil
}
