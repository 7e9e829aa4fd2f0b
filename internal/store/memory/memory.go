// Package memory keeps every collection in process. It backs handler tests
// and the "memory" store driver used for local development without MongoDB.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"knot-backend/internal/model"
	"knot-backend/internal/store"
)

// New returns a fresh set of empty in-memory repositories.
func New() *store.Repositories {
	return &store.Repositories{
		Leads:          NewLeads(),
		Questionnaires: NewQuestionnaires(),
		Users:          NewUsers(),
		AdminData:      NewAdminData(),
		Conversations:  NewConversations(),
		Contacts:       NewContacts(),
		Tokens:         NewTokens(),
	}
}

func paginate[T any](items []T, page, limit int) []T {
	if limit <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Leads

type Leads struct {
	mu    sync.RWMutex
	items map[string]*model.Lead
}

func NewLeads() *Leads {
	return &Leads{items: map[string]*model.Lead{}}
}

func cloneLead(l *model.Lead) *model.Lead {
	c := *l
	c.Notes = append([]model.LeadNote(nil), l.Notes...)
	return &c
}

func (r *Leads) Create(_ context.Context, lead *model.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.items {
		if l.Email == lead.Email || (lead.MigrationID != "" && l.MigrationID == lead.MigrationID) {
			return store.ErrDuplicate
		}
	}
	if lead.ID == "" {
		lead.ID = store.NewID()
	}
	r.items[lead.ID] = cloneLead(lead)
	return nil
}

func (r *Leads) Get(_ context.Context, id string) (*model.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneLead(l), nil
}

func (r *Leads) find(match func(*model.Lead) bool) (*model.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.items {
		if match(l) {
			return cloneLead(l), nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *Leads) FindByEmail(_ context.Context, email string) (*model.Lead, error) {
	return r.find(func(l *model.Lead) bool { return l.Email == email })
}

func (r *Leads) FindByEmailOrMigrationID(_ context.Context, email, migrationID string) (*model.Lead, error) {
	return r.find(func(l *model.Lead) bool {
		return l.Email == email || (migrationID != "" && l.MigrationID == migrationID)
	})
}

func (r *Leads) sorted(match func(*model.Lead) bool) []*model.Lead {
	out := []*model.Lead{}
	for _, l := range r.items {
		if match(l) {
			out = append(out, cloneLead(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Leads) List(_ context.Context, f model.LeadFilter) ([]*model.Lead, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.sorted(func(l *model.Lead) bool {
		if f.Status != "" && l.Status != f.Status {
			return false
		}
		if f.Search != "" {
			return containsFold(l.Name, f.Search) || containsFold(l.Email, f.Search) || containsFold(l.Phone, f.Search)
		}
		return true
	})
	return paginate(all, f.Page, f.Limit), int64(len(all)), nil
}

func (r *Leads) Update(_ context.Context, id string, upd model.LeadUpdate) (*model.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.Status != nil {
		l.Status = *upd.Status
	}
	if upd.AssignedTo != nil {
		l.AssignedTo = *upd.AssignedTo
	}
	if upd.FollowUpDate != nil {
		d := *upd.FollowUpDate
		l.FollowUpDate = &d
		l.FollowUpNotifiedAt = nil
		l.FollowUpAttempts = 0
		l.FollowUpRetryAt = nil
	}
	if upd.IsActive != nil {
		l.IsActive = *upd.IsActive
	}
	if upd.BiodataKey != nil {
		l.BiodataKey = *upd.BiodataKey
	}
	if upd.LeadScore != nil {
		l.LeadScore = *upd.LeadScore
	}
	l.UpdatedAt = time.Now().UTC()
	return cloneLead(l), nil
}

func (r *Leads) AddNote(_ context.Context, id string, note model.LeadNote) (*model.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	l.Notes = append(l.Notes, note)
	l.UpdatedAt = note.AddedAt
	return cloneLead(l), nil
}

func (r *Leads) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *Leads) DueFollowUps(_ context.Context, now time.Time, limit int) ([]*model.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*model.Lead{}
	for _, l := range r.items {
		if l.FollowUpDate == nil || l.FollowUpDate.After(now) || l.FollowUpNotifiedAt != nil {
			continue
		}
		if l.FollowUpRetryAt != nil && l.FollowUpRetryAt.After(now) {
			continue
		}
		if !l.IsActive || l.Status == model.LeadStatusDeleted {
			continue
		}
		out = append(out, cloneLead(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FollowUpDate.Before(*out[j].FollowUpDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Leads) MarkFollowUpNotified(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.items[id]
	if !ok {
		return store.ErrNotFound
	}
	l.FollowUpNotifiedAt = &at
	return nil
}

func (r *Leads) DeferFollowUp(_ context.Context, id string, attempts int, retryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.items[id]
	if !ok {
		return store.ErrNotFound
	}
	l.FollowUpAttempts = attempts
	l.FollowUpRetryAt = &retryAt
	return nil
}

func (r *Leads) CountMigrated(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, l := range r.items {
		if l.MigratedFromLocalStorage {
			n++
		}
	}
	return n, nil
}
