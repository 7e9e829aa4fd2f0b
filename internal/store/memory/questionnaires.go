package memory

import (
	"context"
	"sort"
	"sync"

	"knot-backend/internal/model"
	"knot-backend/internal/store"
)

type Questionnaires struct {
	mu    sync.RWMutex
	items map[string]*model.QuestionnaireResponse
}

func NewQuestionnaires() *Questionnaires {
	return &Questionnaires{items: map[string]*model.QuestionnaireResponse{}}
}

func cloneResponse(q *model.QuestionnaireResponse) *model.QuestionnaireResponse {
	c := *q
	c.Responses = make(map[string]any, len(q.Responses))
	for k, v := range q.Responses {
		c.Responses[k] = v
	}
	return &c
}

func (r *Questionnaires) Save(_ context.Context, resp *model.QuestionnaireResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if resp.ID == "" {
		resp.ID = store.NewID()
	}
	if resp.MigrationID != "" {
		for id, q := range r.items {
			if id != resp.ID && q.MigrationID == resp.MigrationID {
				return store.ErrDuplicate
			}
		}
	}
	r.items[resp.ID] = cloneResponse(resp)
	return nil
}

func (r *Questionnaires) Get(_ context.Context, id string) (*model.QuestionnaireResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneResponse(q), nil
}

// latest picks the most recently updated match, mirroring the Mongo sort.
func (r *Questionnaires) latest(match func(*model.QuestionnaireResponse) bool) (*model.QuestionnaireResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *model.QuestionnaireResponse
	for _, q := range r.items {
		if !match(q) {
			continue
		}
		if best == nil || q.UpdatedAt.After(best.UpdatedAt) {
			best = q
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return cloneResponse(best), nil
}

func (r *Questionnaires) FindByUser(_ context.Context, userID string) (*model.QuestionnaireResponse, error) {
	return r.latest(func(q *model.QuestionnaireResponse) bool { return q.UserID == userID })
}

func (r *Questionnaires) FindByLead(_ context.Context, leadID string) (*model.QuestionnaireResponse, error) {
	return r.latest(func(q *model.QuestionnaireResponse) bool { return q.LeadID == leadID })
}

func (r *Questionnaires) FindByEmail(_ context.Context, email string) (*model.QuestionnaireResponse, error) {
	return r.latest(func(q *model.QuestionnaireResponse) bool { return q.UserEmail == email })
}

func (r *Questionnaires) FindByMigrationID(_ context.Context, migrationID string) (*model.QuestionnaireResponse, error) {
	return r.latest(func(q *model.QuestionnaireResponse) bool { return q.MigrationID == migrationID })
}

func (r *Questionnaires) List(_ context.Context, page, limit int) ([]*model.QuestionnaireResponse, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*model.QuestionnaireResponse, 0, len(r.items))
	for _, q := range r.items {
		all = append(all, cloneResponse(q))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return paginate(all, page, limit), int64(len(all)), nil
}

func (r *Questionnaires) ListComplete(_ context.Context) ([]*model.QuestionnaireResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*model.QuestionnaireResponse{}
	for _, q := range r.items {
		if q.IsComplete {
			out = append(out, cloneResponse(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Questionnaires) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *Questionnaires) CountMigrated(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, q := range r.items {
		if q.MigratedFromLocalStorage {
			n++
		}
	}
	return n, nil
}
