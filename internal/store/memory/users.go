package memory

import (
	"context"
	"sort"
	"sync"

	"knot-backend/internal/model"
	"knot-backend/internal/store"
)

type Users struct {
	mu    sync.RWMutex
	items map[string]*model.User
}

func NewUsers() *Users {
	return &Users{items: map[string]*model.User{}}
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Roles = append([]string(nil), u.Roles...)
	c.Interests = append([]string(nil), u.Interests...)
	if u.Compatibility != nil {
		p := *u.Compatibility
		c.Compatibility = &p
	}
	return &c
}

func (r *Users) conflicts(u *model.User) bool {
	for id, existing := range r.items {
		if id == u.ID {
			continue
		}
		if existing.Email == u.Email || (u.MigrationID != "" && existing.MigrationID == u.MigrationID) {
			return true
		}
	}
	return false
}

func (r *Users) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == "" {
		u.ID = store.NewID()
	}
	if r.conflicts(u) {
		return store.ErrDuplicate
	}
	r.items[u.ID] = cloneUser(u)
	return nil
}

func (r *Users) Get(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *Users) find(match func(*model.User) bool) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.items {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *Users) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Email == email })
}

func (r *Users) FindByEmailOrMigrationID(_ context.Context, email, migrationID string) (*model.User, error) {
	return r.find(func(u *model.User) bool {
		return u.Email == email || (migrationID != "" && u.MigrationID == migrationID)
	})
}

func (r *Users) FindByStripeCustomer(_ context.Context, customerID string) (*model.User, error) {
	return r.find(func(u *model.User) bool {
		return customerID != "" && u.Subscription.StripeCustomerID == customerID
	})
}

func (r *Users) Update(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[u.ID]; !ok {
		return store.ErrNotFound
	}
	if r.conflicts(u) {
		return store.ErrDuplicate
	}
	r.items[u.ID] = cloneUser(u)
	return nil
}

func (r *Users) List(_ context.Context, page, limit int) ([]*model.User, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*model.User, 0, len(r.items))
	for _, u := range r.items {
		all = append(all, cloneUser(u))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return paginate(all, page, limit), int64(len(all)), nil
}

func (r *Users) ListMatchable(_ context.Context) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*model.User{}
	for _, u := range r.items {
		if u.Active && u.Compatibility != nil {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Users) CountMigrated(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, u := range r.items {
		if u.MigratedFromLocalStorage {
			n++
		}
	}
	return n, nil
}
