package profiles

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-process Repo.
type MemoryRepo struct {
	mu       sync.Mutex
	profiles map[string]Profile
	now      func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{profiles: make(map[string]Profile), now: time.Now}
}

func (r *MemoryRepo) Ensure(ctx context.Context, id, email, fullName string) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		p = New(id, email, r.now())
	}
	if p.Email == "" {
		p.Email = email
	}
	if p.FullName == "" {
		p.FullName = fullName
	}
	r.profiles[id] = p
	return p, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) FindByCustomerID(ctx context.Context, customerID string) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	if strings.TrimSpace(customerID) == "" {
		return Profile{}, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.StripeCustomerID == customerID {
			return p, nil
		}
	}
	return Profile{}, ErrNotFound
}

func (r *MemoryRepo) Mutate(ctx context.Context, id string, fn func(p *Profile) error) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		p = New(id, "", r.now())
	}
	next := p
	if err := fn(&next); err != nil {
		return p, err
	}
	next.ID = id
	next.UpdatedAt = r.now().UTC()
	r.profiles[id] = next
	return next, nil
}

func (r *MemoryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Profile
	for _, p := range r.profiles {
		if !p.UsageResetsAt.After(now) {
			due = append(due, p)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].UsageResetsAt.Before(due[j].UsageResetsAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]string, len(due))
	for i, p := range due {
		ids[i] = p.ID
	}
	return ids, nil
}

var _ Repo = (*MemoryRepo)(nil)
