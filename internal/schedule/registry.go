package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"tardiness/internal/kvstore"
)

// Registry owns Class records and their weekly schedules. The full working
// set lives in memory and is written back to the store on every mutation.
type Registry struct {
	mu      sync.Mutex
	store   kvstore.Store
	classes []Class
	now     func() time.Time
}

// NewRegistry loads the class cache from the store before returning.
func NewRegistry(ctx context.Context, store kvstore.Store) (*Registry, error) {
	r := &Registry{store: store, now: time.Now}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload replaces the cache with whatever the store currently holds.
func (r *Registry) Reload(ctx context.Context) error {
	raw, err := r.store.Get(ctx, kvstore.KeyClasses)
	if errors.Is(err, kvstore.ErrNotFound) {
		r.mu.Lock()
		r.classes = nil
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}
	var classes []Class
	if err := json.Unmarshal(raw, &classes); err != nil {
		return err
	}
	r.mu.Lock()
	r.classes = classes
	r.mu.Unlock()
	return nil
}

func (r *Registry) persist(ctx context.Context) error {
	return r.store.Set(ctx, kvstore.KeyClasses, r.classes)
}

// Add creates a class. A nil schedule gets the default weekly windows.
func (r *Registry) Add(ctx context.Context, name string, weekly *Weekly) (Class, error) {
	cls := Class{
		ID:        uuid.NewString(),
		Name:      name,
		Schedule:  DefaultWeekly(),
		CreatedAt: r.now().UTC(),
	}
	if weekly != nil {
		cls.Schedule = *weekly
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes = append(r.classes, cls)
	if err := r.persist(ctx); err != nil {
		return Class{}, err
	}
	return cls, nil
}

// Update carries the fields a caller may change. A supplied Schedule
// replaces the whole weekly object; there is no per-day merge.
type Update struct {
	Name     *string
	Schedule *Weekly
}

// Update shallow-merges upd into the class. Returns nil when id is unknown.
func (r *Registry) Update(ctx context.Context, id string, upd Update) (*Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.classes {
		if r.classes[i].ID != id {
			continue
		}
		if upd.Name != nil {
			r.classes[i].Name = *upd.Name
		}
		if upd.Schedule != nil {
			r.classes[i].Schedule = *upd.Schedule
		}
		if err := r.persist(ctx); err != nil {
			return nil, err
		}
		cls := r.classes[i]
		return &cls, nil
	}
	return nil, nil
}

// Delete removes the class. Students and arrivals that reference it are left
// in place; there is no cascade.
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.classes {
		if r.classes[i].ID != id {
			continue
		}
		r.classes = append(r.classes[:i], r.classes[i+1:]...)
		if err := r.persist(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Get returns a copy of the class, or nil when unknown.
func (r *Registry) Get(id string) *Class {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.classes {
		if r.classes[i].ID == id {
			cls := r.classes[i]
			return &cls
		}
	}
	return nil
}

// List returns all classes in insertion order.
func (r *Registry) List() []Class {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Class, len(r.classes))
	copy(out, r.classes)
	return out
}

// ScheduleForDay returns the day's entry for a class, or nil when the class
// does not exist. A nil result is distinct from an entry with Enabled=false:
// the former means "no such class", the latter "class closed that day".
func (r *Registry) ScheduleForDay(classID string, day time.Weekday) *DaySchedule {
	cls := r.Get(classID)
	if cls == nil {
		return nil
	}
	entry := cls.Schedule.Day(day)
	return &entry
}
