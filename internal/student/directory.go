// Package student holds the student directory: plain CRUD over Student
// records with a soft reference to their class.
package student

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tardiness/internal/kvstore"
)

// ErrEmptyName rejects students whose trimmed name is empty.
var ErrEmptyName = errors.New("student name is required")

// Student belongs to exactly one class via ClassID. The reference is soft:
// deleting the class leaves the student in place.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ClassID   string    `json:"classId"`
	PhotoURL  string    `json:"photoUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Directory owns Student records, cached in memory and written back to the
// store on every mutation.
type Directory struct {
	mu       sync.Mutex
	store    kvstore.Store
	students []Student
	now      func() time.Time
}

// NewDirectory loads the student cache from the store before returning.
func NewDirectory(ctx context.Context, store kvstore.Store) (*Directory, error) {
	d := &Directory{store: store, now: time.Now}
	if err := d.Reload(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload replaces the cache with whatever the store currently holds.
func (d *Directory) Reload(ctx context.Context) error {
	raw, err := d.store.Get(ctx, kvstore.KeyStudents)
	if errors.Is(err, kvstore.ErrNotFound) {
		d.mu.Lock()
		d.students = nil
		d.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}
	var students []Student
	if err := json.Unmarshal(raw, &students); err != nil {
		return err
	}
	d.mu.Lock()
	d.students = students
	d.mu.Unlock()
	return nil
}

func (d *Directory) persist(ctx context.Context) error {
	return d.store.Set(ctx, kvstore.KeyStudents, d.students)
}

// Add creates a student. The name is trimmed and must be non-empty.
func (d *Directory) Add(ctx context.Context, name, classID, photoURL string) (Student, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Student{}, ErrEmptyName
	}
	st := Student{
		ID:        uuid.NewString(),
		Name:      name,
		ClassID:   classID,
		PhotoURL:  photoURL,
		CreatedAt: d.now().UTC(),
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.students = append(d.students, st)
	if err := d.persist(ctx); err != nil {
		return Student{}, err
	}
	return st, nil
}

// Update carries the fields a caller may change.
type Update struct {
	Name     *string
	ClassID  *string
	PhotoURL *string
}

// Update shallow-merges upd into the student. Returns nil when id is unknown.
func (d *Directory) Update(ctx context.Context, id string, upd Update) (*Student, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.students {
		if d.students[i].ID != id {
			continue
		}
		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return nil, ErrEmptyName
			}
			d.students[i].Name = name
		}
		if upd.ClassID != nil {
			d.students[i].ClassID = *upd.ClassID
		}
		if upd.PhotoURL != nil {
			d.students[i].PhotoURL = *upd.PhotoURL
		}
		if err := d.persist(ctx); err != nil {
			return nil, err
		}
		st := d.students[i]
		return &st, nil
	}
	return nil, nil
}

// Delete removes the student. Arrivals that reference it are left in place.
func (d *Directory) Delete(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.students {
		if d.students[i].ID != id {
			continue
		}
		d.students = append(d.students[:i], d.students[i+1:]...)
		if err := d.persist(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Get returns a copy of the student, or nil when unknown.
func (d *Directory) Get(id string) *Student {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.students {
		if d.students[i].ID == id {
			st := d.students[i]
			return &st
		}
	}
	return nil
}

// List returns all students in insertion order.
func (d *Directory) List() []Student {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Student, len(d.students))
	copy(out, d.students)
	return out
}

// ListByClass returns the students referencing classID.
func (d *Directory) ListByClass(classID string) []Student {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Student
	for _, st := range d.students {
		if st.ClassID == classID {
			out = append(out, st)
		}
	}
	return out
}
