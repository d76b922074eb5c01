// Package arrival keeps the ledger of per-student arrival facts. Lateness is
// classified once, at mark time, against the schedule in effect at that
// moment; later schedule edits never reinterpret past records.
package arrival

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tardiness/internal/kvstore"
	"tardiness/internal/schedule"
)

// Arrival status values.
const (
	StatusOnTime = "on-time"
	StatusLate   = "late"
)

// Arrival is one student's arrival on one date. MinutesLate and Status are
// frozen at creation and never recomputed.
type Arrival struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"studentId"`
	ClassID     string    `json:"classId"`
	Date        string    `json:"date"` // YYYY-MM-DD
	Time        string    `json:"time"` // HH:MM
	MinutesLate int       `json:"minutesLate"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MarkResult reports the outcome of a Mark call. When Created is false the
// mark was rejected because a record already exists for the student+date;
// Arrival then carries the pre-existing record untouched.
type MarkResult struct {
	Created bool
	Message string
	Arrival Arrival
}

// Ledger owns Arrival records. It consults the schedule registry at write
// time only; reads never touch the registry.
type Ledger struct {
	mu       sync.Mutex
	store    kvstore.Store
	registry *schedule.Registry
	arrivals []Arrival
	now      func() time.Time
}

// NewLedger loads the arrival cache from the store before returning.
func NewLedger(ctx context.Context, store kvstore.Store, registry *schedule.Registry) (*Ledger, error) {
	l := &Ledger{store: store, registry: registry, now: time.Now}
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload replaces the cache with whatever the store currently holds.
func (l *Ledger) Reload(ctx context.Context) error {
	raw, err := l.store.Get(ctx, kvstore.KeyArrivals)
	if errors.Is(err, kvstore.ErrNotFound) {
		l.mu.Lock()
		l.arrivals = nil
		l.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}
	var arrivals []Arrival
	if err := json.Unmarshal(raw, &arrivals); err != nil {
		return err
	}
	l.mu.Lock()
	l.arrivals = arrivals
	l.mu.Unlock()
	return nil
}

func (l *Ledger) persist(ctx context.Context) error {
	return l.store.Set(ctx, kvstore.KeyArrivals, l.arrivals)
}

// minutesOfDay parses "HH:MM" into minutes since midnight.
func minutesOfDay(s string) (int, bool) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

// classify computes the frozen verdict for an arrival at hhmm on day.
// A missing, disabled, or start-less schedule cannot produce lateness.
func (l *Ledger) classify(classID string, day time.Weekday, hhmm string) (minutesLate int, status string) {
	entry := l.registry.ScheduleForDay(classID, day)
	if entry == nil || !entry.Enabled || entry.StartTime == "" {
		return 0, StatusOnTime
	}
	start, ok := minutesOfDay(entry.StartTime)
	if !ok {
		return 0, StatusOnTime
	}
	at, ok := minutesOfDay(hhmm)
	if !ok {
		return 0, StatusOnTime
	}
	late := at - start
	if late <= 0 {
		return 0, StatusOnTime
	}
	return late, StatusLate
}

// Mark records an arrival for a student on a date. A second mark for the
// same student+date is rejected, not overwritten. An empty at means "now".
func (l *Ledger) Mark(ctx context.Context, studentID, classID, date, at string) (MarkResult, error) {
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return MarkResult{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	if at == "" {
		at = l.now().Format("15:04")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing := l.lookupLocked(studentID, date); existing != nil {
		return MarkResult{
			Created: false,
			Message: "arrival already recorded for this student and date",
			Arrival: *existing,
		}, nil
	}

	minutesLate, status := l.classify(classID, parsed.Weekday(), at)
	rec := Arrival{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		ClassID:     classID,
		Date:        date,
		Time:        at,
		MinutesLate: minutesLate,
		Status:      status,
		CreatedAt:   l.now().UTC(),
	}
	l.arrivals = append(l.arrivals, rec)
	if err := l.persist(ctx); err != nil {
		return MarkResult{}, err
	}
	return MarkResult{Created: true, Arrival: rec}, nil
}

// Remove deletes the arrival for student+date, reporting whether one existed.
// This is the only way to undo a mark; records are never edited in place.
func (l *Ledger) Remove(ctx context.Context, studentID, date string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.arrivals {
		if l.arrivals[i].StudentID == studentID && l.arrivals[i].Date == date {
			l.arrivals = append(l.arrivals[:i], l.arrivals[i+1:]...)
			if err := l.persist(ctx); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// Lookup returns the arrival for student+date, or nil when absent. Absence
// is simply the lack of a record, not a stored state.
func (l *Ledger) Lookup(studentID, date string) *Arrival {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lookupLocked(studentID, date)
}

func (l *Ledger) lookupLocked(studentID, date string) *Arrival {
	for i := range l.arrivals {
		if l.arrivals[i].StudentID == studentID && l.arrivals[i].Date == date {
			rec := l.arrivals[i]
			return &rec
		}
	}
	return nil
}
