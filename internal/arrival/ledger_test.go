package arrival

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tardiness/internal/kvstore"
	"tardiness/internal/schedule"
)

// 2024-01-15 is a Monday; the default schedule opens 12:30 that day.
const monday = "2024-01-15"

func newTestLedger(t *testing.T) (*Ledger, *schedule.Registry, schedule.Class) {
	t.Helper()
	ctx := context.Background()
	store := kvstore.NewMemory()
	reg, err := schedule.NewRegistry(ctx, store)
	require.NoError(t, err)
	cls, err := reg.Add(ctx, "CM2", nil)
	require.NoError(t, err)
	led, err := NewLedger(ctx, store, reg)
	require.NoError(t, err)
	return led, reg, cls
}

func TestMarkClassification(t *testing.T) {
	tests := []struct {
		name        string
		at          string
		wantStatus  string
		wantMinutes int
	}{
		{"early arrival", "12:00", StatusOnTime, 0},
		{"exactly on time", "12:30", StatusOnTime, 0},
		{"fifteen minutes late", "12:45", StatusLate, 15},
		{"late by hours", "14:00", StatusLate, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			led, _, cls := newTestLedger(t)
			res, err := led.Mark(context.Background(), "stu-1", cls.ID, monday, tt.at)
			require.NoError(t, err)
			require.True(t, res.Created)
			assert.Equal(t, tt.wantStatus, res.Arrival.Status)
			assert.Equal(t, tt.wantMinutes, res.Arrival.MinutesLate)
		})
	}
}

func TestMarkOnDisabledDay(t *testing.T) {
	led, _, cls := newTestLedger(t)

	// 2024-01-14 is a Sunday, disabled by default; any time is on-time.
	res, err := led.Mark(context.Background(), "stu-1", cls.ID, "2024-01-14", "18:45")
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.Equal(t, StatusOnTime, res.Arrival.Status)
	assert.Equal(t, 0, res.Arrival.MinutesLate)
}

func TestMarkUnknownClass(t *testing.T) {
	led, _, _ := newTestLedger(t)

	// No schedule to compare against: cannot be late.
	res, err := led.Mark(context.Background(), "stu-1", "missing-class", monday, "18:45")
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.Equal(t, StatusOnTime, res.Arrival.Status)
}

func TestMarkRejectsDuplicate(t *testing.T) {
	led, _, cls := newTestLedger(t)
	ctx := context.Background()

	first, err := led.Mark(ctx, "stu-1", cls.ID, monday, "12:45")
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := led.Mark(ctx, "stu-1", cls.ID, monday, "13:00")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.NotEmpty(t, second.Message)
	// The original record comes back untouched.
	assert.Equal(t, first.Arrival, second.Arrival)

	// Still exactly one record for the pair.
	recs := led.ForStudent("stu-1", "", "")
	assert.Len(t, recs, 1)
	assert.Equal(t, "12:45", recs[0].Time)
}

func TestRemoveThenMarkAgain(t *testing.T) {
	led, _, cls := newTestLedger(t)
	ctx := context.Background()

	first, err := led.Mark(ctx, "stu-1", cls.ID, monday, "12:45")
	require.NoError(t, err)
	require.True(t, first.Created)

	removed, err := led.Remove(ctx, "stu-1", monday)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Nil(t, led.Lookup("stu-1", monday))

	removed, err = led.Remove(ctx, "stu-1", monday)
	require.NoError(t, err)
	assert.False(t, removed)

	second, err := led.Mark(ctx, "stu-1", cls.ID, monday, "12:31")
	require.NoError(t, err)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.Arrival.ID, second.Arrival.ID)
	assert.Equal(t, 1, second.Arrival.MinutesLate)
}

func TestMarkDefaultsToCurrentTime(t *testing.T) {
	led, _, cls := newTestLedger(t)
	led.now = func() time.Time {
		return time.Date(2024, 1, 15, 12, 40, 0, 0, time.UTC)
	}

	res, err := led.Mark(context.Background(), "stu-1", cls.ID, monday, "")
	require.NoError(t, err)
	assert.Equal(t, "12:40", res.Arrival.Time)
	assert.Equal(t, 10, res.Arrival.MinutesLate)
	assert.Equal(t, StatusLate, res.Arrival.Status)
}

func TestMarkInvalidDate(t *testing.T) {
	led, _, cls := newTestLedger(t)
	_, err := led.Mark(context.Background(), "stu-1", cls.ID, "15/01/2024", "12:45")
	assert.Error(t, err)
}

func TestMarkFrozenAfterScheduleChange(t *testing.T) {
	led, reg, cls := newTestLedger(t)
	ctx := context.Background()

	res, err := led.Mark(ctx, "stu-1", cls.ID, monday, "12:45")
	require.NoError(t, err)
	assert.Equal(t, 15, res.Arrival.MinutesLate)

	// Move the Monday start past the arrival; the recorded verdict must not
	// change.
	weekly := schedule.DefaultWeekly()
	weekly.Monday.StartTime = "13:00"
	_, err = reg.Update(ctx, cls.ID, schedule.Update{Schedule: &weekly})
	require.NoError(t, err)

	rec := led.Lookup("stu-1", monday)
	require.NotNil(t, rec)
	assert.Equal(t, StatusLate, rec.Status)
	assert.Equal(t, 15, rec.MinutesLate)
}

func TestLedgerPersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	reg, err := schedule.NewRegistry(ctx, store)
	require.NoError(t, err)
	cls, err := reg.Add(ctx, "CM2", nil)
	require.NoError(t, err)

	led, err := NewLedger(ctx, store, reg)
	require.NoError(t, err)
	_, err = led.Mark(ctx, "stu-1", cls.ID, monday, "12:45")
	require.NoError(t, err)

	other, err := NewLedger(ctx, store, reg)
	require.NoError(t, err)
	rec := other.Lookup("stu-1", monday)
	require.NotNil(t, rec)
	assert.Equal(t, 15, rec.MinutesLate)
}
