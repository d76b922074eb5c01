package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tardiness/internal/arrival"
	"tardiness/internal/kvstore"
	"tardiness/internal/schedule"
	"tardiness/internal/student"
)

type fixture struct {
	registry  *schedule.Registry
	directory *student.Directory
	ledger    *arrival.Ledger
	reports   *Aggregator
	class     schedule.Class
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := kvstore.NewMemory()

	reg, err := schedule.NewRegistry(ctx, store)
	require.NoError(t, err)
	cls, err := reg.Add(ctx, "CM2", nil)
	require.NoError(t, err)
	dir, err := student.NewDirectory(ctx, store)
	require.NoError(t, err)
	led, err := arrival.NewLedger(ctx, store, reg)
	require.NoError(t, err)

	return &fixture{
		registry:  reg,
		directory: dir,
		ledger:    led,
		reports:   NewAggregator(reg, dir, led, "fr"),
		class:     cls,
	}
}

func (f *fixture) addStudent(t *testing.T, name string) student.Student {
	t.Helper()
	st, err := f.directory.Add(context.Background(), name, f.class.ID, "")
	require.NoError(t, err)
	return st
}

func (f *fixture) mark(t *testing.T, studentID, date, at string) {
	t.Helper()
	res, err := f.ledger.Mark(context.Background(), studentID, f.class.ID, date, at)
	require.NoError(t, err)
	require.True(t, res.Created)
}

func TestMonthlyUnknownClass(t *testing.T) {
	f := newFixture(t)
	assert.Nil(t, f.reports.Monthly("missing", 2024, 1))
}

func TestMonthlyRollup(t *testing.T) {
	f := newFixture(t)
	st := f.addStudent(t, "Amal")

	// Two tardies (15 and 25 minutes) and one on-time day in January.
	f.mark(t, st.ID, "2024-01-15", "12:45")
	f.mark(t, st.ID, "2024-01-16", "12:55")
	f.mark(t, st.ID, "2024-01-17", "12:00")

	rep := f.reports.Monthly(f.class.ID, 2024, 1)
	require.NotNil(t, rep)
	assert.Equal(t, "CM2", rep.ClassName)
	assert.Equal(t, "janvier", rep.MonthName)
	assert.False(t, rep.GeneratedAt.IsZero())

	require.Len(t, rep.Students, 1)
	row := rep.Students[0]
	assert.Equal(t, 3, row.TotalDays)
	assert.Equal(t, 1, row.OnTime)
	assert.Equal(t, 2, row.Tardies)
	assert.Equal(t, 40, row.TotalMinutesLate)
	assert.Equal(t, 20, row.AvgMinutesLate)
	require.Len(t, row.Details, 3)
	assert.Equal(t, Detail{Date: "2024-01-15", Time: "12:45", MinutesLate: 15}, row.Details[0])
}

func TestMonthlyWindowLeapYear(t *testing.T) {
	f := newFixture(t)
	st := f.addStudent(t, "Amal")

	f.mark(t, st.ID, "2024-02-29", "12:45") // leap day, a Thursday
	f.mark(t, st.ID, "2024-03-01", "12:45") // next month

	rep := f.reports.Monthly(f.class.ID, 2024, 2)
	require.NotNil(t, rep)
	require.Len(t, rep.Students, 1)
	assert.Equal(t, 1, rep.Students[0].TotalDays)
	assert.Equal(t, "2024-02-29", rep.Students[0].Details[0].Date)
	assert.Equal(t, "février", rep.MonthName)
}

func TestMonthWindow(t *testing.T) {
	tests := []struct {
		year, month int
		start, end  string
	}{
		{2024, 2, "2024-02-01", "2024-02-29"},
		{2023, 2, "2023-02-01", "2023-02-28"},
		{2024, 12, "2024-12-01", "2024-12-31"},
		{2024, 4, "2024-04-01", "2024-04-30"},
	}
	for _, tt := range tests {
		start, end := monthWindow(tt.year, tt.month)
		assert.Equal(t, tt.start, start)
		assert.Equal(t, tt.end, end)
	}
}

func TestStudentsSortedWithCollation(t *testing.T) {
	f := newFixture(t)
	f.addStudent(t, "Zara")
	f.addStudent(t, "Éloise") // after "Zara" in codepoint order
	f.addStudent(t, "Amal")

	rep := f.reports.Monthly(f.class.ID, 2024, 1)
	require.NotNil(t, rep)
	names := []string{rep.Students[0].Name, rep.Students[1].Name, rep.Students[2].Name}
	assert.Equal(t, []string{"Amal", "Éloise", "Zara"}, names)
}

func TestDailySheet(t *testing.T) {
	f := newFixture(t)
	here := f.addStudent(t, "Amal")
	late := f.addStudent(t, "Bilal")
	f.addStudent(t, "Chloé")

	f.mark(t, here.ID, "2024-01-15", "12:20")
	f.mark(t, late.ID, "2024-01-15", "12:40")

	sheet := f.reports.Daily(f.class.ID, "2024-01-15")
	require.NotNil(t, sheet)
	require.Len(t, sheet.Students, 3)

	assert.Equal(t, "Amal", sheet.Students[0].Name)
	assert.True(t, sheet.Students[0].Arrived)
	assert.Equal(t, arrival.StatusOnTime, sheet.Students[0].Status)

	assert.True(t, sheet.Students[1].Arrived)
	assert.Equal(t, arrival.StatusLate, sheet.Students[1].Status)
	assert.Equal(t, 10, sheet.Students[1].MinutesLate)

	assert.False(t, sheet.Students[2].Arrived)
	assert.Equal(t, "absent", sheet.Students[2].Status)
	assert.Empty(t, sheet.Students[2].Time)
}

func TestDailySheetUnknownClass(t *testing.T) {
	f := newFixture(t)
	assert.Nil(t, f.reports.Daily("missing", "2024-01-15"))
}

func TestGeneratedAtUsesClock(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f.reports.now = func() time.Time { return at }

	rep := f.reports.Monthly(f.class.ID, 2024, 2)
	require.NotNil(t, rep)
	assert.Equal(t, at, rep.GeneratedAt)
}
