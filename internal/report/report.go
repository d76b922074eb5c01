// Package report builds time-windowed rollups over the schedule registry,
// student directory, and arrival ledger, plus their CSV rendering.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"tardiness/internal/arrival"
	"tardiness/internal/schedule"
	"tardiness/internal/student"
)

// Reports render for a French-speaking school office.
var monthNames = [13]string{"",
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// Detail is one arrival inside a student's monthly row.
type Detail struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	MinutesLate int    `json:"minutesLate"`
}

// StudentRow is one student's rollup inside a monthly report.
type StudentRow struct {
	StudentID        string   `json:"studentId"`
	Name             string   `json:"name"`
	TotalDays        int      `json:"totalDays"`
	OnTime           int      `json:"onTime"`
	Tardies          int      `json:"tardies"`
	TotalMinutesLate int      `json:"totalMinutesLate"`
	AvgMinutesLate   int      `json:"avgMinutesLate"`
	Details          []Detail `json:"details"`
}

// Monthly is a class's full report for one calendar month.
type Monthly struct {
	ClassID     string       `json:"classId"`
	ClassName   string       `json:"className"`
	Year        int          `json:"year"`
	Month       int          `json:"month"`
	MonthName   string       `json:"monthName"`
	GeneratedAt time.Time    `json:"generatedAt"`
	Students    []StudentRow `json:"students"`
}

// SheetRow is one student's line on a daily presence sheet.
type SheetRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhotoURL    string `json:"photoUrl,omitempty"`
	Arrived     bool   `json:"arrived"`
	Time        string `json:"time,omitempty"`
	MinutesLate int    `json:"minutesLate"`
	Status      string `json:"status"`
}

// DailySheet lists every student of a class for one date.
type DailySheet struct {
	ClassID  string     `json:"classId"`
	Date     string     `json:"date"`
	Students []SheetRow `json:"students"`
}

// Aggregator reads the registry, directory, and ledger; it never mutates.
type Aggregator struct {
	registry  *schedule.Registry
	directory *student.Directory
	ledger    *arrival.Ledger
	collator  *collate.Collator
	now       func() time.Time
}

// NewAggregator builds an aggregator whose name ordering follows the given
// BCP 47 locale. An empty or unparseable locale falls back to French.
func NewAggregator(reg *schedule.Registry, dir *student.Directory, led *arrival.Ledger, locale string) *Aggregator {
	tag, err := language.Parse(locale)
	if locale == "" || err != nil {
		tag = language.French
	}
	return &Aggregator{
		registry:  reg,
		directory: dir,
		ledger:    led,
		collator:  collate.New(tag),
		now:       time.Now,
	}
}

// sortByName orders students with locale-aware collation, so names in
// accented or non-Latin scripts land where a reader expects them.
func (a *Aggregator) sortByName(students []student.Student) {
	sort.SliceStable(students, func(i, j int) bool {
		return a.collator.CompareString(students[i].Name, students[j].Name) < 0
	})
}

// monthWindow returns the inclusive first and last day of a calendar month.
func monthWindow(year, month int) (start, end string) {
	start = fmt.Sprintf("%04d-%02d-01", year, month)
	// Day zero of the next month is this month's last day.
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
	end = last.Format("2006-01-02")
	return start, end
}

// Monthly builds a class's report for year/month (1-12). Returns nil when
// the class is unknown.
func (a *Aggregator) Monthly(classID string, year, month int) *Monthly {
	if month < 1 || month > 12 {
		return nil
	}
	cls := a.registry.Get(classID)
	if cls == nil {
		return nil
	}
	start, end := monthWindow(year, month)

	students := a.directory.ListByClass(classID)
	a.sortByName(students)

	rows := make([]StudentRow, 0, len(students))
	for _, st := range students {
		row := StudentRow{StudentID: st.ID, Name: st.Name, Details: []Detail{}}
		for _, rec := range a.ledger.ForStudent(st.ID, start, end) {
			row.TotalDays++
			if rec.Status == arrival.StatusLate {
				row.Tardies++
				row.TotalMinutesLate += rec.MinutesLate
			} else {
				row.OnTime++
			}
			row.Details = append(row.Details, Detail{
				Date:        rec.Date,
				Time:        rec.Time,
				MinutesLate: rec.MinutesLate,
			})
		}
		if row.Tardies > 0 {
			row.AvgMinutesLate = int(math.Round(float64(row.TotalMinutesLate) / float64(row.Tardies)))
		}
		rows = append(rows, row)
	}

	return &Monthly{
		ClassID:     cls.ID,
		ClassName:   cls.Name,
		Year:        year,
		Month:       month,
		MonthName:   monthNames[month],
		GeneratedAt: a.now().UTC(),
		Students:    rows,
	}
}

// Daily builds the presence sheet for a class on one date. Returns nil when
// the class is unknown. Students with no arrival are marked "absent".
func (a *Aggregator) Daily(classID, date string) *DailySheet {
	cls := a.registry.Get(classID)
	if cls == nil {
		return nil
	}
	students := a.directory.ListByClass(classID)
	a.sortByName(students)

	rows := make([]SheetRow, 0, len(students))
	for _, st := range students {
		row := SheetRow{ID: st.ID, Name: st.Name, PhotoURL: st.PhotoURL, Status: "absent"}
		if rec := a.ledger.Lookup(st.ID, date); rec != nil {
			row.Arrived = true
			row.Time = rec.Time
			row.MinutesLate = rec.MinutesLate
			row.Status = rec.Status
		}
		rows = append(rows, row)
	}
	return &DailySheet{ClassID: classID, Date: date, Students: rows}
}
