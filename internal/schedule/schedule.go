package schedule

import "time"

// DaySchedule describes a single weekday's class window.
// StartTime/EndTime are wall-clock "HH:MM" strings and only meaningful when
// the day is enabled.
type DaySchedule struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

// Weekly maps every weekday to its window. Every day key is always present
// in the serialized form.
type Weekly struct {
	Monday    DaySchedule `json:"monday"`
	Tuesday   DaySchedule `json:"tuesday"`
	Wednesday DaySchedule `json:"wednesday"`
	Thursday  DaySchedule `json:"thursday"`
	Friday    DaySchedule `json:"friday"`
	Saturday  DaySchedule `json:"saturday"`
	Sunday    DaySchedule `json:"sunday"`
}

// Day returns the schedule entry for a weekday (Sunday = 0).
func (w Weekly) Day(d time.Weekday) DaySchedule {
	switch d {
	case time.Monday:
		return w.Monday
	case time.Tuesday:
		return w.Tuesday
	case time.Wednesday:
		return w.Wednesday
	case time.Thursday:
		return w.Thursday
	case time.Friday:
		return w.Friday
	case time.Saturday:
		return w.Saturday
	default:
		return w.Sunday
	}
}

// DefaultWeekly returns the schedule new classes start with:
// Monday through Saturday 12:30-14:20, Sunday off.
func DefaultWeekly() Weekly {
	open := DaySchedule{Enabled: true, StartTime: "12:30", EndTime: "14:20"}
	return Weekly{
		Monday:    open,
		Tuesday:   open,
		Wednesday: open,
		Thursday:  open,
		Friday:    open,
		Saturday:  open,
		Sunday:    DaySchedule{Enabled: false},
	}
}

// Class is a group of students sharing one weekly schedule.
type Class struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Schedule  Weekly    `json:"schedule"`
	CreatedAt time.Time `json:"createdAt"`
}
