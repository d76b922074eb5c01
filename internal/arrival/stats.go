package arrival

import "math"

// Stats is a rollup of ledger entries over an inclusive date range.
// AvgMinutesLate averages over late entries only.
type Stats struct {
	Total            int `json:"total"`
	OnTime           int `json:"onTime"`
	Late             int `json:"late"`
	TotalMinutesLate int `json:"totalMinutesLate"`
	AvgMinutesLate   int `json:"avgMinutesLate"`
}

// ClassStats extends Stats with the share of late arrivals.
type ClassStats struct {
	Stats
	LateRatePercent int `json:"lateRatePercent"`
}

// inRange reports whether date falls inside [start, end]. Empty bounds are
// open. Dates are ISO YYYY-MM-DD, so string order is chronological order.
func inRange(date, start, end string) bool {
	if start != "" && date < start {
		return false
	}
	if end != "" && date > end {
		return false
	}
	return true
}

// round is round-half-away-from-zero, which math.Round implements.
func round(q float64) int { return int(math.Round(q)) }

func accumulate(s *Stats, rec Arrival) {
	s.Total++
	if rec.Status == StatusLate {
		s.Late++
		s.TotalMinutesLate += rec.MinutesLate
	} else {
		s.OnTime++
	}
}

func (s *Stats) finalize() {
	if s.Late > 0 {
		s.AvgMinutesLate = round(float64(s.TotalMinutesLate) / float64(s.Late))
	}
}

// StudentStats rolls up one student's arrivals within [start, end].
func (l *Ledger) StudentStats(studentID, start, end string) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	var s Stats
	for _, rec := range l.arrivals {
		if rec.StudentID == studentID && inRange(rec.Date, start, end) {
			accumulate(&s, rec)
		}
	}
	s.finalize()
	return s
}

// ClassStats rolls up a class's arrivals within [start, end].
func (l *Ledger) ClassStats(classID, start, end string) ClassStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	var cs ClassStats
	for _, rec := range l.arrivals {
		if rec.ClassID == classID && inRange(rec.Date, start, end) {
			accumulate(&cs.Stats, rec)
		}
	}
	cs.finalize()
	if cs.Total > 0 {
		cs.LateRatePercent = round(float64(cs.Late) / float64(cs.Total) * 100)
	}
	return cs
}

// ForStudent returns the student's arrivals within [start, end], in ledger
// order. Used by the report aggregator.
func (l *Ledger) ForStudent(studentID, start, end string) []Arrival {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Arrival
	for _, rec := range l.arrivals {
		if rec.StudentID == studentID && inRange(rec.Date, start, end) {
			out = append(out, rec)
		}
	}
	return out
}
