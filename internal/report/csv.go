package report

import (
	"fmt"
	"math"
	"strings"
)

// csvHeader is a fixed downstream contract, including the space before
// "Moyenne". Do not normalize it.
const csvHeader = "Nom,Délais,Retards,Minutes de retard, Moyenne"

// CSV renders a monthly report as the fixed comma-separated text consumed by
// the school office tooling. Fields are emitted verbatim, without RFC 4180
// quoting; a comma inside a student name would corrupt its row.
func CSV(r *Monthly) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Rapport de retards - %s - %s %d\n", r.ClassName, r.MonthName, r.Year)
	b.WriteString("\n")
	b.WriteString(csvHeader + "\n")

	var sumDays, sumTardies, sumMinutes int
	for _, row := range r.Students {
		fmt.Fprintf(&b, "%s,%d,%d,%d,%d\n",
			row.Name, row.TotalDays, row.Tardies, row.TotalMinutesLate, row.AvgMinutesLate)
		sumDays += row.TotalDays
		sumTardies += row.Tardies
		sumMinutes += row.TotalMinutesLate
	}

	avg := 0
	if sumTardies > 0 {
		avg = int(math.Round(float64(sumMinutes) / float64(sumTardies)))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total,%d,%d,%d,%d\n", sumDays, sumTardies, sumMinutes, avg)

	return b.String()
}
