package calendar

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD OPTIONS - Selectable weeks and months for a year
// =============================================================================

// Option is one selectable filing period.
type Option struct {
	ID    string `json:"id"`    // "YYYY-WW" or "YYYY-MM"
	Label string `json:"label"` // "dd/mm/yyyy - dd/mm/yyyy" or "Enero 2025"
	Start Date   `json:"start"`
	End   Date   `json:"end"`
}

var monthNames = [...]string{
	"", "Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// MonthName returns the Spanish month name used in operator-facing labels.
func MonthName(m time.Month) string { return monthNames[m] }

func WeekID(year, week int) string   { return fmt.Sprintf("%d-%02d", year, week) }
func MonthID(year, month int) string { return fmt.Sprintf("%d-%02d", year, month) }

// WeekOptions lists every ISO week of the ISO year, Monday to Sunday.
func WeekOptions(year int) []Option {
	n := ISOWeeksInYear(year)
	out := make([]Option, 0, n)
	for w := 1; w <= n; w++ {
		start, end := ISOWeekRange(year, w)
		out = append(out, Option{
			ID:    WeekID(year, w),
			Label: start.Display() + " - " + end.Display(),
			Start: start,
			End:   end,
		})
	}
	return out
}

// MonthOptions lists the twelve months of the year.
func MonthOptions(year int) []Option {
	out := make([]Option, 0, 12)
	for m := time.January; m <= time.December; m++ {
		out = append(out, Option{
			ID:    MonthID(year, int(m)),
			Label: fmt.Sprintf("%s %d", MonthName(m), year),
			Start: StartOfMonth(year, m),
			End:   EndOfMonth(year, m),
		})
	}
	return out
}

// WeekOptionsWithOverlap prepends the last `overlap` weeks of the previous
// year, for the transition period when those are still being filed.
func WeekOptionsWithOverlap(year, overlap int) []Option {
	return withTail(WeekOptions(year-1), WeekOptions(year), overlap)
}

// MonthOptionsWithOverlap prepends the last `overlap` months of the previous year.
func MonthOptionsWithOverlap(year, overlap int) []Option {
	return withTail(MonthOptions(year-1), MonthOptions(year), overlap)
}

func withTail(prev, current []Option, n int) []Option {
	if n > len(prev) {
		n = len(prev)
	}
	out := make([]Option, 0, n+len(current))
	out = append(out, prev[len(prev)-n:]...)
	return append(out, current...)
}

// LastClosedWeek returns the option right before the one containing today.
// Falls back to the first option when today is in the first week or outside
// the list.
func LastClosedWeek(options []Option, today Date) string {
	if len(options) == 0 {
		return ""
	}
	for i, o := range options {
		if today.AfterOrEqual(o.Start) && today.BeforeOrEqual(o.End) {
			if i > 0 {
				return options[i-1].ID
			}
			break
		}
	}
	return options[0].ID
}

// DefaultWeek is the ISO week before today's.
func DefaultWeek(today Date) string {
	y, w := today.AddDays(-7).ISOWeek()
	return WeekID(y, w)
}

// DefaultMonth is the month before today's.
func DefaultMonth(today Date) string {
	prev := StartOfMonth(today.Year(), today.Month()).AddDays(-1)
	return MonthID(prev.Year(), int(prev.Month()))
}
