package calendar

import (
	"sort"
	"time"
)

// =============================================================================
// HOLIDAY CALENDAR - National holidays used for business-day arithmetic
// =============================================================================

// Holiday is a non-working day.
type Holiday struct {
	Date      Date
	Name      string
	Recurring bool // same month/day every year
}

// HolidayCalendar provides holiday lookup.
type HolidayCalendar interface {
	IsHoliday(date Date) bool
	Holidays(year int) []Holiday
}

type monthDay struct {
	month time.Month
	day   int
	name  string
}

// NationalCalendar holds the fixed national holidays and a per-year table of
// moving ones (carnival, Good Friday, bridge days). The moving table must be
// extended every year.
type NationalCalendar struct {
	fixed  []monthDay
	moving map[int][]Holiday
}

// NewNationalCalendar returns the Argentine national calendar with moving
// holidays loaded for the years currently known.
func NewNationalCalendar() *NationalCalendar {
	c := &NationalCalendar{
		fixed: []monthDay{
			{time.January, 1, "Año Nuevo"},
			{time.March, 24, "Día de la Memoria"},
			{time.April, 2, "Día del Veterano y de los Caídos en Malvinas"},
			{time.May, 1, "Día del Trabajador"},
			{time.May, 25, "Revolución de Mayo"},
			{time.June, 20, "Día de la Bandera"},
			{time.July, 9, "Día de la Independencia"},
			{time.August, 17, "Paso a la Inmortalidad del Gral. San Martín"},
			{time.October, 12, "Día del Respeto a la Diversidad Cultural"},
			{time.November, 20, "Día de la Soberanía Nacional"},
			{time.December, 8, "Inmaculada Concepción"},
			{time.December, 25, "Navidad"},
		},
		moving: map[int][]Holiday{},
	}
	c.AddMoving(NewDate(2025, time.March, 3), "Carnaval")
	c.AddMoving(NewDate(2025, time.March, 4), "Carnaval")
	c.AddMoving(NewDate(2025, time.April, 18), "Viernes Santo")
	c.AddMoving(NewDate(2026, time.February, 16), "Carnaval")
	c.AddMoving(NewDate(2026, time.February, 17), "Carnaval")
	c.AddMoving(NewDate(2026, time.April, 3), "Viernes Santo")
	return c
}

// AddMoving registers a one-off holiday for its year.
func (c *NationalCalendar) AddMoving(date Date, name string) {
	c.moving[date.Year()] = append(c.moving[date.Year()], Holiday{Date: date, Name: name})
}

func (c *NationalCalendar) IsHoliday(date Date) bool {
	for _, f := range c.fixed {
		if date.Month() == f.month && date.Day() == f.day {
			return true
		}
	}
	for _, h := range c.moving[date.Year()] {
		if h.Date.Equal(date) {
			return true
		}
	}
	return false
}

func (c *NationalCalendar) Holidays(year int) []Holiday {
	out := make([]Holiday, 0, len(c.fixed)+len(c.moving[year]))
	for _, f := range c.fixed {
		out = append(out, Holiday{Date: NewDate(year, f.month, f.day), Name: f.name, Recurring: true})
	}
	out = append(out, c.moving[year]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// =============================================================================
// BUSINESS DAYS
// =============================================================================

// IsBusinessDay reports whether d is neither a weekend day nor a holiday.
// A nil calendar only excludes weekends.
func IsBusinessDay(cal HolidayCalendar, d Date) bool {
	if d.IsWeekend() {
		return false
	}
	return cal == nil || !cal.IsHoliday(d)
}

// NthBusinessDay returns the n-th business day (1-based) of the month.
func NthBusinessDay(cal HolidayCalendar, year int, month time.Month, n int) Date {
	d := StartOfMonth(year, month)
	count := 0
	for {
		if IsBusinessDay(cal, d) {
			count++
			if count >= n {
				return d
			}
		}
		d = d.AddDays(1)
	}
}

// FifthBusinessDay is the monthly filing deadline rule.
func FifthBusinessDay(cal HolidayCalendar, year int, month time.Month) Date {
	return NthBusinessDay(cal, year, month, 5)
}
