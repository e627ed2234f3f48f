/*
Package calendar provides the date arithmetic used around regulatory filings.

PURPOSE:
  Filings are scheduled by ISO week (weekly deliveries) and calendar month
  (monthly deliveries). Deadlines are counted in business days against the
  national holiday table. Everything in this package is pure: no clock is
  read implicitly, callers pass "today" in.

KEY CONCEPTS:
  - Date: a civil date (no time of day, always UTC midnight)
  - HolidayCalendar: fixed + moving national holidays, keyed by year
  - Options: selectable week/month periods for a year, with overlap windows
  - Deadlines and Alerts: when a period must be filed and how urgent it is

SEE ALSO:
  - filing/period.go: period identifiers built on top of these dates
  - validation/: consumes PreviousPeriod through filing.Period
*/
package calendar

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// DATE - Civil date at day granularity
// =============================================================================

// Date is a calendar day. The zero value is "no date".
type Date struct {
	time.Time
}

const (
	isoLayout  = "2006-01-02"
	wireLayout = "02012006"
	uiLayout   = "02/01/2006"
)

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date { return DateOf(time.Now()) }

// ParseDate accepts ISO (2006-01-02) and wire (DDMMYYYY) layouts.
func ParseDate(s string) (Date, error) {
	for _, layout := range []string{isoLayout, wireLayout, uiLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{t}, nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q", s)
}

func (d Date) Before(o Date) bool        { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool         { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool         { return d.Time.Equal(o.Time) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }

func (d Date) AddDays(n int) Date   { return Date{d.Time.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{d.Time.AddDate(0, n, 0)} }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// DaysUntil returns the signed number of days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(isoLayout)
}

// Wire renders the date as DDMMYYYY, the regulator's format.
func (d Date) Wire() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(wireLayout)
}

// Display renders the date as dd/mm/yyyy.
func (d Date) Display() string { return d.Format(uiLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		if string(b) == "null" {
			*d = Date{}
			return nil
		}
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// MONTH AND ISO WEEK BOUNDARIES
// =============================================================================

func StartOfMonth(year int, month time.Month) Date { return NewDate(year, month, 1) }

func EndOfMonth(year int, month time.Month) Date {
	return Date{time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)}
}

// ISOWeekRange returns the Monday and Sunday of ISO week `week` of ISO year `year`.
func ISOWeekRange(year, week int) (Date, Date) {
	// January 4th is always in ISO week 1.
	jan4 := NewDate(year, time.January, 4)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDays(-offset).AddDays((week - 1) * 7)
	return monday, monday.AddDays(6)
}

// ISOWeeksInYear returns 52 or 53. December 28th always falls in the last ISO week.
func ISOWeeksInYear(year int) int {
	_, w := NewDate(year, time.December, 28).ISOWeek()
	return w
}

// ISOWeek is an (ISO year, week number) pair.
type ISOWeek struct {
	Year int
	Week int
}

// WeeksOverlapping returns, in order, every ISO week containing at least one
// day of [from, to]. Boundary weeks keep their own ISO year, so a December
// may end with week 1 of the following year and a January may start with
// week 52 or 53 of the previous one.
func WeeksOverlapping(from, to Date) []ISOWeek {
	var weeks []ISOWeek
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		y, w := d.ISOWeek()
		if n := len(weeks); n > 0 && weeks[n-1].Year == y && weeks[n-1].Week == w {
			continue
		}
		weeks = append(weeks, ISOWeek{Year: y, Week: w})
	}
	return weeks
}
