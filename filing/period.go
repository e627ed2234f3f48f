package filing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/warp/ssn-filing/calendar"
)

// =============================================================================
// PERIOD - Schedule period identifiers
// =============================================================================

// Period is a parsed schedule period: an ISO week ("YYYY-WW") for weekly
// deliveries or a calendar month ("YYYY-MM") for monthly ones.
type Period struct {
	Type  DeliveryType
	Year  int
	Index int // ISO week (1..53) or month (1..12)
}

// ParsePeriod validates id against the delivery type.
func ParsePeriod(dt DeliveryType, id string) (Period, error) {
	parts := strings.Split(id, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, id)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, id)
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, id)
	}
	p := Period{Type: dt, Year: year, Index: index}
	switch dt {
	case Weekly:
		if index < 1 || index > calendar.ISOWeeksInYear(year) {
			return Period{}, fmt.Errorf("%w: week %q out of range", ErrInvalidPeriod, id)
		}
	case Monthly:
		if index < 1 || index > 12 {
			return Period{}, fmt.Errorf("%w: month %q out of range", ErrInvalidPeriod, id)
		}
	default:
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidDeliveryType, dt)
	}
	return p, nil
}

// MustPeriod is ParsePeriod for literals known to be valid.
func MustPeriod(dt DeliveryType, id string) Period {
	p, err := ParsePeriod(dt, id)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Period) String() string { return fmt.Sprintf("%d-%02d", p.Year, p.Index) }

// Previous returns the immediately preceding period. Months wrap to December
// of the prior year; week 1 has no predecessor (ok = false).
func (p Period) Previous() (Period, bool) {
	switch p.Type {
	case Monthly:
		if p.Index == 1 {
			return Period{Type: Monthly, Year: p.Year - 1, Index: 12}, true
		}
		return Period{Type: Monthly, Year: p.Year, Index: p.Index - 1}, true
	case Weekly:
		if p.Index == 1 {
			return Period{}, false
		}
		return Period{Type: Weekly, Year: p.Year, Index: p.Index - 1}, true
	}
	return Period{}, false
}

// Start and End bound the period in calendar days.
func (p Period) Start() calendar.Date {
	if p.Type == Weekly {
		start, _ := calendar.ISOWeekRange(p.Year, p.Index)
		return start
	}
	return calendar.StartOfMonth(p.Year, time.Month(p.Index))
}

func (p Period) End() calendar.Date {
	if p.Type == Weekly {
		_, end := calendar.ISOWeekRange(p.Year, p.Index)
		return end
	}
	return calendar.EndOfMonth(p.Year, time.Month(p.Index))
}

// Weeks maps a monthly period to the ISO week ids whose date range touches
// the month. Boundary weeks keep their own ISO year, so December may include
// "YYYY+1-01" and January may include "YYYY-1-52" or "YYYY-1-53".
func (p Period) Weeks() []string {
	if p.Type != Monthly {
		return nil
	}
	weeks := calendar.WeeksOverlapping(p.Start(), p.End())
	ids := make([]string, len(weeks))
	for i, w := range weeks {
		ids[i] = calendar.WeekID(w.Year, w.Week)
	}
	return ids
}
