package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ssn-filing/calendar"
)

func TestISOWeekRange(t *testing.T) {
	start, end := calendar.ISOWeekRange(2025, 1)
	assert.Equal(t, "2024-12-30", start.String())
	assert.Equal(t, "2025-01-05", end.String())

	assert.Equal(t, 52, calendar.ISOWeeksInYear(2025))
	assert.Equal(t, 53, calendar.ISOWeeksInYear(2026))
}

func TestWeeksOverlapping_YearBoundaries(t *testing.T) {
	ids := func(ws []calendar.ISOWeek) []string {
		out := make([]string, len(ws))
		for i, w := range ws {
			out[i] = calendar.WeekID(w.Year, w.Week)
		}
		return out
	}

	t.Run("december ending in week 1 of next year", func(t *testing.T) {
		weeks := calendar.WeeksOverlapping(calendar.StartOfMonth(2025, time.December), calendar.EndOfMonth(2025, time.December))
		assert.Equal(t, []string{"2025-49", "2025-50", "2025-51", "2025-52", "2026-01"}, ids(weeks))
	})

	t.Run("january starting in week 53 of previous year", func(t *testing.T) {
		weeks := calendar.WeeksOverlapping(calendar.StartOfMonth(2027, time.January), calendar.EndOfMonth(2027, time.January))
		assert.Equal(t, []string{"2026-53", "2027-01", "2027-02", "2027-03", "2027-04"}, ids(weeks))
	})

	t.Run("regular month", func(t *testing.T) {
		weeks := calendar.WeeksOverlapping(calendar.StartOfMonth(2025, time.March), calendar.EndOfMonth(2025, time.March))
		assert.Equal(t, []string{"2025-09", "2025-10", "2025-11", "2025-12", "2025-13", "2025-14"}, ids(weeks))
	})
}

func TestDate_ParseAndFormat(t *testing.T) {
	d, err := calendar.ParseDate("05032025")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-05", d.String())
	assert.Equal(t, "05032025", d.Wire())

	d, err = calendar.ParseDate("2025-03-05")
	require.NoError(t, err)
	assert.Equal(t, "05/03/2025", d.Display())

	_, err = calendar.ParseDate("March 5")
	assert.Error(t, err)
}

func TestBusinessDays(t *testing.T) {
	cal := calendar.NewNationalCalendar()

	assert.False(t, calendar.IsBusinessDay(cal, calendar.NewDate(2025, time.March, 24)), "fixed holiday")
	assert.False(t, calendar.IsBusinessDay(cal, calendar.NewDate(2025, time.April, 18)), "moving holiday")
	assert.False(t, calendar.IsBusinessDay(cal, calendar.NewDate(2025, time.March, 1)), "saturday")
	assert.True(t, calendar.IsBusinessDay(cal, calendar.NewDate(2025, time.March, 5)))

	// Carnival pushes the 5th business day of March 2025 to the 11th.
	assert.Equal(t, "2025-03-11", calendar.FifthBusinessDay(cal, 2025, time.March).String())
	assert.Equal(t, "2025-03-07", calendar.FifthBusinessDay(nil, 2025, time.March).String())
	assert.Equal(t, "2026-01-08", calendar.MonthlyDeadline(cal, 2025, time.December).String())
}

func TestHolidays_IncludesFixedAndMoving(t *testing.T) {
	cal := calendar.NewNationalCalendar()

	holidays := cal.Holidays(2026)
	assert.Len(t, holidays, 15)
	assert.Equal(t, "2026-01-01", holidays[0].Date.String())
	assert.Equal(t, "2026-12-25", holidays[len(holidays)-1].Date.String())

	assert.Len(t, cal.Holidays(2030), 12, "moving holidays are only known for loaded years")
}

func TestOptions(t *testing.T) {
	weeks := calendar.WeekOptions(2025)
	require.Len(t, weeks, 52)
	assert.Equal(t, "2025-01", weeks[0].ID)
	assert.Equal(t, "30/12/2024 - 05/01/2025", weeks[0].Label)

	overlap := calendar.WeekOptionsWithOverlap(2026, 4)
	require.Len(t, overlap, 57)
	assert.Equal(t, "2025-49", overlap[0].ID)
	assert.Equal(t, "2026-01", overlap[4].ID)

	months := calendar.MonthOptionsWithOverlap(2025, 2)
	require.Len(t, months, 14)
	assert.Equal(t, "2024-11", months[0].ID)
	assert.Equal(t, "Enero 2025", months[2].Label)
}

func TestDefaults(t *testing.T) {
	today := calendar.NewDate(2025, time.April, 16)

	assert.Equal(t, "2025-15", calendar.LastClosedWeek(calendar.WeekOptions(2025), today))
	assert.Equal(t, "2025-15", calendar.DefaultWeek(today))
	assert.Equal(t, "2024-12", calendar.DefaultMonth(calendar.NewDate(2025, time.January, 10)))

	// Outside the list falls back to the first option.
	assert.Equal(t, "2025-01", calendar.LastClosedWeek(calendar.WeekOptions(2025), calendar.NewDate(2030, 1, 1)))
}

func TestAlerts(t *testing.T) {
	cal := calendar.NewNationalCalendar()

	filedWeeks := func(year int, except ...string) map[string]bool {
		filed := map[string]bool{}
		for _, w := range calendar.WeekOptionsWithOverlap(year, 4) {
			filed[w.ID] = true
		}
		for _, id := range except {
			delete(filed, id)
		}
		return filed
	}

	t.Run("overdue filings sorted by urgency", func(t *testing.T) {
		// GIVEN: two missing weeks and a missing March
		in := calendar.AlertInput{
			Today:       calendar.NewDate(2025, time.April, 16),
			Calendar:    cal,
			FiledWeeks:  filedWeeks(2025, "2025-14", "2025-12"),
			FiledMonths: map[string]bool{"2025-01": true, "2025-02": true},
		}

		// WHEN
		alerts := calendar.Alerts(in)

		// THEN: all overdue, most days late first
		require.Len(t, alerts, 3)
		var periods []string
		for _, a := range alerts {
			assert.Equal(t, calendar.LevelDanger, a.Level)
			periods = append(periods, a.Period)
		}
		assert.Equal(t, []string{"2025-12", "2025-03", "2025-14"}, periods)
		assert.Equal(t, calendar.MonthlyOverdue, alerts[1].Type)
		assert.Equal(t, "2025-04-08", alerts[1].Deadline.String())
		assert.Equal(t, calendar.WeeklyOverdue, alerts[2].Type)
		assert.Equal(t, -3, alerts[2].DaysRemaining)
	})

	t.Run("monthly deadline close", func(t *testing.T) {
		in := calendar.AlertInput{
			Today:       calendar.NewDate(2025, time.April, 7),
			Calendar:    cal,
			FiledWeeks:  filedWeeks(2025),
			FiledMonths: map[string]bool{"2025-01": true, "2025-02": true},
		}

		alerts := calendar.Alerts(in)

		require.Len(t, alerts, 1)
		assert.Equal(t, calendar.LevelWarning, alerts[0].Level)
		assert.Equal(t, calendar.MonthlyDueSoon, alerts[0].Type)
		assert.Equal(t, 1, alerts[0].DaysRemaining)
	})

	t.Run("nothing pending", func(t *testing.T) {
		in := calendar.AlertInput{
			Today:       calendar.NewDate(2025, time.April, 7),
			Calendar:    cal,
			FiledWeeks:  filedWeeks(2025),
			FiledMonths: map[string]bool{"2025-01": true, "2025-02": true, "2025-03": true},
		}
		assert.Empty(t, calendar.Alerts(in))
	})
}
