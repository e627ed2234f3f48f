package calendar

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// DEADLINES
// =============================================================================
// Weekly deliveries are due by the end of the following week.
// Monthly deliveries are due on the 5th business day of the following month.

const (
	weeklyGraceDays   = 7
	weeklyWarnDays    = 3
	monthlyWarnDays   = 2
	monthlyLookback   = 3
	alertOverlapWeeks = 4
)

// WeeklyDeadline returns the last day to file the week ending on weekEnd.
func WeeklyDeadline(weekEnd Date) Date { return weekEnd.AddDays(weeklyGraceDays) }

// MonthlyDeadline returns the last day to file the given month.
func MonthlyDeadline(cal HolidayCalendar, year int, month time.Month) Date {
	next := StartOfMonth(year, month).AddMonths(1)
	return FifthBusinessDay(cal, next.Year(), next.Month())
}

// WeeklyPresentationDate is the day after the week ends, used as the
// presumed filing date of historical weekly deliveries.
func WeeklyPresentationDate(weekEnd Date) Date { return weekEnd.AddDays(1) }

// =============================================================================
// ALERTS - Pending and overdue filings
// =============================================================================

type AlertLevel string

const (
	LevelDanger  AlertLevel = "danger"
	LevelWarning AlertLevel = "warning"
	LevelInfo    AlertLevel = "info"
	LevelSuccess AlertLevel = "success"
)

var levelOrder = map[AlertLevel]int{LevelDanger: 0, LevelWarning: 1, LevelInfo: 2, LevelSuccess: 3}

type AlertType string

const (
	WeeklyPending  AlertType = "semanal_pendiente"
	WeeklyOverdue  AlertType = "semanal_vencido"
	MonthlyPending AlertType = "mensual_pendiente"
	MonthlyDueSoon AlertType = "mensual_proximo_vencer"
	MonthlyOverdue AlertType = "mensual_vencido"
)

// Alert is an operator notification about a period that still has to be filed.
type Alert struct {
	Level         AlertLevel `json:"level"`
	Type          AlertType  `json:"type"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	Period        string     `json:"period"`
	Deadline      Date       `json:"deadline"`
	DaysRemaining int        `json:"days_remaining"`
}

// AlertInput carries the filed periods (by id) and the reference day.
type AlertInput struct {
	Today       Date
	Calendar    HolidayCalendar
	FiledWeeks  map[string]bool
	FiledMonths map[string]bool
}

// Alerts lists pending filings, most urgent first.
func Alerts(in AlertInput) []Alert {
	alerts := append(weeklyAlerts(in), monthlyAlerts(in)...)
	sort.SliceStable(alerts, func(i, j int) bool {
		li, lj := levelOrder[alerts[i].Level], levelOrder[alerts[j].Level]
		if li != lj {
			return li < lj
		}
		return alerts[i].DaysRemaining < alerts[j].DaysRemaining
	})
	return alerts
}

func weeklyAlerts(in AlertInput) []Alert {
	var out []Alert
	for _, w := range WeekOptionsWithOverlap(in.Today.Year(), alertOverlapWeeks) {
		if !w.End.Before(in.Today) || in.FiledWeeks[w.ID] {
			continue
		}
		deadline := WeeklyDeadline(w.End)
		days := in.Today.DaysUntil(deadline)
		a := Alert{Type: WeeklyPending, Period: w.ID, Deadline: deadline, DaysRemaining: days}
		switch {
		case days < 0:
			a.Level, a.Type = LevelDanger, WeeklyOverdue
			a.Title = "Presentación Semanal Vencida"
			a.Message = fmt.Sprintf("La semana %s (%s) debió presentarse antes del %s.", w.ID, w.Label, deadline.Display())
		case days <= weeklyWarnDays:
			a.Level = LevelWarning
			a.Title = "Presentación Semanal Pendiente"
			a.Message = fmt.Sprintf("La semana %s debe presentarse antes del %s (%d días restantes).", w.ID, deadline.Display(), days)
		default:
			a.Level = LevelInfo
			a.Title = "Presentación Semanal Pendiente"
			a.Message = fmt.Sprintf("La semana %s está pendiente de presentación (vence el %s).", w.ID, deadline.Display())
		}
		out = append(out, a)
	}
	return out
}

func monthlyAlerts(in AlertInput) []Alert {
	var out []Alert
	current := StartOfMonth(in.Today.Year(), in.Today.Month())
	for i := 1; i <= monthlyLookback; i++ {
		m := current.AddMonths(-i)
		id := MonthID(m.Year(), int(m.Month()))
		if in.FiledMonths[id] {
			continue
		}
		deadline := MonthlyDeadline(in.Calendar, m.Year(), m.Month())
		days := in.Today.DaysUntil(deadline)
		name := fmt.Sprintf("%s %d", MonthName(m.Month()), m.Year())
		a := Alert{Period: id, Deadline: deadline, DaysRemaining: days}
		switch {
		case days < 0:
			a.Level, a.Type = LevelDanger, MonthlyOverdue
			a.Title = "Presentación Mensual Vencida"
			a.Message = fmt.Sprintf("El período %s debió presentarse antes del %s (5° día hábil).", name, deadline.Display())
		case days <= monthlyWarnDays:
			a.Level, a.Type = LevelWarning, MonthlyDueSoon
			a.Title = "Presentación Mensual Próxima a Vencer"
			a.Message = fmt.Sprintf("El período %s debe presentarse antes del %s (%d días restantes).", name, deadline.Display(), days)
		default:
			a.Level, a.Type = LevelInfo, MonthlyPending
			a.Title = "Presentación Mensual Pendiente"
			a.Message = fmt.Sprintf("El período %s está pendiente (vence el %s, 5° día hábil).", name, deadline.Display())
		}
		out = append(out, a)
	}
	return out
}
