package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/ssn-filing/calendar"
	"github.com/warp/ssn-filing/filing"
	"github.com/warp/ssn-filing/payload"
	"github.com/warp/ssn-filing/regulator"
)

// =============================================================================
// HISTORY IMPORT - Pull past deliveries from the regulator
// =============================================================================

// ImportOptions selects which past periods to pull.
type ImportOptions struct {
	DeliveryType filing.DeliveryType
	Year         int
	// PeriodID restricts the import to one period; its presentation date is
	// still derived from the calendar.
	PeriodID string
	DryRun   bool
	// Force replaces periods that already exist locally.
	Force    bool
	Calendar calendar.HolidayCalendar
}

// ImportStats summarizes an import run.
type ImportStats struct {
	Processed   int      `json:"processed"`
	Created     int      `json:"created"`
	Skipped     int      `json:"skipped"`
	Errors      int      `json:"errors"`
	RowsCreated int      `json:"rows_created"`
	Failures    []string `json:"failures,omitempty"`
}

// ImportPeriod is one period to pull with its presumed filing date.
type ImportPeriod struct {
	ID           string
	Presentation calendar.Date
}

// ImportPeriods lists the closed periods of a year. Past years are listed
// in full; the current year stops at the last closed week or the previous
// month.
func ImportPeriods(dt filing.DeliveryType, year int, today calendar.Date, cal calendar.HolidayCalendar) []ImportPeriod {
	past := year < today.Year()
	var out []ImportPeriod

	if dt == filing.Weekly {
		weeks := calendar.WeekOptions(year)
		if len(weeks) == 0 {
			return nil
		}
		last := weeks[len(weeks)-1].ID
		if !past {
			last = calendar.LastClosedWeek(weeks, today)
		}
		for _, w := range weeks {
			out = append(out, ImportPeriod{ID: w.ID, Presentation: calendar.WeeklyPresentationDate(w.End)})
			if w.ID == last {
				break
			}
		}
		return out
	}

	for m := time.January; m <= time.December; m++ {
		if !past && (year > today.Year() || m >= today.Month()) {
			break
		}
		out = append(out, ImportPeriod{
			ID:           calendar.MonthID(year, int(m)),
			Presentation: calendar.MonthlyDeadline(cal, year, m),
		})
	}
	return out
}

// ImportHistory creates SUBMITTED submissions from the regulator's stored
// deliveries. Each period is written in its own transaction; a failing
// period is counted and the run continues.
func (s *Service) ImportHistory(ctx context.Context, opts ImportOptions) (ImportStats, error) {
	if !opts.DeliveryType.Valid() {
		return ImportStats{}, fmt.Errorf("%w: %q", filing.ErrInvalidDeliveryType, opts.DeliveryType)
	}
	if opts.Calendar == nil {
		opts.Calendar = calendar.NewNationalCalendar()
	}
	log := s.Logger.WithFields(logrus.Fields{
		"module":        "lifecycle",
		"func":          "ImportHistory",
		"delivery_type": opts.DeliveryType,
		"year":          opts.Year,
		"dry_run":       opts.DryRun,
	})

	periods := ImportPeriods(opts.DeliveryType, opts.Year, calendar.DateOf(s.Clock()), opts.Calendar)
	if opts.PeriodID != "" {
		p, err := filing.ParsePeriod(opts.DeliveryType, opts.PeriodID)
		if err != nil {
			return ImportStats{}, err
		}
		periods = []ImportPeriod{{ID: p.String(), Presentation: presentationDate(p, opts.Calendar)}}
	}
	log.WithField("periods", len(periods)).Info("importing history")

	var stats ImportStats
	for _, p := range periods {
		created, rows, err := s.importPeriod(ctx, opts, p)
		if err != nil {
			stats.Errors++
			stats.Failures = append(stats.Failures, fmt.Sprintf("%s: %v", p.ID, err))
			log.WithError(err).WithField("period", p.ID).Error("period import failed")
			continue
		}
		stats.Processed++
		if created {
			stats.Created++
			stats.RowsCreated += rows
		} else {
			stats.Skipped++
		}
	}

	log.WithFields(logrus.Fields{
		"processed": stats.Processed,
		"created":   stats.Created,
		"skipped":   stats.Skipped,
		"errors":    stats.Errors,
		"rows":      stats.RowsCreated,
	}).Info("history import finished")
	return stats, nil
}

func presentationDate(p filing.Period, cal calendar.HolidayCalendar) calendar.Date {
	if p.Type == filing.Weekly {
		return calendar.WeeklyPresentationDate(p.End())
	}
	return calendar.MonthlyDeadline(cal, p.Year, time.Month(p.Index))
}

func (s *Service) importPeriod(ctx context.Context, opts ImportOptions, p ImportPeriod) (bool, int, error) {
	dt := opts.DeliveryType
	existing, err := s.Store.FindSubmission(ctx, dt, p.ID)
	exists := err == nil
	if err != nil && !errors.Is(err, filing.ErrSubmissionNotFound) {
		return false, 0, err
	}
	if exists && !opts.Force {
		return false, 0, nil
	}

	company := s.Remote.Company()
	resp := s.Remote.Get(ctx, regulator.DeliveryResource(dt), url.Values{
		"codigoCompania": {company},
		"cronograma":     {p.ID},
	})
	if resp.Status != http.StatusOK {
		return false, 0, &filing.RemoteError{Endpoint: regulator.DeliveryResource(dt), Status: resp.Status, Body: resp.Body}
	}

	decoded, err := payload.Decode(resp.Body)
	if err != nil {
		return false, 0, err
	}
	if opts.DryRun {
		return true, decoded.Count(), nil
	}
	if decoded.CompanyCode != "" {
		company = decoded.CompanyCode
	}

	sentAt := p.Presentation.Time
	sub := filing.NewSubmission(company, dt, p.ID, sentAt)
	sub.State = filing.StateSubmitted
	sub.SentAt = &sentAt

	err = s.Store.WithTx(ctx, func(tx filing.Store) error {
		if exists {
			if err := tx.DeleteSubmission(ctx, existing.ID); err != nil {
				return err
			}
		}
		if err := tx.CreateSubmission(ctx, sub); err != nil {
			return err
		}
		for _, op := range decoded.Operations {
			stamp(op.Meta(), sub.ID, sentAt)
			if err := tx.SaveOperation(ctx, op); err != nil {
				return err
			}
		}
		rows := decoded.Stocks
		for _, r := range rows {
			stamp(r.Meta(), sub.ID, sentAt)
		}
		if len(rows) > 0 {
			return tx.InsertStocks(ctx, rows)
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return true, decoded.Count(), nil
}

// stamp dates an imported row at its filing time so later rectification
// edits are distinguishable from history.
func stamp(r *filing.Record, owner filing.SubmissionID, at time.Time) {
	r.ID = ""
	filing.AssignID(r, owner)
	r.CreatedAt, r.UpdatedAt = at, at
}
