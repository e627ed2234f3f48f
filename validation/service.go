/*
Package validation runs the business checks that gate creating a submission.

PURPOSE:
  Operators pick a delivery type and a schedule period; before the
  submission exists we make sure the filing sequence stays consistent with
  local records and with the regulator.

CHECKS (in order):
  1. Duplicate      - one submission per (delivery type, period). A failure
                      ends validation immediately.
  2. Sequencing     - the previous period must exist and be SUBMITTED.
                      Week 1 and the very first submission of a type pass.
  3. Remote state   - the regulator must not already hold a filing or an
                      open rectification. Skipped when earlier checks
                      failed or SkipRemote is set. Transport failures pass.
  4. Monthly data   - a monthly period needs the previous month's
                      submission or at least one weekly submission of the
                      month. Only runs when nothing failed before.

Failures are *filing.ValidationError values with the input field name the
operator UI attaches the message to.

SEE ALSO:
  - filing/period.go: Previous() and Weeks()
  - regulator/deliveries.go: QueryState
*/
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/warp/ssn-filing/filing"
	"github.com/warp/ssn-filing/regulator"
)

type Service struct {
	Store   filing.Store
	Remote  regulator.Getter
	Company string
	Logger  *logrus.Logger

	// SkipRemote disables the regulator check (offline runs, tests).
	SkipRemote bool
}

func NewService(store filing.Store, remote regulator.Getter, company string, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{Store: store, Remote: remote, Company: company, Logger: logger, SkipRemote: remote == nil}
}

// Validate returns the ordered failures for creating (dt, period). An empty
// result means creation may proceed. excludeID skips the record being
// edited in the duplicate check. Store failures are returned as errors.
func (s *Service) Validate(ctx context.Context, dt filing.DeliveryType, period string, excludeID filing.SubmissionID) ([]*filing.ValidationError, error) {
	field := dt.PeriodField()
	p, err := filing.ParsePeriod(dt, period)
	if err != nil {
		return []*filing.ValidationError{{Field: field, Message: fmt.Sprintf("Cronograma inválido: %s", period)}}, nil
	}
	period = p.String()

	var failures []*filing.ValidationError

	dup, err := s.checkDuplicate(ctx, dt, period, excludeID)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return append(failures, dup), nil
	}

	seq, err := s.checkSequence(ctx, p)
	if err != nil {
		return nil, err
	}
	if seq != nil {
		failures = append(failures, seq)
	}

	if len(failures) == 0 && !s.SkipRemote {
		if f := s.checkRemote(ctx, dt, period); f != nil {
			failures = append(failures, f)
		}
	}

	if dt == filing.Monthly && len(failures) == 0 {
		f, err := s.checkMonthlyData(ctx, p)
		if err != nil {
			return nil, err
		}
		if f != nil {
			failures = append(failures, f)
		}
	}
	return failures, nil
}

// =============================================================================
// CHECKS
// =============================================================================

func (s *Service) checkDuplicate(ctx context.Context, dt filing.DeliveryType, period string, excludeID filing.SubmissionID) (*filing.ValidationError, error) {
	existing, err := s.Store.FindSubmission(ctx, dt, period)
	if errors.Is(err, filing.ErrSubmissionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if excludeID != "" && existing.ID == excludeID {
		return nil, nil
	}
	return &filing.ValidationError{
		Field:   dt.PeriodField(),
		Message: fmt.Sprintf("Ya existe una solicitud %s para este cronograma.", strings.ToLower(string(dt))),
	}, nil
}

func (s *Service) checkSequence(ctx context.Context, p filing.Period) (*filing.ValidationError, error) {
	prev, ok := p.Previous()
	if !ok {
		return nil, nil
	}

	all, err := s.Store.ListSubmissions(ctx, filing.SubmissionFilter{DeliveryType: p.Type})
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	field := p.Type.PeriodField()
	predecessor, err := s.Store.FindSubmission(ctx, p.Type, prev.String())
	if errors.Is(err, filing.ErrSubmissionNotFound) {
		// ListSubmissions orders by period descending.
		return &filing.ValidationError{
			Field: field,
			Message: fmt.Sprintf("No puede crear el cronograma %s porque está saltando períodos. "+
				"El último cronograma existente es %s. Debe crear los cronogramas en orden.", p, all[0].Period),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	if predecessor.State != filing.StateSubmitted {
		return &filing.ValidationError{
			Field: field,
			Message: fmt.Sprintf("No puede crear este cronograma porque el anterior (%s) no ha sido enviado. "+
				"Estado actual: %s.", prev, predecessor.State),
		}, nil
	}
	return nil, nil
}

func (s *Service) checkRemote(ctx context.Context, dt filing.DeliveryType, period string) *filing.ValidationError {
	log := s.Logger.WithFields(logrus.Fields{"module": "validation", "func": "checkRemote", "period": period, "delivery_type": dt})

	state, resp := regulator.QueryState(ctx, s.Remote, s.Company, dt, period)
	if state == "" && resp.IsError() {
		log.WithFields(logrus.Fields{"status": resp.Status, "response": resp.Body}).Error("remote state unavailable, not blocking creation")
		return nil
	}
	log.WithFields(logrus.Fields{"remote_state": state, "status": resp.Status}).Info("remote state checked")

	switch state {
	case filing.RemoteSubmitted:
		return &filing.ValidationError{
			Field:   dt.PeriodField(),
			Message: "Este cronograma ya fue presentado en la SSN. Si necesita modificarlo, debe solicitar una rectificación.",
		}
	case filing.RemoteRectificationPending, filing.RemoteApprovedToRectify:
		return &filing.ValidationError{
			Field:   dt.PeriodField(),
			Message: fmt.Sprintf("Este cronograma tiene una rectificación pendiente en la SSN (estado: %s). Debe esperar a que se procese.", state),
		}
	}
	return nil
}

func (s *Service) checkMonthlyData(ctx context.Context, p filing.Period) (*filing.ValidationError, error) {
	prev, _ := p.Previous()
	_, err := s.Store.FindSubmission(ctx, filing.Monthly, prev.String())
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, filing.ErrSubmissionNotFound) {
		return nil, err
	}

	weekly, err := s.Store.ListSubmissions(ctx, filing.SubmissionFilter{DeliveryType: filing.Weekly, Periods: p.Weeks()})
	if err != nil {
		return nil, err
	}
	if len(weekly) > 0 {
		return nil, nil
	}
	return &filing.ValidationError{
		Field: filing.Monthly.PeriodField(),
		Message: fmt.Sprintf("No se puede crear la solicitud mensual %s: "+
			"no existe stock del mes anterior ni operaciones semanales del período.", p),
	}, nil
}
