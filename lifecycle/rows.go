package lifecycle

import (
	"context"
	"fmt"

	"github.com/warp/ssn-filing/filing"
	"github.com/warp/ssn-filing/rollup"
)

// =============================================================================
// ROW MANAGEMENT - Operations (weekly) and stock (monthly)
// =============================================================================

func (s *Service) editable(ctx context.Context, id filing.SubmissionID, want filing.DeliveryType) (filing.Submission, error) {
	sub, err := s.Store.GetSubmission(ctx, id)
	if err != nil {
		return filing.Submission{}, err
	}
	if sub.DeliveryType != want {
		return filing.Submission{}, fmt.Errorf("%w: %s is %s", filing.ErrWrongDeliveryType, sub.Period, sub.DeliveryType)
	}
	if !sub.Editable() {
		return filing.Submission{}, fmt.Errorf("%w: %s is %s", filing.ErrNotEditable, sub.Period, sub.State)
	}
	return sub, nil
}

// AddOperation validates op and attaches it to a weekly submission.
func (s *Service) AddOperation(ctx context.Context, id filing.SubmissionID, op filing.Operation) (filing.Operation, error) {
	if _, err := s.editable(ctx, id, filing.Weekly); err != nil {
		return nil, err
	}
	if errs := op.Validate(); len(errs) > 0 {
		return nil, errs
	}

	meta := op.Meta()
	meta.ID = ""
	filing.AssignID(meta, id)
	now := s.Clock()
	meta.CreatedAt, meta.UpdatedAt = now, now
	if err := s.Store.SaveOperation(ctx, op); err != nil {
		return nil, err
	}
	s.log("AddOperation", id).WithField("kind", op.Kind()).Info("operation added")
	return op, nil
}

// UpdateOperation replaces an existing operation's fields. The kind, owner
// and creation time cannot change.
func (s *Service) UpdateOperation(ctx context.Context, op filing.Operation) (filing.Operation, error) {
	existing, err := s.Store.GetOperation(ctx, op.Meta().ID)
	if err != nil {
		return nil, err
	}
	if existing.Kind() != op.Kind() {
		return nil, &filing.ValidationError{Field: "tipo_operacion", Message: "No se puede cambiar el tipo de una operación."}
	}
	prev := existing.Meta()
	if _, err := s.editable(ctx, prev.SubmissionID, filing.Weekly); err != nil {
		return nil, err
	}
	if errs := op.Validate(); len(errs) > 0 {
		return nil, errs
	}

	meta := op.Meta()
	meta.SubmissionID = prev.SubmissionID
	meta.CreatedAt = prev.CreatedAt
	meta.UpdatedAt = s.Clock()
	if err := s.Store.SaveOperation(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

func (s *Service) DeleteOperation(ctx context.Context, opID string) error {
	existing, err := s.Store.GetOperation(ctx, opID)
	if err != nil {
		return err
	}
	if _, err := s.editable(ctx, existing.Meta().SubmissionID, filing.Weekly); err != nil {
		return err
	}
	return s.Store.DeleteOperation(ctx, opID)
}

// AddStock validates row and attaches it to a monthly submission.
func (s *Service) AddStock(ctx context.Context, id filing.SubmissionID, row filing.Stock) (filing.Stock, error) {
	if _, err := s.editable(ctx, id, filing.Monthly); err != nil {
		return nil, err
	}
	if errs := row.Validate(); len(errs) > 0 {
		return nil, errs
	}

	meta := row.Meta()
	meta.ID = ""
	filing.AssignID(meta, id)
	now := s.Clock()
	meta.CreatedAt, meta.UpdatedAt = now, now
	if err := s.Store.SaveStock(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Service) UpdateStock(ctx context.Context, row filing.Stock) (filing.Stock, error) {
	existing, err := s.Store.GetStock(ctx, row.Meta().ID)
	if err != nil {
		return nil, err
	}
	if existing.Kind() != row.Kind() {
		return nil, &filing.ValidationError{Field: "tipo", Message: "No se puede cambiar el tipo de un stock."}
	}
	prev := existing.Meta()
	if _, err := s.editable(ctx, prev.SubmissionID, filing.Monthly); err != nil {
		return nil, err
	}
	if errs := row.Validate(); len(errs) > 0 {
		return nil, errs
	}

	meta := row.Meta()
	meta.SubmissionID = prev.SubmissionID
	meta.CreatedAt = prev.CreatedAt
	meta.UpdatedAt = s.Clock()
	if err := s.Store.SaveStock(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Service) DeleteStock(ctx context.Context, stockID string) error {
	existing, err := s.Store.GetStock(ctx, stockID)
	if err != nil {
		return err
	}
	if _, err := s.editable(ctx, existing.Meta().SubmissionID, filing.Monthly); err != nil {
		return err
	}
	return s.Store.DeleteStock(ctx, stockID)
}

// ClearStock removes all stock of an editable monthly submission so it can
// be generated again.
func (s *Service) ClearStock(ctx context.Context, id filing.SubmissionID) (int, error) {
	if _, err := s.editable(ctx, id, filing.Monthly); err != nil {
		return 0, err
	}
	return s.Rollup.DeleteGenerated(ctx, id)
}

// GenerateStock runs the monthly rollup for an editable submission.
func (s *Service) GenerateStock(ctx context.Context, id filing.SubmissionID) (rollup.Result, error) {
	if _, err := s.editable(ctx, id, filing.Monthly); err != nil {
		return rollup.Result{}, err
	}
	return s.Rollup.Generate(ctx, id)
}
