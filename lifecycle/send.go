package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/ssn-filing/filing"
	"github.com/warp/ssn-filing/payload"
	"github.com/warp/ssn-filing/regulator"
)

// =============================================================================
// SEND - Two-phase delivery
// =============================================================================

const msgNoOperations = "No hay operaciones para enviar."

// Send delivers the submission and confirms it. A weekly submission without
// operations, or a monthly one without stock, is refused before any network
// call. On success sentAt is set and the state is refreshed from the
// regulator.
func (s *Service) Send(ctx context.Context, id filing.SubmissionID) (SendResult, error) {
	log := s.log("Send", id)

	sub, err := s.Store.GetSubmission(ctx, id)
	if err != nil {
		return SendResult{}, err
	}
	if !sub.Editable() {
		msg := fmt.Sprintf("La solicitud %s no se puede procesar en su estado actual.", sub.ID)
		log.WithField("state", sub.State).Warn(msg)
		return refusal(sub, msg), nil
	}

	body, count, err := s.deliveryPayload(ctx, sub)
	if err != nil {
		return SendResult{}, err
	}
	if count == 0 {
		log.Warn("send attempted without operations")
		return refusal(sub, msgNoOperations), nil
	}

	// Re-sending an approved rectification replaces the delivery in place.
	deliver := s.Remote.Post
	if sub.State == filing.StateApprovedToRectify {
		deliver = s.Remote.Put
	}

	endpoint := regulator.DeliveryResource(sub.DeliveryType)
	log.WithFields(logrus.Fields{"endpoint": endpoint, "rows": count}).Info("delivering")
	resp := deliver(ctx, endpoint, body)
	if err := s.record(ctx, sub.ID, endpoint, body, resp); err != nil {
		return SendResult{}, err
	}
	if resp.IsError() {
		log.WithFields(logrus.Fields{"endpoint": endpoint, "status": resp.Status, "response": resp.Body}).Error("delivery rejected")
		return fromResponse(endpoint, resp, sub), nil
	}

	confirm := payload.Header(sub)
	endpoint = regulator.ConfirmResource(sub.DeliveryType)
	log.WithField("endpoint", endpoint).Info("confirming delivery")
	resp = s.Remote.Post(ctx, endpoint, confirm)
	if err := s.record(ctx, sub.ID, endpoint, confirm, resp); err != nil {
		return SendResult{}, err
	}
	if resp.IsError() {
		log.WithFields(logrus.Fields{"endpoint": endpoint, "status": resp.Status, "response": resp.Body}).Error("confirmation rejected")
		return fromResponse(endpoint, resp, sub), nil
	}

	now := s.Clock()
	sub.SentAt = &now
	sub.UpdatedAt = now
	if err := s.Store.UpdateSubmission(ctx, sub); err != nil {
		return SendResult{}, err
	}
	log.Info("submission sent")

	if _, err := s.Sync(ctx, sub.ID); err != nil {
		return SendResult{}, err
	}
	if sub, err = s.Store.GetSubmission(ctx, sub.ID); err != nil {
		return SendResult{}, err
	}
	return fromResponse(endpoint, resp, sub), nil
}

func (s *Service) deliveryPayload(ctx context.Context, sub filing.Submission) (map[string]any, int, error) {
	if sub.DeliveryType == filing.Monthly {
		rows, err := s.Store.ListStocks(ctx, sub.ID)
		if err != nil {
			return nil, 0, err
		}
		return payload.StockDelivery(sub, rows), len(rows), nil
	}
	ops, err := s.Store.ListOperations(ctx, sub.ID)
	if err != nil {
		return nil, 0, err
	}
	return payload.Delivery(sub, ops), len(ops), nil
}

func (s *Service) record(ctx context.Context, id filing.SubmissionID, endpoint string, body any, resp regulator.Response) error {
	if s.Responses == nil {
		return nil
	}
	if err := s.Responses.Record(ctx, id, endpoint, body, resp.Body, resp.Status); err != nil {
		return fmt.Errorf("log %s response: %w", endpoint, err)
	}
	return nil
}

// =============================================================================
// RECTIFICATION
// =============================================================================

// RequestRectification asks the regulator to reopen a SUBMITTED period.
// The remote state is checked first; anything but PRESENTADO is refused.
func (s *Service) RequestRectification(ctx context.Context, id filing.SubmissionID) (SendResult, error) {
	log := s.log("RequestRectification", id)

	sub, err := s.Store.GetSubmission(ctx, id)
	if err != nil {
		return SendResult{}, err
	}

	state, resp := regulator.QueryState(ctx, s.Remote, sub.CompanyCode, sub.DeliveryType, sub.Period)
	if state == "" && resp.IsError() {
		return fromResponse(regulator.DeliveryResource(sub.DeliveryType), resp, sub), nil
	}
	if state != filing.RemoteSubmitted {
		msg := fmt.Sprintf("Solo se puede solicitar la rectificación de un cronograma presentado. Estado en la SSN: %s.", displayState(state))
		log.WithField("remote_state", state).Warn("rectification refused")
		return refusal(sub, msg), nil
	}

	body := payload.Header(sub)
	endpoint := regulator.RectifyResource(sub.DeliveryType)
	resp = s.Remote.Put(ctx, endpoint, body)
	if err := s.record(ctx, sub.ID, endpoint, body, resp); err != nil {
		return SendResult{}, err
	}
	if resp.IsError() {
		log.WithFields(logrus.Fields{"status": resp.Status, "response": resp.Body}).Error("rectification rejected")
		return fromResponse(endpoint, resp, sub), nil
	}

	sub.State = filing.StateRectificationPending
	sub.UpdatedAt = s.Clock()
	if err := s.Store.UpdateSubmission(ctx, sub); err != nil {
		return SendResult{}, err
	}
	log.Info("rectification requested")
	return fromResponse(endpoint, resp, sub), nil
}

func displayState(state filing.RemoteState) string {
	if state == "" {
		return "desconocido"
	}
	return string(state)
}

// CancelResult reports what a cancelled rectification discarded.
type CancelResult struct {
	DeletedOperations int               `json:"deleted_operations"`
	DeletedStocks     int               `json:"deleted_stocks"`
	Submission        filing.Submission `json:"submission"`
}

// CancelRectification drops every row created after the last send and
// re-reads the state from the regulator.
func (s *Service) CancelRectification(ctx context.Context, id filing.SubmissionID) (CancelResult, error) {
	sub, err := s.Store.GetSubmission(ctx, id)
	if err != nil {
		return CancelResult{}, err
	}
	if sub.SentAt == nil {
		return CancelResult{}, fmt.Errorf("%w: %s was never sent", filing.ErrInvalidState, sub.Period)
	}
	if sub.State != filing.StateRectificationPending && sub.State != filing.StateApprovedToRectify {
		return CancelResult{}, fmt.Errorf("%w: no rectification open for %s (%s)", filing.ErrInvalidState, sub.Period, sub.State)
	}

	var out CancelResult
	sentAt := *sub.SentAt
	err = s.Store.WithTx(ctx, func(tx filing.Store) error {
		var err error
		if out.DeletedOperations, err = tx.DeleteOperationsCreatedAfter(ctx, id, sentAt); err != nil {
			return err
		}
		out.DeletedStocks, err = tx.DeleteStocksCreatedAfter(ctx, id, sentAt)
		return err
	})
	if err != nil {
		return CancelResult{}, err
	}

	s.log("CancelRectification", id).WithFields(logrus.Fields{
		"operations": out.DeletedOperations,
		"stocks":     out.DeletedStocks,
		"sent_at":    sentAt.Format(time.RFC3339),
	}).Info("rectification cancelled")

	if _, err := s.Sync(ctx, id); err != nil {
		return CancelResult{}, err
	}
	if out.Submission, err = s.Store.GetSubmission(ctx, id); err != nil {
		return CancelResult{}, err
	}
	return out, nil
}
