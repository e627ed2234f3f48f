package lifecycle

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/warp/ssn-filing/filing"
	"github.com/warp/ssn-filing/regulator"
)

// =============================================================================
// SYNC - Local state follows the regulator
// =============================================================================

// Sync copies the regulator's state onto the submission and reports whether
// it changed. Unsent drafts are not polled. Failed queries, missing estado,
// NO_PRESENTADO and VACIO for a sent submission leave the state as is.
func (s *Service) Sync(ctx context.Context, id filing.SubmissionID) (bool, error) {
	sub, err := s.Store.GetSubmission(ctx, id)
	if err != nil {
		return false, err
	}
	return s.syncOne(ctx, sub)
}

func (s *Service) syncOne(ctx context.Context, sub filing.Submission) (bool, error) {
	if sub.State == filing.StateDraft && !sub.Sent() {
		return false, nil
	}
	log := s.log("Sync", sub.ID)

	remote, resp := regulator.QueryState(ctx, s.Remote, sub.CompanyCode, sub.DeliveryType, sub.Period)
	if resp.IsError() && remote != filing.RemoteNotSubmitted {
		log.WithFields(logrus.Fields{"status": resp.Status, "response": resp.Body}).Warn("remote state unavailable")
		return false, nil
	}

	next, ok := remote.LocalState()
	if !ok || next == sub.State {
		return false, nil
	}
	if next == filing.StateDraft && sub.Sent() {
		log.WithField("remote_state", remote).Warn("ignoring empty remote delivery for a sent submission")
		return false, nil
	}

	log.WithFields(logrus.Fields{"from": sub.State, "to": next, "remote_state": remote}).Info("state synchronized")
	sub.State = next
	sub.UpdatedAt = s.Clock()
	if err := s.Store.UpdateSubmission(ctx, sub); err != nil {
		return false, err
	}
	return true, nil
}

// SyncAll polls every submission of a delivery type, as the list view does,
// and returns how many changed state. An empty delivery type means both.
func (s *Service) SyncAll(ctx context.Context, dt filing.DeliveryType) (int, error) {
	subs, err := s.Store.ListSubmissions(ctx, filing.SubmissionFilter{DeliveryType: dt})
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, sub := range subs {
		ok, err := s.syncOne(ctx, sub)
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}
