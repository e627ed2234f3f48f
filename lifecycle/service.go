/*
Package lifecycle moves submissions through the regulator's filing process.

PURPOSE:
  Creates submissions, sends them, requests and cancels rectifications and
  keeps the cached local state in step with the regulator.

STATE FLOW:
  ┌──────────────────────────────────────────────────────────────────────┐
  │                                                                      │
  │  Create ──▶ DRAFT ──Send──▶ (regulator) ──Sync──▶ LOADED / SUBMITTED │
  │                                                                      │
  │  SUBMITTED ──RequestRectification──▶ RECTIFICATION_PENDING           │
  │                                            │                         │
  │                                          Sync (regulator approves)   │
  │                                            ▼                         │
  │                                   APPROVED_TO_RECTIFY ──Send──▶ ...  │
  │                                                                      │
  └──────────────────────────────────────────────────────────────────────┘

ONE-WAY SYNC:
  Local state is written in exactly two places: Sync, which copies the
  mapped remote state, and RequestRectification, after the regulator
  accepted the request. Local edits never change it.

SEND PROTOCOL:
  1. entrega{Type} with the full payload (POST; PUT when re-sending an
     approved rectification)
  2. confirmarEntrega{Type} with the header only
  Every call is written to the response log before the caller sees it.
  A failed call stops the protocol and leaves sentAt untouched.

FAILURES:
  Regulator rejections come back inside SendResult with the raw body and
  status. Go errors are reserved for local failures (store, encoding).

EXAMPLE:
  svc := lifecycle.New(store, client, responses, engine, validator, logger)
  created, err := svc.Create(ctx, filing.Weekly, "2025-11")
  result, err := svc.Send(ctx, created.Submission.ID)
  if result.IsError() {
      fmt.Println(result.Body["error"])
  }

SEE ALSO:
  - validation/: pre-creation checks
  - rollup/: monthly stock generation
  - responselog/: audit of regulator calls
  - history.go: importing past deliveries from the regulator
*/
package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/ssn-filing/filing"
	"github.com/warp/ssn-filing/regulator"
	"github.com/warp/ssn-filing/responselog"
	"github.com/warp/ssn-filing/rollup"
	"github.com/warp/ssn-filing/validation"
)

// Remote is the regulator API as seen by the lifecycle. *regulator.Client
// satisfies it.
type Remote interface {
	Company() string
	Get(ctx context.Context, resource string, params url.Values) regulator.Response
	Post(ctx context.Context, resource string, body any) regulator.Response
	Put(ctx context.Context, resource string, body any) regulator.Response
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store     filing.TxStore
	Remote    Remote
	Responses *responselog.Log
	Rollup    *rollup.Engine
	Validator *validation.Service
	Logger    *logrus.Logger
	Clock     func() time.Time
}

func New(
	store filing.TxStore,
	remote Remote,
	responses *responselog.Log,
	engine *rollup.Engine,
	validator *validation.Service,
	logger *logrus.Logger,
) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		Store:     store,
		Remote:    remote,
		Responses: responses,
		Rollup:    engine,
		Validator: validator,
		Logger:    logger,
		Clock:     time.Now,
	}
}

func (s *Service) log(funcName string, id filing.SubmissionID) *logrus.Entry {
	return s.Logger.WithFields(logrus.Fields{"module": "lifecycle", "func": funcName, "submission": id})
}

// SendResult is the outcome of a regulator round trip. Body and Status are
// the regulator's answer to the last call made, or a local refusal with
// status 400.
type SendResult struct {
	Endpoint   string            `json:"endpoint,omitempty"`
	Body       map[string]any    `json:"body"`
	Status     int               `json:"status"`
	Submission filing.Submission `json:"submission"`
}

func (r SendResult) IsError() bool { return r.Status >= 400 }

func refusal(sub filing.Submission, msg string) SendResult {
	return SendResult{Body: map[string]any{"error": msg}, Status: http.StatusBadRequest, Submission: sub}
}

func fromResponse(endpoint string, resp regulator.Response, sub filing.Submission) SendResult {
	return SendResult{Endpoint: endpoint, Body: resp.Body, Status: resp.Status, Submission: sub}
}

// =============================================================================
// CREATE
// =============================================================================

// CreateResult carries the new submission and, for monthly deliveries, the
// stock generation outcome.
type CreateResult struct {
	Submission filing.Submission `json:"submission"`
	Rollup     *rollup.Result    `json:"rollup,omitempty"`
}

// Create validates and stores a DRAFT submission. Validation failures are
// returned as filing.ValidationErrors. Monthly submissions get their stock
// generated right away; generation refusals are reported in the result, not
// as errors, and the submission stays created.
func (s *Service) Create(ctx context.Context, dt filing.DeliveryType, period string) (CreateResult, error) {
	p, err := filing.ParsePeriod(dt, period)
	if err != nil {
		return CreateResult{}, err
	}

	if s.Validator != nil {
		failures, err := s.Validator.Validate(ctx, dt, p.String(), "")
		if err != nil {
			return CreateResult{}, err
		}
		if len(failures) > 0 {
			return CreateResult{}, filing.ValidationErrors(failures)
		}
	}

	sub := filing.NewSubmission(s.Remote.Company(), dt, p.String(), s.Clock())
	if err := s.Store.CreateSubmission(ctx, sub); err != nil {
		return CreateResult{}, err
	}
	s.log("Create", sub.ID).WithField("period", sub.Period).Info("submission created")

	out := CreateResult{Submission: sub}
	if dt != filing.Monthly || s.Rollup == nil {
		return out, nil
	}

	result, err := s.Rollup.Generate(ctx, sub.ID)
	if err != nil {
		return out, fmt.Errorf("generate stock for %s: %w", sub.Period, err)
	}
	out.Rollup = &result
	return out, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *Service) Get(ctx context.Context, id filing.SubmissionID) (filing.Submission, error) {
	return s.Store.GetSubmission(ctx, id)
}

func (s *Service) List(ctx context.Context, filter filing.SubmissionFilter) ([]filing.Submission, error) {
	return s.Store.ListSubmissions(ctx, filter)
}

// GetAllOperations returns the operations of a weekly submission.
func (s *Service) GetAllOperations(ctx context.Context, id filing.SubmissionID) ([]filing.Operation, error) {
	if _, err := s.Store.GetSubmission(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.ListOperations(ctx, id)
}

func (s *Service) ListStocks(ctx context.Context, id filing.SubmissionID) ([]filing.Stock, error) {
	if _, err := s.Store.GetSubmission(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.ListStocks(ctx, id)
}

// HasPendingChanges reports whether an APPROVED_TO_RECTIFY submission has
// rows touched after its last send. It only drives a UI hint.
func (s *Service) HasPendingChanges(ctx context.Context, id filing.SubmissionID) (bool, error) {
	sub, err := s.Store.GetSubmission(ctx, id)
	if err != nil {
		return false, err
	}
	if sub.State != filing.StateApprovedToRectify || sub.SentAt == nil {
		return false, nil
	}
	sentAt := *sub.SentAt

	ops, err := s.Store.ListOperations(ctx, id)
	if err != nil {
		return false, err
	}
	for _, op := range ops {
		if op.Meta().UpdatedAt.After(sentAt) {
			return true, nil
		}
	}

	rows, err := s.Store.ListStocks(ctx, id)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.Meta().UpdatedAt.After(sentAt) {
			return true, nil
		}
	}
	return false, nil
}
