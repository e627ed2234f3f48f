/*
store.go - Persistence interfaces for submissions and their rows

PURPOSE:
  Defines the interface between the filing services and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  SubmissionStore: submissions, unique per (delivery type, period)
  OperationStore:  weekly operations owned by a submission
  StockStore:      monthly stock rows owned by a submission
  ResponseStore:   regulator call log, unique per (submission, endpoint)
  TxStore:         atomic multi-table writes (rollup inserts, history import)

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - filing/store/memory.go: in-memory for testing

SEE ALSO:
  - rollup/: writes stock rows inside WithTx
  - responselog/: the only writer of ResponseStore
*/
package filing

import (
	"context"
	"encoding/json"
	"time"
)

// =============================================================================
// SUBMISSIONS
// =============================================================================

// SubmissionFilter narrows ListSubmissions. Zero fields match everything.
type SubmissionFilter struct {
	DeliveryType DeliveryType
	Periods      []string
	States       []LocalState
}

type SubmissionStore interface {
	// CreateSubmission returns ErrDuplicateSubmission if (type, period) exists.
	CreateSubmission(ctx context.Context, s Submission) error
	UpdateSubmission(ctx context.Context, s Submission) error
	DeleteSubmission(ctx context.Context, id SubmissionID) error

	// GetSubmission returns ErrSubmissionNotFound if missing.
	GetSubmission(ctx context.Context, id SubmissionID) (Submission, error)
	// FindSubmission returns ErrSubmissionNotFound if no submission exists for (type, period).
	FindSubmission(ctx context.Context, dt DeliveryType, period string) (Submission, error)

	// ListSubmissions returns matches ordered by period descending.
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
}

// =============================================================================
// OPERATIONS AND STOCK
// =============================================================================

type OperationStore interface {
	// SaveOperation inserts or replaces by id.
	SaveOperation(ctx context.Context, op Operation) error
	GetOperation(ctx context.Context, id string) (Operation, error)
	DeleteOperation(ctx context.Context, id string) error
	// ListOperations returns the submission's operations in creation order.
	ListOperations(ctx context.Context, id SubmissionID) ([]Operation, error)
	// DeleteOperationsCreatedAfter removes rows created strictly after t.
	DeleteOperationsCreatedAfter(ctx context.Context, id SubmissionID, t time.Time) (int, error)
}

type StockStore interface {
	SaveStock(ctx context.Context, s Stock) error
	// InsertStocks writes rows as one batch.
	InsertStocks(ctx context.Context, rows []Stock) error
	GetStock(ctx context.Context, id string) (Stock, error)
	DeleteStock(ctx context.Context, id string) error
	ListStocks(ctx context.Context, id SubmissionID) ([]Stock, error)
	CountStocks(ctx context.Context, id SubmissionID) (int, error)
	// DeleteStocks removes every stock row of the submission and returns the count.
	DeleteStocks(ctx context.Context, id SubmissionID) (int, error)
	DeleteStocksCreatedAfter(ctx context.Context, id SubmissionID, t time.Time) (int, error)
}

// =============================================================================
// RESPONSE LOG
// =============================================================================

// Response is the latest regulator call for a (submission, endpoint) pair.
type Response struct {
	SubmissionID SubmissionID    `json:"submission_id"`
	Endpoint     string          `json:"endpoint"`
	Payload      json.RawMessage `json:"payload"`
	Body         json.RawMessage `json:"response"`
	Status       int             `json:"status"`
	IsError      bool            `json:"is_error"`
	Timestamps
}

// MaxEndpointLength bounds Response.Endpoint.
const MaxEndpointLength = 64

type ResponseStore interface {
	// UpsertResponse overwrites the row for (submission, endpoint) and keeps
	// its CreatedAt. created reports whether a new row was inserted.
	UpsertResponse(ctx context.Context, r Response) (created bool, err error)
	ListResponses(ctx context.Context, id SubmissionID) ([]Response, error)
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	SubmissionStore
	OperationStore
	StockStore
	ResponseStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
