/*
errors.go - Centralized error types for filings

PURPOSE:
  All error types in one place for consistency and discoverability.
  Service packages wrap these with context; the API maps them to status codes.

ERROR CATEGORIES:
  1. Lookup errors - missing submissions, operations, stock rows
  2. Consistency errors - duplicates, sequencing, non-editable states
  3. Field errors - per-field business rule violations (ValidationError)
  4. Remote errors - regulator rejections (RemoteError)

SEE ALSO:
  - validate.go: produces ValidationError
  - lifecycle/: produces RemoteError
*/
package filing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrSubmissionNotFound narrows ErrNotFound to submissions.
	ErrSubmissionNotFound = fmt.Errorf("submission %w", ErrNotFound)

	// ErrDuplicateSubmission enforces one submission per (delivery type, period).
	ErrDuplicateSubmission = errors.New("submission already exists for delivery type and period")

	// ErrNotEditable is returned when changing rows of a SUBMITTED or
	// RECTIFICATION_PENDING submission.
	ErrNotEditable = errors.New("submission is not editable in its current state")

	ErrInvalidPeriod       = errors.New("invalid schedule period")
	ErrInvalidDeliveryType = errors.New("invalid delivery type")

	// ErrWrongDeliveryType is returned when an operation is attached to a
	// monthly submission or a stock row to a weekly one.
	ErrWrongDeliveryType = errors.New("row kind does not match submission delivery type")

	// ErrInvalidState is returned when a transition is not allowed from the
	// current remote or local state.
	ErrInvalidState = errors.New("invalid state for transition")

	// ErrRollupInProgress is returned when another rollup holds the target lock.
	ErrRollupInProgress = errors.New("stock generation already in progress for submission")

	// ErrStockAlreadyExists guards rollup idempotency.
	ErrStockAlreadyExists = errors.New("submission already has stock rows")

	ErrNotMonthly   = errors.New("submission is not monthly")
	ErrNoOperations = errors.New("no operations to send")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError is a business rule violation attached to an input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every field violation of one record.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	if len(es) == 0 {
		return "validation failed"
	}
	if len(es) == 1 {
		return es[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", es[0].Error(), len(es)-1)
}

// RemoteError is a regulator response with status >= 400. Body is the raw
// decoded payload, surfaced unmodified.
type RemoteError struct {
	Endpoint string
	Status   int
	Body     map[string]any
}

func (e *RemoteError) Error() string {
	if msg, ok := e.Body["error"]; ok {
		return fmt.Sprintf("%s: status %d: %v", e.Endpoint, e.Status, msg)
	}
	return fmt.Sprintf("%s: status %d", e.Endpoint, e.Status)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError returns true if the error is due to invalid client input or
// a local consistency rule.
func IsClientError(err error) bool {
	var ve *ValidationError
	var ves ValidationErrors
	return errors.As(err, &ve) || errors.As(err, &ves) ||
		errors.Is(err, ErrDuplicateSubmission) ||
		errors.Is(err, ErrNotEditable) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidDeliveryType) ||
		errors.Is(err, ErrWrongDeliveryType) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrStockAlreadyExists) ||
		errors.Is(err, ErrNotMonthly) ||
		errors.Is(err, ErrNoOperations)
}

// IsRetryable returns true if the operator may simply try again later.
func IsRetryable(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status == 503
	}
	return errors.Is(err, ErrRollupInProgress)
}
