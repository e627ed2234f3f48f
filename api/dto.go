/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Submissions are
  flattened into SubmissionDTO; operations and stock rows travel as a
  kind code plus the row's own JSON so the closed sum types survive the
  round trip.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

ROW BODIES:
  {"kind": "C", "data": {"tipo_especie": "ON", ...}}
  kind is the regulator's code (C/V/J/P for operations, I/P/C for stock).

SEE ALSO:
  - handlers.go: Uses these types
  - filing/codec.go: kind + JSON decoding
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/ssn-filing/filing"
	"github.com/warp/ssn-filing/rollup"
)

// =============================================================================
// SUBMISSIONS
// =============================================================================

// SubmissionDTO represents a submission in API responses.
type SubmissionDTO struct {
	ID           string  `json:"id"`
	CompanyCode  string  `json:"company_code"`
	DeliveryType string  `json:"delivery_type"`
	Period       string  `json:"period"`
	State        string  `json:"state"`
	Editable     bool    `json:"editable"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	SentAt       *string `json:"sent_at,omitempty"`
}

func toSubmissionDTO(s filing.Submission) SubmissionDTO {
	dto := SubmissionDTO{
		ID:           string(s.ID),
		CompanyCode:  s.CompanyCode,
		DeliveryType: string(s.DeliveryType),
		Period:       s.Period,
		State:        string(s.State),
		Editable:     s.Editable(),
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    s.UpdatedAt.Format(time.RFC3339),
	}
	if s.SentAt != nil {
		sent := s.SentAt.Format(time.RFC3339)
		dto.SentAt = &sent
	}
	return dto
}

// SubmissionDetailDTO adds the rows and the pending-change hint.
type SubmissionDetailDTO struct {
	SubmissionDTO
	Operations        []RowDTO `json:"operations,omitempty"`
	Stocks            []RowDTO `json:"stocks,omitempty"`
	HasPendingChanges bool     `json:"has_pending_changes"`
}

// CreateSubmissionRequest is the request to create a submission.
type CreateSubmissionRequest struct {
	DeliveryType string `json:"delivery_type"`
	Period       string `json:"period"`
}

// CreateSubmissionDTO is returned after a successful create. Rollup is set
// for monthly submissions.
type CreateSubmissionDTO struct {
	Submission SubmissionDTO  `json:"submission"`
	Rollup     *rollup.Result `json:"rollup,omitempty"`
}

// ValidateRequest checks a (delivery type, period) pair before creating it.
type ValidateRequest struct {
	DeliveryType string `json:"delivery_type"`
	Period       string `json:"period"`
	ExcludeID    string `json:"exclude_id,omitempty"`
}

type ValidateDTO struct {
	Valid  bool                 `json:"valid"`
	Errors []ValidationErrorDTO `json:"errors"`
}

type ValidationErrorDTO struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func toValidationDTOs(errs []*filing.ValidationError) []ValidationErrorDTO {
	out := make([]ValidationErrorDTO, len(errs))
	for i, e := range errs {
		out[i] = ValidationErrorDTO{Field: e.Field, Message: e.Message}
	}
	return out
}

// SendResultDTO wraps a regulator round trip.
type SendResultDTO struct {
	Endpoint   string         `json:"endpoint,omitempty"`
	Status     int            `json:"status"`
	Body       map[string]any `json:"body"`
	Submission SubmissionDTO  `json:"submission"`
}

type CancelRectificationDTO struct {
	DeletedOperations int           `json:"deleted_operations"`
	DeletedStocks     int           `json:"deleted_stocks"`
	Submission        SubmissionDTO `json:"submission"`
}

// =============================================================================
// ROWS
// =============================================================================

// RowRequest carries one operation or stock row.
type RowRequest struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// RowDTO represents an operation or stock row in API responses.
type RowDTO struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Label string `json:"label"`
	Data  any    `json:"data"`
}

func operationDTO(op filing.Operation) RowDTO {
	return RowDTO{ID: op.Meta().ID, Kind: string(op.Kind()), Label: op.Kind().String(), Data: op}
}

func stockDTO(s filing.Stock) RowDTO {
	return RowDTO{ID: s.Meta().ID, Kind: string(s.Kind()), Label: s.Kind().String(), Data: s}
}

type ClearStockDTO struct {
	Deleted int `json:"deleted"`
}

// =============================================================================
// RESPONSES / CALENDAR / IMPORT
// =============================================================================

// ResponseLogDTO is one audited regulator call.
type ResponseLogDTO struct {
	Endpoint  string          `json:"endpoint"`
	Status    int             `json:"status"`
	IsError   bool            `json:"is_error"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
	UpdatedAt string          `json:"updated_at"`
}

type PeriodOptionsDTO struct {
	Year    int         `json:"year"`
	Default string      `json:"default"`
	Options []OptionDTO `json:"options"`
}

type OptionDTO struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ImportRequest pulls past deliveries from the regulator.
type ImportRequest struct {
	DeliveryType string `json:"delivery_type"`
	Year         int    `json:"year"`
	PeriodID     string `json:"period_id,omitempty"`
	DryRun       bool   `json:"dry_run"`
	Force        bool   `json:"force"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
