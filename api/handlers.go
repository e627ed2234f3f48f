/*
handlers.go - HTTP API handlers for the filing system

PURPOSE:
  Exposes the filing lifecycle via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the lifecycle and validation services.

ENDPOINTS:
  Submissions:
    POST   /api/submissions/validate            Pre-creation checks
    GET    /api/submissions                     List (polls the regulator first)
    POST   /api/submissions                     Create (monthly: generates stock)
    GET    /api/submissions/{id}                Detail with rows and pending-change hint
    POST   /api/submissions/{id}/send           Two-phase send
    POST   /api/submissions/{id}/rectify        Request rectification
    POST   /api/submissions/{id}/cancel-rectification
    POST   /api/submissions/{id}/sync           Poll the regulator
    GET    /api/submissions/{id}/responses      Regulator call log

  Rows:
    POST   /api/submissions/{id}/operations     Add weekly operation
    PUT    /api/operations/{opID}               Update operation
    DELETE /api/operations/{opID}               Delete operation
    POST   /api/submissions/{id}/stocks         Add stock row
    PUT    /api/stocks/{stockID}                Update stock row
    DELETE /api/stocks/{stockID}                Delete stock row
    POST   /api/submissions/{id}/stock/generate Run the monthly rollup
    DELETE /api/submissions/{id}/stock          Clear generated stock

  Calendar:
    GET    /api/periods/weeks?year=             Week options (with overlap)
    GET    /api/periods/months?year=            Month options (with overlap)
    GET    /api/alerts                          Pending filings

  Admin:
    POST   /api/admin/import                    Import past deliveries

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, invalid state
  - 404: Submission or row not found
  - 409: Duplicate submission, rollup already running
  - 503: Regulator unavailable
  - 500: Internal errors
  Regulator rejections are not Go errors: send/rectify answer with the
  regulator's own status and body.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/ssn-filing/calendar"
	"github.com/warp/ssn-filing/config"
	"github.com/warp/ssn-filing/filing"
	"github.com/warp/ssn-filing/lifecycle"
	"github.com/warp/ssn-filing/validation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Lifecycle *lifecycle.Service
	Validator *validation.Service
	Calendar  calendar.HolidayCalendar
	Logger    *logrus.Logger
}

// NewHandler creates a new handler around the lifecycle service.
func NewHandler(svc *lifecycle.Service, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		Lifecycle: svc,
		Validator: svc.Validator,
		Calendar:  calendar.NewNationalCalendar(),
		Logger:    logger,
	}
}

func (h *Handler) today() calendar.Date { return calendar.DateOf(h.Lifecycle.Clock()) }

// =============================================================================
// SUBMISSION HANDLERS
// =============================================================================

// ValidateSubmission runs the pre-creation checks without creating anything.
func (h *Handler) ValidateSubmission(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	dt, err := filing.ParseDeliveryType(req.DeliveryType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid delivery_type", err)
		return
	}
	if h.Validator == nil {
		writeJSON(w, http.StatusOK, ValidateDTO{Valid: true, Errors: []ValidationErrorDTO{}})
		return
	}

	failures, err := h.Validator.Validate(r.Context(), dt, req.Period, filing.SubmissionID(req.ExcludeID))
	if err != nil {
		h.writeServiceError(w, "ValidateSubmission", "Failed to validate submission", err)
		return
	}
	writeJSON(w, http.StatusOK, ValidateDTO{Valid: len(failures) == 0, Errors: toValidationDTOs(failures)})
}

// ListSubmissions polls the regulator for the listed delivery type and
// returns the refreshed submissions.
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var dt filing.DeliveryType
	if raw := r.URL.Query().Get("delivery_type"); raw != "" {
		var err error
		if dt, err = filing.ParseDeliveryType(raw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid delivery_type", err)
			return
		}
	}

	if _, err := h.Lifecycle.SyncAll(ctx, dt); err != nil {
		config.LogError(h.Logger, "api", "ListSubmissions", "sync", dt, err)
	}

	subs, err := h.Lifecycle.List(ctx, filing.SubmissionFilter{DeliveryType: dt})
	if err != nil {
		h.writeServiceError(w, "ListSubmissions", "Failed to list submissions", err)
		return
	}
	dtos := make([]SubmissionDTO, len(subs))
	for i, s := range subs {
		dtos[i] = toSubmissionDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSubmission validates and creates a DRAFT submission.
func (h *Handler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req CreateSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	dt, err := filing.ParseDeliveryType(req.DeliveryType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid delivery_type", err)
		return
	}

	res, err := h.Lifecycle.Create(r.Context(), dt, req.Period)
	if err != nil {
		h.writeServiceError(w, "CreateSubmission", "Failed to create submission", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateSubmissionDTO{
		Submission: toSubmissionDTO(res.Submission),
		Rollup:     res.Rollup,
	})
}

// GetSubmission returns one submission with its rows.
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := filing.SubmissionID(chi.URLParam(r, "id"))

	if _, err := h.Lifecycle.Sync(ctx, id); err != nil && !filing.IsNotFound(err) {
		config.LogError(h.Logger, "api", "GetSubmission", "sync", id, err)
	}
	sub, err := h.Lifecycle.Get(ctx, id)
	if err != nil {
		h.writeServiceError(w, "GetSubmission", "Failed to get submission", err)
		return
	}

	dto := SubmissionDetailDTO{SubmissionDTO: toSubmissionDTO(sub)}
	if sub.DeliveryType == filing.Weekly {
		ops, err := h.Lifecycle.GetAllOperations(ctx, id)
		if err != nil {
			h.writeServiceError(w, "GetSubmission", "Failed to list operations", err)
			return
		}
		dto.Operations = make([]RowDTO, len(ops))
		for i, op := range ops {
			dto.Operations[i] = operationDTO(op)
		}
	} else {
		rows, err := h.Lifecycle.ListStocks(ctx, id)
		if err != nil {
			h.writeServiceError(w, "GetSubmission", "Failed to list stock", err)
			return
		}
		dto.Stocks = make([]RowDTO, len(rows))
		for i, s := range rows {
			dto.Stocks[i] = stockDTO(s)
		}
	}

	if dto.HasPendingChanges, err = h.Lifecycle.HasPendingChanges(ctx, id); err != nil {
		h.writeServiceError(w, "GetSubmission", "Failed to check pending changes", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// SendSubmission delivers and confirms a submission.
func (h *Handler) SendSubmission(w http.ResponseWriter, r *http.Request) {
	res, err := h.Lifecycle.Send(r.Context(), filing.SubmissionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "SendSubmission", "Failed to send submission", err)
		return
	}
	writeSendResult(w, res)
}

// RequestRectification asks the regulator to reopen a filed period.
func (h *Handler) RequestRectification(w http.ResponseWriter, r *http.Request) {
	res, err := h.Lifecycle.RequestRectification(r.Context(), filing.SubmissionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "RequestRectification", "Failed to request rectification", err)
		return
	}
	writeSendResult(w, res)
}

// CancelRectification drops rows added since the last send.
func (h *Handler) CancelRectification(w http.ResponseWriter, r *http.Request) {
	res, err := h.Lifecycle.CancelRectification(r.Context(), filing.SubmissionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "CancelRectification", "Failed to cancel rectification", err)
		return
	}
	writeJSON(w, http.StatusOK, CancelRectificationDTO{
		DeletedOperations: res.DeletedOperations,
		DeletedStocks:     res.DeletedStocks,
		Submission:        toSubmissionDTO(res.Submission),
	})
}

// SyncSubmission polls the regulator for one submission.
func (h *Handler) SyncSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := filing.SubmissionID(chi.URLParam(r, "id"))
	changed, err := h.Lifecycle.Sync(ctx, id)
	if err != nil {
		h.writeServiceError(w, "SyncSubmission", "Failed to sync submission", err)
		return
	}
	sub, err := h.Lifecycle.Get(ctx, id)
	if err != nil {
		h.writeServiceError(w, "SyncSubmission", "Failed to get submission", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": changed, "submission": toSubmissionDTO(sub)})
}

// ListResponses returns the regulator call log of a submission.
func (h *Handler) ListResponses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := filing.SubmissionID(chi.URLParam(r, "id"))
	if _, err := h.Lifecycle.Get(ctx, id); err != nil {
		h.writeServiceError(w, "ListResponses", "Failed to get submission", err)
		return
	}
	rows, err := h.Lifecycle.Responses.List(ctx, id)
	if err != nil {
		h.writeServiceError(w, "ListResponses", "Failed to list responses", err)
		return
	}
	dtos := make([]ResponseLogDTO, len(rows))
	for i, row := range rows {
		dtos[i] = ResponseLogDTO{
			Endpoint:  row.Endpoint,
			Status:    row.Status,
			IsError:   row.IsError,
			Payload:   row.Payload,
			Response:  row.Body,
			UpdatedAt: row.UpdatedAt.Format(timeLayout),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ROW HANDLERS
// =============================================================================

func decodeRow(r *http.Request) (RowRequest, error) {
	var req RowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, err
	}
	if len(req.Data) == 0 {
		return req, errors.New("missing data")
	}
	return req, nil
}

// AddOperation attaches an operation to a weekly submission.
func (h *Handler) AddOperation(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	op, err := filing.DecodeOperation(filing.OperationKind(req.Kind), req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid operation", err)
		return
	}

	saved, err := h.Lifecycle.AddOperation(r.Context(), filing.SubmissionID(chi.URLParam(r, "id")), op)
	if err != nil {
		h.writeServiceError(w, "AddOperation", "Failed to add operation", err)
		return
	}
	writeJSON(w, http.StatusCreated, operationDTO(saved))
}

func (h *Handler) UpdateOperation(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	op, err := filing.DecodeOperation(filing.OperationKind(req.Kind), req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid operation", err)
		return
	}
	op.Meta().ID = chi.URLParam(r, "opID")

	saved, err := h.Lifecycle.UpdateOperation(r.Context(), op)
	if err != nil {
		h.writeServiceError(w, "UpdateOperation", "Failed to update operation", err)
		return
	}
	writeJSON(w, http.StatusOK, operationDTO(saved))
}

func (h *Handler) DeleteOperation(w http.ResponseWriter, r *http.Request) {
	if err := h.Lifecycle.DeleteOperation(r.Context(), chi.URLParam(r, "opID")); err != nil {
		h.writeServiceError(w, "DeleteOperation", "Failed to delete operation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddStock attaches a stock row to a monthly submission.
func (h *Handler) AddStock(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	row, err := filing.DecodeStock(filing.StockKind(req.Kind), req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid stock row", err)
		return
	}

	saved, err := h.Lifecycle.AddStock(r.Context(), filing.SubmissionID(chi.URLParam(r, "id")), row)
	if err != nil {
		h.writeServiceError(w, "AddStock", "Failed to add stock", err)
		return
	}
	writeJSON(w, http.StatusCreated, stockDTO(saved))
}

func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	row, err := filing.DecodeStock(filing.StockKind(req.Kind), req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid stock row", err)
		return
	}
	row.Meta().ID = chi.URLParam(r, "stockID")

	saved, err := h.Lifecycle.UpdateStock(r.Context(), row)
	if err != nil {
		h.writeServiceError(w, "UpdateStock", "Failed to update stock", err)
		return
	}
	writeJSON(w, http.StatusOK, stockDTO(saved))
}

func (h *Handler) DeleteStock(w http.ResponseWriter, r *http.Request) {
	if err := h.Lifecycle.DeleteStock(r.Context(), chi.URLParam(r, "stockID")); err != nil {
		h.writeServiceError(w, "DeleteStock", "Failed to delete stock", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GenerateStock runs the monthly rollup. A refusal (stock already present,
// no data) answers 400 with the rollup result.
func (h *Handler) GenerateStock(w http.ResponseWriter, r *http.Request) {
	res, err := h.Lifecycle.GenerateStock(r.Context(), filing.SubmissionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "GenerateStock", "Failed to generate stock", err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, res)
}

func (h *Handler) ClearStock(w http.ResponseWriter, r *http.Request) {
	n, err := h.Lifecycle.ClearStock(r.Context(), filing.SubmissionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "ClearStock", "Failed to clear stock", err)
		return
	}
	writeJSON(w, http.StatusOK, ClearStockDTO{Deleted: n})
}

// =============================================================================
// CALENDAR HANDLERS
// =============================================================================

func (h *Handler) yearParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return h.today().Year(), nil
	}
	return strconv.Atoi(raw)
}

func toOptionDTOs(opts []calendar.Option) []OptionDTO {
	out := make([]OptionDTO, len(opts))
	for i, o := range opts {
		out[i] = OptionDTO{ID: o.ID, Label: o.Label}
	}
	return out
}

// ListWeeks returns the selectable weeks of a year, preceded by the tail of
// the previous year.
func (h *Handler) ListWeeks(w http.ResponseWriter, r *http.Request) {
	year, err := h.yearParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	writeJSON(w, http.StatusOK, PeriodOptionsDTO{
		Year:    year,
		Default: calendar.DefaultWeek(h.today()),
		Options: toOptionDTOs(calendar.WeekOptionsWithOverlap(year, weekOverlap)),
	})
}

func (h *Handler) ListMonths(w http.ResponseWriter, r *http.Request) {
	year, err := h.yearParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	writeJSON(w, http.StatusOK, PeriodOptionsDTO{
		Year:    year,
		Default: calendar.DefaultMonth(h.today()),
		Options: toOptionDTOs(calendar.MonthOptionsWithOverlap(year, monthOverlap)),
	})
}

// ListAlerts returns pending filings, most urgent first.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.Lifecycle.Alerts(r.Context(), h.Calendar)
	if err != nil {
		h.writeServiceError(w, "ListAlerts", "Failed to compute alerts", err)
		return
	}
	if alerts == nil {
		alerts = []calendar.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ImportHistory pulls past deliveries from the regulator.
func (h *Handler) ImportHistory(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	dt, err := filing.ParseDeliveryType(req.DeliveryType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid delivery_type", err)
		return
	}
	if req.Year == 0 {
		req.Year = h.today().Year()
	}

	stats, err := h.Lifecycle.ImportHistory(r.Context(), lifecycle.ImportOptions{
		DeliveryType: dt,
		Year:         req.Year,
		PeriodID:     req.PeriodID,
		DryRun:       req.DryRun,
		Force:        req.Force,
		Calendar:     h.Calendar,
	})
	if err != nil {
		h.writeServiceError(w, "ImportHistory", "Failed to import history", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// =============================================================================
// HELPERS
// =============================================================================

const (
	timeLayout   = "2006-01-02T15:04:05Z07:00"
	weekOverlap  = 4
	monthOverlap = 2
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeSendResult answers with the regulator's own status on rejection.
func writeSendResult(w http.ResponseWriter, res lifecycle.SendResult) {
	status := http.StatusOK
	if res.IsError() {
		status = res.Status
	}
	writeJSON(w, status, SendResultDTO{
		Endpoint:   res.Endpoint,
		Status:     res.Status,
		Body:       res.Body,
		Submission: toSubmissionDTO(res.Submission),
	})
}

// writeServiceError maps domain errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, funcName, message string, err error) {
	var ves filing.ValidationErrors
	if errors.As(err, &ves) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   message,
			Code:    "validation_failed",
			Details: toValidationDTOs(ves),
		})
		return
	}
	var ve *filing.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   message,
			Code:    "validation_failed",
			Details: []ValidationErrorDTO{{Field: ve.Field, Message: ve.Message}},
		})
		return
	}

	switch {
	case filing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, filing.ErrDuplicateSubmission), errors.Is(err, filing.ErrRollupInProgress):
		writeError(w, http.StatusConflict, message, err)
	case filing.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case filing.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		config.LogError(h.Logger, "api", funcName, message, nil, err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
