/*
Package filing provides the core model for regulatory filings.

PURPOSE:
  A Submission is one filing unit for a (delivery type, schedule period)
  pair. Weekly submissions own Operations (purchases, sales, swaps and
  fixed-term deposit constitutions); monthly submissions own Stock rows
  (month-end positions). The regulator keeps its own lifecycle state for
  each period; the local state is a projection of it.

KEY CONCEPTS IN THIS FILE (types.go):
  - DeliveryType: Weekly ("Semanal") or Monthly ("Mensual")
  - LocalState / RemoteState and the fixed mapping between them
  - Submission: the filing record itself

DESIGN PRINCIPLES:
  1. Remote is authoritative: LocalState is only overwritten from a mapped
     RemoteState, never derived from local edits
  2. Precision: quantities and prices use decimal.Decimal
  3. Closed kinds: operations and stocks are sealed sum types (operation.go, stock.go)

SEE ALSO:
  - period.go: schedule period identifiers
  - store.go: persistence interfaces
  - lifecycle/: the transitions between states
*/
package filing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SubmissionID string

func NewSubmissionID() SubmissionID { return SubmissionID(uuid.NewString()) }

// =============================================================================
// DELIVERY TYPE
// =============================================================================

// DeliveryType is the filing cadence. The values are the regulator's own
// spelling and appear verbatim in endpoint names (entregaSemanal, ...).
type DeliveryType string

const (
	Weekly  DeliveryType = "Semanal"
	Monthly DeliveryType = "Mensual"
)

func ParseDeliveryType(s string) (DeliveryType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "semanal", "weekly":
		return Weekly, nil
	case "mensual", "monthly":
		return Monthly, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDeliveryType, s)
}

func (d DeliveryType) Valid() bool { return d == Weekly || d == Monthly }

// PeriodField is the input field name operators attach period errors to.
func (d DeliveryType) PeriodField() string {
	if d == Monthly {
		return "cronograma_mensual"
	}
	return "cronograma_semanal"
}

// =============================================================================
// STATES
// =============================================================================

// LocalState is the cached lifecycle state of a Submission.
//
//	DRAFT -> LOADED -> SUBMITTED -> RECTIFICATION_PENDING -> APPROVED_TO_RECTIFY -> SUBMITTED
type LocalState string

const (
	StateDraft                LocalState = "BORRADOR"
	StateLoaded               LocalState = "CARGADO"
	StateSubmitted            LocalState = "PRESENTADO"
	StateRectificationPending LocalState = "RECTIFICACION_PENDIENTE"
	StateApprovedToRectify    LocalState = "A_RECTIFICAR"
)

// Editable reports whether operations or stock may be changed in this state.
func (s LocalState) Editable() bool {
	switch s {
	case StateDraft, StateLoaded, StateApprovedToRectify:
		return true
	}
	return false
}

// RemoteState is the regulator's lifecycle state for a period.
type RemoteState string

const (
	RemoteEmpty                RemoteState = "VACIO"
	RemoteNotSubmitted         RemoteState = "NO_PRESENTADO" // synthetic: the regulator has no delivery
	RemoteLoaded               RemoteState = "CARGADO"
	RemoteSubmitted            RemoteState = "PRESENTADO"
	RemoteRectificationPending RemoteState = "RECTIFICACION_PENDIENTE"
	RemoteApprovedToRectify    RemoteState = "A_RECTIFICAR"
)

// LocalState maps the remote state onto the local one. ok is false for
// states with no local counterpart (NOT_SUBMITTED, unknown values).
func (r RemoteState) LocalState() (LocalState, bool) {
	switch r {
	case RemoteEmpty:
		return StateDraft, true
	case RemoteLoaded:
		return StateLoaded, true
	case RemoteSubmitted:
		return StateSubmitted, true
	case RemoteRectificationPending:
		return StateRectificationPending, true
	case RemoteApprovedToRectify:
		return StateApprovedToRectify, true
	}
	return "", false
}

// Filed reports whether the regulator already holds a filing that blocks a
// fresh creation of the same period.
func (r RemoteState) Filed() bool {
	return r == RemoteSubmitted || r == RemoteRectificationPending || r == RemoteApprovedToRectify
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Timestamps is embedded in every persisted record.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Submission is one filing for a (DeliveryType, Period) pair.
type Submission struct {
	ID           SubmissionID `json:"id"`
	CompanyCode  string       `json:"company_code"`
	DeliveryType DeliveryType `json:"delivery_type"`
	Period       string       `json:"period"`
	State        LocalState   `json:"state"`
	Timestamps
	SentAt *time.Time `json:"sent_at,omitempty"`
}

// NewSubmission creates a DRAFT submission. The period must already be valid
// for the delivery type.
func NewSubmission(company string, dt DeliveryType, period string, now time.Time) Submission {
	return Submission{
		ID:           NewSubmissionID(),
		CompanyCode:  company,
		DeliveryType: dt,
		Period:       period,
		State:        StateDraft,
		Timestamps:   Timestamps{CreatedAt: now, UpdatedAt: now},
	}
}

func (s Submission) Editable() bool { return s.State.Editable() }
func (s Submission) Sent() bool     { return s.SentAt != nil }

func (s Submission) String() string {
	return fmt.Sprintf("%s %s (%s)", s.DeliveryType, s.Period, s.State)
}
