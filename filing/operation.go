package filing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORD - Identity shared by operations and stock rows
// =============================================================================

type Record struct {
	ID           string       `json:"id"`
	SubmissionID SubmissionID `json:"submission_id"`
	Timestamps
}

// =============================================================================
// OPERATION - Closed sum type over weekly operation kinds
// =============================================================================

// OperationKind is the regulator's tipoOperacion code.
type OperationKind string

const (
	KindPurchase         OperationKind = "C"
	KindSale             OperationKind = "V"
	KindSwap             OperationKind = "J"
	KindFixedTermDeposit OperationKind = "P"
)

func (k OperationKind) String() string {
	switch k {
	case KindPurchase:
		return "Compra"
	case KindSale:
		return "Venta"
	case KindSwap:
		return "Canje"
	case KindFixedTermDeposit:
		return "Plazo Fijo"
	}
	return string(k)
}

// Operation is one weekly event. The set of implementations is closed:
// *Purchase, *Sale, *Swap and *FixedTermDeposit.
type Operation interface {
	Kind() OperationKind
	Meta() *Record
	// Validate checks the cross-field business rules of the kind.
	Validate() ValidationErrors
	isOperation()
}

// NewOperation returns an empty operation of the given kind.
func NewOperation(kind OperationKind) (Operation, error) {
	switch kind {
	case KindPurchase:
		return &Purchase{}, nil
	case KindSale:
		return &Sale{}, nil
	case KindSwap:
		return &Swap{}, nil
	case KindFixedTermDeposit:
		return &FixedTermDeposit{}, nil
	}
	return nil, fmt.Errorf("unknown operation kind %q", kind)
}

// AssignID gives a new record its id and owner.
func AssignID(r *Record, owner SubmissionID) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.SubmissionID = owner
}

// Purchase ("Compra") adds quantity to a security position.
type Purchase struct {
	Record
	Security
	Settlement
	Quantity decimal.Decimal `json:"cant_especies"`
	Price    decimal.Decimal `json:"precio_compra"`
}

// Sale ("Venta") removes quantity from a security position.
type Sale struct {
	Record
	Security
	Settlement
	Transfer
	Quantity decimal.Decimal `json:"cant_especies"`
	Price    decimal.Decimal `json:"precio_venta"`
}

// SwapLeg is one side of a swap: A is delivered, B is received.
type SwapLeg struct {
	Security
	Transfer
	Quantity decimal.Decimal `json:"cant_especies"`
}

// Swap ("Canje") exchanges one security for another.
type Swap struct {
	Record
	Settlement
	LegA SwapLeg `json:"detalle_a"`
	LegB SwapLeg `json:"detalle_b"`
}

// FixedTermDeposit ("Plazo Fijo") is the constitution of a deposit.
type FixedTermDeposit struct {
	Record
	Deposit
	AllocationCode string `json:"codigo_afectacion" validate:"required,max=3"`
}

func (*Purchase) Kind() OperationKind         { return KindPurchase }
func (*Sale) Kind() OperationKind             { return KindSale }
func (*Swap) Kind() OperationKind             { return KindSwap }
func (*FixedTermDeposit) Kind() OperationKind { return KindFixedTermDeposit }

func (o *Purchase) Meta() *Record         { return &o.Record }
func (o *Sale) Meta() *Record             { return &o.Record }
func (o *Swap) Meta() *Record             { return &o.Record }
func (o *FixedTermDeposit) Meta() *Record { return &o.Record }

func (*Purchase) isOperation()         {}
func (*Sale) isOperation()             {}
func (*Swap) isOperation()             {}
func (*FixedTermDeposit) isOperation() {}

// =============================================================================
// CROSS-FIELD RULES
// =============================================================================

func (o *Purchase) Validate() ValidationErrors {
	errs := ValidateFields(o)
	errs = append(errs, checkSettlement(o.Settlement)...)
	errs = append(errs, checkQuantity("cant_especies", o.SpeciesType, o.Quantity)...)
	if !o.Price.IsPositive() {
		errs = append(errs, &ValidationError{Field: "precio_compra", Message: "El precio de compra debe ser mayor a cero."})
	}
	return errs
}

func (o *Sale) Validate() ValidationErrors {
	errs := ValidateFields(o)
	errs = append(errs, checkSettlement(o.Settlement)...)
	errs = append(errs, checkQuantity("cant_especies", o.SpeciesType, o.Quantity)...)
	if !o.Price.IsPositive() {
		errs = append(errs, &ValidationError{Field: "precio_venta", Message: "El precio de venta debe ser mayor a cero."})
	}
	if o.ValuationType == ValuationTechnical {
		if o.TransferDate == nil || o.TransferDate.IsZero() {
			errs = append(errs, &ValidationError{Field: "fecha_pase_vt", Message: "La fecha de pase VT es obligatoria para valuación técnica."})
		}
		if o.TransferPrice == nil {
			errs = append(errs, &ValidationError{Field: "precio_pase_vt", Message: "El precio de pase VT es obligatorio para valuación técnica."})
		}
	}
	return errs
}

func (o *Swap) Validate() ValidationErrors {
	errs := ValidateFields(o)
	errs = append(errs, checkSettlement(o.Settlement)...)
	errs = append(errs, checkQuantity("detalle_a.cant_especies", o.LegA.SpeciesType, o.LegA.Quantity)...)
	errs = append(errs, checkQuantity("detalle_b.cant_especies", o.LegB.SpeciesType, o.LegB.Quantity)...)
	if o.LegA.Security == o.LegB.Security {
		errs = append(errs, &ValidationError{Field: "detalle_b", Message: "Los detalles A y B deben ser distintos."})
	}
	if a, b := o.LegA.TransferDate, o.LegB.TransferDate; a != nil && b != nil && a.After(*b) {
		errs = append(errs, &ValidationError{Field: "detalle_b", Message: "La fecha de pase VT de B no puede ser anterior a la de A."})
	}
	return errs
}

func (o *FixedTermDeposit) Validate() ValidationErrors {
	errs := ValidateFields(o)
	return append(errs, checkDeposit(o.Deposit)...)
}

func checkSettlement(s Settlement) ValidationErrors {
	var errs ValidationErrors
	if s.MovementDate.IsZero() {
		errs = append(errs, &ValidationError{Field: "fecha_movimiento", Message: "La fecha de movimiento es obligatoria."})
	}
	if s.SettlementDate.IsZero() {
		errs = append(errs, &ValidationError{Field: "fecha_liquidacion", Message: "La fecha de liquidación es obligatoria."})
	}
	if !s.MovementDate.IsZero() && s.SettlementDate.Before(s.MovementDate) {
		errs = append(errs, &ValidationError{Field: "fecha_liquidacion", Message: "La fecha de liquidación no puede ser anterior a la de movimiento."})
	}
	return errs
}

func checkQuantity(field string, species SpeciesType, qty decimal.Decimal) ValidationErrors {
	if !qty.IsPositive() {
		return ValidationErrors{{Field: field, Message: "La cantidad de especies debe ser mayor a cero."}}
	}
	if !species.AllowsFractions() && !qty.Equal(qty.Truncate(0)) {
		return ValidationErrors{{Field: field, Message: "La cantidad debe ser un número entero para este tipo de especie."}}
	}
	return nil
}

func checkDeposit(d Deposit) ValidationErrors {
	var errs ValidationErrors
	if d.ConstitutionDate.IsZero() || d.MaturityDate.IsZero() {
		errs = append(errs, &ValidationError{Field: "fecha_vencimiento", Message: "Las fechas de constitución y vencimiento son obligatorias."})
	} else if !d.MaturityDate.After(d.ConstitutionDate) {
		errs = append(errs, &ValidationError{Field: "fecha_vencimiento", Message: "La fecha de vencimiento debe ser posterior a la fecha de constitución."})
	}
	if d.OriginNominal != nil && !d.OriginNominal.IsPositive() {
		errs = append(errs, &ValidationError{Field: "valor_nominal_origen", Message: "El valor nominal de origen debe ser mayor a cero."})
	}
	if !d.NationalNominal.IsPositive() {
		errs = append(errs, &ValidationError{Field: "valor_nominal_nacional", Message: "El valor nominal nacional debe ser mayor a cero."})
	}
	if d.Rate.IsNegative() {
		errs = append(errs, &ValidationError{Field: "tasa", Message: "La tasa no puede ser negativa."})
	}
	if d.DebtTitle && d.TitleCode == "" {
		errs = append(errs, &ValidationError{Field: "codigo_titulo", Message: "Debe ingresar el código del Título de Deuda si corresponde."})
	}
	if !d.DebtTitle && d.TitleCode != "" {
		errs = append(errs, &ValidationError{Field: "codigo_titulo", Message: "No debe ingresar código de Título de Deuda si no corresponde."})
	}
	return errs
}
