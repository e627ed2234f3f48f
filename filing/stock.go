package filing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/ssn-filing/calendar"
)

// =============================================================================
// STOCK - Closed sum type over month-end position kinds
// =============================================================================

// StockKind is the regulator's stock "tipo" code.
type StockKind string

const (
	StockInvestment       StockKind = "I"
	StockFixedTermDeposit StockKind = "P"
	StockDeferredCheck    StockKind = "C"
)

func (k StockKind) String() string {
	switch k {
	case StockInvestment:
		return "Inversión"
	case StockFixedTermDeposit:
		return "Plazo Fijo"
	case StockDeferredCheck:
		return "Cheque Pago Diferido"
	}
	return string(k)
}

// Stock is one held position as of month end. Implementations:
// *InvestmentStock, *DepositStock and *CheckStock.
type Stock interface {
	Kind() StockKind
	Meta() *Record
	Validate() ValidationErrors
	isStock()
}

// NewStock returns an empty stock row of the given kind.
func NewStock(kind StockKind) (Stock, error) {
	switch kind {
	case StockInvestment:
		return &InvestmentStock{}, nil
	case StockFixedTermDeposit:
		return &DepositStock{}, nil
	case StockDeferredCheck:
		return &CheckStock{}, nil
	}
	return nil, fmt.Errorf("unknown stock kind %q", kind)
}

// InvestmentStock is a security position.
type InvestmentStock struct {
	Record
	Holding
	SpeciesType         SpeciesType      `json:"tipo_especie" validate:"required,oneof=TP ON FC FF AC OP"`
	SpeciesCode         string           `json:"codigo_especie" validate:"required,max=20"`
	ValuationType       ValuationType    `json:"tipo_valuacion" validate:"required,oneof=T V"`
	EconomicGroupIssuer bool             `json:"emisor_grupo_economico"`
	AccruedQuantity     decimal.Decimal  `json:"cantidad_devengado_especies"`
	ReceivedQuantity    decimal.Decimal  `json:"cantidad_percibido_especies"`
	Listed              bool             `json:"con_cotizacion"`
	IssuerArtRet        bool             `json:"emisor_art_ret"`
	ImpairmentProvision *decimal.Decimal `json:"prevision_desvalorizacion,omitempty"`
	Transfer
	FinancialValue *decimal.Decimal `json:"valor_financiero,omitempty"`
}

// PositionKey groups investment rows during rollup.
type PositionKey struct {
	SpeciesType      SpeciesType
	SpeciesCode      string
	AllocationCode   string
	ValuationType    ValuationType
	FreeAvailability bool
}

func (s *InvestmentStock) Key() PositionKey {
	return PositionKey{
		SpeciesType:      s.SpeciesType,
		SpeciesCode:      s.SpeciesCode,
		AllocationCode:   s.AllocationCode,
		ValuationType:    s.ValuationType,
		FreeAvailability: s.FreeAvailability,
	}
}

// DepositStock is an outstanding fixed-term deposit.
type DepositStock struct {
	Record
	Holding
	Deposit
	EconomicGroupIssuer bool `json:"emisor_grupo_economico"`
}

// CheckStock is a deferred-payment check ("cheque de pago diferido").
type CheckStock struct {
	Record
	Holding
	Currency         string          `json:"moneda" validate:"required,max=3"`
	RateType         RateType        `json:"tipo_tasa" validate:"required,oneof=F V"`
	Rate             decimal.Decimal `json:"tasa"`
	SGRCode          string          `json:"codigo_sgr" validate:"max=3"`
	CheckCode        string          `json:"codigo_cheque" validate:"required,max=16"`
	IssueDate        calendar.Date   `json:"fecha_emision"`
	MaturityDate     calendar.Date   `json:"fecha_vencimiento"`
	NominalValue     decimal.Decimal `json:"valor_nominal"`
	AcquisitionValue decimal.Decimal `json:"valor_adquisicion"`
	EconomicGroup    bool            `json:"grupo_economico"`
	AcquisitionDate  calendar.Date   `json:"fecha_adquisicion"`
}

func (*InvestmentStock) Kind() StockKind { return StockInvestment }
func (*DepositStock) Kind() StockKind    { return StockFixedTermDeposit }
func (*CheckStock) Kind() StockKind      { return StockDeferredCheck }

func (s *InvestmentStock) Meta() *Record { return &s.Record }
func (s *DepositStock) Meta() *Record    { return &s.Record }
func (s *CheckStock) Meta() *Record      { return &s.Record }

func (*InvestmentStock) isStock() {}
func (*DepositStock) isStock()    {}
func (*CheckStock) isStock()      {}

func (s *InvestmentStock) Validate() ValidationErrors {
	errs := ValidateFields(s)
	if s.ReceivedQuantity.IsNegative() || s.AccruedQuantity.IsNegative() {
		errs = append(errs, &ValidationError{Field: "cantidad_percibido_especies", Message: "Las cantidades no pueden ser negativas."})
	}
	return errs
}

func (s *DepositStock) Validate() ValidationErrors {
	errs := ValidateFields(s)
	return append(errs, checkDeposit(s.Deposit)...)
}

func (s *CheckStock) Validate() ValidationErrors {
	errs := ValidateFields(s)
	if !s.MaturityDate.IsZero() && !s.IssueDate.IsZero() && s.MaturityDate.Before(s.IssueDate) {
		errs = append(errs, &ValidationError{Field: "fecha_vencimiento", Message: "La fecha de vencimiento no puede ser anterior a la de emisión."})
	}
	if !s.NominalValue.IsPositive() {
		errs = append(errs, &ValidationError{Field: "valor_nominal", Message: "El valor nominal debe ser mayor a cero."})
	}
	return errs
}

// StockCounts is the number of rows per kind.
type StockCounts struct {
	Investment       int `json:"inversion"`
	FixedTermDeposit int `json:"plazo_fijo"`
	DeferredCheck    int `json:"cheque_pd"`
}

func (c StockCounts) Total() int { return c.Investment + c.FixedTermDeposit + c.DeferredCheck }

// CountStocks tallies rows by kind.
func CountStocks(rows []Stock) StockCounts {
	var c StockCounts
	for _, r := range rows {
		switch r.Kind() {
		case StockInvestment:
			c.Investment++
		case StockFixedTermDeposit:
			c.FixedTermDeposit++
		case StockDeferredCheck:
			c.DeferredCheck++
		}
	}
	return c
}
