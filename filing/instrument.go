package filing

import (
	"github.com/shopspring/decimal"

	"github.com/warp/ssn-filing/calendar"
)

// =============================================================================
// INSTRUMENT CODES
// =============================================================================

// SpeciesType classifies a security.
type SpeciesType string

const (
	SpeciesGovernmentBond SpeciesType = "TP"
	SpeciesCorporateBond  SpeciesType = "ON"
	SpeciesMutualFund     SpeciesType = "FC" // the only type whose quantities keep decimals
	SpeciesFinancialTrust SpeciesType = "FF"
	SpeciesShare          SpeciesType = "AC"
	SpeciesOther          SpeciesType = "OP"
)

// AllowsFractions reports whether quantities of this type may carry decimals.
func (s SpeciesType) AllowsFractions() bool { return s == SpeciesMutualFund }

// ValuationType is technical ("T", held to maturity) or market ("V").
type ValuationType string

const (
	ValuationTechnical ValuationType = "T"
	ValuationMarket    ValuationType = "V"
)

// RateType is fixed ("F") or variable ("V").
type RateType string

const (
	RateFixed    RateType = "F"
	RateVariable RateType = "V"
)

// =============================================================================
// COMPOSED FIELD GROUPS
// =============================================================================
// Concrete operation and stock kinds embed these groups.

// Security identifies a position: what is held and under which allocation.
type Security struct {
	SpeciesType    SpeciesType   `json:"tipo_especie" validate:"required,oneof=TP ON FC FF AC OP"`
	SpeciesCode    string        `json:"codigo_especie" validate:"required,max=20"`
	AllocationCode string        `json:"codigo_afectacion" validate:"required,max=3"`
	ValuationType  ValuationType `json:"tipo_valuacion" validate:"required,oneof=T V"`
}

// Settlement holds the dates every weekly operation carries.
type Settlement struct {
	MovementDate   calendar.Date `json:"fecha_movimiento"`
	SettlementDate calendar.Date `json:"fecha_liquidacion"`
}

// Transfer is the value-transfer (pase a valor técnico) date and price.
type Transfer struct {
	TransferDate  *calendar.Date   `json:"fecha_pase_vt,omitempty"`
	TransferPrice *decimal.Decimal `json:"precio_pase_vt,omitempty"`
}

// Deposit describes a fixed-term deposit certificate.
type Deposit struct {
	DepositType      string           `json:"tipo_pf" validate:"required,max=3"`
	BIC              string           `json:"bic" validate:"required,max=12"`
	CDF              string           `json:"cdf" validate:"required,max=20"`
	ConstitutionDate calendar.Date    `json:"fecha_constitucion"`
	MaturityDate     calendar.Date    `json:"fecha_vencimiento"`
	Currency         string           `json:"moneda" validate:"required,max=3"`
	RateType         RateType         `json:"tipo_tasa" validate:"required,oneof=F V"`
	Rate             decimal.Decimal  `json:"tasa"`
	DebtTitle        bool             `json:"titulo_deuda"`
	TitleCode        string           `json:"codigo_titulo,omitempty" validate:"max=3"`
	OriginNominal    *decimal.Decimal `json:"valor_nominal_origen,omitempty"`
	NationalNominal  decimal.Decimal  `json:"valor_nominal_nacional"`
}

// Matured reports whether the deposit has matured by the given day.
func (d Deposit) Matured(asOf calendar.Date) bool { return !d.MaturityDate.After(asOf) }

// Holding flags shared by every monthly stock row.
type Holding struct {
	AllocationCode   string          `json:"codigo_afectacion" validate:"required,max=3"`
	FreeAvailability bool            `json:"libre_disponibilidad"`
	InCustody        bool            `json:"en_custodia"`
	Financial        bool            `json:"financiera"`
	BookValue        decimal.Decimal `json:"valor_contable"`
}

// DefaultHolding is the conservative default for generated rows.
func DefaultHolding(allocation string) Holding {
	return Holding{AllocationCode: allocation, FreeAvailability: true, InCustody: true, Financial: true}
}
