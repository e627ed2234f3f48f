package rollup

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/ssn-filing/calendar"
	"github.com/warp/ssn-filing/filing"
)

// =============================================================================
// SNAPSHOT BUILDER - Pure month-end computation
// =============================================================================

// Week is one weekly submission's operations, in creation order.
type Week struct {
	Period     string
	Operations []filing.Operation
}

// Input is everything a month-end snapshot depends on.
type Input struct {
	MonthEnd calendar.Date
	// Previous holds the prior month's stock rows. HasPrevious distinguishes
	// "no prior submission" from "prior submission with no rows".
	Previous    []filing.Stock
	HasPrevious bool
	Weeks       []Week
}

// Snapshot is the computed stock, grouped by kind, plus operator warnings.
type Snapshot struct {
	Deposits    []*filing.DepositStock
	Investments []*filing.InvestmentStock
	Checks      []*filing.CheckStock
	Warnings    []string
}

func (s Snapshot) Counts() filing.StockCounts {
	return filing.StockCounts{
		Investment:       len(s.Investments),
		FixedTermDeposit: len(s.Deposits),
		DeferredCheck:    len(s.Checks),
	}
}

// Rows returns every row in insertion order: deposits, investments, checks.
func (s Snapshot) Rows() []filing.Stock {
	rows := make([]filing.Stock, 0, len(s.Deposits)+len(s.Investments)+len(s.Checks))
	for _, r := range s.Deposits {
		rows = append(rows, r)
	}
	for _, r := range s.Investments {
		rows = append(rows, r)
	}
	for _, r := range s.Checks {
		rows = append(rows, r)
	}
	return rows
}

// Build computes the snapshot. It never fails: data problems become warnings.
func Build(in Input) Snapshot {
	var snap Snapshot
	snap.Deposits = rollDeposits(in, &snap.Warnings)
	snap.Investments = rollInvestments(in, &snap.Warnings)
	snap.Checks = rollChecks(in, &snap.Warnings)
	return snap
}

// =============================================================================
// FIXED-TERM DEPOSITS
// =============================================================================

type depositKey struct {
	BIC string
	CDF string // original certificate id, without the composite prefix
}

// originalCDF strips the "NNNNNN-" prefix added when the row was first rolled.
func originalCDF(cdf string) string {
	if _, rest, ok := strings.Cut(cdf, "-"); ok {
		return rest
	}
	return cdf
}

func rollDeposits(in Input, warnings *[]string) []*filing.DepositStock {
	var out []*filing.DepositStock
	seen := make(map[depositKey]bool)

	for _, s := range in.Previous {
		prev, ok := s.(*filing.DepositStock)
		if !ok || prev.Matured(in.MonthEnd) {
			continue
		}
		key := depositKey{prev.BIC, originalCDF(prev.CDF)}
		if seen[key] {
			continue
		}
		row := *prev
		row.Record = filing.Record{}
		seen[key] = true
		out = append(out, &row)
	}

	counter := len(out) + 1
	for _, w := range in.Weeks {
		for _, op := range w.Operations {
			pf, ok := op.(*filing.FixedTermDeposit)
			if !ok || pf.Matured(in.MonthEnd) {
				continue
			}
			key := depositKey{pf.BIC, pf.CDF}
			if seen[key] {
				*warnings = append(*warnings, fmt.Sprintf("PF %s/%s ya existe en stock (posible renovación).", pf.BIC, pf.CDF))
				continue
			}
			row := &filing.DepositStock{
				Holding: filing.DefaultHolding(pf.AllocationCode),
				Deposit: pf.Deposit,
			}
			row.BookValue = pf.NationalNominal
			row.CDF = fmt.Sprintf("%06d-%s", counter, pf.CDF)
			counter++
			seen[key] = true
			out = append(out, row)
		}
	}
	return out
}

// =============================================================================
// INVESTMENTS
// =============================================================================

func rollInvestments(in Input, warnings *[]string) []*filing.InvestmentStock {
	registry := make(map[filing.PositionKey]*filing.InvestmentStock)
	var order []filing.PositionKey

	put := func(row *filing.InvestmentStock) {
		k := row.Key()
		if _, ok := registry[k]; !ok {
			order = append(order, k)
		}
		registry[k] = row
	}

	for _, s := range in.Previous {
		if prev, ok := s.(*filing.InvestmentStock); ok {
			row := *prev
			row.Record = filing.Record{}
			put(&row)
		}
	}

	// Purchases and sales always move the freely available position.
	freeKey := func(sec filing.Security) filing.PositionKey {
		return filing.PositionKey{
			SpeciesType:      sec.SpeciesType,
			SpeciesCode:      sec.SpeciesCode,
			AllocationCode:   sec.AllocationCode,
			ValuationType:    sec.ValuationType,
			FreeAvailability: true,
		}
	}

	for _, w := range in.Weeks {
		for _, op := range w.Operations {
			p, ok := op.(*filing.Purchase)
			if !ok {
				continue
			}
			if row, exists := registry[freeKey(p.Security)]; exists {
				row.AccruedQuantity = row.AccruedQuantity.Add(p.Quantity)
				row.ReceivedQuantity = row.ReceivedQuantity.Add(p.Quantity)
				continue
			}
			put(&filing.InvestmentStock{
				Holding:          filing.DefaultHolding(p.AllocationCode),
				SpeciesType:      p.SpeciesType,
				SpeciesCode:      p.SpeciesCode,
				ValuationType:    p.ValuationType,
				AccruedQuantity:  p.Quantity,
				ReceivedQuantity: p.Quantity,
				Listed:           true,
			})
		}
	}

	for _, w := range in.Weeks {
		for _, op := range w.Operations {
			s, ok := op.(*filing.Sale)
			if !ok {
				continue
			}
			row, exists := registry[freeKey(s.Security)]
			if !exists {
				*warnings = append(*warnings, fmt.Sprintf("Venta sin posición previa: %s. Verifique los datos del mes anterior.", s.SpeciesCode))
				continue
			}
			row.AccruedQuantity = row.AccruedQuantity.Sub(s.Quantity)
			row.ReceivedQuantity = row.ReceivedQuantity.Sub(s.Quantity)
		}
	}

	for _, w := range in.Weeks {
		for _, op := range w.Operations {
			if op.Kind() == filing.KindSwap {
				*warnings = append(*warnings, fmt.Sprintf("Canje detectado en semana %s. Los canjes requieren procesamiento manual.", w.Period))
			}
		}
	}

	var out []*filing.InvestmentStock
	for _, k := range order {
		if row := registry[k]; row.ReceivedQuantity.GreaterThan(decimal.Zero) {
			out = append(out, row)
		}
	}
	return out
}

// =============================================================================
// DEFERRED-PAYMENT CHECKS
// =============================================================================

func rollChecks(in Input, warnings *[]string) []*filing.CheckStock {
	var out []*filing.CheckStock
	for _, s := range in.Previous {
		prev, ok := s.(*filing.CheckStock)
		if !ok || !prev.MaturityDate.After(in.MonthEnd) {
			continue
		}
		row := *prev
		row.Record = filing.Record{}
		out = append(out, &row)
	}
	if len(out) == 0 && !in.HasPrevious {
		*warnings = append(*warnings, "No hay stock de Cheques Pago Diferido del mes anterior. Si la compañía opera con CPD, ingrese los stocks manualmente.")
	}
	return out
}
