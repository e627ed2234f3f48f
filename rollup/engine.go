/*
Package rollup derives a monthly stock snapshot from the previous month's
snapshot and the current month's weekly operations.

PURPOSE:
  Monthly filings report positions held at month end. Instead of asking
  operators to type them in, the engine rolls last month's rows forward
  through the month's purchases, sales and fixed-term deposit constitutions.

ALGORITHM (per kind):
  Investments:
    key = (species type, species code, allocation, valuation, free flag)
    seed from last month, purchases add to the free position, sales
    subtract from it, swaps only warn. Positions with received quantity
    <= 0 are dropped.
  Fixed-term deposits:
    key = (BIC, original CDF). Non-matured prior rows are carried forward
    with their composite CDF. New non-matured constitutions get
    CDF = "%06d-<cdf>" with a counter continuing after the carried rows.
    A constitution whose key is already present only warns.
  Deferred-payment checks:
    carried forward while not matured; there is no weekly source.

GUARDS:
  - the target must be monthly
  - the target must have no stock rows (delete them explicitly first)
  - at least one source must exist: prior month or weekly data
  - one rollup per target at a time (Locker), plus the existence check
    inside the same transaction that inserts the rows

EXAMPLE:
  engine := rollup.NewEngine(store, rollup.NewLocalLocker(), logger)
  result, err := engine.Generate(ctx, submissionID)
  if err == nil && !result.Success {
      fmt.Println(result.Message)
  }

SEE ALSO:
  - snapshot.go: the pure computation
  - lock.go: Redis and in-process lockers
  - filing/period.go: month -> ISO week mapping
*/
package rollup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/ssn-filing/filing"
)

// Result is the outcome of a generation attempt. Success=false results are
// business refusals; infrastructure failures are returned as errors.
type Result struct {
	Success  bool               `json:"success"`
	Message  string             `json:"message"`
	Counts   filing.StockCounts `json:"counts"`
	Warnings []string           `json:"warnings"`
}

func (r Result) Total() int { return r.Counts.Total() }

func refused(msg string) Result { return Result{Success: false, Message: msg, Warnings: []string{}} }

type Engine struct {
	Store  filing.TxStore
	Locker Locker
	Logger *logrus.Logger
	Clock  func() time.Time
}

func NewEngine(store filing.TxStore, locker Locker, logger *logrus.Logger) *Engine {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{Store: store, Locker: locker, Logger: logger, Clock: time.Now}
}

// =============================================================================
// GENERATE
// =============================================================================

// Generate computes and persists the stock of a monthly submission. Every
// row is written in one transaction.
func (e *Engine) Generate(ctx context.Context, id filing.SubmissionID) (Result, error) {
	log := e.Logger.WithFields(logrus.Fields{"module": "rollup", "submission": id})

	lock, err := e.Locker.Obtain(ctx, lockKey(id))
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			log.WithError(err).Warn("release rollup lock")
		}
	}()

	var result Result
	err = e.Store.WithTx(ctx, func(tx filing.Store) error {
		var err error
		result, err = e.generate(ctx, tx, id)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if result.Success {
		log.WithFields(logrus.Fields{
			"investments": result.Counts.Investment,
			"deposits":    result.Counts.FixedTermDeposit,
			"checks":      result.Counts.DeferredCheck,
			"warnings":    len(result.Warnings),
		}).Info("monthly stock generated")
	} else {
		log.WithField("reason", result.Message).Warn("monthly stock not generated")
	}
	return result, nil
}

func (e *Engine) generate(ctx context.Context, tx filing.Store, id filing.SubmissionID) (Result, error) {
	target, err := tx.GetSubmission(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if target.DeliveryType != filing.Monthly {
		return refused("La solicitud no es de tipo mensual."), nil
	}

	existing, err := tx.CountStocks(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if existing > 0 {
		return refused(fmt.Sprintf("La solicitud ya tiene %d stocks. Elimínelos primero si desea regenerar.", existing)), nil
	}

	period, err := filing.ParsePeriod(filing.Monthly, target.Period)
	if err != nil {
		return Result{}, err
	}

	warnings := []string{}

	prevPeriod, _ := period.Previous()
	prev, err := tx.FindSubmission(ctx, filing.Monthly, prevPeriod.String())
	hasPrev := err == nil
	if err != nil && !errors.Is(err, filing.ErrSubmissionNotFound) {
		return Result{}, err
	}

	expected := period.Weeks()
	weekly, err := tx.ListSubmissions(ctx, filing.SubmissionFilter{DeliveryType: filing.Weekly, Periods: expected})
	if err != nil {
		return Result{}, err
	}
	sort.Slice(weekly, func(i, j int) bool { return weekly[i].Period < weekly[j].Period })

	if missing := missingWeeks(expected, weekly); len(missing) > 0 {
		warnings = append(warnings, fmt.Sprintf("Faltan las semanas: %s. Los stocks generados pueden estar incompletos.", strings.Join(missing, ", ")))
	}

	if !hasPrev && len(weekly) == 0 {
		return refused("No hay stock del mes anterior ni operaciones semanales. No es posible generar el reporte mensual."), nil
	}
	if !hasPrev {
		warnings = append(warnings, "No existe stock del mes anterior. Los stocks se generarán solo con las operaciones del mes.")
	}

	in := Input{MonthEnd: period.End(), HasPrevious: hasPrev}
	if hasPrev {
		if in.Previous, err = tx.ListStocks(ctx, prev.ID); err != nil {
			return Result{}, err
		}
	}
	for _, w := range weekly {
		ops, err := tx.ListOperations(ctx, w.ID)
		if err != nil {
			return Result{}, err
		}
		in.Weeks = append(in.Weeks, Week{Period: w.Period, Operations: ops})
	}

	snap := Build(in)
	rows := snap.Rows()
	now := e.Clock()
	for _, r := range rows {
		meta := r.Meta()
		filing.AssignID(meta, id)
		meta.CreatedAt, meta.UpdatedAt = now, now
	}
	if len(rows) > 0 {
		if err := tx.InsertStocks(ctx, rows); err != nil {
			return Result{}, fmt.Errorf("insert stock: %w", err)
		}
	}

	return Result{
		Success:  true,
		Message:  fmt.Sprintf("Se generaron %d stocks mensuales correctamente.", len(rows)),
		Counts:   snap.Counts(),
		Warnings: append(warnings, snap.Warnings...),
	}, nil
}

func missingWeeks(expected []string, existing []filing.Submission) []string {
	have := make(map[string]bool, len(existing))
	for _, s := range existing {
		have[s.Period] = true
	}
	var missing []string
	for _, w := range expected {
		if !have[w] {
			missing = append(missing, w)
		}
	}
	sort.Strings(missing)
	return missing
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteGenerated removes every stock row of a monthly submission and returns
// how many were removed.
func (e *Engine) DeleteGenerated(ctx context.Context, id filing.SubmissionID) (int, error) {
	target, err := e.Store.GetSubmission(ctx, id)
	if err != nil {
		return 0, err
	}
	if target.DeliveryType != filing.Monthly {
		return 0, filing.ErrNotMonthly
	}
	n, err := e.Store.DeleteStocks(ctx, id)
	if err != nil {
		return 0, err
	}
	e.Logger.WithFields(logrus.Fields{"module": "rollup", "submission": id, "deleted": n}).Info("monthly stock deleted")
	return n, nil
}
