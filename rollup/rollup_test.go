package rollup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ssn-filing/calendar"
	"github.com/warp/ssn-filing/filing"
	"github.com/warp/ssn-filing/filing/store"
	"github.com/warp/ssn-filing/rollup"
)

var now = time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newEngine(st filing.TxStore) *rollup.Engine {
	e := rollup.NewEngine(st, rollup.NewLocalLocker(), quietLogger())
	e.Clock = func() time.Time { return now }
	return e
}

func createSubmission(t *testing.T, st filing.Store, dt filing.DeliveryType, period string) filing.Submission {
	t.Helper()
	s := filing.NewSubmission("0744", dt, period, now)
	s.State = filing.StateSubmitted
	require.NoError(t, st.CreateSubmission(context.Background(), s))
	return s
}

func addOps(t *testing.T, st filing.Store, owner filing.SubmissionID, ops ...filing.Operation) {
	t.Helper()
	for _, op := range ops {
		filing.AssignID(op.Meta(), owner)
		require.NoError(t, st.SaveOperation(context.Background(), op))
	}
}

func addStocks(t *testing.T, st filing.Store, owner filing.SubmissionID, rows ...filing.Stock) {
	t.Helper()
	for _, r := range rows {
		filing.AssignID(r.Meta(), owner)
	}
	require.NoError(t, st.InsertStocks(context.Background(), rows))
}

var al30 = filing.Security{
	SpeciesType:    filing.SpeciesGovernmentBond,
	SpeciesCode:    "AL30",
	AllocationCode: "001",
	ValuationType:  filing.ValuationMarket,
}

func purchase(qty int64) *filing.Purchase {
	return &filing.Purchase{Security: al30, Quantity: decimal.NewFromInt(qty), Price: decimal.NewFromInt(1)}
}

func sale(qty int64) *filing.Sale {
	return &filing.Sale{Security: al30, Quantity: decimal.NewFromInt(qty), Price: decimal.NewFromInt(1)}
}

func priorPosition(qty int64) *filing.InvestmentStock {
	return &filing.InvestmentStock{
		Holding:          filing.DefaultHolding("001"),
		SpeciesType:      al30.SpeciesType,
		SpeciesCode:      al30.SpeciesCode,
		ValuationType:    al30.ValuationType,
		AccruedQuantity:  decimal.NewFromInt(qty),
		ReceivedQuantity: decimal.NewFromInt(qty),
		Listed:           true,
	}
}

func deposit(bic, cdf string, maturity calendar.Date) filing.Deposit {
	return filing.Deposit{
		DepositType:      "TRA",
		BIC:              bic,
		CDF:              cdf,
		ConstitutionDate: calendar.NewDate(2025, 1, 2),
		MaturityDate:     maturity,
		Currency:         "ARS",
		RateType:         filing.RateFixed,
		Rate:             decimal.NewFromInt(30),
		NationalNominal:  decimal.NewFromInt(1000),
	}
}

func stocksOf(t *testing.T, st filing.Store, id filing.SubmissionID) ([]*filing.InvestmentStock, []*filing.DepositStock, []*filing.CheckStock) {
	t.Helper()
	rows, err := st.ListStocks(context.Background(), id)
	require.NoError(t, err)
	var inv []*filing.InvestmentStock
	var pf []*filing.DepositStock
	var cpd []*filing.CheckStock
	for _, r := range rows {
		switch s := r.(type) {
		case *filing.InvestmentStock:
			inv = append(inv, s)
		case *filing.DepositStock:
			pf = append(pf, s)
		case *filing.CheckStock:
			cpd = append(cpd, s)
		}
	}
	return inv, pf, cpd
}

// =============================================================================
// INVESTMENTS
// =============================================================================

func TestGenerate_ConservesQuantities(t *testing.T) {
	// GIVEN: February holds 100000 AL30; March buys 50000 and sells 30000
	ctx := context.Background()
	st := store.NewMemory()
	feb := createSubmission(t, st, filing.Monthly, "2025-02")
	addStocks(t, st, feb.ID, priorPosition(100000))

	week := createSubmission(t, st, filing.Weekly, "2025-10")
	addOps(t, st, week.ID, purchase(50000), sale(30000))
	mar := createSubmission(t, st, filing.Monthly, "2025-03")

	// WHEN
	res, err := newEngine(st).Generate(ctx, mar.ID)

	// THEN: 100000 + 50000 - 30000
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	inv, _, _ := stocksOf(t, st, mar.ID)
	require.Len(t, inv, 1)
	assert.True(t, inv[0].ReceivedQuantity.Equal(decimal.NewFromInt(120000)))
	assert.True(t, inv[0].AccruedQuantity.Equal(decimal.NewFromInt(120000)))
	assert.Equal(t, 1, res.Counts.Investment)
	assert.Equal(t, mar.ID, inv[0].SubmissionID)
	assert.Equal(t, now, inv[0].CreatedAt)
}

func TestGenerate_DropsClosedPositions(t *testing.T) {
	// GIVEN: the whole position is sold during the month
	ctx := context.Background()
	st := store.NewMemory()
	feb := createSubmission(t, st, filing.Monthly, "2025-02")
	addStocks(t, st, feb.ID, priorPosition(120000))
	week := createSubmission(t, st, filing.Weekly, "2025-11")
	addOps(t, st, week.ID, sale(120000))
	mar := createSubmission(t, st, filing.Monthly, "2025-03")

	// WHEN
	res, err := newEngine(st).Generate(ctx, mar.ID)

	// THEN
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Counts.Investment)
	inv, _, _ := stocksOf(t, st, mar.ID)
	assert.Empty(t, inv)
}

func TestBuild_SaleWithoutPositionAndSwapWarn(t *testing.T) {
	swap := &filing.Swap{LegA: filing.SwapLeg{Security: al30}}
	snap := rollup.Build(rollup.Input{
		MonthEnd:    calendar.NewDate(2025, 3, 31),
		HasPrevious: true,
		Weeks:       []rollup.Week{{Period: "2025-12", Operations: []filing.Operation{sale(5), swap}}},
	})

	assert.Empty(t, snap.Investments)
	require.Len(t, snap.Warnings, 2)
	assert.Contains(t, snap.Warnings[0], "Venta sin posición previa: AL30")
	assert.Contains(t, snap.Warnings[1], "Canje detectado en semana 2025-12")
}

func TestBuild_PurchasesGoToFreePosition(t *testing.T) {
	// GIVEN: a prior position that is NOT freely available
	pledged := priorPosition(10)
	pledged.FreeAvailability = false

	// WHEN: the same species is bought
	snap := rollup.Build(rollup.Input{
		MonthEnd:    calendar.NewDate(2025, 3, 31),
		Previous:    []filing.Stock{pledged},
		HasPrevious: true,
		Weeks:       []rollup.Week{{Period: "2025-10", Operations: []filing.Operation{purchase(5)}}},
	})

	// THEN: a separate free position is opened with conservative defaults
	require.Len(t, snap.Investments, 2)
	free := snap.Investments[1]
	assert.True(t, free.FreeAvailability)
	assert.True(t, free.InCustody)
	assert.True(t, free.Listed)
	assert.False(t, free.EconomicGroupIssuer)
	assert.True(t, free.BookValue.IsZero())
	assert.True(t, snap.Investments[0].ReceivedQuantity.Equal(decimal.NewFromInt(10)))
}

// =============================================================================
// FIXED-TERM DEPOSITS
// =============================================================================

func TestBuild_DepositCompositeIDs(t *testing.T) {
	monthEnd := calendar.NewDate(2025, 3, 31)
	carried := &filing.DepositStock{Holding: filing.DefaultHolding("001"), Deposit: deposit("BIC1", "000001-AAA", calendar.NewDate(2025, 6, 1))}
	matured := &filing.DepositStock{Holding: filing.DefaultHolding("001"), Deposit: deposit("BIC1", "000002-BBB", monthEnd)}

	fresh := &filing.FixedTermDeposit{AllocationCode: "002", Deposit: deposit("BIC2", "CCC", calendar.NewDate(2025, 5, 1))}
	renewal := &filing.FixedTermDeposit{AllocationCode: "001", Deposit: deposit("BIC1", "AAA", calendar.NewDate(2025, 7, 1))}
	maturedOp := &filing.FixedTermDeposit{AllocationCode: "001", Deposit: deposit("BIC3", "DDD", calendar.NewDate(2025, 3, 20))}

	snap := rollup.Build(rollup.Input{
		MonthEnd:    monthEnd,
		Previous:    []filing.Stock{carried, matured},
		HasPrevious: true,
		Weeks:       []rollup.Week{{Period: "2025-10", Operations: []filing.Operation{fresh, renewal, maturedOp}}},
	})

	require.Len(t, snap.Deposits, 2)
	assert.Equal(t, "000001-AAA", snap.Deposits[0].CDF, "carried rows keep their composite id")
	assert.Equal(t, "000002-CCC", snap.Deposits[1].CDF)
	assert.Equal(t, "002", snap.Deposits[1].AllocationCode)
	assert.True(t, snap.Deposits[1].BookValue.Equal(decimal.NewFromInt(1000)))
	assert.True(t, snap.Deposits[1].FreeAvailability)
	require.Len(t, snap.Warnings, 1)
	assert.Contains(t, snap.Warnings[0], "PF BIC1/AAA ya existe en stock (posible renovación)")
}

func TestBuild_DepositIDsStableAcrossMonths(t *testing.T) {
	// GIVEN: March's output rolled into April with no new constitutions
	march := rollup.Build(rollup.Input{
		MonthEnd: calendar.NewDate(2025, 3, 31),
		Weeks: []rollup.Week{{Period: "2025-10", Operations: []filing.Operation{
			&filing.FixedTermDeposit{AllocationCode: "001", Deposit: deposit("BIC1", "AAA", calendar.NewDate(2025, 9, 1))},
		}}},
	})
	april := rollup.Build(rollup.Input{
		MonthEnd:    calendar.NewDate(2025, 4, 30),
		Previous:    march.Rows(),
		HasPrevious: true,
	})

	require.Len(t, april.Deposits, 1)
	assert.Equal(t, march.Deposits[0].CDF, april.Deposits[0].CDF)
	assert.Equal(t, "000001-AAA", april.Deposits[0].CDF)
}

// =============================================================================
// CHECKS
// =============================================================================

func TestBuild_Checks(t *testing.T) {
	monthEnd := calendar.NewDate(2025, 3, 31)
	live := &filing.CheckStock{CheckCode: "1", MaturityDate: calendar.NewDate(2025, 4, 15)}
	gone := &filing.CheckStock{CheckCode: "2", MaturityDate: monthEnd}

	snap := rollup.Build(rollup.Input{MonthEnd: monthEnd, Previous: []filing.Stock{live, gone}, HasPrevious: true})
	require.Len(t, snap.Checks, 1)
	assert.Equal(t, "1", snap.Checks[0].CheckCode)
	assert.Empty(t, snap.Warnings)

	snap = rollup.Build(rollup.Input{MonthEnd: monthEnd})
	require.Len(t, snap.Warnings, 1)
	assert.Contains(t, snap.Warnings[0], "Cheques Pago Diferido")
}

// =============================================================================
// GUARDS
// =============================================================================

func TestGenerate_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("weekly target", func(t *testing.T) {
		st := store.NewMemory()
		week := createSubmission(t, st, filing.Weekly, "2025-10")
		res, err := newEngine(st).Generate(ctx, week.ID)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "La solicitud no es de tipo mensual.", res.Message)
	})

	t.Run("existing stock", func(t *testing.T) {
		st := store.NewMemory()
		mar := createSubmission(t, st, filing.Monthly, "2025-03")
		addStocks(t, st, mar.ID, priorPosition(1), priorPosition(2))
		res, err := newEngine(st).Generate(ctx, mar.ID)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "ya tiene 2 stocks")
	})

	t.Run("no sources", func(t *testing.T) {
		st := store.NewMemory()
		mar := createSubmission(t, st, filing.Monthly, "2025-03")
		res, err := newEngine(st).Generate(ctx, mar.ID)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "No hay stock del mes anterior ni operaciones semanales")
	})

	t.Run("missing submission", func(t *testing.T) {
		_, err := newEngine(store.NewMemory()).Generate(ctx, "nope")
		assert.ErrorIs(t, err, filing.ErrSubmissionNotFound)
	})
}

func TestGenerate_WarnsAboutMissingWeeksAndPriorMonth(t *testing.T) {
	// GIVEN: March with only week 10 filed and no February submission
	ctx := context.Background()
	st := store.NewMemory()
	week := createSubmission(t, st, filing.Weekly, "2025-10")
	addOps(t, st, week.ID, purchase(10))
	mar := createSubmission(t, st, filing.Monthly, "2025-03")

	// WHEN
	res, err := newEngine(st).Generate(ctx, mar.ID)

	// THEN: generation proceeds with warnings, missing weeks listed in order
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Faltan las semanas: 2025-09, 2025-11, 2025-12, 2025-13, 2025-14. Los stocks generados pueden estar incompletos.", res.Warnings[0])
	assert.Contains(t, res.Warnings[1], "No existe stock del mes anterior")
	assert.Contains(t, res.Warnings[2], "Cheques Pago Diferido")
}

func TestGenerate_SecondRunRefused(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	week := createSubmission(t, st, filing.Weekly, "2025-10")
	addOps(t, st, week.ID, purchase(10))
	mar := createSubmission(t, st, filing.Monthly, "2025-03")
	engine := newEngine(st)

	first, err := engine.Generate(ctx, mar.ID)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := engine.Generate(ctx, mar.ID)
	require.NoError(t, err)
	assert.False(t, second.Success)

	n, err := engine.DeleteGenerated(ctx, mar.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	third, err := engine.Generate(ctx, mar.ID)
	require.NoError(t, err)
	assert.True(t, third.Success)
}

func TestDeleteGenerated_RejectsWeekly(t *testing.T) {
	st := store.NewMemory()
	week := createSubmission(t, st, filing.Weekly, "2025-10")
	_, err := newEngine(st).DeleteGenerated(context.Background(), week.ID)
	assert.ErrorIs(t, err, filing.ErrNotMonthly)
}

// =============================================================================
// LOCKING AND ATOMICITY
// =============================================================================

func TestGenerate_HeldLockIsRetryable(t *testing.T) {
	// GIVEN: another rollup holds the target
	ctx := context.Background()
	st := store.NewMemory()
	mar := createSubmission(t, st, filing.Monthly, "2025-03")
	locker := rollup.NewLocalLocker()
	held, err := locker.Obtain(ctx, "rollup:"+string(mar.ID))
	require.NoError(t, err)

	engine := rollup.NewEngine(st, locker, quietLogger())

	// WHEN
	_, err = engine.Generate(ctx, mar.ID)

	// THEN
	assert.ErrorIs(t, err, filing.ErrRollupInProgress)
	assert.True(t, filing.IsRetryable(err))

	require.NoError(t, held.Release(ctx))
	_, err = engine.Generate(ctx, mar.ID)
	assert.NoError(t, err)
}

type failingInsert struct{ filing.Store }

func (failingInsert) InsertStocks(context.Context, []filing.Stock) error {
	return errors.New("disk full")
}

type failingTxStore struct{ *store.Memory }

func (s failingTxStore) WithTx(ctx context.Context, fn func(filing.Store) error) error {
	return s.Memory.WithTx(ctx, func(tx filing.Store) error { return fn(failingInsert{tx}) })
}

func TestGenerate_FailedInsertLeavesNothing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	week := createSubmission(t, mem, filing.Weekly, "2025-10")
	addOps(t, mem, week.ID, purchase(10))
	mar := createSubmission(t, mem, filing.Monthly, "2025-03")

	_, err := newEngine(failingTxStore{mem}).Generate(ctx, mar.ID)

	assert.Error(t, err)
	n, err := mem.CountStocks(ctx, mar.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
