package sqlite_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ssn-filing/calendar"
	"github.com/warp/ssn-filing/filing"
	"github.com/warp/ssn-filing/store/sqlite"
)

var base = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedSubmission(t *testing.T, store *sqlite.Store, dt filing.DeliveryType, period string) filing.Submission {
	t.Helper()
	sub := filing.NewSubmission("0744", dt, period, base)
	require.NoError(t, store.CreateSubmission(context.Background(), sub))
	return sub
}

func purchase(owner filing.SubmissionID, created time.Time) *filing.Purchase {
	p := &filing.Purchase{
		Security: filing.Security{
			SpeciesType:    filing.SpeciesType("ON"),
			SpeciesCode:    "YM35O",
			AllocationCode: "001",
			ValuationType:  filing.ValuationType("V"),
		},
		Settlement: filing.Settlement{
			MovementDate:   calendar.NewDate(2025, 3, 4),
			SettlementDate: calendar.NewDate(2025, 3, 5),
		},
		Quantity: decimal.NewFromInt(1000),
		Price:    decimal.RequireFromString("1.05"),
	}
	filing.AssignID(&p.Record, owner)
	p.CreatedAt, p.UpdatedAt = created, created
	return p
}

func deposit(owner filing.SubmissionID, created time.Time, cdf string) *filing.DepositStock {
	d := &filing.DepositStock{
		Deposit: filing.Deposit{
			DepositType:      "001",
			BIC:              "BNACARBA",
			CDF:              cdf,
			ConstitutionDate: calendar.NewDate(2025, 2, 1),
			MaturityDate:     calendar.NewDate(2025, 5, 1),
			Currency:         "ARS",
			RateType:         filing.RateType("F"),
			Rate:             decimal.RequireFromString("32.5"),
		},
	}
	filing.AssignID(&d.Record, owner)
	d.CreatedAt, d.UpdatedAt = created, created
	return d
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

func TestSubmissions_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sub := seedSubmission(t, store, filing.Weekly, "2025-10")

	got, err := store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.Period, got.Period)
	assert.Equal(t, filing.StateDraft, got.State)
	assert.True(t, got.CreatedAt.Equal(base))
	assert.Nil(t, got.SentAt)

	found, err := store.FindSubmission(ctx, filing.Weekly, "2025-10")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, found.ID)
}

func TestSubmissions_UniquePerTypeAndPeriod(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedSubmission(t, store, filing.Weekly, "2025-10")

	dup := filing.NewSubmission("0744", filing.Weekly, "2025-10", base)
	assert.ErrorIs(t, store.CreateSubmission(ctx, dup), filing.ErrDuplicateSubmission)

	// The same period id under the other delivery type is a different filing.
	other := filing.NewSubmission("0744", filing.Monthly, "2025-10", base)
	assert.NoError(t, store.CreateSubmission(ctx, other))
}

func TestSubmissions_NotFound(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, err := store.GetSubmission(ctx, filing.SubmissionID("missing"))
	assert.ErrorIs(t, err, filing.ErrSubmissionNotFound)
	_, err = store.FindSubmission(ctx, filing.Monthly, "2025-01")
	assert.ErrorIs(t, err, filing.ErrSubmissionNotFound)
	assert.ErrorIs(t, store.DeleteSubmission(ctx, "missing"), filing.ErrSubmissionNotFound)
	assert.ErrorIs(t, store.UpdateSubmission(ctx, filing.Submission{ID: "missing"}), filing.ErrSubmissionNotFound)
}

func TestSubmissions_UpdateSentAt(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sub := seedSubmission(t, store, filing.Weekly, "2025-10")

	sent := base.Add(2 * time.Hour)
	sub.State = filing.StateSubmitted
	sub.SentAt = &sent
	sub.UpdatedAt = sent
	require.NoError(t, store.UpdateSubmission(ctx, sub))

	got, err := store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, filing.StateSubmitted, got.State)
	require.NotNil(t, got.SentAt)
	assert.True(t, got.SentAt.Equal(sent))
}

func TestListSubmissions_Filters(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedSubmission(t, store, filing.Weekly, "2025-09")
	w10 := seedSubmission(t, store, filing.Weekly, "2025-10")
	seedSubmission(t, store, filing.Monthly, "2025-02")

	w10.State = filing.StateLoaded
	require.NoError(t, store.UpdateSubmission(ctx, w10))

	tests := []struct {
		name   string
		filter filing.SubmissionFilter
		want   []string
	}{
		{"all", filing.SubmissionFilter{}, []string{"2025-10", "2025-09", "2025-02"}},
		{"weekly", filing.SubmissionFilter{DeliveryType: filing.Weekly}, []string{"2025-10", "2025-09"}},
		{"periods", filing.SubmissionFilter{Periods: []string{"2025-09", "2025-02"}}, []string{"2025-09", "2025-02"}},
		{"empty periods", filing.SubmissionFilter{Periods: []string{}}, nil},
		{"states", filing.SubmissionFilter{States: []filing.LocalState{filing.StateLoaded}}, []string{"2025-10"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs, err := store.ListSubmissions(ctx, tt.filter)
			require.NoError(t, err)
			var got []string
			for _, s := range subs {
				got = append(got, s.Period)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// OPERATIONS
// =============================================================================

func TestOperations_SaveRoundTripsKindAndFields(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sub := seedSubmission(t, store, filing.Weekly, "2025-10")
	p := purchase(sub.ID, base)

	require.NoError(t, store.SaveOperation(ctx, p))

	got, err := store.GetOperation(ctx, p.ID)
	require.NoError(t, err)
	gp, ok := got.(*filing.Purchase)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, "YM35O", gp.SpeciesCode)
	assert.True(t, gp.Price.Equal(decimal.RequireFromString("1.05")))
	assert.Equal(t, sub.ID, gp.SubmissionID)
	assert.True(t, gp.CreatedAt.Equal(base))
}

func TestOperations_SaveReplacesByID(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sub := seedSubmission(t, store, filing.Weekly, "2025-10")
	p := purchase(sub.ID, base)
	require.NoError(t, store.SaveOperation(ctx, p))

	p.Quantity = decimal.NewFromInt(2500)
	p.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, store.SaveOperation(ctx, p))

	ops, err := store.ListOperations(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.True(t, ops[0].(*filing.Purchase).Quantity.Equal(decimal.NewFromInt(2500)))
}

func TestOperations_ListKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sub := seedSubmission(t, store, filing.Weekly, "2025-10")

	var ids []string
	for i := 0; i < 3; i++ {
		p := purchase(sub.ID, base.Add(time.Duration(3-i)*time.Minute))
		require.NoError(t, store.SaveOperation(ctx, p))
		ids = append(ids, p.ID)
	}

	ops, err := store.ListOperations(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	for i, op := range ops {
		assert.Equal(t, ids[i], op.Meta().ID)
	}
}

func TestOperations_DeleteCreatedAfter(t *testing.T) {
	// GIVEN: one row from the original filing and two added afterwards
	ctx := context.Background()
	store := newStore(t)
	sub := seedSubmission(t, store, filing.Weekly, "2025-10")
	sentAt := base.Add(time.Hour)

	require.NoError(t, store.SaveOperation(ctx, purchase(sub.ID, base)))
	require.NoError(t, store.SaveOperation(ctx, purchase(sub.ID, sentAt)))
	require.NoError(t, store.SaveOperation(ctx, purchase(sub.ID, sentAt.Add(time.Nanosecond))))
	require.NoError(t, store.SaveOperation(ctx, purchase(sub.ID, sentAt.Add(48*time.Hour))))

	// WHEN: deleting rows strictly newer than the send time
	n, err := store.DeleteOperationsCreatedAfter(ctx, sub.ID, sentAt)

	// THEN: rows at or before the send time survive
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	ops, err := store.ListOperations(ctx, sub.ID)
	require.NoError(t, err)
	assert.Len(t, ops, 2)
}

func TestOperations_DeleteMissing(t *testing.T) {
	store := newStore(t)
	assert.ErrorIs(t, store.DeleteOperation(context.Background(), "nope"), filing.ErrNotFound)
	_, err := store.GetOperation(context.Background(), "nope")
	assert.ErrorIs(t, err, filing.ErrNotFound)
}

// =============================================================================
// STOCK
// =============================================================================

func TestStocks_BatchCountAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sub := seedSubmission(t, store, filing.Monthly, "2025-02")

	rows := []filing.Stock{
		deposit(sub.ID, base, "000001-CDF1"),
		deposit(sub.ID, base, "000002-CDF2"),
	}
	require.NoError(t, store.InsertStocks(ctx, rows))

	n, err := store.CountStocks(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	listed, err := store.ListStocks(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "000001-CDF1", listed[0].(*filing.DepositStock).CDF)

	deleted, err := store.DeleteStocks(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	n, err = store.CountStocks(ctx, sub.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStocks_DeleteCreatedAfter(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sub := seedSubmission(t, store, filing.Monthly, "2025-02")
	require.NoError(t, store.SaveStock(ctx, deposit(sub.ID, base, "A")))
	require.NoError(t, store.SaveStock(ctx, deposit(sub.ID, base.Add(time.Minute), "B")))

	n, err := store.DeleteStocksCreatedAfter(ctx, sub.ID, base)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// =============================================================================
// TRANSACTIONS AND CASCADES
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: a monthly submission
	ctx := context.Background()
	store := newStore(t)
	sub := seedSubmission(t, store, filing.Monthly, "2025-02")

	// WHEN: a transaction writes a row and then fails
	err := store.WithTx(ctx, func(tx filing.Store) error {
		if err := tx.SaveStock(ctx, deposit(sub.ID, base, "A")); err != nil {
			return err
		}
		return filing.ErrStockAlreadyExists
	})

	// THEN: nothing was written
	assert.ErrorIs(t, err, filing.ErrStockAlreadyExists)
	n, err := store.CountStocks(ctx, sub.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteSubmission_Cascades(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sub := seedSubmission(t, store, filing.Weekly, "2025-10")
	p := purchase(sub.ID, base)
	require.NoError(t, store.SaveOperation(ctx, p))
	_, err := store.UpsertResponse(ctx, filing.Response{
		SubmissionID: sub.ID, Endpoint: "entregaSemanal", Status: 200,
		Timestamps: filing.Timestamps{CreatedAt: base, UpdatedAt: base},
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteSubmission(ctx, sub.ID))

	_, err = store.GetOperation(ctx, p.ID)
	assert.ErrorIs(t, err, filing.ErrNotFound)
	responses, err := store.ListResponses(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, responses)
}

// =============================================================================
// RESPONSES
// =============================================================================

func TestUpsertResponse_OverwritesAndKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sub := seedSubmission(t, store, filing.Weekly, "2025-10")

	first := filing.Response{
		SubmissionID: sub.ID,
		Endpoint:     "entregaSemanal",
		Payload:      json.RawMessage(`{"cronograma":"2025-10"}`),
		Body:         json.RawMessage(`{"message":"error"}`),
		Status:       500,
		IsError:      true,
		Timestamps:   filing.Timestamps{CreatedAt: base, UpdatedAt: base},
	}
	created, err := store.UpsertResponse(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	later := base.Add(time.Hour)
	second := first
	second.Body = json.RawMessage(`{"estado":"CARGADO"}`)
	second.Status = 200
	second.IsError = false
	second.CreatedAt, second.UpdatedAt = later, later
	created, err = store.UpsertResponse(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := store.ListResponses(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 200, got[0].Status)
	assert.False(t, got[0].IsError)
	assert.JSONEq(t, `{"estado":"CARGADO"}`, string(got[0].Body))
	assert.True(t, got[0].CreatedAt.Equal(base))
	assert.True(t, got[0].UpdatedAt.Equal(later))
}

func TestUpsertResponse_RejectsLongEndpoint(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sub := seedSubmission(t, store, filing.Weekly, "2025-10")

	long := make([]byte, filing.MaxEndpointLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := store.UpsertResponse(ctx, filing.Response{SubmissionID: sub.ID, Endpoint: string(long), Status: 200})
	assert.Error(t, err)
}
