package validation_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ssn-filing/filing"
	"github.com/warp/ssn-filing/filing/store"
	"github.com/warp/ssn-filing/regulator"
	"github.com/warp/ssn-filing/validation"
)

type fakeRegulator struct {
	states map[string]regulator.Response
	calls  int
}

func (f *fakeRegulator) Get(_ context.Context, _ string, params url.Values) regulator.Response {
	f.calls++
	if resp, ok := f.states[params.Get("cronograma")]; ok {
		return resp
	}
	return regulator.Response{Body: map[string]any{"message": "No existe entrega"}, Status: 404}
}

func estado(s string) regulator.Response {
	return regulator.Response{Body: map[string]any{"estado": s}, Status: 200}
}

func newService(st filing.Store, remote *fakeRegulator) *validation.Service {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return validation.NewService(st, remote, "0744", logger)
}

func seed(t *testing.T, st filing.Store, dt filing.DeliveryType, period string, state filing.LocalState) filing.Submission {
	t.Helper()
	s := filing.NewSubmission("0744", dt, period, time.Now())
	s.State = state
	require.NoError(t, st.CreateSubmission(context.Background(), s))
	return s
}

func TestValidate_PredecessorNotSubmitted(t *testing.T) {
	// GIVEN: week 2025-10 exists but is only LOADED
	ctx := context.Background()
	st := store.NewMemory()
	seed(t, st, filing.Weekly, "2025-10", filing.StateLoaded)
	remote := &fakeRegulator{}

	// WHEN: validating week 2025-11
	failures, err := newService(st, remote).Validate(ctx, filing.Weekly, "2025-11", "")

	// THEN: exactly one failure naming the predecessor, and no remote call
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "cronograma_semanal", failures[0].Field)
	assert.Contains(t, failures[0].Message, "(2025-10)")
	assert.Contains(t, failures[0].Message, "CARGADO")
	assert.Zero(t, remote.calls)
}

func TestValidate_Duplicate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	existing := seed(t, st, filing.Weekly, "2025-10", filing.StateDraft)
	svc := newService(st, &fakeRegulator{})

	failures, err := svc.Validate(ctx, filing.Weekly, "2025-10", "")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "Ya existe una solicitud semanal para este cronograma.", failures[0].Message)

	// Editing the same record is not a duplicate.
	failures, err = svc.Validate(ctx, filing.Weekly, "2025-10", existing.ID)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestValidate_Sequencing(t *testing.T) {
	tests := []struct {
		name     string
		existing map[string]filing.LocalState
		period   string
		wantMsg  string
	}{
		{
			name:   "first submission of the type passes",
			period: "2025-30",
		},
		{
			name:     "week 1 has no predecessor",
			existing: map[string]filing.LocalState{"2024-40": filing.StateDraft},
			period:   "2025-01",
		},
		{
			name:     "submitted predecessor passes",
			existing: map[string]filing.LocalState{"2025-09": filing.StateSubmitted},
			period:   "2025-10",
		},
		{
			name:     "skipped period names the latest existing",
			existing: map[string]filing.LocalState{"2025-05": filing.StateSubmitted, "2025-07": filing.StateSubmitted},
			period:   "2025-10",
			wantMsg:  "El último cronograma existente es 2025-07.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			for period, state := range tt.existing {
				seed(t, st, filing.Weekly, period, state)
			}

			failures, err := newService(st, &fakeRegulator{}).Validate(context.Background(), filing.Weekly, tt.period, "")
			require.NoError(t, err)
			if tt.wantMsg == "" {
				assert.Empty(t, failures)
				return
			}
			require.Len(t, failures, 1)
			assert.Contains(t, failures[0].Message, tt.wantMsg)
		})
	}
}

func TestValidate_MonthlyWrapsToDecember(t *testing.T) {
	// GIVEN: December 2024 is still a draft
	st := store.NewMemory()
	seed(t, st, filing.Monthly, "2024-12", filing.StateDraft)

	failures, err := newService(st, &fakeRegulator{}).Validate(context.Background(), filing.Monthly, "2025-01", "")

	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "cronograma_mensual", failures[0].Field)
	assert.Contains(t, failures[0].Message, "(2024-12)")
}

func TestValidate_RemoteState(t *testing.T) {
	tests := []struct {
		name    string
		resp    regulator.Response
		wantMsg string
	}{
		{"submitted", estado("PRESENTADO"), "ya fue presentado en la SSN"},
		{"rectification pending", estado("RECTIFICACION_PENDIENTE"), "(estado: RECTIFICACION_PENDIENTE)"},
		{"approved to rectify", estado("A_RECTIFICAR"), "(estado: A_RECTIFICAR)"},
		{"loaded passes", estado("CARGADO"), ""},
		{"unavailable passes", regulator.Response{Body: map[string]any{"error": "Se agotaron los 3 reintentos"}, Status: 503}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			remote := &fakeRegulator{states: map[string]regulator.Response{"2025-10": tt.resp}}

			failures, err := newService(st, remote).Validate(context.Background(), filing.Weekly, "2025-10", "")

			require.NoError(t, err)
			assert.Equal(t, 1, remote.calls)
			if tt.wantMsg == "" {
				assert.Empty(t, failures)
				return
			}
			require.Len(t, failures, 1)
			assert.Contains(t, failures[0].Message, tt.wantMsg)
		})
	}
}

func TestValidate_SkipRemote(t *testing.T) {
	st := store.NewMemory()
	remote := &fakeRegulator{states: map[string]regulator.Response{"2025-10": estado("PRESENTADO")}}
	svc := newService(st, remote)
	svc.SkipRemote = true

	failures, err := svc.Validate(context.Background(), filing.Weekly, "2025-10", "")

	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Zero(t, remote.calls)
}

func TestValidate_MonthlyNeedsData(t *testing.T) {
	ctx := context.Background()

	// GIVEN: no monthly and no weekly submissions at all
	st := store.NewMemory()
	failures, err := newService(st, &fakeRegulator{}).Validate(ctx, filing.Monthly, "2025-03", "")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "No se puede crear la solicitud mensual 2025-03: no existe stock del mes anterior ni operaciones semanales del período.", failures[0].Message)

	// WHEN: a weekly submission of March appears
	seed(t, st, filing.Weekly, "2025-11", filing.StateSubmitted)

	// THEN: the month can be created
	failures, err = newService(st, &fakeRegulator{}).Validate(ctx, filing.Monthly, "2025-03", "")
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestValidate_InvalidPeriod(t *testing.T) {
	failures, err := newService(store.NewMemory(), &fakeRegulator{}).Validate(context.Background(), filing.Monthly, "2025-13", "")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "cronograma_mensual", failures[0].Field)
}
