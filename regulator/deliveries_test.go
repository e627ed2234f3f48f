package regulator_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/ssn-filing/filing"
	"github.com/warp/ssn-filing/regulator"
)

type getterFunc func(resource string, params url.Values) regulator.Response

func (f getterFunc) Get(_ context.Context, resource string, params url.Values) regulator.Response {
	return f(resource, params)
}

func TestQueryState(t *testing.T) {
	tests := []struct {
		name string
		resp regulator.Response
		want filing.RemoteState
	}{
		{"loaded", regulator.Response{Body: map[string]any{"estado": "CARGADO"}, Status: 200}, filing.RemoteLoaded},
		{"lowercase", regulator.Response{Body: map[string]any{"estado": "presentado"}, Status: 200}, filing.RemoteSubmitted},
		{"missing delivery", regulator.Response{Body: map[string]any{"message": "No existe entrega para el cronograma"}, Status: 404}, filing.RemoteNotSubmitted},
		{"no estado", regulator.Response{Body: map[string]any{}, Status: 200}, ""},
		{"unavailable", regulator.Response{Body: map[string]any{"error": "down"}, Status: 503}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotResource string
			var gotParams url.Values
			g := getterFunc(func(resource string, params url.Values) regulator.Response {
				gotResource, gotParams = resource, params
				return tt.resp
			})

			state, resp := regulator.QueryState(context.Background(), g, "0744", filing.Monthly, "2025-03")

			assert.Equal(t, tt.want, state)
			assert.Equal(t, tt.resp.Status, resp.Status)
			assert.Equal(t, "entregaMensual", gotResource)
			assert.Equal(t, "0744", gotParams.Get("codigoCompania"))
			assert.Equal(t, "2025-03", gotParams.Get("cronograma"))
		})
	}
}

func TestResourceNames(t *testing.T) {
	assert.Equal(t, "entregaSemanal", regulator.DeliveryResource(filing.Weekly))
	assert.Equal(t, "confirmarEntregaSemanal", regulator.ConfirmResource(filing.Weekly))
	assert.Equal(t, "rectificarEntregaMensual", regulator.RectifyResource(filing.Monthly))
}
