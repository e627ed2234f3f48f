package regulator

import (
	"context"
	"net/url"
	"strings"

	"github.com/warp/ssn-filing/filing"
)

// =============================================================================
// DELIVERY RESOURCES
// =============================================================================

// Resource names are built from the delivery type's regulator spelling.
func DeliveryResource(dt filing.DeliveryType) string { return "entrega" + string(dt) }
func ConfirmResource(dt filing.DeliveryType) string  { return "confirmarEntrega" + string(dt) }
func RectifyResource(dt filing.DeliveryType) string  { return "rectificarEntrega" + string(dt) }

// Getter is satisfied by *Client and by test fakes.
type Getter interface {
	Get(ctx context.Context, resource string, params url.Values) Response
}

const missingDelivery = "no existe entrega"

// QueryState asks the regulator for the lifecycle state of one period.
// A "no existe entrega" answer maps to RemoteNotSubmitted. state is empty
// when the call failed or the body carried no estado; resp is always the
// raw answer.
func QueryState(ctx context.Context, g Getter, company string, dt filing.DeliveryType, period string) (state filing.RemoteState, resp Response) {
	resp = g.Get(ctx, DeliveryResource(dt), url.Values{
		"codigoCompania": {company},
		"cronograma":     {period},
	})

	if strings.Contains(strings.ToLower(resp.String("message")), missingDelivery) {
		return filing.RemoteNotSubmitted, resp
	}
	if resp.IsError() {
		return "", resp
	}
	estado := strings.ToUpper(strings.TrimSpace(resp.String("estado")))
	return filing.RemoteState(estado), resp
}
