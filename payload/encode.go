/*
Package payload converts filings to and from the regulator's wire shape.

PURPOSE:
  The regulator takes a single JSON object per delivery: the submission
  header plus an "operaciones" (weekly) or "stocks" (monthly) array. Field
  names are the camelCase form of the snake_case json tags on the domain
  types.

WIRE RULES (encode):
  - camelCase keys (cant_especies -> cantEspecies)
  - dates as DDMMYYYY
  - booleans as "1" / "0"
  - absent optional values as ""
  - decimals as strings; cantEspecies is truncated to an integer unless
    the species type is FC (mutual fund shares)
  - operations carry tipoOperacion, stock rows carry tipo

SEE ALSO:
  - decode.go: the inverse, used by history import
  - lifecycle/send.go: the only caller of Delivery
*/
package payload

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/warp/ssn-filing/calendar"
	"github.com/warp/ssn-filing/filing"
)

// Top-level keys of a delivery.
const (
	KeyOperations = "operaciones"
	KeyStocks     = "stocks"
	KeyOpKind     = "tipoOperacion"
	KeyStockKind  = "tipo"
)

// Header identifies a delivery. It is also the whole confirmation and
// rectification payload.
func Header(s filing.Submission) map[string]any {
	return map[string]any{
		"codigoCompania": s.CompanyCode,
		"tipoEntrega":    string(s.DeliveryType),
		"cronograma":     s.Period,
	}
}

// Delivery builds the full entrega payload for a weekly submission.
func Delivery(s filing.Submission, ops []filing.Operation) map[string]any {
	out := Header(s)
	out["estado"] = string(s.State)
	items := make([]map[string]any, 0, len(ops))
	for _, op := range ops {
		items = append(items, EncodeOperation(op))
	}
	out[KeyOperations] = items
	return out
}

// StockDelivery builds the full entrega payload for a monthly submission.
func StockDelivery(s filing.Submission, rows []filing.Stock) map[string]any {
	out := Header(s)
	out["estado"] = string(s.State)
	items := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		items = append(items, EncodeStock(r))
	}
	out[KeyStocks] = items
	return out
}

func EncodeOperation(op filing.Operation) map[string]any {
	m := encodeStruct(reflect.ValueOf(op).Elem())
	m[KeyOpKind] = string(op.Kind())
	return m
}

func EncodeStock(s filing.Stock) map[string]any {
	m := encodeStruct(reflect.ValueOf(s).Elem())
	m[KeyStockKind] = string(s.Kind())
	return m
}

// =============================================================================
// REFLECTION
// =============================================================================

var (
	dateType    = reflect.TypeOf(calendar.Date{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	recordType  = reflect.TypeOf(filing.Record{})
)

// wireField is one json-tagged field reachable through embedded groups.
type wireField struct {
	name  string // snake_case json name
	index []int
	typ   reflect.Type
}

// wireFields flattens embedded groups. Record (id, owner, timestamps) is
// local bookkeeping and never part of the wire shape.
func wireFields(t reflect.Type) []wireField {
	var out []wireField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if f.Anonymous && tag == "" && f.Type.Kind() == reflect.Struct {
			if f.Type == recordType {
				continue
			}
			for _, inner := range wireFields(f.Type) {
				inner.index = append([]int{i}, inner.index...)
				out = append(out, inner)
			}
			continue
		}
		if tag == "" || tag == "-" {
			continue
		}
		out = append(out, wireField{name: tag, index: []int{i}, typ: f.Type})
	}
	return out
}

func encodeStruct(v reflect.Value) map[string]any {
	out := make(map[string]any)
	for _, f := range wireFields(v.Type()) {
		out[ToCamel(f.name)] = encodeValue(v.FieldByIndex(f.index))
	}
	if q, ok := out["cantEspecies"].(string); ok && out["tipoEspecie"] != string(filing.SpeciesMutualFund) {
		if d, err := decimal.NewFromString(q); err == nil {
			out["cantEspecies"] = d.Truncate(0).String()
		}
	}
	return out
}

func encodeValue(v reflect.Value) any {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	switch v.Type() {
	case dateType:
		return v.Interface().(calendar.Date).Wire()
	case decimalType:
		return v.Interface().(decimal.Decimal).String()
	}
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return "1"
		}
		return "0"
	case reflect.String:
		return v.String()
	case reflect.Struct:
		return encodeStruct(v)
	}
	return v.Interface()
}

// =============================================================================
// KEY CASE
// =============================================================================

// ToCamel converts snake_case to camelCase: "valor_nominal_origen" ->
// "valorNominalOrigen", "detalle_a" -> "detalleA".
func ToCamel(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

// ToSnake converts camelCase or PascalCase to snake_case.
func ToSnake(s string) string {
	r := []rune(s)
	var b strings.Builder
	for i, c := range r {
		if unicode.IsUpper(c) {
			prevLower := i > 0 && (unicode.IsLower(r[i-1]) || unicode.IsDigit(r[i-1]))
			nextLower := i > 0 && i+1 < len(r) && unicode.IsLower(r[i+1]) && unicode.IsUpper(r[i-1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(c))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
