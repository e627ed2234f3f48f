package payload

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/warp/ssn-filing/filing"
)

// Decoded is a delivery read back from the regulator.
type Decoded struct {
	CompanyCode string
	Operations  []filing.Operation
	Stocks      []filing.Stock
	// Skipped counts items whose kind code was unknown.
	Skipped int
}

// Count is the number of decoded rows of either family.
func (d Decoded) Count() int { return len(d.Operations) + len(d.Stocks) }

// Decode normalizes a regulator delivery body into domain rows. Keys are
// converted to snake_case, DDMMYYYY dates are parsed, empty strings are
// treated as absent and null required decimals become zero.
func Decode(body map[string]any) (Decoded, error) {
	var out Decoded
	out.CompanyCode, _ = body["codigoCompania"].(string)

	for i, item := range asList(body[KeyOperations]) {
		kind, _ := item[KeyOpKind].(string)
		op, err := filing.NewOperation(filing.OperationKind(kind))
		if err != nil {
			out.Skipped++
			continue
		}
		if op.Kind() == filing.KindSwap {
			item = splitSwapDetails(item)
		}
		if err := decodeInto(item, op); err != nil {
			return Decoded{}, fmt.Errorf("operation %d (%s): %w", i, kind, err)
		}
		out.Operations = append(out.Operations, op)
	}

	for i, item := range asList(body[KeyStocks]) {
		kind, _ := item[KeyStockKind].(string)
		s, err := filing.NewStock(filing.StockKind(kind))
		if err != nil {
			out.Skipped++
			continue
		}
		if err := decodeInto(item, s); err != nil {
			return Decoded{}, fmt.Errorf("stock %d (%s): %w", i, kind, err)
		}
		out.Stocks = append(out.Stocks, s)
	}
	return out, nil
}

func asList(v any) []map[string]any {
	raw, _ := v.([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// splitSwapDetails accepts the "detalles" list form of a swap and rewrites
// it as detalleA / detalleB, using tipoDetalle when present and list order
// otherwise.
func splitSwapDetails(item map[string]any) map[string]any {
	details := asList(item["detalles"])
	if len(details) == 0 {
		return item
	}
	out := make(map[string]any, len(item)+2)
	for k, v := range item {
		if k != "detalles" {
			out[k] = v
		}
	}
	for i, d := range details {
		side, _ := d["tipoDetalle"].(string)
		if side == "" && i < 2 {
			side = string(rune('A' + i))
		}
		switch strings.ToUpper(side) {
		case "A":
			out["detalleA"] = d
		case "B":
			out["detalleB"] = d
		}
	}
	return out
}

func decodeInto(item map[string]any, dst any) error {
	t := reflect.TypeOf(dst).Elem()
	data, err := json.Marshal(normalize(item, t))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// normalize rewrites a wire object into the json shape of t.
func normalize(item map[string]any, t reflect.Type) map[string]any {
	fields := make(map[string]reflect.Type)
	for _, f := range wireFields(t) {
		fields[f.name] = f.typ
	}

	out := make(map[string]any, len(item))
	for k, v := range item {
		name := ToSnake(k)
		typ, known := fields[name]
		if !known {
			continue
		}
		if s, ok := v.(string); ok && (s == "" || s == "null") {
			continue
		}
		out[name] = normalizeValue(v, typ)
	}
	// Required decimals may come back as null.
	for name, typ := range fields {
		if typ == decimalType && out[name] == nil {
			out[name] = "0"
		}
	}
	return out
}

func normalizeValue(v any, typ reflect.Type) any {
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	switch {
	case typ.Kind() == reflect.Bool:
		switch x := v.(type) {
		case string:
			return x == "1" || strings.EqualFold(x, "true")
		case float64:
			return x != 0
		}
		return v
	case typ == decimalType:
		if f, ok := v.(float64); ok {
			return json.Number(strconv.FormatFloat(f, 'f', -1, 64))
		}
		return v
	case typ.Kind() == reflect.String:
		if f, ok := v.(float64); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return v
	case typ == dateType:
		return v
	case typ.Kind() == reflect.Struct:
		if m, ok := v.(map[string]any); ok {
			return normalize(m, typ)
		}
	}
	return v
}
