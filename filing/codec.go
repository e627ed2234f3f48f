package filing

import (
	"encoding/json"
	"fmt"
)

// DecodeOperation restores an operation stored as JSON under its kind.
func DecodeOperation(kind OperationKind, data []byte) (Operation, error) {
	op, err := NewOperation(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, op); err != nil {
		return nil, fmt.Errorf("decode %s operation: %w", kind, err)
	}
	return op, nil
}

// DecodeStock restores a stock row stored as JSON under its kind.
func DecodeStock(kind StockKind, data []byte) (Stock, error) {
	s, err := NewStock(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode %s stock: %w", kind, err)
	}
	return s, nil
}

// CloneOperation deep-copies an operation through its JSON form.
func CloneOperation(op Operation) (Operation, error) {
	data, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}
	return DecodeOperation(op.Kind(), data)
}

// CloneStock deep-copies a stock row through its JSON form.
func CloneStock(s Stock) (Stock, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return DecodeStock(s.Kind(), data)
}
