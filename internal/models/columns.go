package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderItems is stored as a JSONB column
type OrderItems []OrderItem

// Totals returns the summed item totals and item profits
func (items OrderItems) Totals() (total, profit decimal.Decimal) {
	total, profit = decimal.Zero, decimal.Zero
	for _, it := range items {
		total = total.Add(it.ItemTotal)
		profit = profit.Add(it.ItemProfit)
	}
	return total, profit
}

// Clone returns an independent copy
func (items OrderItems) Clone() OrderItems {
	if items == nil {
		return nil
	}
	out := make(OrderItems, len(items))
	copy(out, items)
	return out
}

func (items OrderItems) Value() (driver.Value, error) {
	return marshalColumn(items)
}

func (items *OrderItems) Scan(src interface{}) error {
	return unmarshalColumn(src, items)
}

// ReturnItems is stored as a JSONB column
type ReturnItems []ReturnItem

// Clone returns an independent copy
func (items ReturnItems) Clone() ReturnItems {
	if items == nil {
		return nil
	}
	out := make(ReturnItems, len(items))
	copy(out, items)
	return out
}

func (items ReturnItems) Value() (driver.Value, error) {
	return marshalColumn(items)
}

func (items *ReturnItems) Scan(src interface{}) error {
	return unmarshalColumn(src, items)
}

// EditHistory is stored as a JSONB column, oldest entry first
type EditHistory []EditEntry

// Append adds entries and keeps at most limit of the newest ones.
// A limit <= 0 disables the cap.
func (h EditHistory) Append(limit int, entries ...EditEntry) EditHistory {
	out := append(h.Clone(), entries...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Clone returns an independent copy
func (h EditHistory) Clone() EditHistory {
	if h == nil {
		return nil
	}
	out := make(EditHistory, len(h))
	copy(out, h)
	return out
}

func (h EditHistory) Value() (driver.Value, error) {
	return marshalColumn(h)
}

func (h *EditHistory) Scan(src interface{}) error {
	return unmarshalColumn(src, h)
}

func marshalColumn(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte("[]"), nil
	}
	return b, nil
}

func unmarshalColumn(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}
