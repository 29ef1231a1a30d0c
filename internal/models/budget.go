package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/shopspring/decimal"
)

// Entry is one expense leaf of a categorized budget.
type Entry struct {
	Amount decimal.Decimal
	Date   Date
	// Malformed marks entries whose stored amount was missing or not a number.
	// They are kept as stored but ignored by every total.
	Malformed bool
}

// NewEntry builds a well-formed entry.
func NewEntry(amount decimal.Decimal, date Date) Entry {
	return Entry{Amount: amount, Date: date}
}

type entryJSON struct {
	Amount *json.Number `json:"amount"`
	Date   Date         `json:"date,omitzero"`
}

// MarshalJSON writes the entry as {"amount": n, "date": "YYYY-MM-DD"}.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := entryJSON{Date: e.Date}
	if !e.Malformed {
		n := json.Number(e.Amount.String())
		out.Amount = &n
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the object form as well as a bare number, which older
// clients stored directly under the expense key.
func (e *Entry) UnmarshalJSON(data []byte) error {
	*e = Entry{}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		amount, ok := decodeAmount(data)
		e.Amount, e.Malformed = amount, !ok
		return nil
	}

	var raw struct {
		Amount json.RawMessage `json:"amount"`
		Date   json.RawMessage `json:"date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode budget entry: %w", err)
	}
	amount, ok := decodeAmount(raw.Amount)
	e.Amount, e.Malformed = amount, !ok
	if len(raw.Date) > 0 {
		// An unreadable date is treated like a missing one.
		_ = e.Date.UnmarshalJSON(raw.Date)
	}
	return nil
}

func decodeAmount(raw json.RawMessage) (decimal.Decimal, bool) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	return decimal.Zero, false
}

// Budget maps a sanitized category to its sanitized expenses.
type Budget map[string]map[string]Entry

// Clone returns a deep copy. A nil budget clones to an empty one.
func (b Budget) Clone() Budget {
	c := make(Budget, len(b))
	for category, expenses := range b {
		c[category] = maps.Clone(expenses)
	}
	return c
}

// Get returns the entry stored at (category, expense).
func (b Budget) Get(category, expense string) (Entry, bool) {
	e, ok := b[category][expense]
	return e, ok
}

// Len counts the expense entries of all categories.
func (b Budget) Len() int {
	n := 0
	for _, expenses := range b {
		n += len(expenses)
	}
	return n
}

// Equal reports whether both budgets hold the same entries.
func (b Budget) Equal(other Budget) bool {
	if len(b) != len(other) {
		return false
	}
	for category, expenses := range b {
		o, ok := other[category]
		if !ok || len(o) != len(expenses) {
			return false
		}
		for name, e := range expenses {
			oe, ok := o[name]
			if !ok || oe.Malformed != e.Malformed || !oe.Amount.Equal(e.Amount) || !oe.Date.Equal(e.Date.Time) {
				return false
			}
		}
	}
	return true
}

// MarshalJSON writes a nil budget as an empty object.
func (b Budget) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]map[string]Entry(b))
}

// UnmarshalJSON skips category values that are not objects.
func (b *Budget) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode budget: %w", err)
	}
	out := make(Budget, len(raw))
	for category, value := range raw {
		var expenses map[string]Entry
		if err := json.Unmarshal(value, &expenses); err != nil || expenses == nil {
			continue
		}
		out[category] = expenses
	}
	*b = out
	return nil
}
