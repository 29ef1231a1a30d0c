package budget

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/normalize"
)

// ParseAmount reads a user-typed amount. A decimal comma is accepted.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	amount, err := decimal.NewFromString(s)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q", models.ErrInvalidAmount, raw)
	}
	return amount, nil
}

// Key returns the sanitized (category, expense) storage path. Blank names are
// rejected because they would collapse into an empty key.
func Key(category, expense string) (string, string, error) {
	category, expense = strings.TrimSpace(category), strings.TrimSpace(expense)
	if category == "" || expense == "" {
		return "", "", models.ErrEmptyName
	}
	return normalize.SanitizeKey(category), normalize.SanitizeKey(expense), nil
}

// AddEntry returns a copy of b with {amount, date} written at the sanitized
// path, and the change to apply to the remaining budget. Overwriting an
// existing entry gives its amount back first.
func AddEntry(b models.Budget, category, expense string, amount decimal.Decimal, date models.Date) (models.Budget, decimal.Decimal, error) {
	if !amount.IsPositive() {
		return b, decimal.Zero, models.ErrInvalidAmount
	}
	cat, exp, err := Key(category, expense)
	if err != nil {
		return b, decimal.Zero, err
	}

	out := b.Clone()
	delta := amount.Neg()
	if prev, ok := out[cat][exp]; ok && !prev.Malformed {
		delta = delta.Add(prev.Amount)
	}
	if out[cat] == nil {
		out[cat] = make(map[string]models.Entry)
	}
	out[cat][exp] = models.NewEntry(amount, date)
	return out, delta, nil
}

// DeleteEntry returns a copy of b without the entry at (category, expense), or
// without the whole category when expense is empty, and the amount to refund.
// Categories left empty are pruned.
func DeleteEntry(b models.Budget, category, expense string) (models.Budget, decimal.Decimal, error) {
	cat := normalize.SanitizeKey(strings.TrimSpace(category))
	expenses, ok := b[cat]
	if !ok {
		return b, decimal.Zero, fmt.Errorf("%w: category %q", models.ErrNotFound, category)
	}

	out := b.Clone()
	refund := decimal.Zero

	if strings.TrimSpace(expense) == "" {
		for _, e := range expenses {
			if !e.Malformed {
				refund = refund.Add(e.Amount)
			}
		}
		delete(out, cat)
		return out, refund, nil
	}

	exp := normalize.SanitizeKey(strings.TrimSpace(expense))
	e, ok := expenses[exp]
	if !ok {
		return b, decimal.Zero, fmt.Errorf("%w: expense %q", models.ErrNotFound, expense)
	}
	if !e.Malformed {
		refund = e.Amount
	}
	delete(out[cat], exp)
	if len(out[cat]) == 0 {
		delete(out, cat)
	}
	return out, refund, nil
}

// AddGroupExpense is AddEntry under a hard ceiling: the amount may not exceed
// what remains. It returns the new budget and the new remaining amount.
func AddGroupExpense(b models.Budget, remaining decimal.Decimal, category, expense string, amount decimal.Decimal, date models.Date) (models.Budget, decimal.Decimal, error) {
	if !amount.IsPositive() {
		return b, remaining, models.ErrInvalidAmount
	}
	available := remaining
	if cat, exp, err := Key(category, expense); err == nil {
		if prev, ok := b[cat][exp]; ok && !prev.Malformed {
			available = available.Add(prev.Amount)
		}
	}
	if amount.GreaterThan(available) {
		return b, remaining, fmt.Errorf("%w: %s > %s", models.ErrInsufficientBudget, amount, available)
	}
	out, delta, err := AddEntry(b, category, expense, amount, date)
	if err != nil {
		return b, remaining, err
	}
	return out, remaining.Add(delta), nil
}

// DeleteGroupExpense removes an entry from a group budget and refunds it.
func DeleteGroupExpense(b models.Budget, remaining decimal.Decimal, category, expense string) (models.Budget, decimal.Decimal, error) {
	out, refund, err := DeleteEntry(b, category, expense)
	if err != nil {
		return b, remaining, err
	}
	return out, remaining.Add(refund), nil
}
