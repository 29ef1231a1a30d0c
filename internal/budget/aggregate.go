// Package budget holds the pure budget arithmetic: aggregation over stored
// entries and recurring instances, and copy-on-write mutation of budgets.
package budget

import (
	"slices"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/recurring"
)

// MonthSavings is the outcome of one calendar month.
type MonthSavings struct {
	Month   string          `json:"month"`
	Spent   decimal.Decimal `json:"spent"`
	Savings decimal.Decimal `json:"savings"`
}

// Totals sums the recurring instances of each type.
type Totals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// ManualTotal sums every well-formed entry of b.
func ManualTotal(b models.Budget) decimal.Decimal {
	total := decimal.Zero
	for _, expenses := range b {
		for _, e := range expenses {
			if !e.Malformed {
				total = total.Add(e.Amount)
			}
		}
	}
	return total
}

// RecurringTotals sums the instances of all entries up to asOf by type.
func RecurringTotals(entries []models.RecurringEntry, asOf models.Date) Totals {
	t := Totals{Income: decimal.Zero, Expense: decimal.Zero}
	for _, inst := range recurring.ExpandAll(entries, asOf) {
		switch inst.Type {
		case models.EntryTypeIncome:
			t.Income = t.Income.Add(inst.Amount)
		case models.EntryTypeExpense:
			t.Expense = t.Expense.Add(inst.Amount)
		}
	}
	return t
}

// RemainingBudget is the ceiling mode: total minus manual entries minus the
// recurring expenses that occurred up to asOf.
func RemainingBudget(total decimal.Decimal, entries models.Budget, rec []models.RecurringEntry, asOf models.Date) decimal.Decimal {
	return total.
		Sub(ManualTotal(entries)).
		Sub(RecurringTotals(rec, asOf).Expense)
}

// RemainingFromIncome is the income-relative mode: recurring income raises the
// base before manual entries and recurring expenses are taken off.
func RemainingFromIncome(income decimal.Decimal, entries models.Budget, rec []models.RecurringEntry, asOf models.Date) decimal.Decimal {
	t := RecurringTotals(rec, asOf)
	return income.
		Add(t.Income).
		Sub(ManualTotal(entries)).
		Sub(t.Expense)
}

// CategoryTotals sums the well-formed entries of each category. Categories
// without a single well-formed entry are left out.
func CategoryTotals(b models.Budget) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal, len(b))
	for category, expenses := range b {
		for _, e := range expenses {
			if e.Malformed {
				continue
			}
			totals[category] = totals[category].Add(e.Amount)
		}
	}
	return totals
}

// MonthlySavings buckets manual entries by month (undated ones count for the
// current month), adds this month's recurring expenses to the current month
// only, and reports monthlyBudget minus the spending of every observed month.
func MonthlySavings(entries models.Budget, rec []models.RecurringEntry, monthlyBudget decimal.Decimal, today models.Date) []MonthSavings {
	current := today.MonthKey()
	spent := make(map[string]decimal.Decimal)

	for _, expenses := range entries {
		for _, e := range expenses {
			if e.Malformed {
				continue
			}
			month := current
			if !e.Date.IsZero() {
				month = e.Date.MonthKey()
			}
			spent[month] = spent[month].Add(e.Amount)
		}
	}

	recurringThisMonth := decimal.Zero
	seen := false
	for _, inst := range recurring.ExpandAll(rec, today) {
		if inst.Type != models.EntryTypeExpense || inst.Date.MonthKey() != current {
			continue
		}
		recurringThisMonth = recurringThisMonth.Add(inst.Amount)
		seen = true
	}
	if seen {
		spent[current] = spent[current].Add(recurringThisMonth)
	}

	months := make([]string, 0, len(spent))
	for month := range spent {
		months = append(months, month)
	}
	slices.Sort(months)

	out := make([]MonthSavings, 0, len(months))
	for _, month := range months {
		out = append(out, MonthSavings{
			Month:   month,
			Spent:   spent[month],
			Savings: monthlyBudget.Sub(spent[month]),
		})
	}
	return out
}
