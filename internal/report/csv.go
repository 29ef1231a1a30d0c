package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"maps"
	"slices"

	"gitlab.com/yelinaung/sharedbudget/internal/budget"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

// BudgetCSV writes one row per entry, sorted by category then expense.
// Entries with an unreadable amount get an empty amount cell.
func BudgetCSV(b models.Budget) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Category", "Expense", "Amount", "Date"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, category := range slices.Sorted(maps.Keys(b)) {
		expenses := b[category]
		for _, expense := range slices.Sorted(maps.Keys(expenses)) {
			e := expenses[expense]
			amount := ""
			if !e.Malformed {
				amount = e.Amount.StringFixed(2)
			}
			if err := writer.Write([]string{category, expense, amount, e.Date.String()}); err != nil {
				return nil, fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// SavingsCSV writes the monthly savings table.
func SavingsCSV(months []budget.MonthSavings) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Month", "Spent", "Savings"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, m := range months {
		if err := writer.Write([]string{m.Month, m.Spent.StringFixed(2), m.Savings.StringFixed(2)}); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// CSVFilename names the export of the month containing day, like
// "budget_2025-03.csv".
func CSVFilename(day models.Date) string {
	return fmt.Sprintf("budget_%s.csv", day.MonthKey())
}
