// Package report renders budgets as charts and CSV exports.
package report

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-analyze/charts"
	"github.com/shopspring/decimal"

	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

// ErrNoData is returned when there is nothing positive to chart.
var ErrNoData = errors.New("no expenses to chart")

// BudgetChart creates a pie chart of the positive category totals and returns
// it as PNG bytes. Slices are ordered by category name.
func BudgetChart(totals map[string]decimal.Decimal, title string) ([]byte, error) {
	names := make([]string, 0, len(totals))
	for name, total := range totals {
		if total.IsPositive() {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, ErrNoData
	}
	slices.Sort(names)

	values := make([]float64, 0, len(names))
	for _, name := range names {
		values = append(values, totals[name].InexactFloat64())
	}

	p, err := charts.PieRender(
		values,
		charts.TitleOptionFunc(charts.TitleOption{Text: title}),
		charts.LegendLabelsOptionFunc(names),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf, nil
}

// ChartFilename names the chart of the month containing day, like
// "budget_2025-03.png".
func ChartFilename(day models.Date) string {
	return fmt.Sprintf("budget_%s.png", day.MonthKey())
}
