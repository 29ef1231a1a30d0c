// Package recurring expands recurring entry templates into dated instances.
package recurring

import (
	"fmt"
	"iter"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

// Instance is one dated occurrence of a recurring entry.
type Instance struct {
	Category string
	Expense  string
	Amount   decimal.Decimal
	Date     models.Date
	Type     models.EntryType
}

// occurrenceFunc returns the n-th occurrence counted from start (n = 0 is start).
type occurrenceFunc func(start models.Date, n int) models.Date

var occurrences = map[models.Interval]occurrenceFunc{
	models.IntervalDaily:    everyDays(1),
	models.IntervalWeekly:   everyDays(7),
	models.IntervalBiweekly: everyDays(14),
	models.IntervalMonthly:  everyMonths(1),
	models.IntervalYearly:   everyMonths(12),
}

func everyDays(days int) occurrenceFunc {
	return func(start models.Date, n int) models.Date {
		return start.AddDays(days * n)
	}
}

func everyMonths(months int) occurrenceFunc {
	return func(start models.Date, n int) models.Date {
		return AddMonthsClamped(start, months*n)
	}
}

// AddMonthsClamped moves d by the given number of calendar months, keeping the
// day of month and clamping it to the last day of shorter months.
func AddMonthsClamped(d models.Date, months int) models.Date {
	year, month, day := d.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return models.NewDate(first.Year(), first.Month(), day)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Supported reports whether the interval can be expanded.
func Supported(interval models.Interval) bool {
	_, ok := occurrences[interval]
	return ok
}

// Validate checks a recurring entry before it is stored.
func Validate(entry models.RecurringEntry) error {
	if !entry.Amount.IsPositive() {
		return models.ErrInvalidAmount
	}
	if !Supported(entry.Interval) {
		return fmt.Errorf("%w: %q", models.ErrInvalidInterval, entry.Interval)
	}
	if entry.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", models.ErrInvalidDate)
	}
	if !entry.EndDate.IsZero() && entry.EndDate.Before(entry.StartDate.Time) {
		return fmt.Errorf("%w: end date before start date", models.ErrInvalidDate)
	}
	if entry.Type != models.EntryTypeIncome && entry.Type != models.EntryTypeExpense {
		return fmt.Errorf("%w: %q", models.ErrInvalidEntryType, entry.Type)
	}
	return nil
}

// Instances lazily yields the occurrences of entry up to and including the
// earlier of its end date and upTo. Unsupported intervals yield nothing.
func Instances(entry models.RecurringEntry, upTo models.Date) iter.Seq[Instance] {
	return func(yield func(Instance) bool) {
		next, ok := occurrences[entry.Interval]
		if !ok || entry.StartDate.IsZero() {
			return
		}

		cutoff := upTo
		if !entry.EndDate.IsZero() && entry.EndDate.Before(upTo.Time) {
			cutoff = entry.EndDate
		}

		for n := 0; ; n++ {
			date := next(entry.StartDate, n)
			if date.After(cutoff.Time) {
				return
			}
			inst := Instance{
				Category: entry.Category,
				Expense:  entry.Expense,
				Amount:   entry.Amount,
				Date:     date,
				Type:     entry.Type,
			}
			if !yield(inst) {
				return
			}
		}
	}
}

// Expand returns every occurrence of entry up to upTo.
func Expand(entry models.RecurringEntry, upTo models.Date) ([]Instance, error) {
	if !Supported(entry.Interval) {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidInterval, entry.Interval)
	}
	if entry.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", models.ErrInvalidDate)
	}

	var out []Instance
	for inst := range Instances(entry, upTo) {
		out = append(out, inst)
	}
	return out, nil
}

// ExpandAll expands every entry, skipping the ones that cannot be expanded.
func ExpandAll(entries []models.RecurringEntry, upTo models.Date) []Instance {
	var out []Instance
	for _, entry := range entries {
		for inst := range Instances(entry, upTo) {
			out = append(out, inst)
		}
	}
	return out
}
