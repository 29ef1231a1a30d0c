package recurring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"pgregory.net/rapid"
)

func date(t *testing.T, s string) models.Date {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return d
}

func dates(instances []Instance) []string {
	out := make([]string, 0, len(instances))
	for _, inst := range instances {
		out = append(out, inst.Date.String())
	}
	return out
}

func TestExpand(t *testing.T) {
	t.Parallel()

	base := models.RecurringEntry{
		Category: "Housing",
		Expense:  "Rent",
		Amount:   decimal.NewFromInt(800),
		Type:     models.EntryTypeExpense,
	}

	tests := []struct {
		name     string
		interval models.Interval
		start    string
		end      string
		upTo     string
		expected []string
	}{
		{
			name:     "monthly bounded by end date",
			interval: models.IntervalMonthly,
			start:    "2025-01-15",
			end:      "2025-04-15",
			upTo:     "2025-12-31",
			expected: []string{"2025-01-15", "2025-02-15", "2025-03-15", "2025-04-15"},
		},
		{
			name:     "monthly bounded by cutoff",
			interval: models.IntervalMonthly,
			start:    "2025-01-15",
			upTo:     "2025-03-14",
			expected: []string{"2025-01-15", "2025-02-15"},
		},
		{
			name:     "month end clamps and recovers",
			interval: models.IntervalMonthly,
			start:    "2025-01-31",
			upTo:     "2025-05-31",
			expected: []string{"2025-01-31", "2025-02-28", "2025-03-31", "2025-04-30", "2025-05-31"},
		},
		{
			name:     "leap year february",
			interval: models.IntervalMonthly,
			start:    "2024-01-30",
			upTo:     "2024-03-01",
			expected: []string{"2024-01-30", "2024-02-29"},
		},
		{
			name:     "daily",
			interval: models.IntervalDaily,
			start:    "2025-02-27",
			upTo:     "2025-03-02",
			expected: []string{"2025-02-27", "2025-02-28", "2025-03-01", "2025-03-02"},
		},
		{
			name:     "weekly",
			interval: models.IntervalWeekly,
			start:    "2025-01-01",
			upTo:     "2025-01-22",
			expected: []string{"2025-01-01", "2025-01-08", "2025-01-15", "2025-01-22"},
		},
		{
			name:     "biweekly",
			interval: models.IntervalBiweekly,
			start:    "2025-01-01",
			upTo:     "2025-02-01",
			expected: []string{"2025-01-01", "2025-01-15", "2025-01-29"},
		},
		{
			name:     "yearly from leap day",
			interval: models.IntervalYearly,
			start:    "2024-02-29",
			upTo:     "2028-03-01",
			expected: []string{"2024-02-29", "2025-02-28", "2026-02-28", "2027-02-28", "2028-02-29"},
		},
		{
			name:     "start after cutoff",
			interval: models.IntervalMonthly,
			start:    "2025-06-01",
			upTo:     "2025-05-31",
			expected: []string{},
		},
		{
			name:     "start on cutoff",
			interval: models.IntervalWeekly,
			start:    "2025-06-01",
			upTo:     "2025-06-01",
			expected: []string{"2025-06-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			entry := base
			entry.Interval = tt.interval
			entry.StartDate = date(t, tt.start)
			if tt.end != "" {
				entry.EndDate = date(t, tt.end)
			}

			instances, err := Expand(entry, date(t, tt.upTo))
			require.NoError(t, err)
			require.Equal(t, tt.expected, dates(instances))
			for _, inst := range instances {
				require.Equal(t, "Housing", inst.Category)
				require.Equal(t, "Rent", inst.Expense)
				require.Equal(t, models.EntryTypeExpense, inst.Type)
				require.True(t, inst.Amount.Equal(decimal.NewFromInt(800)))
			}
		})
	}
}

func TestExpand_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unknown interval", func(t *testing.T) {
		t.Parallel()
		_, err := Expand(models.RecurringEntry{
			Interval:  "fortnightly",
			StartDate: models.NewDate(2025, time.January, 1),
		}, models.NewDate(2025, time.February, 1))
		require.ErrorIs(t, err, models.ErrInvalidInterval)
	})

	t.Run("missing start date", func(t *testing.T) {
		t.Parallel()
		_, err := Expand(models.RecurringEntry{Interval: models.IntervalDaily}, models.NewDate(2025, time.February, 1))
		require.ErrorIs(t, err, models.ErrInvalidDate)
	})
}

func TestInstances_StopsEarly(t *testing.T) {
	t.Parallel()

	entry := models.RecurringEntry{
		Interval:  models.IntervalDaily,
		StartDate: models.NewDate(2025, time.January, 1),
		Amount:    decimal.NewFromInt(1),
		Type:      models.EntryTypeExpense,
	}

	count := 0
	for range Instances(entry, models.NewDate(2030, time.January, 1)) {
		count++
		if count == 3 {
			break
		}
	}
	require.Equal(t, 3, count)
}

func TestExpandAll_SkipsUnsupported(t *testing.T) {
	t.Parallel()

	upTo := models.NewDate(2025, time.January, 3)
	entries := []models.RecurringEntry{
		{Interval: models.IntervalDaily, StartDate: models.NewDate(2025, time.January, 1), Amount: decimal.NewFromInt(2)},
		{Interval: "hourly", StartDate: models.NewDate(2025, time.January, 1), Amount: decimal.NewFromInt(5)},
	}

	require.Len(t, ExpandAll(entries, upTo), 3)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := models.RecurringEntry{
		Category:  "Salary",
		Expense:   "Job",
		Amount:    decimal.NewFromInt(3000),
		Interval:  models.IntervalMonthly,
		StartDate: models.NewDate(2025, time.January, 25),
		Type:      models.EntryTypeIncome,
	}
	require.NoError(t, Validate(valid))

	tests := []struct {
		name   string
		mutate func(*models.RecurringEntry)
		target error
	}{
		{name: "zero amount", mutate: func(e *models.RecurringEntry) { e.Amount = decimal.Zero }, target: models.ErrInvalidAmount},
		{name: "negative amount", mutate: func(e *models.RecurringEntry) { e.Amount = decimal.NewFromInt(-1) }, target: models.ErrInvalidAmount},
		{name: "bad interval", mutate: func(e *models.RecurringEntry) { e.Interval = "never" }, target: models.ErrInvalidInterval},
		{name: "no start", mutate: func(e *models.RecurringEntry) { e.StartDate = models.Date{} }, target: models.ErrInvalidDate},
		{name: "end before start", mutate: func(e *models.RecurringEntry) { e.EndDate = models.NewDate(2024, time.January, 1) }, target: models.ErrInvalidDate},
		{name: "bad type", mutate: func(e *models.RecurringEntry) { e.Type = "refund" }, target: models.ErrInvalidEntryType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			entry := valid
			tt.mutate(&entry)
			require.ErrorIs(t, Validate(entry), tt.target)
		})
	}
}

func TestExpand_Properties(t *testing.T) {
	t.Parallel()

	intervals := []models.Interval{
		models.IntervalDaily,
		models.IntervalWeekly,
		models.IntervalBiweekly,
		models.IntervalMonthly,
		models.IntervalYearly,
	}

	rapid.Check(t, func(t *rapid.T) {
		start := models.NewDate(
			rapid.IntRange(2000, 2030).Draw(t, "year"),
			time.Month(rapid.IntRange(1, 12).Draw(t, "month")),
			rapid.IntRange(1, 31).Draw(t, "day"),
		)
		upTo := start.AddDays(rapid.IntRange(-30, 800).Draw(t, "span"))
		entry := models.RecurringEntry{
			Amount:    decimal.NewFromInt(1),
			Interval:  rapid.SampledFrom(intervals).Draw(t, "interval"),
			StartDate: start,
			Type:      models.EntryTypeExpense,
		}

		first, err := Expand(entry, upTo)
		if err != nil {
			t.Fatal(err)
		}
		second, _ := Expand(entry, upTo)
		if len(first) != len(second) {
			t.Fatalf("expansion is not repeatable: %d vs %d", len(first), len(second))
		}

		prev := models.Date{}
		for i, inst := range first {
			if inst.Date.After(upTo.Time) {
				t.Fatalf("instance %d at %s after cutoff %s", i, inst.Date, upTo)
			}
			if i > 0 && !inst.Date.After(prev.Time) {
				t.Fatalf("instances not strictly increasing at %d", i)
			}
			if !second[i].Date.Equal(inst.Date.Time) {
				t.Fatalf("instance %d differs between runs", i)
			}
			prev = inst.Date
		}
		if upTo.Before(start.Time) && len(first) != 0 {
			t.Fatalf("expected no instances when cutoff precedes start")
		}
	})
}
