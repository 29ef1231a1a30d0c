package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"gitlab.com/yelinaung/sharedbudget/internal/budget"
	"gitlab.com/yelinaung/sharedbudget/internal/logger"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/recurring"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
)

// BudgetService mutates and summarizes a user's personal budget.
type BudgetService struct {
	users store.UserStore
	clock Clock
}

// NewBudgetService creates a BudgetService. A nil clock uses time.Now.
func NewBudgetService(users store.UserStore, clock Clock) *BudgetService {
	return &BudgetService{users: users, clock: clock}
}

// Settings changes the income and the budget ceiling. Nil fields are left alone.
type Settings struct {
	Income      *decimal.Decimal `json:"income,omitempty"`
	BudgetTotal *decimal.Decimal `json:"budgetTotal,omitempty"`
}

// Summary is everything the budget screen shows.
type Summary struct {
	BudgetTotal         decimal.Decimal            `json:"budgetTotal"`
	Income              decimal.Decimal            `json:"income"`
	StoredRemaining     decimal.Decimal            `json:"storedRemaining"`
	Remaining           decimal.Decimal            `json:"remaining"`
	RemainingFromIncome decimal.Decimal            `json:"remainingFromIncome"`
	CategoryTotals      map[string]decimal.Decimal `json:"categoryTotals"`
	Recurring           budget.Totals              `json:"recurring"`
	MonthlySavings      []budget.MonthSavings      `json:"monthlySavings"`
}

// Get returns the user's record.
func (s *BudgetService) Get(ctx context.Context, uid string) (*models.User, error) {
	return s.users.GetUser(ctx, uid)
}

// AddEntry writes an expense into the personal budget and charges the stored
// remaining budget. An entry without a date is dated today.
func (s *BudgetService) AddEntry(
	ctx context.Context,
	uid, category, expense string,
	amount decimal.Decimal,
	date models.Date,
) (_ *models.User, err error) {
	ctx, span := startSpan(ctx, "BudgetService.AddEntry")
	defer func() { endSpan(span, err) }()

	if date.IsZero() {
		date = s.clock.today()
	}

	user, err := s.users.UpdateUser(ctx, uid, func(u *models.User) error {
		b, delta, err := budget.AddEntry(u.Budget, category, expense, amount, date)
		if err != nil {
			return err
		}
		u.Budget = b
		u.RemainingBudget = u.RemainingBudget.Add(delta)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add budget entry: %w", err)
	}

	budgetMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "personal_add")))
	logger.Log.Info().
		Str(logFieldUser, logger.HashUserID(uid)).
		Str("category", logger.SanitizeText(category)).
		Msg("Budget entry added")
	return user, nil
}

// DeleteEntry removes an expense, or a whole category when expense is empty,
// and refunds it to the stored remaining budget.
func (s *BudgetService) DeleteEntry(ctx context.Context, uid, category, expense string) (_ *models.User, err error) {
	ctx, span := startSpan(ctx, "BudgetService.DeleteEntry")
	defer func() { endSpan(span, err) }()

	user, err := s.users.UpdateUser(ctx, uid, func(u *models.User) error {
		b, refund, err := budget.DeleteEntry(u.Budget, category, expense)
		if err != nil {
			return err
		}
		u.Budget = b
		u.RemainingBudget = u.RemainingBudget.Add(refund)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete budget entry: %w", err)
	}

	budgetMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "personal_delete")))
	return user, nil
}

// UpdateSettings stores income and budget ceiling. A new ceiling resets the
// stored remaining budget to the ceiling minus the recorded entries.
func (s *BudgetService) UpdateSettings(ctx context.Context, uid string, settings Settings) (*models.User, error) {
	for _, v := range []*decimal.Decimal{settings.Income, settings.BudgetTotal} {
		if v != nil && v.IsNegative() {
			return nil, fmt.Errorf("%w: %s", models.ErrInvalidAmount, v)
		}
	}
	if settings.Income == nil && settings.BudgetTotal == nil {
		return s.users.GetUser(ctx, uid)
	}

	user, err := s.users.UpdateUser(ctx, uid, func(u *models.User) error {
		if settings.Income != nil {
			u.Income = *settings.Income
		}
		if settings.BudgetTotal != nil {
			u.BudgetTotal = *settings.BudgetTotal
			u.RemainingBudget = settings.BudgetTotal.Sub(budget.ManualTotal(u.Budget))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update budget settings: %w", err)
	}
	return user, nil
}

// AddRecurringEntry validates entry, assigns it an id and stores it.
func (s *BudgetService) AddRecurringEntry(ctx context.Context, uid string, entry models.RecurringEntry) (*models.RecurringEntry, error) {
	entry.Category = strings.TrimSpace(entry.Category)
	entry.Expense = strings.TrimSpace(entry.Expense)
	if entry.Category == "" || entry.Expense == "" {
		return nil, models.ErrEmptyName
	}
	if entry.Type == "" {
		entry.Type = models.EntryTypeExpense
	}
	if err := recurring.Validate(entry); err != nil {
		return nil, err
	}
	entry.ID = uuid.NewString()

	_, err := s.users.UpdateUser(ctx, uid, func(u *models.User) error {
		u.RecurringEntries = append(u.RecurringEntries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add recurring entry: %w", err)
	}

	logger.Log.Info().
		Str(logFieldUser, logger.HashUserID(uid)).
		Str("interval", string(entry.Interval)).
		Msg("Recurring entry added")
	return &entry, nil
}

// RemoveRecurringEntry deletes the recurring entry with the given id.
func (s *BudgetService) RemoveRecurringEntry(ctx context.Context, uid, entryID string) error {
	_, err := s.users.UpdateUser(ctx, uid, func(u *models.User) error {
		i := slices.IndexFunc(u.RecurringEntries, func(e models.RecurringEntry) bool { return e.ID == entryID })
		if i < 0 {
			return fmt.Errorf("recurring entry %s: %w", entryID, models.ErrNotFound)
		}
		u.RecurringEntries = slices.Delete(u.RecurringEntries, i, i+1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove recurring entry: %w", err)
	}
	return nil
}

// Summary computes both remaining-budget modes, category totals and monthly
// savings as of today.
func (s *BudgetService) Summary(ctx context.Context, uid string) (*Summary, error) {
	user, err := s.users.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	return Summarize(user, s.clock.today()), nil
}

// Summarize is Summary for an already loaded user.
func Summarize(user *models.User, today models.Date) *Summary {
	return &Summary{
		BudgetTotal:         user.BudgetTotal,
		Income:              user.Income,
		StoredRemaining:     user.RemainingBudget,
		Remaining:           budget.RemainingBudget(user.BudgetTotal, user.Budget, user.RecurringEntries, today),
		RemainingFromIncome: budget.RemainingFromIncome(user.Income, user.Budget, user.RecurringEntries, today),
		CategoryTotals:      budget.CategoryTotals(user.Budget),
		Recurring:           budget.RecurringTotals(user.RecurringEntries, today),
		MonthlySavings:      budget.MonthlySavings(user.Budget, user.RecurringEntries, user.BudgetTotal, today),
	}
}
