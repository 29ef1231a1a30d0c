package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"gitlab.com/yelinaung/sharedbudget/internal/budget"
	"gitlab.com/yelinaung/sharedbudget/internal/logger"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
)

// GroupBudgetService manages budgets owned by a group. Every budget has a hard
// ceiling: an expense larger than what remains is rejected.
type GroupBudgetService struct {
	store store.Store
	clock Clock
}

// NewGroupBudgetService creates a GroupBudgetService.
func NewGroupBudgetService(st store.Store, clock Clock) *GroupBudgetService {
	return &GroupBudgetService{store: st, clock: clock}
}

// Create adds a budget with the given ceiling to a group. Only the group owner
// may create one.
func (s *GroupBudgetService) Create(
	ctx context.Context,
	actor, groupID, name string,
	ceiling decimal.Decimal,
) (*models.GroupBudget, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.ErrEmptyName
	}
	if ceiling.IsNegative() {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidAmount, ceiling)
	}

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.Owner != actor {
		return nil, fmt.Errorf("%w: group %s", models.ErrNotOwner, groupID)
	}

	gb := &models.GroupBudget{
		ID:              uuid.NewString(),
		Name:            name,
		GroupID:         groupID,
		OwnerID:         actor,
		Budget:          models.Budget{},
		RemainingBudget: ceiling,
	}
	if err := s.store.CreateGroupBudget(ctx, gb); err != nil {
		return nil, fmt.Errorf("failed to create group budget: %w", err)
	}

	logger.Log.Info().
		Str(logFieldGroup, groupID).
		Str(logFieldBudget, gb.ID).
		Msg("Group budget created")
	return gb, nil
}

// List returns a group's budgets to one of its members.
func (s *GroupBudgetService) List(ctx context.Context, actor, groupID string) ([]models.GroupBudget, error) {
	if _, err := loadGroupAsMember(ctx, s.store, groupID, actor); err != nil {
		return nil, err
	}
	return s.store.ListGroupBudgetsByGroup(ctx, groupID)
}

// Get returns one budget to a member of its group.
func (s *GroupBudgetService) Get(ctx context.Context, actor, budgetID string) (*models.GroupBudget, error) {
	gb, err := s.store.GetGroupBudget(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	if _, err := loadGroupAsMember(ctx, s.store, gb.GroupID, actor); err != nil {
		return nil, err
	}
	return gb, nil
}

// SetCeiling restarts the budget with a new ceiling and no entries. Only the
// budget owner may do this.
func (s *GroupBudgetService) SetCeiling(
	ctx context.Context,
	actor, budgetID string,
	ceiling decimal.Decimal,
) (*models.GroupBudget, error) {
	if ceiling.IsNegative() {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidAmount, ceiling)
	}
	gb, err := s.store.UpdateGroupBudget(ctx, budgetID, func(b *models.GroupBudget) error {
		if b.OwnerID != actor {
			return fmt.Errorf("%w: group budget %s", models.ErrNotOwner, budgetID)
		}
		b.RemainingBudget = ceiling
		b.Budget = models.Budget{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set group budget ceiling: %w", err)
	}
	return gb, nil
}

// AddExpense records a member's expense against the ceiling. On
// ErrInsufficientBudget nothing is written.
func (s *GroupBudgetService) AddExpense(
	ctx context.Context,
	actor, budgetID, category, expense string,
	amount decimal.Decimal,
	date models.Date,
) (_ *models.GroupBudget, err error) {
	ctx, span := startSpan(ctx, "GroupBudgetService.AddExpense", attribute.String(logFieldBudget, budgetID))
	defer func() { endSpan(span, err) }()

	current, err := s.store.GetGroupBudget(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	if _, err := loadGroupAsMember(ctx, s.store, current.GroupID, actor); err != nil {
		return nil, err
	}
	if date.IsZero() {
		date = s.clock.today()
	}

	gb, err := s.store.UpdateGroupBudget(ctx, budgetID, func(b *models.GroupBudget) error {
		next, remaining, err := budget.AddGroupExpense(b.Budget, b.RemainingBudget, category, expense, amount, date)
		if err != nil {
			return err
		}
		b.Budget = next
		b.RemainingBudget = remaining
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add group expense: %w", err)
	}

	budgetMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "group_add")))
	logger.Log.Info().
		Str(logFieldUser, logger.HashUserID(actor)).
		Str(logFieldBudget, budgetID).
		Msg("Group expense added")
	return gb, nil
}

// DeleteExpense removes an expense, or a whole category when expense is empty,
// and refunds it to the ceiling.
func (s *GroupBudgetService) DeleteExpense(
	ctx context.Context,
	actor, budgetID, category, expense string,
) (*models.GroupBudget, error) {
	current, err := s.store.GetGroupBudget(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	if _, err := loadGroupAsMember(ctx, s.store, current.GroupID, actor); err != nil {
		return nil, err
	}

	gb, err := s.store.UpdateGroupBudget(ctx, budgetID, func(b *models.GroupBudget) error {
		next, remaining, err := budget.DeleteGroupExpense(b.Budget, b.RemainingBudget, category, expense)
		if err != nil {
			return err
		}
		b.Budget = next
		b.RemainingBudget = remaining
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete group expense: %w", err)
	}

	budgetMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "group_delete")))
	return gb, nil
}

// Delete removes the budget. Only the budget owner may do this.
func (s *GroupBudgetService) Delete(ctx context.Context, actor, budgetID string) error {
	gb, err := s.store.GetGroupBudget(ctx, budgetID)
	if err != nil {
		return err
	}
	if gb.OwnerID != actor {
		return fmt.Errorf("%w: group budget %s", models.ErrNotOwner, budgetID)
	}
	if err := s.store.DeleteGroupBudget(ctx, budgetID); err != nil {
		return fmt.Errorf("failed to delete group budget: %w", err)
	}
	logger.Log.Info().Str(logFieldBudget, budgetID).Msg("Group budget deleted")
	return nil
}
