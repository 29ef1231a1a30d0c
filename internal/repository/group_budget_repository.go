package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/sharedbudget/internal/database"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

const groupBudgetColumns = `id, name, group_id, owner_id, budget, remaining_budget, created_at`

// GroupBudgetRepository handles group budget database operations.
type GroupBudgetRepository struct {
	db database.DB
}

// NewGroupBudgetRepository creates a new GroupBudgetRepository.
func NewGroupBudgetRepository(db database.DB) *GroupBudgetRepository {
	return &GroupBudgetRepository{db: db}
}

func scanGroupBudget(row pgx.Row) (*models.GroupBudget, error) {
	var gb models.GroupBudget
	err := row.Scan(&gb.ID, &gb.Name, &gb.GroupID, &gb.OwnerID, &gb.Budget, &gb.RemainingBudget, &gb.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &gb, nil
}

// CreateGroupBudget inserts a new group budget.
func (r *GroupBudgetRepository) CreateGroupBudget(ctx context.Context, gb *models.GroupBudget) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO group_budgets (id, name, group_id, owner_id, budget, remaining_budget)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, gb.ID, gb.Name, gb.GroupID, gb.OwnerID, gb.Budget.Clone(), gb.RemainingBudget).Scan(&gb.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group budget: %w", err)
	}
	return nil
}

// GetGroupBudget retrieves a group budget by id.
func (r *GroupBudgetRepository) GetGroupBudget(ctx context.Context, id string) (*models.GroupBudget, error) {
	gb, err := scanGroupBudget(r.db.QueryRow(ctx, `SELECT `+groupBudgetColumns+` FROM group_budgets WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "group budget", id)
	}
	return gb, nil
}

// ListGroupBudgetsByGroup returns the budgets of a group, oldest first.
func (r *GroupBudgetRepository) ListGroupBudgetsByGroup(ctx context.Context, groupID string) ([]models.GroupBudget, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+groupBudgetColumns+` FROM group_budgets
		WHERE group_id = $1
		ORDER BY created_at, id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group budgets: %w", err)
	}
	defer rows.Close()

	var out []models.GroupBudget
	for rows.Next() {
		gb, err := scanGroupBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group budget: %w", err)
		}
		out = append(out, *gb)
	}
	return out, rows.Err()
}

// UpdateGroupBudget locks the budget row, applies fn and writes the result.
func (r *GroupBudgetRepository) UpdateGroupBudget(
	ctx context.Context,
	id string,
	fn func(*models.GroupBudget) error,
) (*models.GroupBudget, error) {
	return updateRow(ctx, r.db,
		func(tx pgx.Tx) (*models.GroupBudget, error) {
			gb, err := scanGroupBudget(tx.QueryRow(ctx,
				`SELECT `+groupBudgetColumns+` FROM group_budgets WHERE id = $1 FOR UPDATE`, id))
			if err != nil {
				return nil, notFound(err, "group budget", id)
			}
			return gb, nil
		},
		(*models.GroupBudget).Clone,
		fn,
		func(tx pgx.Tx, gb *models.GroupBudget) error {
			gb.ID = id
			_, err := tx.Exec(ctx, `
				UPDATE group_budgets SET name = $2, owner_id = $3, budget = $4, remaining_budget = $5
				WHERE id = $1
			`, id, gb.Name, gb.OwnerID, gb.Budget.Clone(), gb.RemainingBudget)
			if err != nil {
				return fmt.Errorf("failed to update group budget: %w", err)
			}
			return nil
		},
	)
}

// DeleteGroupBudget removes the group budget. Deleting a missing budget is not an error.
func (r *GroupBudgetRepository) DeleteGroupBudget(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM group_budgets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete group budget: %w", err)
	}
	return nil
}
