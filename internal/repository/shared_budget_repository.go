package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/sharedbudget/internal/database"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

const sharedBudgetColumns = `id, user_id, user_name, user_phone, group_id, budget, updated_at`

// SharedBudgetRepository handles shared budget snapshot database operations.
type SharedBudgetRepository struct {
	db database.DB
}

// NewSharedBudgetRepository creates a new SharedBudgetRepository.
func NewSharedBudgetRepository(db database.DB) *SharedBudgetRepository {
	return &SharedBudgetRepository{db: db}
}

func scanSharedBudget(row pgx.Row) (*models.SharedBudget, error) {
	var sb models.SharedBudget
	err := row.Scan(&sb.ID, &sb.UserID, &sb.UserName, &sb.UserPhone, &sb.GroupID, &sb.Budget, &sb.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sb, nil
}

func (r *SharedBudgetRepository) list(ctx context.Context, sql string, arg string) ([]models.SharedBudget, error) {
	rows, err := r.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query shared budgets: %w", err)
	}
	defer rows.Close()

	var out []models.SharedBudget
	for rows.Next() {
		sb, err := scanSharedBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shared budget: %w", err)
		}
		out = append(out, *sb)
	}
	return out, rows.Err()
}

// CreateSharedBudget inserts a snapshot. A second snapshot for the same user
// and group fails with models.ErrAlreadyShared.
func (r *SharedBudgetRepository) CreateSharedBudget(ctx context.Context, sb *models.SharedBudget) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO shared_budgets (id, user_id, user_name, user_phone, group_id, budget)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING updated_at
	`, sb.ID, sb.UserID, sb.UserName, sb.UserPhone, sb.GroupID, sb.Budget.Clone()).Scan(&sb.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "shared_budgets_user_id_group_id_key") {
			return models.ErrAlreadyShared
		}
		return fmt.Errorf("failed to create shared budget: %w", err)
	}
	return nil
}

// GetSharedBudget retrieves a snapshot by id.
func (r *SharedBudgetRepository) GetSharedBudget(ctx context.Context, id string) (*models.SharedBudget, error) {
	sb, err := scanSharedBudget(r.db.QueryRow(ctx, `SELECT `+sharedBudgetColumns+` FROM shared_budgets WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "shared budget", id)
	}
	return sb, nil
}

// ListSharedBudgetsByGroup returns the snapshots shared with a group.
func (r *SharedBudgetRepository) ListSharedBudgetsByGroup(ctx context.Context, groupID string) ([]models.SharedBudget, error) {
	return r.list(ctx, `SELECT `+sharedBudgetColumns+` FROM shared_budgets WHERE group_id = $1 ORDER BY id`, groupID)
}

// ListSharedBudgetsByUser returns the snapshots owned by a user.
func (r *SharedBudgetRepository) ListSharedBudgetsByUser(ctx context.Context, uid string) ([]models.SharedBudget, error) {
	return r.list(ctx, `SELECT `+sharedBudgetColumns+` FROM shared_budgets WHERE user_id = $1 ORDER BY id`, uid)
}

// UpdateSharedBudget locks the snapshot row, applies fn and writes the result.
func (r *SharedBudgetRepository) UpdateSharedBudget(
	ctx context.Context,
	id string,
	fn func(*models.SharedBudget) error,
) (*models.SharedBudget, error) {
	return updateRow(ctx, r.db,
		func(tx pgx.Tx) (*models.SharedBudget, error) {
			sb, err := scanSharedBudget(tx.QueryRow(ctx,
				`SELECT `+sharedBudgetColumns+` FROM shared_budgets WHERE id = $1 FOR UPDATE`, id))
			if err != nil {
				return nil, notFound(err, "shared budget", id)
			}
			return sb, nil
		},
		(*models.SharedBudget).Clone,
		fn,
		func(tx pgx.Tx, sb *models.SharedBudget) error {
			sb.ID = id
			err := tx.QueryRow(ctx, `
				UPDATE shared_budgets SET user_name = $2, user_phone = $3, budget = $4, updated_at = NOW()
				WHERE id = $1
				RETURNING updated_at
			`, id, sb.UserName, sb.UserPhone, sb.Budget.Clone()).Scan(&sb.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to update shared budget: %w", err)
			}
			return nil
		},
	)
}

// DeleteSharedBudget removes the snapshot. Deleting a missing snapshot is not an error.
func (r *SharedBudgetRepository) DeleteSharedBudget(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM shared_budgets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete shared budget: %w", err)
	}
	return nil
}
