package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/sharedbudget/internal/database"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

const userColumns = `id, name, phone, email, password_hash, income, budget_total, remaining_budget,
	budget, recurring_entries, group_ids, profile_picture, created_at, updated_at`

// UserRepository handles user database operations.
type UserRepository struct {
	db database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db database.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Phone, &u.Email, &u.PasswordHash,
		&u.Income, &u.BudgetTotal, &u.RemainingBudget,
		&u.Budget, &u.RecurringEntries, &u.GroupIDs, &u.ProfilePictureBase64,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func recurringOrEmpty(entries []models.RecurringEntry) []models.RecurringEntry {
	if entries == nil {
		return []models.RecurringEntry{}
	}
	return entries
}

// CreateUser inserts a new user. Email addresses are unique, ignoring case.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (id, name, phone, email, password_hash, income, budget_total, remaining_budget,
			budget, recurring_entries, group_ids, profile_picture)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, user.ID, user.Name, user.Phone, user.Email, user.PasswordHash,
		user.Income, user.BudgetTotal, user.RemainingBudget,
		user.Budget.Clone(), recurringOrEmpty(user.RecurringEntries), nonNilStrings(user.GroupIDs),
		user.ProfilePictureBase64,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "idx_users_email") {
			return models.ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by id.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if err != nil {
		return nil, notFound(err, "user", email)
	}
	return u, nil
}

// GetUsersByPhones returns every user whose phone is in phones.
func (r *UserRepository) GetUsersByPhones(ctx context.Context, phones []string) ([]models.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE phone <> '' AND phone = ANY($1)
		ORDER BY id
	`, nonNilStrings(phones))
	if err != nil {
		return nil, fmt.Errorf("failed to query users by phone: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ListUserIDs returns the ids of all users in ascending order.
func (r *UserRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan user ids: %w", err)
	}
	return ids, nil
}

// UpdateUser locks the user row, applies fn and writes the result.
func (r *UserRepository) UpdateUser(ctx context.Context, id string, fn func(*models.User) error) (*models.User, error) {
	return updateRow(ctx, r.db,
		func(tx pgx.Tx) (*models.User, error) {
			u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
			if err != nil {
				return nil, notFound(err, "user", id)
			}
			return u, nil
		},
		(*models.User).Clone,
		fn,
		func(tx pgx.Tx, u *models.User) error {
			u.ID = id
			err := tx.QueryRow(ctx, `
				UPDATE users SET name = $2, phone = $3, email = $4, password_hash = $5,
					income = $6, budget_total = $7, remaining_budget = $8,
					budget = $9, recurring_entries = $10, group_ids = $11, profile_picture = $12,
					updated_at = NOW()
				WHERE id = $1
				RETURNING updated_at
			`, id, u.Name, u.Phone, u.Email, u.PasswordHash,
				u.Income, u.BudgetTotal, u.RemainingBudget,
				u.Budget.Clone(), recurringOrEmpty(u.RecurringEntries), nonNilStrings(u.GroupIDs),
				u.ProfilePictureBase64,
			).Scan(&u.UpdatedAt)
			if err != nil {
				if isUniqueViolation(err, "idx_users_email") {
					return models.ErrEmailExists
				}
				return fmt.Errorf("failed to update user: %w", err)
			}
			return nil
		},
	)
}

// DeleteUser removes the user. Deleting a missing user is not an error.
func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}
