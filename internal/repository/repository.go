// Package repository implements store.Store on PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"gitlab.com/yelinaung/sharedbudget/internal/database"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
)

const pgUniqueViolation = "23505"

// Store combines every repository over one database handle.
type Store struct {
	*UserRepository
	*GroupRepository
	*SharedBudgetRepository
	*GroupBudgetRepository
	*MessageRepository

	db database.DB
}

var _ store.Store = (*Store)(nil)

// NewStore creates a Store. db may be a pool or a transaction.
func NewStore(db database.DB) *Store {
	return &Store{
		UserRepository:         NewUserRepository(db),
		GroupRepository:        NewGroupRepository(db),
		SharedBudgetRepository: NewSharedBudgetRepository(db),
		GroupBudgetRepository:  NewGroupBudgetRepository(db),
		MessageRepository:      NewMessageRepository(db),
		db:                     db,
	}
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// notFound converts pgx.ErrNoRows into models.ErrNotFound.
func notFound(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", kind, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// updateRow locks one row, runs fn on it and writes it back inside a single
// transaction. store.ErrSkip from fn returns the locked row unchanged.
func updateRow[T any](
	ctx context.Context,
	db database.DB,
	load func(pgx.Tx) (*T, error),
	clone func(*T) *T,
	fn func(*T) error,
	save func(pgx.Tx, *T) error,
) (*T, error) {
	var out *T
	err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		cur, err := load(tx)
		if err != nil {
			return err
		}
		next := clone(cur)
		if err := fn(next); err != nil {
			if errors.Is(err, store.ErrSkip) {
				out = cur
				return nil
			}
			return err
		}
		if err := save(tx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
