package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/sharedbudget/internal/database"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

func TestSharedBudgetRepository(t *testing.T) {
	tx := database.TestTx(t)
	ctx := context.Background()
	repo := NewSharedBudgetRepository(tx)

	snapshot := models.Budget{"Food": {"Milk": models.NewEntry(decimal.NewFromInt(3), models.Date{})}}
	sb := &models.SharedBudget{ID: "sb-1", UserID: "alice", UserName: "Alice", GroupID: "g1", Budget: snapshot}
	require.NoError(t, repo.CreateSharedBudget(ctx, sb))

	t.Run("second share of the same pair is rejected", func(t *testing.T) {
		sp, err := tx.Begin(ctx)
		require.NoError(t, err)
		err = NewSharedBudgetRepository(sp).CreateSharedBudget(ctx,
			&models.SharedBudget{ID: "sb-2", UserID: "alice", GroupID: "g1"})
		require.ErrorIs(t, err, models.ErrAlreadyShared)
		require.NoError(t, sp.Rollback(ctx))
	})

	t.Run("lists by group and user", func(t *testing.T) {
		require.NoError(t, repo.CreateSharedBudget(ctx,
			&models.SharedBudget{ID: "sb-3", UserID: "alice", GroupID: "g2"}))

		byGroup, err := repo.ListSharedBudgetsByGroup(ctx, "g1")
		require.NoError(t, err)
		require.Len(t, byGroup, 1)
		require.True(t, byGroup[0].Budget.Equal(snapshot))

		byUser, err := repo.ListSharedBudgetsByUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, byUser, 2)
	})

	t.Run("update replaces snapshot", func(t *testing.T) {
		_, err := repo.UpdateSharedBudget(ctx, "sb-1", func(s *models.SharedBudget) error {
			s.UserName = "Alicia"
			s.Budget = models.Budget{}
			return nil
		})
		require.NoError(t, err)

		got, err := repo.GetSharedBudget(ctx, "sb-1")
		require.NoError(t, err)
		require.Equal(t, "Alicia", got.UserName)
		require.Empty(t, got.Budget)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteSharedBudget(ctx, "sb-1"))
		_, err := repo.GetSharedBudget(ctx, "sb-1")
		require.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestGroupBudgetRepository(t *testing.T) {
	tx := database.TestTx(t)
	ctx := context.Background()
	repo := NewGroupBudgetRepository(tx)

	gb := &models.GroupBudget{
		ID: "gb-1", Name: "Groceries", GroupID: "g1", OwnerID: "alice",
		RemainingBudget: decimal.RequireFromString("2722.50"),
	}
	require.NoError(t, repo.CreateGroupBudget(ctx, gb))

	got, err := repo.GetGroupBudget(ctx, "gb-1")
	require.NoError(t, err)
	require.True(t, got.RemainingBudget.Equal(decimal.RequireFromString("2722.5")))
	require.Empty(t, got.Budget)

	_, err = repo.UpdateGroupBudget(ctx, "gb-1", func(b *models.GroupBudget) error {
		b.Budget = models.Budget{"Food": {"Bread": models.NewEntry(decimal.NewFromInt(22), models.Date{})}}
		b.RemainingBudget = b.RemainingBudget.Sub(decimal.NewFromInt(22))
		return nil
	})
	require.NoError(t, err)

	list, err := repo.ListGroupBudgetsByGroup(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, list[0].RemainingBudget.Equal(decimal.RequireFromString("2700.5")))
	require.Equal(t, 1, list[0].Budget.Len())

	require.NoError(t, repo.DeleteGroupBudget(ctx, "gb-1"))
	_, err = repo.GetGroupBudget(ctx, "gb-1")
	require.ErrorIs(t, err, models.ErrNotFound)
}
