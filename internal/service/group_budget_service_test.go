package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

func newGroupBudgetEnv(t *testing.T) (*testEnv, *GroupBudgetService, *models.GroupBudget) {
	t.Helper()
	ctx := context.Background()
	env := newTestEnv(t)
	env.addUser(t, "owner", "Olga", "3581")
	env.addUser(t, "member", "Mika", "3582")
	env.addUser(t, "outsider", "Otto", "3583")

	group, err := NewGroupService(env.store, "358").CreateGroup(ctx, "owner", "Trip",
		[]models.Member{{UID: "member"}})
	require.NoError(t, err)

	svc := NewGroupBudgetService(env.store, fixedClock())
	gb, err := svc.Create(ctx, "owner", group.ID, "Food", dec("100"))
	require.NoError(t, err)
	return env, svc, gb
}

func TestGroupBudgetService_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, svc, gb := newGroupBudgetEnv(t)

	requireDecimal(t, "100", gb.RemainingBudget)
	require.Equal(t, "owner", gb.OwnerID)

	_, err := svc.Create(ctx, "member", gb.GroupID, "Fuel", dec("10"))
	require.ErrorIs(t, err, models.ErrNotOwner)

	_, err = svc.Create(ctx, "owner", gb.GroupID, "  ", dec("10"))
	require.ErrorIs(t, err, models.ErrEmptyName)

	_, err = svc.Create(ctx, "owner", gb.GroupID, "Fuel", dec("-10"))
	require.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = svc.Create(ctx, "owner", "missing", "Fuel", dec("10"))
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestGroupBudgetService_AddExpense(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("members charge the ceiling", func(t *testing.T) {
		t.Parallel()
		_, svc, gb := newGroupBudgetEnv(t)

		got, err := svc.AddExpense(ctx, "member", gb.ID, "Groceries", "Milk", dec("40"), models.Date{})
		require.NoError(t, err)
		requireDecimal(t, "60", got.RemainingBudget)
		e, ok := got.Budget.Get("Groceries", "Milk")
		require.True(t, ok)
		require.Equal(t, testToday, e.Date)
	})

	t.Run("over the ceiling leaves the budget unchanged", func(t *testing.T) {
		t.Parallel()
		env, svc, gb := newGroupBudgetEnv(t)

		_, err := svc.AddExpense(ctx, "owner", gb.ID, "Groceries", "Milk", dec("30"), testToday)
		require.NoError(t, err)
		before, err := env.store.GetGroupBudget(ctx, gb.ID)
		require.NoError(t, err)

		_, err = svc.AddExpense(ctx, "owner", gb.ID, "Groceries", "Cheese", dec("70.01"), testToday)
		require.ErrorIs(t, err, models.ErrInsufficientBudget)

		after, err := env.store.GetGroupBudget(ctx, gb.ID)
		require.NoError(t, err)
		require.True(t, before.RemainingBudget.Equal(after.RemainingBudget))
		require.True(t, before.Budget.Equal(after.Budget))
	})

	t.Run("spending exactly the remainder is allowed", func(t *testing.T) {
		t.Parallel()
		_, svc, gb := newGroupBudgetEnv(t)

		got, err := svc.AddExpense(ctx, "owner", gb.ID, "Groceries", "All", dec("100"), testToday)
		require.NoError(t, err)
		requireDecimal(t, "0", got.RemainingBudget)
	})

	t.Run("replacing an entry counts its old amount as available", func(t *testing.T) {
		t.Parallel()
		_, svc, gb := newGroupBudgetEnv(t)

		_, err := svc.AddExpense(ctx, "owner", gb.ID, "Groceries", "Milk", dec("80"), testToday)
		require.NoError(t, err)
		got, err := svc.AddExpense(ctx, "owner", gb.ID, "Groceries", "Milk", dec("90"), testToday)
		require.NoError(t, err)
		requireDecimal(t, "10", got.RemainingBudget)
	})

	t.Run("outsiders are rejected", func(t *testing.T) {
		t.Parallel()
		_, svc, gb := newGroupBudgetEnv(t)

		_, err := svc.AddExpense(ctx, "outsider", gb.ID, "Groceries", "Milk", dec("1"), testToday)
		require.ErrorIs(t, err, models.ErrNotMember)
	})
}

func TestGroupBudgetService_DeleteExpense(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, svc, gb := newGroupBudgetEnv(t)

	_, err := svc.AddExpense(ctx, "member", gb.ID, "Groceries", "Milk", dec("25"), testToday)
	require.NoError(t, err)

	got, err := svc.DeleteExpense(ctx, "owner", gb.ID, "Groceries", "Milk")
	require.NoError(t, err)
	requireDecimal(t, "100", got.RemainingBudget)
	require.Zero(t, got.Budget.Len())

	_, err = svc.DeleteExpense(ctx, "owner", gb.ID, "Groceries", "Milk")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestGroupBudgetService_OwnerOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env, svc, gb := newGroupBudgetEnv(t)

	_, err := svc.AddExpense(ctx, "member", gb.ID, "Groceries", "Milk", dec("25"), testToday)
	require.NoError(t, err)

	t.Run("only the owner sets the ceiling", func(t *testing.T) {
		_, err := svc.SetCeiling(ctx, "member", gb.ID, dec("500"))
		require.ErrorIs(t, err, models.ErrNotOwner)

		stored, err := env.store.GetGroupBudget(ctx, gb.ID)
		require.NoError(t, err)
		requireDecimal(t, "75", stored.RemainingBudget)
	})

	t.Run("new ceiling restarts the budget", func(t *testing.T) {
		got, err := svc.SetCeiling(ctx, "owner", gb.ID, dec("500"))
		require.NoError(t, err)
		requireDecimal(t, "500", got.RemainingBudget)
		require.Zero(t, got.Budget.Len())
	})

	t.Run("members can read, outsiders cannot", func(t *testing.T) {
		list, err := svc.List(ctx, "member", gb.GroupID)
		require.NoError(t, err)
		require.Len(t, list, 1)

		_, err = svc.Get(ctx, "outsider", gb.ID)
		require.ErrorIs(t, err, models.ErrNotMember)
	})

	t.Run("only the owner deletes", func(t *testing.T) {
		require.ErrorIs(t, svc.Delete(ctx, "member", gb.ID), models.ErrNotOwner)
		require.NoError(t, svc.Delete(ctx, "owner", gb.ID))
		_, err := svc.Get(ctx, "owner", gb.ID)
		require.ErrorIs(t, err, models.ErrNotFound)
	})
}
