package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gitlab.com/yelinaung/sharedbudget/internal/changefeed"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
	"gitlab.com/yelinaung/sharedbudget/internal/store/memory"
)

var testToday = models.NewDate(2025, time.March, 20)

func fixedClock() Clock {
	return func() time.Time { return testToday.Time }
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.True(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

type testEnv struct {
	hub   *changefeed.Hub
	store *memory.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	hub := changefeed.NewHub()
	return &testEnv{hub: hub, store: memory.New(hub)}
}

func (e *testEnv) addUser(t *testing.T, id, name, phone string) *models.User {
	t.Helper()
	u := &models.User{
		ID:       id,
		Name:     name,
		Phone:    phone,
		Email:    id + "@example.com",
		Budget:   models.Budget{},
		GroupIDs: []string{},
	}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) user(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := e.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *testEnv) group(t *testing.T, id string) *models.Group {
	t.Helper()
	g, err := e.store.GetGroup(context.Background(), id)
	require.NoError(t, err)
	return g
}

var errInjected = errors.New("injected failure")

// faultyStore fails the delete and update calls whose record id is listed in
// fail. Everything else goes to the wrapped store.
type faultyStore struct {
	store.Store

	mu   sync.Mutex
	fail map[string]bool
}

func newFaultyStore(inner store.Store, ids ...string) *faultyStore {
	f := &faultyStore{Store: inner, fail: make(map[string]bool)}
	for _, id := range ids {
		f.fail[id] = true
	}
	return f
}

func (f *faultyStore) heal(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fail, id)
}

func (f *faultyStore) failing(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[id]
}

func (f *faultyStore) UpdateUser(ctx context.Context, id string, fn func(*models.User) error) (*models.User, error) {
	if f.failing(id) {
		return nil, errInjected
	}
	return f.Store.UpdateUser(ctx, id, fn)
}

func (f *faultyStore) UpdateGroup(ctx context.Context, id string, fn func(*models.Group) error) (*models.Group, error) {
	if f.failing(id) {
		return nil, errInjected
	}
	return f.Store.UpdateGroup(ctx, id, fn)
}

func (f *faultyStore) UpdateSharedBudget(
	ctx context.Context,
	id string,
	fn func(*models.SharedBudget) error,
) (*models.SharedBudget, error) {
	if f.failing(id) {
		return nil, errInjected
	}
	return f.Store.UpdateSharedBudget(ctx, id, fn)
}

func (f *faultyStore) DeleteSharedBudget(ctx context.Context, id string) error {
	if f.failing(id) {
		return errInjected
	}
	return f.Store.DeleteSharedBudget(ctx, id)
}

func (f *faultyStore) DeleteGroupBudget(ctx context.Context, id string) error {
	if f.failing(id) {
		return errInjected
	}
	return f.Store.DeleteGroupBudget(ctx, id)
}

func (f *faultyStore) DeleteGroup(ctx context.Context, id string) error {
	if f.failing(id) {
		return errInjected
	}
	return f.Store.DeleteGroup(ctx, id)
}

func (f *faultyStore) DeleteUser(ctx context.Context, id string) error {
	if f.failing(id) {
		return errInjected
	}
	return f.Store.DeleteUser(ctx, id)
}

func TestIsClientError(t *testing.T) {
	t.Parallel()

	require.True(t, isClientError(models.ErrNotOwner))
	require.True(t, isClientError(errors.Join(errors.New("wrapped"), models.ErrInsufficientBudget)))
	require.True(t, isClientError(fmt.Errorf("%w: %q", models.ErrInvalidEntryType, "refund")))
	require.False(t, isClientError(errInjected))
	require.False(t, isClientError(nil))
}
