package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/sharedbudget/internal/changefeed"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
)

func TestStore_UpdateUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := changefeed.NewHub()
	s := New(hub)

	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u1", Name: "Ann", Email: "ann@example.com"}))
	sub := hub.Subscribe(changefeed.TopicUser, "u1")
	defer sub.Stop()

	t.Run("applies change and notifies", func(t *testing.T) {
		u, err := s.UpdateUser(ctx, "u1", func(u *models.User) error {
			u.Name = "Anna"
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, "Anna", u.Name)
		require.Len(t, sub.C, 1)
		<-sub.C
	})

	t.Run("error aborts without writing", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := s.UpdateUser(ctx, "u1", func(u *models.User) error {
			u.Name = "Nope"
			return boom
		})
		require.ErrorIs(t, err, boom)

		u, err := s.GetUser(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "Anna", u.Name)
		require.Empty(t, sub.C)
	})

	t.Run("skip returns current state", func(t *testing.T) {
		u, err := s.UpdateUser(ctx, "u1", func(u *models.User) error {
			u.Name = "Ignored"
			return store.ErrSkip
		})
		require.NoError(t, err)
		require.Equal(t, "Anna", u.Name)
		require.Empty(t, sub.C)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := s.UpdateUser(ctx, "nobody", func(*models.User) error { return nil })
		require.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestStore_CopiesRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(nil)

	u := &models.User{ID: "u1", Budget: models.Budget{"Food": {"Milk": models.NewEntry(decimal.NewFromInt(5), models.Date{})}}}
	require.NoError(t, s.CreateUser(ctx, u))
	u.Budget["Food"]["Bread"] = models.NewEntry(decimal.NewFromInt(3), models.Date{})

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, got.Budget.Len())
}

func TestStore_Users(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(nil)

	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u1", Email: "a@example.com", Phone: "3581"}))
	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u2", Email: "b@example.com", Phone: "3582"}))
	require.ErrorIs(t, s.CreateUser(ctx, &models.User{ID: "u3", Email: "A@example.com"}), models.ErrEmailExists)

	byEmail, err := s.GetUserByEmail(ctx, "B@EXAMPLE.com")
	require.NoError(t, err)
	require.Equal(t, "u2", byEmail.ID)

	byPhone, err := s.GetUsersByPhones(ctx, []string{"3582", "999"})
	require.NoError(t, err)
	require.Len(t, byPhone, 1)
	require.Equal(t, "u2", byPhone[0].ID)

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, ids)

	require.NoError(t, s.DeleteUser(ctx, "u1"))
	require.NoError(t, s.DeleteUser(ctx, "u1"))
	_, err = s.GetUser(ctx, "u1")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestStore_SharedBudgetUniqueness(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(nil)

	require.NoError(t, s.CreateSharedBudget(ctx, &models.SharedBudget{ID: "s1", UserID: "u1", GroupID: "g1"}))
	require.ErrorIs(t, s.CreateSharedBudget(ctx, &models.SharedBudget{ID: "s2", UserID: "u1", GroupID: "g1"}), models.ErrAlreadyShared)
	require.NoError(t, s.CreateSharedBudget(ctx, &models.SharedBudget{ID: "s3", UserID: "u1", GroupID: "g2"}))

	byUser, err := s.ListSharedBudgetsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, byUser, 2)

	byGroup, err := s.ListSharedBudgetsByGroup(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, byGroup, 1)
}

func TestStore_Messages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := changefeed.NewHub()
	s := New(hub)
	sub := hub.Subscribe(changefeed.TopicMessages, "g1")
	defer sub.Stop()

	now := time.Now()
	require.NoError(t, s.CreateMessage(ctx, &models.Message{ID: "m2", GroupID: "g1", Timestamp: now, ReadBy: []string{"u1"}}))
	require.NoError(t, s.CreateMessage(ctx, &models.Message{ID: "m1", GroupID: "g1", Timestamp: now.Add(-time.Minute), ReadBy: []string{"u2"}}))
	<-sub.C

	msgs, err := s.ListMessages(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, "m1", msgs[0].ID)
	require.Equal(t, "m2", msgs[1].ID)

	n, err := s.MarkRead(ctx, "g1", "u1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	<-sub.C

	n, err = s.MarkRead(ctx, "g1", "u1")
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, sub.C)

	n, err = s.DeleteMessages(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestStore_Groups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(nil)

	now := time.Now()
	require.NoError(t, s.CreateGroup(ctx, &models.Group{ID: "g2", Owner: "u1", Members: []models.Member{{UID: "u1"}}, CreatedAt: now}))
	require.NoError(t, s.CreateGroup(ctx, &models.Group{ID: "g1", Owner: "u2", Members: []models.Member{{UID: "u2"}, {UID: "u1"}}, CreatedAt: now.Add(-time.Hour)}))

	groups, err := s.ListGroupsByMember(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, "g1", groups[0].ID)

	got, err := s.GetGroups(ctx, []string{"g2", "missing", "g2"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = s.UpdateGroup(ctx, "g1", func(g *models.Group) error {
		g.RemoveMember("u1")
		return nil
	})
	require.NoError(t, err)

	groups, err = s.ListGroupsByMember(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, groups, 1)
}
