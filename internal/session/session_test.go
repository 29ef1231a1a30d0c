package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/yelinaung/sharedbudget/internal/auth"
	"gitlab.com/yelinaung/sharedbudget/internal/changefeed"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/service"
	"gitlab.com/yelinaung/sharedbudget/internal/store/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T) (*Manager, *changefeed.Hub, *models.User) {
	t.Helper()
	hub := changefeed.NewHub()
	st := memory.New(hub)
	user := &models.User{ID: "u1", Name: "Ann", Email: "ann@example.com", Budget: models.Budget{}}
	require.NoError(t, st.CreateUser(context.Background(), user))

	m := NewManager(auth.NewJWTManager(testSecret, time.Hour), service.NewReconciler(st, hub))
	t.Cleanup(m.Close)
	return m, hub, user
}

func syncSubscribers(hub *changefeed.Hub, uid string) func() int {
	return func() int { return hub.Subscribers(changefeed.TopicUser, uid) }
}

func TestManager_SignInAndOut(t *testing.T) {
	t.Parallel()
	m, hub, user := newTestManager(t)
	subs := syncSubscribers(hub, user.ID)

	phone, _, err := m.SignIn(user)
	require.NoError(t, err)
	laptop, _, err := m.SignIn(user)
	require.NoError(t, err)
	require.Equal(t, 2, m.Active(user.ID))
	require.True(t, m.Syncing(user.ID))
	require.Equal(t, 1, subs(), "one handle per user")

	id, err := m.Authenticate(phone)
	require.NoError(t, err)
	require.Equal(t, user.ID, id.UserID)
	require.Equal(t, user.Email, id.Email)

	m.SignOut(id.SessionID)
	m.SignOut(id.SessionID)
	_, err = m.Authenticate(phone)
	require.ErrorIs(t, err, models.ErrNotAuthenticated)
	require.True(t, m.Syncing(user.ID))

	id, err = m.Authenticate(laptop)
	require.NoError(t, err)
	m.SignOut(id.SessionID)
	require.False(t, m.Syncing(user.ID))
	require.Eventually(t, func() bool { return subs() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestManager_Authenticate(t *testing.T) {
	t.Parallel()
	m, _, user := newTestManager(t)

	_, err := m.Authenticate("garbage")
	require.ErrorIs(t, err, models.ErrNotAuthenticated)

	other := NewManager(auth.NewJWTManager(testSecret, time.Hour), nil)
	defer other.Close()
	foreign, _, err := other.SignIn(user)
	require.NoError(t, err)
	_, err = m.Authenticate(foreign)
	require.ErrorIs(t, err, models.ErrNotAuthenticated, "token from a session this manager never opened")
}

func TestManager_Sweep(t *testing.T) {
	t.Parallel()
	m, hub, user := newTestManager(t)

	token, expires, err := m.SignIn(user)
	require.NoError(t, err)
	require.Zero(t, m.Sweep())

	m.now = func() time.Time { return expires }
	_, err = m.Authenticate(token)
	require.ErrorIs(t, err, models.ErrNotAuthenticated)

	require.Equal(t, 1, m.Sweep())
	require.Zero(t, m.Active(user.ID))
	require.False(t, m.Syncing(user.ID))
	require.Eventually(t, func() bool { return syncSubscribers(hub, user.ID)() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestManager_SignOutUser(t *testing.T) {
	t.Parallel()
	m, _, user := newTestManager(t)

	for range 3 {
		_, _, err := m.SignIn(user)
		require.NoError(t, err)
	}
	require.Equal(t, 3, m.SignOutUser(user.ID))
	require.False(t, m.Syncing(user.ID))
	require.Zero(t, m.SignOutUser(user.ID))
}

func TestManager_RunSweepLoop(t *testing.T) {
	t.Parallel()
	m, _, user := newTestManager(t)

	_, expires, err := m.SignIn(user)
	require.NoError(t, err)

	m.mu.Lock()
	m.now = func() time.Time { return expires.Add(time.Second) }
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.RunSweepLoop(ctx, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return m.Active(user.ID) == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestManager_WithoutSyncer(t *testing.T) {
	t.Parallel()
	m := NewManager(auth.NewJWTManager(testSecret, time.Hour), nil)
	defer m.Close()

	user := &models.User{ID: "u1", Email: "a@example.com"}
	token, _, err := m.SignIn(user)
	require.NoError(t, err)
	require.False(t, m.Syncing(user.ID))
	_, err = m.Authenticate(token)
	require.NoError(t, err)
}
