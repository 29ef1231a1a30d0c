package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/yelinaung/sharedbudget/internal/changefeed"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

type recordingEvents struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (r *recordingEvents) PublishMessageSent(_ context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg.ID)
	return r.err
}

// steppingClock advances one second per call.
func steppingClock() Clock {
	var mu sync.Mutex
	now := testToday.Add(9 * time.Hour)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func TestMessageService_Send(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env, _, g := newGroupEnv(t)
	env.addUser(t, "outsider", "Otto", "3589")
	events := &recordingEvents{}
	svc := NewMessageService(env.store, env.hub, events, steppingClock())

	t.Run("stores a text message read by its sender", func(t *testing.T) {
		msg, err := svc.Send(ctx, "m1", g.ID, "  dinner at 8?  ")
		require.NoError(t, err)
		require.Equal(t, "dinner at 8?", msg.Text)
		require.Equal(t, models.MessageTypeText, msg.Type)
		require.Equal(t, "Mika", msg.SenderName)
		require.Equal(t, []string{"m1"}, msg.ReadBy)
		require.Equal(t, []string{msg.ID}, events.sent)
	})

	t.Run("blank text is rejected", func(t *testing.T) {
		_, err := svc.Send(ctx, "m1", g.ID, " \n\t ")
		require.ErrorIs(t, err, models.ErrEmptyMessage)
	})

	t.Run("outsiders cannot post", func(t *testing.T) {
		_, err := svc.Send(ctx, "outsider", g.ID, "hi")
		require.ErrorIs(t, err, models.ErrNotMember)
	})

	t.Run("event failures do not fail the send", func(t *testing.T) {
		events.err = errors.New("broker down")
		_, err := svc.Send(ctx, "m2", g.ID, "still here")
		require.NoError(t, err)

		msgs, err := svc.List(ctx, "owner", g.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
	})
}

func TestMessageService_MarkRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env, _, g := newGroupEnv(t)
	svc := NewMessageService(env.store, env.hub, nil, steppingClock())

	for _, text := range []string{"one", "two"} {
		_, err := svc.Send(ctx, "m1", g.ID, text)
		require.NoError(t, err)
	}
	_, err := svc.Send(ctx, "m2", g.ID, "three")
	require.NoError(t, err)

	unread, err := svc.UnreadCount(ctx, "m2", g.ID)
	require.NoError(t, err)
	require.Equal(t, 2, unread)

	n, err := svc.MarkRead(ctx, "m2", g.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = svc.MarkRead(ctx, "m2", g.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	msgs, err := svc.List(ctx, "m2", g.ID)
	require.NoError(t, err)
	for _, m := range msgs {
		require.True(t, m.IsReadBy("m2"))
		require.Equal(t, 1, countOf(m.ReadBy, "m2"))
	}
}

func countOf(ids []string, id string) int {
	n := 0
	for _, v := range ids {
		if v == id {
			n++
		}
	}
	return n
}

func TestMessageService_Subscribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env, _, g := newGroupEnv(t)
	svc := NewMessageService(env.store, env.hub, nil, steppingClock())

	_, err := svc.Send(ctx, "owner", g.ID, "first")
	require.NoError(t, err)

	updates := make(chan []models.Message, 16)
	unsubscribe, err := svc.Subscribe(ctx, "m1", g.ID, func(msgs []models.Message) {
		updates <- msgs
	})
	require.NoError(t, err)

	next := func() []models.Message {
		t.Helper()
		select {
		case msgs := <-updates:
			return msgs
		case <-time.After(2 * time.Second):
			t.Fatal("no update delivered")
			return nil
		}
	}

	initial := next()
	require.Len(t, initial, 1)
	require.Equal(t, "first", initial[0].Text)

	_, err = svc.Send(ctx, "m2", g.ID, "second")
	require.NoError(t, err)
	latest := next()
	for len(latest) < 2 {
		latest = next()
	}
	require.Len(t, latest, 2)
	require.Equal(t, "first", latest[0].Text)
	require.Equal(t, "second", latest[1].Text)
	require.True(t, latest[0].Timestamp.Before(latest[1].Timestamp))

	unsubscribe()
	unsubscribe()
	require.Zero(t, env.hub.Subscribers(changefeed.TopicMessages, g.ID))

	// Drain anything delivered before the unsubscribe returned.
	for len(updates) > 0 {
		<-updates
	}
	_, err = svc.Send(ctx, "m2", g.ID, "third")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, updates)
}

func TestMessageService_SubscribeRejectsOutsiders(t *testing.T) {
	t.Parallel()
	env, _, g := newGroupEnv(t)
	env.addUser(t, "outsider", "Otto", "3589")
	svc := NewMessageService(env.store, env.hub, nil, nil)

	_, err := svc.Subscribe(context.Background(), "outsider", g.ID, func([]models.Message) {})
	require.ErrorIs(t, err, models.ErrNotMember)

	_, err = NewMessageService(env.store, nil, nil, nil).Subscribe(context.Background(), "m1", g.ID, func([]models.Message) {})
	require.Error(t, err)
}
