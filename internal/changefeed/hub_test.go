package changefeed

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHub_PublishSubscribe(t *testing.T) {
	t.Parallel()

	t.Run("delivers to matching key only", func(t *testing.T) {
		t.Parallel()
		h := NewHub()
		a := h.Subscribe(TopicUser, "u1")
		b := h.Subscribe(TopicUser, "u2")
		defer a.Stop()
		defer b.Stop()

		h.Publish(TopicUser, "u1")

		require.Len(t, a.C, 1)
		require.Empty(t, b.C)
	})

	t.Run("topics are independent", func(t *testing.T) {
		t.Parallel()
		h := NewHub()
		s := h.Subscribe(TopicMessages, "g1")
		defer s.Stop()

		h.Publish(TopicUser, "g1")
		require.Empty(t, s.C)
	})

	t.Run("coalesces pending notifications", func(t *testing.T) {
		t.Parallel()
		h := NewHub()
		s := h.Subscribe(TopicUser, "u1")
		defer s.Stop()

		for range 5 {
			h.Publish(TopicUser, "u1")
		}
		<-s.C
		require.Empty(t, s.C)
	})
}

func TestSubscription_Stop(t *testing.T) {
	t.Parallel()

	h := NewHub()
	s := h.Subscribe(TopicUser, "u1")
	other := h.Subscribe(TopicUser, "u1")
	require.Equal(t, 2, h.Subscribers(TopicUser, "u1"))

	s.Stop()
	s.Stop()
	require.Equal(t, 1, h.Subscribers(TopicUser, "u1"))

	h.Publish(TopicUser, "u1")
	require.Empty(t, s.C)
	require.Len(t, other.C, 1)

	other.Stop()
	require.Zero(t, h.Subscribers(TopicUser, "u1"))
}

func TestHub_ConcurrentUse(t *testing.T) {
	t.Parallel()

	h := NewHub()
	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			s := h.Subscribe(TopicMessages, "g1")
			h.Publish(TopicMessages, "g1")
			s.Stop()
		})
	}
	wg.Wait()
	require.Zero(t, h.Subscribers(TopicMessages, "g1"))
}
