package pglink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireDuality asserts that listeners and channels are two consistent views
// of the same relation and that no empty channel set is retained.
func requireDuality(t *testing.T, r *listenerRegistry) {
	t.Helper()

	for h, sub := range r.listeners {
		set, ok := r.channels[sub.channel]
		require.True(t, ok, "channel %q missing for handle %d", sub.channel, h)
		_, ok = set[h]
		require.True(t, ok, "handle %d missing from channel %q", h, sub.channel)
	}
	for channel, set := range r.channels {
		require.NotEmpty(t, set, "channel %q retained with no subscribers", channel)
		for h := range set {
			sub, ok := r.listeners[h]
			require.True(t, ok, "handle %d in channel %q has no subscription", h, channel)
			require.Equal(t, channel, sub.channel)
		}
	}
}

func TestRegistryAddFirstAndSecond(t *testing.T) {
	r := newListenerRegistry()

	s1, first := r.add("chan")
	assert.True(t, first)
	s2, first := r.add("chan")
	assert.False(t, first)
	assert.NotEqual(t, s1.Handle(), s2.Handle())
	requireDuality(t, r)

	s3, first := r.add("other")
	assert.True(t, first)
	assert.Equal(t, "other", s3.Channel())
	requireDuality(t, r)
}

func TestRegistryRemove(t *testing.T) {
	r := newListenerRegistry()
	s1, _ := r.add("chan")
	s2, _ := r.add("chan")

	sub, last, ok := r.remove(s1.Handle())
	require.True(t, ok)
	assert.Same(t, s1, sub)
	assert.False(t, last)
	requireDuality(t, r)

	_, last, ok = r.remove(s2.Handle())
	require.True(t, ok)
	assert.True(t, last)
	requireDuality(t, r)
	assert.Empty(t, r.channels)

	_, _, ok = r.remove(s1.Handle())
	assert.False(t, ok)
}

func TestRegistryRemoveClosesDone(t *testing.T) {
	r := newListenerRegistry()
	s, _ := r.add("chan")

	select {
	case <-s.done:
		t.Fatal("done closed before removal")
	default:
	}

	_, _, ok := r.remove(s.Handle())
	require.True(t, ok)

	select {
	case <-s.done:
	default:
		t.Fatal("done not closed by removal")
	}
}

func TestRegistryDispatch(t *testing.T) {
	r := newListenerRegistry()
	s1, _ := r.add("chan")
	s2, _ := r.add("chan")
	other, _ := r.add("other")

	n := &Notification{PID: 1, Channel: "chan", Payload: "hello"}
	delivered, dropped := r.dispatch(n)
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 0, dropped)

	for _, s := range []*Subscription{s1, s2} {
		select {
		case got := <-s.Notifications():
			assert.Equal(t, n, got)
		default:
			t.Fatal("notification not delivered")
		}
	}
	select {
	case <-other.Notifications():
		t.Fatal("notification delivered to wrong channel")
	default:
	}
}

func TestRegistryDispatchDropsWhenFull(t *testing.T) {
	r := newListenerRegistry()
	s, _ := r.add("chan")

	for i := 0; i < subscriptionBufSize; i++ {
		delivered, dropped := r.dispatch(&Notification{Channel: "chan"})
		assert.Equal(t, 1, delivered)
		assert.Equal(t, 0, dropped)
	}

	delivered, dropped := r.dispatch(&Notification{Channel: "chan"})
	assert.Equal(t, 0, delivered)
	assert.Equal(t, 1, dropped)
	assert.Len(t, s.c, subscriptionBufSize)
}

func TestRegistryDispatchUnknownChannel(t *testing.T) {
	r := newListenerRegistry()
	delivered, dropped := r.dispatch(&Notification{Channel: "nobody"})
	assert.Equal(t, 0, delivered)
	assert.Equal(t, 0, dropped)
}
