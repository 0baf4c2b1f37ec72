package membus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/flagduel/go/internal/realtime"
)

func TestPublishReachesAllSubscribersIncludingSelf(t *testing.T) {
	net := NewNetwork()
	a := net.Client("a")
	b := net.Client("b")
	defer a.Close()
	defer b.Close()

	var mu sync.Mutex
	got := make(map[string]int)
	handler := func(id string) realtime.Handler {
		return func(evt realtime.Event) {
			mu.Lock()
			got[id]++
			mu.Unlock()
		}
	}

	_, err := a.Subscribe("room", "answer", handler("a"))
	require.NoError(t, err)
	_, err = b.Subscribe("room", "answer", handler("b"))
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), "room", "answer", map[string]string{"x": "y"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got["a"] == 1 && got["b"] == 1
	}, time.Second, 5*time.Millisecond, "publisher must receive its own event too")
}

func TestPerClientDeliveryOrder(t *testing.T) {
	net := NewNetwork()
	pub := net.Client("pub")
	sub := net.Client("sub")
	defer pub.Close()
	defer sub.Close()

	var mu sync.Mutex
	var seen []int
	_, err := sub.Subscribe("room", "tick", func(evt realtime.Event) {
		var n int
		require.NoError(t, json.Unmarshal(evt.Data, &n))
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, pub.Publish(context.Background(), "room", "tick", i))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 20
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, n := range seen {
		assert.Equal(t, i, n, "single-publisher delivery must stay in order")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	net := NewNetwork()
	c := net.Client("c")
	defer c.Close()

	var mu sync.Mutex
	count := 0
	unsub, err := c.Subscribe("room", "evt", func(evt realtime.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	unsub()
	require.NoError(t, c.Publish(context.Background(), "room", "evt", 1))

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}

func TestPresenceEnterLeave(t *testing.T) {
	net := NewNetwork()
	a := net.Client("a")
	b := net.Client("b")
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, a.Enter(ctx, "lobby", map[string]string{"status": "waiting"}))
	require.NoError(t, b.Enter(ctx, "lobby", map[string]string{"status": "waiting"}))

	members, err := a.Presence(ctx, "lobby")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, a.Leave(ctx, "lobby"))
	members, err = b.Presence(ctx, "lobby")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "b", members[0].ClientID)
}

func TestCloseVacatesPresence(t *testing.T) {
	net := NewNetwork()
	a := net.Client("a")
	b := net.Client("b")
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, a.Enter(ctx, "lobby", nil))
	a.Close()

	members, err := b.Presence(ctx, "lobby")
	require.NoError(t, err)
	assert.Empty(t, members)
}
