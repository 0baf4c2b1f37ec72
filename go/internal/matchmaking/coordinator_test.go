package matchmaking

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/flagduel/go/internal/match/events"
	"github.com/mcdev12/flagduel/go/internal/realtime/membus"
)

func TestRoomIDOrderIndependent(t *testing.T) {
	assert.Equal(t, "match-a-b", RoomID("a", "b"))
	assert.Equal(t, "match-a-b", RoomID("b", "a"))
	assert.Equal(t, RoomID("guest-7", "guest-12"), RoomID("guest-12", "guest-7"))
}

func TestInitiatorExactlyOneSide(t *testing.T) {
	assert.True(t, Initiator("a", "b"))
	assert.False(t, Initiator("b", "a"))
}

type findResult struct {
	match *Match
	err   error
}

func runFindMatch(ctx context.Context, c *Coordinator) <-chan findResult {
	ch := make(chan findResult, 1)
	go func() {
		m, err := c.FindMatch(ctx)
		ch <- findResult{match: m, err: err}
	}()
	return ch
}

func waitForLobbyMember(t *testing.T, network *membus.Network, id string) {
	t.Helper()
	probe := network.Client("probe-" + id)
	defer probe.Close()
	require.Eventually(t, func() bool {
		members, err := probe.Presence(context.Background(), LobbyChannel)
		if err != nil {
			return false
		}
		for _, m := range members {
			if m.ClientID == id {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestFindMatchPairsWaitingClients(t *testing.T) {
	network := membus.NewNetwork()
	clock := clockwork.NewFakeClock()
	ctx := context.Background()

	clientA := network.Client("a")
	clientB := network.Client("b")
	defer clientA.Close()
	defer clientB.Close()

	// The larger id waits first, so the smaller id finds it on the initial
	// presence read and commits immediately.
	resultB := runFindMatch(ctx, New(clientB, clock))
	waitForLobbyMember(t, network, "b")

	resultA := runFindMatch(ctx, New(clientA, clock))

	var a, b findResult
	select {
	case a = <-resultA:
	case <-time.After(2 * time.Second):
		t.Fatal("initiator did not commit a match")
	}
	select {
	case b = <-resultB:
	case <-time.After(2 * time.Second):
		t.Fatal("waiting client never received match:start")
	}

	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Equal(t, "match-a-b", a.match.RoomID)
	assert.Equal(t, a.match.RoomID, b.match.RoomID)
	assert.Equal(t, a.match.Seed, b.match.Seed)
	assert.Equal(t, a.match.Players, b.match.Players)
	assert.Equal(t, [2]string{"a", "b"}, a.match.Players)
}

func TestFindMatchPollsWhenInitiatorArrivesFirst(t *testing.T) {
	network := membus.NewNetwork()
	clock := clockwork.NewFakeClock()
	ctx := context.Background()

	clientA := network.Client("a")
	clientB := network.Client("b")
	defer clientA.Close()
	defer clientB.Close()

	// The smaller id enters an empty lobby and settles into waiting.
	resultA := runFindMatch(ctx, New(clientA, clock))
	clock.BlockUntil(2)

	// The larger id arrives, sees the opponent but loses the tie-break, and
	// waits too. Only the poll on the smaller side can commit now.
	resultB := runFindMatch(ctx, New(clientB, clock))
	clock.BlockUntil(4)

	clock.Advance(presencePollInterval)

	var a, b findResult
	select {
	case a = <-resultA:
	case <-time.After(2 * time.Second):
		t.Fatal("poller never committed the match")
	}
	select {
	case b = <-resultB:
	case <-time.After(2 * time.Second):
		t.Fatal("waiting client never received match:start")
	}

	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Equal(t, "match-a-b", a.match.RoomID)
	assert.Equal(t, a.match.Seed, b.match.Seed)
}

func TestFindMatchTimesOut(t *testing.T) {
	network := membus.NewNetwork()
	clock := clockwork.NewFakeClock()
	client := network.Client("solo")
	defer client.Close()

	result := runFindMatch(context.Background(), New(client, clock))
	clock.BlockUntil(2)
	clock.Advance(DefaultSearchTimeout)

	select {
	case r := <-result:
		require.ErrorIs(t, r.err, ErrNoMatchFound)
		assert.Nil(t, r.match)
	case <-time.After(2 * time.Second):
		t.Fatal("search did not time out")
	}

	// Timing out vacates lobby presence.
	probe := network.Client("probe")
	defer probe.Close()
	require.Eventually(t, func() bool {
		members, err := probe.Presence(context.Background(), LobbyChannel)
		return err == nil && len(members) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestFindMatchCancelled(t *testing.T) {
	network := membus.NewNetwork()
	clock := clockwork.NewFakeClock()
	client := network.Client("solo")
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	result := runFindMatch(ctx, New(client, clock))
	clock.BlockUntil(2)
	cancel()

	select {
	case r := <-result:
		require.ErrorIs(t, r.err, context.Canceled)
		assert.Nil(t, r.match)
	case <-time.After(2 * time.Second):
		t.Fatal("search did not observe cancellation")
	}

	probe := network.Client("probe")
	defer probe.Close()
	require.Eventually(t, func() bool {
		members, err := probe.Presence(context.Background(), LobbyChannel)
		return err == nil && len(members) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestFindMatchIgnoresForeignMatchStart(t *testing.T) {
	network := membus.NewNetwork()
	clock := clockwork.NewFakeClock()
	client := network.Client("solo")
	other := network.Client("other")
	defer client.Close()
	defer other.Close()

	result := runFindMatch(context.Background(), New(client, clock))
	clock.BlockUntil(2)

	// A match:start naming two other players must not resolve this search.
	err := other.Publish(context.Background(), LobbyChannel, events.TypeMatchStart, events.MatchStartPayload{
		RoomID:  "match-x-y",
		Seed:    42,
		Players: [2]string{"x", "y"},
	})
	require.NoError(t, err)

	clock.Advance(DefaultSearchTimeout)
	select {
	case r := <-result:
		require.ErrorIs(t, r.err, ErrNoMatchFound)
	case <-time.After(2 * time.Second):
		t.Fatal("search did not time out")
	}
}

func TestWithWalletAnnouncedInPresence(t *testing.T) {
	network := membus.NewNetwork()
	clock := clockwork.NewFakeClock()
	client := network.Client("solo")
	defer client.Close()

	result := runFindMatch(context.Background(), New(client, clock, WithWallet("0xabc")))
	waitForLobbyMember(t, network, "solo")

	probe := network.Client("probe")
	defer probe.Close()
	members, err := probe.Presence(context.Background(), LobbyChannel)
	require.NoError(t, err)
	require.Len(t, members, 1)
	var p events.LobbyPresence
	require.NoError(t, json.Unmarshal(members[0].Data, &p))
	assert.Equal(t, "0xabc", p.Wallet)
	assert.Equal(t, events.PresenceStatusWaiting, p.Status)

	clock.BlockUntil(2)
	clock.Advance(DefaultSearchTimeout)
	require.ErrorIs(t, (<-result).err, ErrNoMatchFound)
}
