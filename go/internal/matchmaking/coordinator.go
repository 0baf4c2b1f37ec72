// Package matchmaking pairs two clients through a shared lobby channel
// without any central matchmaker. Both sides announce themselves in lobby
// presence; whichever of a candidate pair sorts lexicographically smaller
// becomes the initiator and is the only side allowed to commit the match,
// which resolves the race where both clients discover each other at once.
package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flagduel/go/internal/match/events"
	"github.com/mcdev12/flagduel/go/internal/realtime"
)

// LobbyChannel is the shared discovery channel.
const LobbyChannel = "lobby"

// DefaultSearchTimeout is how long a search waits for an opponent before
// giving up.
const DefaultSearchTimeout = 30 * time.Second

// presencePollInterval is how often a waiting client re-reads lobby presence.
// Needed when the eventual initiator entered the lobby first: its initial
// presence read predates the opponent's arrival, and presence has no change
// notifications, so it must look again.
const presencePollInterval = 2 * time.Second

// ErrNoMatchFound is returned when the search timeout elapses with no
// opponent. The caller is back in an idle, retryable state.
var ErrNoMatchFound = errors.New("matchmaking: no match found")

// Match is the committed pairing both clients proceed with.
type Match struct {
	RoomID  string
	Seed    int32
	Players [2]string
}

// RoomID derives the room channel name for a pair of participants. Both
// sides sort the ids before joining, so they compute the same value without
// negotiating.
func RoomID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return "match-" + strings.Join(ids, "-")
}

// Initiator reports whether self commits the match against opp: the
// lexicographically smaller id publishes match:start, the other waits for it.
func Initiator(self, opp string) bool {
	return self < opp
}

// Coordinator runs matchmaking searches over a bus.
type Coordinator struct {
	bus     realtime.Bus
	clock   clockwork.Clock
	timeout time.Duration
	wallet  string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout overrides the search timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithWallet announces a wallet identity in lobby presence instead of the
// generated guest id.
func WithWallet(wallet string) Option {
	return func(c *Coordinator) { c.wallet = wallet }
}

// New creates a Coordinator.
func New(bus realtime.Bus, clock clockwork.Clock, opts ...Option) *Coordinator {
	c := &Coordinator{
		bus:     bus,
		clock:   clock,
		timeout: DefaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindMatch searches the lobby for an opponent. It blocks until a match
// commits, the timeout elapses (ErrNoMatchFound), or ctx is cancelled. On
// every exit path lobby presence is vacated and listeners are removed.
// Cancellation after a match:start has been published has no effect; the
// match is already committed and is still returned.
func (c *Coordinator) FindMatch(ctx context.Context) (*Match, error) {
	selfID := c.bus.ClientID()
	wallet := c.wallet
	if wallet == "" {
		wallet = "guest-" + selfID
	}

	// Listen before announcing: an initiator only publishes after it has
	// seen us in presence, so subscribing first guarantees we cannot miss
	// a match:start aimed at us.
	matchCh := make(chan *Match, 1)
	unsub, err := c.bus.Subscribe(LobbyChannel, events.TypeMatchStart, func(evt realtime.Event) {
		var p events.MatchStartPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			log.Warn().Err(err).Msg("dropping malformed match:start")
			return
		}
		if p.Players[0] != selfID && p.Players[1] != selfID {
			return
		}
		select {
		case matchCh <- &Match{RoomID: p.RoomID, Seed: p.Seed, Players: p.Players}:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer unsub()

	if err := c.bus.Enter(ctx, LobbyChannel, events.LobbyPresence{
		Wallet: wallet,
		Status: events.PresenceStatusWaiting,
	}); err != nil {
		return nil, err
	}
	defer c.leaveLobby()

	log.Info().Str("client_id", selfID).Msg("entered lobby, searching for opponent")

	if opp := c.findWaitingOpponent(ctx, selfID); opp != "" && Initiator(selfID, opp) {
		return c.startMatch(ctx, selfID, opp)
	}

	timer := c.clock.NewTimer(c.timeout)
	defer stopAndDrainTimer(timer)
	poll := c.clock.NewTicker(presencePollInterval)
	defer poll.Stop()

	for {
		select {
		case m := <-matchCh:
			log.Info().
				Str("room_id", m.RoomID).
				Str("client_id", selfID).
				Msg("received match:start from initiator")
			return m, nil
		case <-poll.Chan():
			if opp := c.findWaitingOpponent(ctx, selfID); opp != "" && Initiator(selfID, opp) {
				return c.startMatch(ctx, selfID, opp)
			}
		case <-timer.Chan():
			log.Info().Str("client_id", selfID).Dur("timeout", c.timeout).Msg("no match found")
			return nil, ErrNoMatchFound
		case <-ctx.Done():
			// A racing initiator may have committed the match while we were
			// cancelling; a committed match wins over cancellation.
			select {
			case m := <-matchCh:
				return m, nil
			default:
			}
			log.Info().Str("client_id", selfID).Msg("matchmaking cancelled")
			return nil, ctx.Err()
		}
	}
}

// findWaitingOpponent returns the id of a lobby member other than self whose
// status is waiting, or "" when none exists.
func (c *Coordinator) findWaitingOpponent(ctx context.Context, selfID string) string {
	members, err := c.bus.Presence(ctx, LobbyChannel)
	if err != nil {
		log.Warn().Err(err).Msg("presence query failed; falling back to waiting for match:start")
		return ""
	}
	for _, m := range members {
		if m.ClientID == selfID {
			continue
		}
		var p events.LobbyPresence
		if err := json.Unmarshal(m.Data, &p); err != nil {
			continue
		}
		if p.Status == events.PresenceStatusWaiting {
			return m.ClientID
		}
	}
	return ""
}

// startMatch commits the match as initiator: derives the room id, draws a
// fresh 32-bit seed, and publishes match:start on both the lobby and the new
// room channel so the opponent sees it wherever it is listening.
func (c *Coordinator) startMatch(ctx context.Context, selfID, oppID string) (*Match, error) {
	m := &Match{
		RoomID:  RoomID(selfID, oppID),
		Seed:    newSeed(),
		Players: [2]string{selfID, oppID},
	}
	payload := events.MatchStartPayload{
		RoomID:  m.RoomID,
		Seed:    m.Seed,
		Players: m.Players,
	}

	if err := c.bus.Publish(ctx, LobbyChannel, events.TypeMatchStart, payload); err != nil {
		return nil, err
	}
	if err := c.bus.Publish(ctx, m.RoomID, events.TypeMatchStart, payload); err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", m.RoomID).
		Int32("seed", m.Seed).
		Str("initiator", selfID).
		Str("opponent", oppID).
		Msg("match committed")

	return m, nil
}

func (c *Coordinator) leaveLobby() {
	// Best effort with a fresh context: the search context may already be
	// cancelled, but presence must still be vacated.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.bus.Leave(ctx, LobbyChannel); err != nil {
		log.Warn().Err(err).Msg("failed to leave lobby presence")
	}
}

// newSeed draws a fresh random 32-bit match seed.
func newSeed() int32 {
	return int32(uuid.New().ID())
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent
// goroutine leaks, per the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
