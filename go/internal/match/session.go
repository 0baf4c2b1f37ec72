// Package match runs one client's side of a two-player match: the per-room
// session state machine and the leader-arbitrated scoring protocol. All
// mutable match state is reconstructed from the match:start payload plus the
// ordered event stream, so every participant converges on the same state
// without a server arbitrating it.
package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flagduel/go/internal/match/events"
	"github.com/mcdev12/flagduel/go/internal/question"
	"github.com/mcdev12/flagduel/go/internal/realtime"
	"github.com/mcdev12/flagduel/go/internal/results"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("match: session already started")
	// ErrInvalidStart is returned for a malformed match:start payload; the
	// session stays in waiting, which the caller reports upward.
	ErrInvalidStart = errors.New("match: invalid match:start payload")
	// ErrNotPlaying is returned when an answer is submitted outside an
	// active round.
	ErrNotPlaying = errors.New("match: no round in progress")
	// ErrAlreadyAnswered is returned when the local player already
	// submitted (or timed out) this round.
	ErrAlreadyAnswered = errors.New("match: already answered this round")
)

// Listener observes state changes; it receives a detached snapshot.
type Listener func(Snapshot)

// Session is one client's controller for a single room. Coordination with
// the other participant happens entirely through bus events; the only state
// never shared is the purely local "have I submitted this round".
type Session struct {
	bus   realtime.Bus
	clock clockwork.Clock
	store results.Store // optional; nil disables local persistence

	selfID string
	done   chan struct{}

	mu     sync.Mutex
	closed bool

	phase    Phase
	roomID   string
	seed     int32
	order    [2]string
	players  map[string]*Player
	rounds   []question.Round
	leaderID string

	round         int
	timeRemaining int
	answered      map[string]bool
	firstCorrect  string
	selfSubmitted bool

	// Leader bookkeeping, scoped to this session so concurrent matches in
	// one process cannot interfere.
	scored          map[string]bool
	graceArmed      bool
	nextPublished   bool
	finishPublished bool

	// Non-leader stall watchdog.
	watchdogArmed bool

	subs      []realtime.Unsubscribe
	ticker    clockwork.Ticker
	listeners []Listener
}

// NewSession creates a session in the waiting phase. It does nothing until
// Start delivers match:start data.
func NewSession(bus realtime.Bus, clock clockwork.Clock, store results.Store) *Session {
	return &Session{
		bus:    bus,
		clock:  clock,
		store:  store,
		selfID: bus.ClientID(),
		done:   make(chan struct{}),
		phase:  PhaseWaiting,
	}
}

// OnChange registers a listener for state changes.
func (s *Session) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Start moves the session from waiting to playing: it validates the
// match:start data, derives the identical round sequence every participant
// derives, subscribes to the room channel, and begins round 0 with a full
// countdown. A malformed payload leaves the session in waiting.
func (s *Session) Start(start events.MatchStartPayload) error {
	s.mu.Lock()
	if s.phase != PhaseWaiting {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if err := s.validateStart(start); err != nil {
		s.mu.Unlock()
		return err
	}

	rounds, err := question.Generate(int64(start.Seed))
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidStart, err)
	}

	s.roomID = start.RoomID
	s.seed = start.Seed
	s.order = start.Players
	s.rounds = rounds
	s.leaderID = Leader(start.Players[:])
	s.players = make(map[string]*Player, len(start.Players))
	avatars := [2]string{"👤", "👥"}
	for i, id := range start.Players {
		s.players[id] = &Player{
			ID:          id,
			DisplayName: fmt.Sprintf("Player %d", i+1),
			Score:       0,
			Avatar:      avatars[i],
		}
	}

	s.phase = PhasePlaying
	s.round = 0
	s.timeRemaining = RoundSeconds
	s.answered = make(map[string]bool)
	s.scored = make(map[string]bool)

	s.mu.Unlock()

	subs := []struct {
		eventType string
		handler   realtime.Handler
	}{
		{events.TypeAnswer, s.onAnswer},
		{events.TypeScoreUpdate, s.onScoreUpdate},
		{events.TypeMatchNext, s.onMatchNext},
		{events.TypeMatchFinished, s.onMatchFinished},
	}
	for _, sub := range subs {
		unsub, err := s.bus.Subscribe(start.RoomID, sub.eventType, sub.handler)
		if err != nil {
			s.teardown()
			return fmt.Errorf("subscribe %s on %s: %w", sub.eventType, start.RoomID, err)
		}
		s.mu.Lock()
		s.subs = append(s.subs, unsub)
		s.mu.Unlock()
	}

	s.startCountdown()

	log.Info().
		Str("room_id", start.RoomID).
		Int32("seed", start.Seed).
		Str("leader", s.leaderID).
		Bool("is_leader", s.leaderID == s.selfID).
		Msg("match session started")

	s.notify()
	return nil
}

func (s *Session) validateStart(start events.MatchStartPayload) error {
	if start.RoomID == "" {
		return fmt.Errorf("%w: empty room id", ErrInvalidStart)
	}
	if start.Players[0] == "" || start.Players[1] == "" || start.Players[0] == start.Players[1] {
		return fmt.Errorf("%w: bad player list", ErrInvalidStart)
	}
	if start.Players[0] != s.selfID && start.Players[1] != s.selfID {
		return fmt.Errorf("%w: local client %s not a participant", ErrInvalidStart, s.selfID)
	}
	return nil
}

// SubmitAnswer publishes the local player's answer for the current round.
// The round itself is advanced by the leader's events, never directly here.
func (s *Session) SubmitAnswer(ctx context.Context, label string) error {
	s.mu.Lock()
	if s.phase != PhasePlaying {
		s.mu.Unlock()
		return ErrNotPlaying
	}
	if s.selfSubmitted {
		s.mu.Unlock()
		return ErrAlreadyAnswered
	}
	s.selfSubmitted = true
	idx := s.round
	s.mu.Unlock()

	s.publishAnswer(ctx, idx, &label)
	s.notify()
	return nil
}

// Snapshot returns a detached copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close tears the session down: timers stop, subscriptions are removed, and
// any timer that later fires against this session becomes a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	ticker := s.ticker
	s.mu.Unlock()

	close(s.done)
	if ticker != nil {
		ticker.Stop()
	}
	for _, unsub := range subs {
		unsub()
	}
}

func (s *Session) teardown() {
	s.Close()
}

// startCountdown runs the 1-second interval driving the visible countdown.
func (s *Session) startCountdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ticker := s.clock.NewTicker(time.Second)
	s.ticker = ticker
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-s.done:
				return
			case <-ticker.Chan():
				s.tick()
			}
		}
	}()
}

// tick decrements the countdown. Hitting zero submits a nil answer for the
// local player only; the round keeps running for the opponent.
func (s *Session) tick() {
	s.mu.Lock()
	if s.phase != PhasePlaying || s.timeRemaining == 0 {
		s.mu.Unlock()
		return
	}
	s.timeRemaining--
	timedOut := s.timeRemaining == 0 && !s.selfSubmitted
	if timedOut {
		s.selfSubmitted = true
	}
	idx := s.round
	s.mu.Unlock()

	if timedOut {
		log.Debug().Int("round", idx).Msg("countdown expired, submitting empty answer")
		s.publishAnswer(context.Background(), idx, nil)
	}
	s.notify()
}

func (s *Session) publishAnswer(ctx context.Context, idx int, answer *string) {
	payload := events.AnswerPayload{
		PlayerID:      s.selfID,
		QuestionIndex: idx,
		Answer:        answer,
		SubmittedAt:   s.clock.Now(),
	}
	if err := s.bus.Publish(ctx, s.roomID, events.TypeAnswer, payload); err != nil {
		log.Error().Err(err).Int("round", idx).Msg("failed to publish answer")
	}
}

// onAnswer handles an observed answer submission. Every client tracks the
// answered set and first-correct marker (pure functions of the shared
// stream); only the leader computes and broadcasts score deltas.
func (s *Session) onAnswer(evt realtime.Event) {
	var p events.AnswerPayload
	if err := json.Unmarshal(evt.Data, &p); err != nil {
		log.Warn().Err(err).Msg("dropping malformed answer event")
		return
	}

	s.mu.Lock()
	if s.phase != PhasePlaying || p.QuestionIndex != s.round {
		s.mu.Unlock()
		log.Debug().
			Int("event_round", p.QuestionIndex).
			Str("player_id", p.PlayerID).
			Msg("ignoring stale answer event")
		return
	}
	if _, known := s.players[p.PlayerID]; !known {
		s.mu.Unlock()
		return
	}

	s.answered[p.PlayerID] = true
	correct := p.Answer != nil && *p.Answer == s.rounds[s.round].Answer
	if correct && s.firstCorrect == "" {
		s.firstCorrect = p.PlayerID
	}

	var scoreOut *events.ScoreUpdatePayload
	if s.leaderID == s.selfID {
		scoreOut = s.scoreAnswerLocked(p.PlayerID, correct)
	} else if len(s.answered) == len(s.players) && !s.watchdogArmed {
		s.watchdogArmed = true
		s.armWatchdogLocked(s.round)
	}
	s.mu.Unlock()

	if scoreOut != nil {
		if err := s.bus.Publish(context.Background(), s.roomID, events.TypeScoreUpdate, scoreOut); err != nil {
			log.Error().Err(err).Str("player_id", scoreOut.PlayerID).Msg("failed to publish score update")
		}
	}
	s.notify()
}

// scoreAnswerLocked applies the leader's scoring policy for one answer:
// at most one delta per player per round; 10 for the first correct answer,
// 7 for a later correct answer, 0 for wrong or empty. When every player has
// a recorded delta the round is resolved and the grace timer is armed.
func (s *Session) scoreAnswerLocked(playerID string, correct bool) *events.ScoreUpdatePayload {
	if s.scored[playerID] {
		log.Debug().Str("player_id", playerID).Int("round", s.round).Msg("duplicate answer, already scored")
		return nil
	}
	s.scored[playerID] = true

	delta := 0
	if correct {
		if s.firstCorrect == playerID {
			delta = 10
		} else {
			delta = 7
		}
	}

	if len(s.scored) == len(s.players) && !s.graceArmed {
		s.graceArmed = true
		idx := s.round
		s.afterDelay(resolveGrace, func() { s.resolveRound(idx) })
	}

	return &events.ScoreUpdatePayload{PlayerID: playerID, Delta: delta}
}

// resolveRound fires after the grace delay once every player is scored. The
// captured round index is checked against current state first: a timer whose
// round already advanced is a no-op, not an error.
func (s *Session) resolveRound(idx int) {
	s.mu.Lock()
	if s.phase != PhasePlaying || idx != s.round {
		s.mu.Unlock()
		return
	}

	final := idx == len(s.rounds)-1
	if final {
		if s.finishPublished {
			s.mu.Unlock()
			return
		}
		s.finishPublished = true
	} else {
		if s.nextPublished {
			s.mu.Unlock()
			return
		}
		s.nextPublished = true
	}
	standings := s.standingsLocked()
	roomID := s.roomID
	s.mu.Unlock()

	ctx := context.Background()
	if final {
		payload := events.MatchFinishedPayload{
			RoomID:     roomID,
			Players:    standings,
			FinishedAt: s.clock.Now(),
		}
		if err := s.bus.Publish(ctx, roomID, events.TypeMatchFinished, payload); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to publish match:finished")
		}
		return
	}
	payload := events.MatchNextPayload{QuestionIndex: idx}
	if err := s.bus.Publish(ctx, roomID, events.TypeMatchNext, payload); err != nil {
		log.Error().Err(err).Int("round", idx).Msg("failed to publish match:next")
	}
}

// onScoreUpdate applies an authoritative delta to the named player, floored
// at zero. Every client applies these, leader included; this is how
// non-leader clients stay in sync.
func (s *Session) onScoreUpdate(evt realtime.Event) {
	var p events.ScoreUpdatePayload
	if err := json.Unmarshal(evt.Data, &p); err != nil {
		log.Warn().Err(err).Msg("dropping malformed score:update")
		return
	}

	s.mu.Lock()
	player, known := s.players[p.PlayerID]
	if s.phase != PhasePlaying || !known {
		s.mu.Unlock()
		return
	}
	player.Score += p.Delta
	if player.Score < 0 {
		player.Score = 0
	}
	s.mu.Unlock()

	s.notify()
}

// onMatchNext advances to the next round when the named index matches the
// current one; anything else is stale or duplicate and ignored.
func (s *Session) onMatchNext(evt realtime.Event) {
	var p events.MatchNextPayload
	if err := json.Unmarshal(evt.Data, &p); err != nil {
		log.Warn().Err(err).Msg("dropping malformed match:next")
		return
	}

	s.mu.Lock()
	if s.phase != PhasePlaying || p.QuestionIndex != s.round {
		s.mu.Unlock()
		return
	}
	s.round++
	s.timeRemaining = RoundSeconds
	s.answered = make(map[string]bool)
	s.scored = make(map[string]bool)
	s.firstCorrect = ""
	s.selfSubmitted = false
	s.graceArmed = false
	s.nextPublished = false
	s.watchdogArmed = false
	round := s.round
	s.mu.Unlock()

	log.Debug().Int("round", round).Msg("advanced to next round")
	s.notify()
}

// onMatchFinished moves to the terminal phase, adopts the final standings
// from the payload, and writes them once to the local results store for the
// results view to read.
func (s *Session) onMatchFinished(evt realtime.Event) {
	var p events.MatchFinishedPayload
	if err := json.Unmarshal(evt.Data, &p); err != nil {
		log.Warn().Err(err).Msg("dropping malformed match:finished")
		return
	}

	s.mu.Lock()
	if s.phase == PhaseFinished {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseFinished
	for _, result := range p.Players {
		if player, ok := s.players[result.ID]; ok {
			player.Score = result.Score
		}
	}
	ticker := s.ticker
	s.ticker = nil
	roomID := s.roomID
	standings := p.Players
	s.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
	}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.Save(ctx, roomID, standings); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to persist match results")
		}
	}

	log.Info().Str("room_id", roomID).Msg("match finished")
	s.notify()
}

// armWatchdogLocked schedules the non-leader stall warning for a round.
// There is no leader failover: if the leader vanished, nothing will ever
// advance the match, and the best a follower can do is say so.
func (s *Session) armWatchdogLocked(idx int) {
	s.afterDelay(stallWarnAfter, func() {
		s.mu.Lock()
		stalled := s.phase == PhasePlaying && idx == s.round
		roomID := s.roomID
		s.mu.Unlock()
		if stalled {
			log.Warn().
				Str("room_id", roomID).
				Int("round", idx).
				Msg("round resolved but no advancement received; leader may have disconnected")
		}
	})
}

// afterDelay runs fn after d unless the session closes first.
func (s *Session) afterDelay(d time.Duration, fn func()) {
	timer := s.clock.NewTimer(d)
	go func() {
		select {
		case <-timer.Chan():
			fn()
		case <-s.done:
			stopAndDrainTimer(timer)
		}
	}()
}

func (s *Session) standingsLocked() []events.PlayerResult {
	standings := make([]events.PlayerResult, 0, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		standings = append(standings, events.PlayerResult{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Avatar:      p.Avatar,
		})
	}
	return standings
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:         s.phase,
		RoomID:        s.roomID,
		Round:         s.round,
		TotalRounds:   TotalRounds,
		TimeRemaining: s.timeRemaining,
		FirstCorrect:  s.firstCorrect,
		SelfSubmitted: s.selfSubmitted,
		LeaderID:      s.leaderID,
	}
	if s.phase == PhasePlaying && s.round < len(s.rounds) {
		q := s.rounds[s.round]
		snap.Question = &q
	}
	for _, id := range s.order {
		if p := s.players[id]; p != nil {
			snap.Players = append(snap.Players, *p)
		}
	}
	for id := range s.answered {
		snap.Answered = append(snap.Answered, id)
	}
	return snap
}

func (s *Session) notify() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
