package match

import (
	"time"

	"github.com/mcdev12/flagduel/go/internal/question"
)

// Phase is the top-level state of a session. Round transitions happen inside
// PhasePlaying without changing the phase.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

const (
	// TotalRounds is the fixed number of rounds per match.
	TotalRounds = question.RoundsPerMatch
	// RoundSeconds is the countdown each round starts with.
	RoundSeconds = 15

	// resolveGrace is how long the leader waits after a round resolves
	// before publishing advancement, letting late UI updates render.
	resolveGrace = 1500 * time.Millisecond

	// stallWarnAfter is how long a non-leader waits after observing a full
	// answered set before logging that the match appears stalled. There is
	// no leader failover; a vanished leader means the match never advances.
	stallWarnAfter = 10 * time.Second
)

// Player is one participant's record. Scores move only through score:update
// events and never go below zero.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
	Avatar      string `json:"avatar"`
}

// Snapshot is a point-in-time copy of session state for the presentation
// layer. It shares no memory with the session.
type Snapshot struct {
	Phase         Phase           `json:"phase"`
	RoomID        string          `json:"room_id"`
	Round         int             `json:"round"`
	TotalRounds   int             `json:"total_rounds"`
	TimeRemaining int             `json:"time_remaining"`
	Question      *question.Round `json:"question,omitempty"`
	Players       []Player        `json:"players"`
	Answered      []string        `json:"answered"`
	FirstCorrect  string          `json:"first_correct,omitempty"`
	SelfSubmitted bool            `json:"self_submitted"`
	LeaderID      string          `json:"leader_id,omitempty"`
}
