// Package events defines the payload types exchanged on the lobby and room
// channels. These shapes are the protocol: both sides of a match, and any
// future client, must agree on them.
package events

import (
	"time"
)

// Event types as they appear on the wire.
const (
	TypeMatchStart    = "match:start"
	TypeAnswer        = "answer"
	TypeScoreUpdate   = "score:update"
	TypeMatchNext     = "match:next"
	TypeMatchFinished = "match:finished"
)

// PresenceStatusWaiting marks a lobby member as searching for an opponent.
const PresenceStatusWaiting = "waiting"

// LobbyPresence is the data attached to a client's lobby presence entry.
type LobbyPresence struct {
	Wallet string `json:"wallet"`
	Status string `json:"status"`
}

// MatchStartPayload commits a match: the deterministic room id, the seed the
// whole question sequence derives from, and both participant ids. Published
// once, by the initiator only, on the lobby and room channels.
type MatchStartPayload struct {
	RoomID  string    `json:"room_id"`
	Seed    int32     `json:"seed"`
	Players [2]string `json:"players"`
}

// AnswerPayload is one player's submission for one round. Answer is nil when
// the countdown expired without a pick. Only the leader acts on these.
type AnswerPayload struct {
	PlayerID      string    `json:"player_id"`
	QuestionIndex int       `json:"question_index"`
	Answer        *string   `json:"answer"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// ScoreUpdatePayload is an authoritative score delta, published by the
// leader only and applied unconditionally by every client.
type ScoreUpdatePayload struct {
	PlayerID string `json:"player_id"`
	Delta    int    `json:"delta"`
}

// MatchNextPayload advances the match past the named round. Clients advance
// only when QuestionIndex matches their current round; anything else is
// stale and ignored.
type MatchNextPayload struct {
	QuestionIndex int `json:"question_index"`
}

// PlayerResult is one player's final record.
type PlayerResult struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
	Avatar      string `json:"avatar"`
}

// MatchFinishedPayload carries the final standings, published exactly once
// by the leader when the last round resolves.
type MatchFinishedPayload struct {
	RoomID     string         `json:"room_id"`
	Players    []PlayerResult `json:"players"`
	FinishedAt time.Time      `json:"finished_at"`
}
