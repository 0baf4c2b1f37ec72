package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/flagduel/go/internal/match"
)

// MatchEvent is the envelope pushed to UI clients over WebSocket.
type MatchEvent struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType represents the kind of UI event.
type EventType string

const (
	// EventTypeStateSync carries a full session snapshot; the UI renders
	// from these alone and needs no protocol knowledge.
	EventTypeStateSync EventType = "StateSync"
	// EventTypeMatchFinished marks the terminal snapshot so the UI can
	// navigate to the results view.
	EventTypeMatchFinished EventType = "MatchFinished"
)

// NewStateSyncEvent wraps a session snapshot for UI fanout.
func NewStateSyncEvent(snap match.Snapshot) (*MatchEvent, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	eventType := EventTypeStateSync
	if snap.Phase == match.PhaseFinished {
		eventType = EventTypeMatchFinished
	}
	return &MatchEvent{
		ID:        uuid.New().String(),
		RoomID:    snap.RoomID,
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}

// ClientCommand is a message received from a UI client.
type ClientCommand struct {
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
}

// CommandTypeAnswer submits the given option label for the current round.
const CommandTypeAnswer = "answer"
