// Package realtime abstracts the pub/sub substrate the match protocol runs
// on: named channels carrying typed events, plus presence membership per
// channel. Connection establishment, delivery and presence tracking are the
// transport's problem; everything above this interface assumes they work.
//
// Delivery is in order per publisher within a single channel and event type.
// No cross-client ordering is guaranteed, which the protocol is designed
// around: every shared decision is either a pure function of already-shared
// data or made by exactly one elected client.
package realtime

import (
	"context"
	"encoding/json"
	"time"
)

// Event is the envelope every published payload travels in.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	ClientID  string          `json:"client_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Member is one entry in a channel's presence set.
type Member struct {
	ClientID string          `json:"client_id"`
	Data     json.RawMessage `json:"data"`
}

// Handler receives events for a subscription. Handlers for one client are
// invoked sequentially in delivery order.
type Handler func(evt Event)

// Unsubscribe tears down a subscription. Safe to call more than once.
type Unsubscribe func()

// Bus is a single client's connection to the pub/sub service. Publishers
// receive their own events on matching subscriptions, as the protocol
// requires (the leader scores its own answers by observing them).
type Bus interface {
	// ClientID is this connection's stable opaque identity.
	ClientID() string

	// Publish sends payload as an event of the given type on a channel.
	Publish(ctx context.Context, channel, eventType string, payload any) error

	// Subscribe registers a handler for one event type on a channel.
	Subscribe(channel, eventType string, h Handler) (Unsubscribe, error)

	// Enter adds this client to a channel's presence set with attached data.
	Enter(ctx context.Context, channel string, payload any) error

	// Leave removes this client from a channel's presence set.
	Leave(ctx context.Context, channel string) error

	// Presence returns the channel's current membership.
	Presence(ctx context.Context, channel string) ([]Member, error)
}
