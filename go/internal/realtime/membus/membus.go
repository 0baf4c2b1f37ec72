// Package membus is an in-process implementation of realtime.Bus. A Network
// plays the role of the pub/sub service; each Client is one connection to
// it. Events are delivered asynchronously through a per-client queue, so
// per-client ordering matches what the real transport guarantees while
// handlers never run on the publisher's goroutine.
package membus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/flagduel/go/internal/realtime"
)

const queueDepth = 256

// ErrClosed is returned on operations against a closed client.
var ErrClosed = errors.New("membus: client closed")

// Network is the shared substrate clients publish through.
type Network struct {
	mu       sync.Mutex
	subs     map[string][]*subscription
	presence map[string]map[string]json.RawMessage
}

type subscription struct {
	owner   *Client
	handler realtime.Handler
	active  bool
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{
		subs:     make(map[string][]*subscription),
		presence: make(map[string]map[string]json.RawMessage),
	}
}

// Client attaches a new connection with the given client id.
func (n *Network) Client(id string) *Client {
	c := &Client{
		net:   n,
		id:    id,
		queue: make(chan delivery, queueDepth),
		done:  make(chan struct{}),
	}
	go c.dispatch()
	return c
}

func subKey(channel, eventType string) string {
	return channel + "\x00" + eventType
}

// Client is one connection to the network.
type Client struct {
	net  *Network
	id   string
	once sync.Once
	done chan struct{}

	queue chan delivery
}

type delivery struct {
	handler realtime.Handler
	evt     realtime.Event
}

func (c *Client) dispatch() {
	for {
		select {
		case <-c.done:
			return
		case d := <-c.queue:
			d.handler(d.evt)
		}
	}
}

// Close stops delivery to this client and vacates all its presence entries.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)

		c.net.mu.Lock()
		defer c.net.mu.Unlock()
		for channel, members := range c.net.presence {
			delete(members, c.id)
			if len(members) == 0 {
				delete(c.net.presence, channel)
			}
		}
		for key, subs := range c.net.subs {
			kept := subs[:0]
			for _, s := range subs {
				if s.owner != c {
					kept = append(kept, s)
				}
			}
			c.net.subs[key] = kept
		}
	})
}

func (c *Client) ClientID() string {
	return c.id
}

func (c *Client) Publish(ctx context.Context, channel, eventType string, payload any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("membus: marshal payload: %w", err)
	}
	evt := realtime.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		ClientID:  c.id,
		Timestamp: time.Now(),
		Data:      data,
	}

	c.net.mu.Lock()
	targets := make([]*subscription, 0, len(c.net.subs[subKey(channel, eventType)]))
	for _, s := range c.net.subs[subKey(channel, eventType)] {
		if s.active {
			targets = append(targets, s)
		}
	}
	c.net.mu.Unlock()

	for _, s := range targets {
		select {
		case s.owner.queue <- delivery{handler: s.handler, evt: evt}:
		case <-s.owner.done:
		}
	}
	return nil
}

func (c *Client) Subscribe(channel, eventType string, h realtime.Handler) (realtime.Unsubscribe, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	s := &subscription{owner: c, handler: h, active: true}
	key := subKey(channel, eventType)

	c.net.mu.Lock()
	c.net.subs[key] = append(c.net.subs[key], s)
	c.net.mu.Unlock()

	return func() {
		c.net.mu.Lock()
		defer c.net.mu.Unlock()
		s.active = false
	}, nil
}

func (c *Client) Enter(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("membus: marshal presence data: %w", err)
	}

	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	if c.net.presence[channel] == nil {
		c.net.presence[channel] = make(map[string]json.RawMessage)
	}
	c.net.presence[channel][c.id] = data
	return nil
}

func (c *Client) Leave(ctx context.Context, channel string) error {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	if members, ok := c.net.presence[channel]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(c.net.presence, channel)
		}
	}
	return nil
}

func (c *Client) Presence(ctx context.Context, channel string) ([]realtime.Member, error) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()

	members := make([]realtime.Member, 0, len(c.net.presence[channel]))
	for id, data := range c.net.presence[channel] {
		members = append(members, realtime.Member{ClientID: id, Data: data})
	}
	return members, nil
}
