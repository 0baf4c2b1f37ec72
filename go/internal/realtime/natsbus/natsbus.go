// Package natsbus implements realtime.Bus on NATS. Plain core subjects carry
// channel events; presence is a JetStream key-value bucket per channel, one
// key per member. The NATS deployment itself is treated as the reliable
// external service the protocol assumes.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flagduel/go/internal/realtime"
)

// Config holds connection settings for the bus.
type Config struct {
	URL           string
	ClientID      string // stable opaque identity; generated when empty
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the settings used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "flagduel",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Bus is one client's NATS-backed connection to the pub/sub substrate.
type Bus struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	clientID string
	prefix   string

	kvMu sync.Mutex
	kvs  map[string]jetstream.KeyValue
}

// Connect dials NATS and prepares the JetStream context used for presence.
func Connect(cfg Config) (*Bus, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "guest-" + uuid.New().String()[:8]
	}

	opts := []nats.Option{
		nats.Name("flagduel-" + cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return &Bus{
		nc:       nc,
		js:       js,
		clientID: cfg.ClientID,
		prefix:   cfg.SubjectPrefix,
		kvs:      make(map[string]jetstream.KeyValue),
	}, nil
}

// Close drops the underlying connection.
func (b *Bus) Close() {
	b.nc.Close()
}

func (b *Bus) ClientID() string {
	return b.clientID
}

// JetStream exposes the underlying JetStream context so other components
// (the results store) can ride the same connection.
func (b *Bus) JetStream() jetstream.JetStream {
	return b.js
}

// subject maps a channel and event type onto a NATS subject. Event types use
// colons on the wire ("match:start"); colons are not valid subject tokens.
func (b *Bus) subject(channel, eventType string) string {
	clean := func(s string) string {
		s = strings.ReplaceAll(s, ":", "-")
		return strings.ReplaceAll(s, ".", "-")
	}
	return fmt.Sprintf("%s.%s.%s", b.prefix, clean(channel), clean(eventType))
}

func (b *Bus) Publish(ctx context.Context, channel, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	evt := realtime.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		ClientID:  b.clientID,
		Timestamp: time.Now(),
		Data:      data,
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}
	if err := b.nc.Publish(b.subject(channel, eventType), raw); err != nil {
		return fmt.Errorf("publish %s on %s: %w", eventType, channel, err)
	}
	return nil
}

func (b *Bus) Subscribe(channel, eventType string, h realtime.Handler) (realtime.Unsubscribe, error) {
	sub, err := b.nc.Subscribe(b.subject(channel, eventType), func(msg *nats.Msg) {
		var evt realtime.Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			log.Warn().
				Err(err).
				Str("subject", msg.Subject).
				Msg("dropping malformed event envelope")
			return
		}
		h(evt)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s on %s: %w", eventType, channel, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := sub.Unsubscribe(); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("unsubscribe failed")
			}
		})
	}, nil
}

// presenceKV returns (creating on first use) the KV bucket backing a
// channel's presence set.
func (b *Bus) presenceKV(ctx context.Context, channel string) (jetstream.KeyValue, error) {
	b.kvMu.Lock()
	defer b.kvMu.Unlock()

	if kv, ok := b.kvs[channel]; ok {
		return kv, nil
	}

	bucket := "presence_" + strings.NewReplacer(":", "_", ".", "_", "/", "_").Replace(channel)
	kv, err := b.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "presence set for channel " + channel,
		TTL:         2 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("presence bucket %s: %w", bucket, err)
	}
	b.kvs[channel] = kv
	return kv, nil
}

func (b *Bus) Enter(ctx context.Context, channel string, payload any) error {
	kv, err := b.presenceKV(ctx, channel)
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal presence data: %w", err)
	}
	if _, err := kv.Put(ctx, b.clientID, data); err != nil {
		return fmt.Errorf("enter presence on %s: %w", channel, err)
	}
	return nil
}

func (b *Bus) Leave(ctx context.Context, channel string) error {
	kv, err := b.presenceKV(ctx, channel)
	if err != nil {
		return err
	}
	if err := kv.Purge(ctx, b.clientID); err != nil {
		return fmt.Errorf("leave presence on %s: %w", channel, err)
	}
	return nil
}

func (b *Bus) Presence(ctx context.Context, channel string) ([]realtime.Member, error) {
	kv, err := b.presenceKV(ctx, channel)
	if err != nil {
		return nil, err
	}

	lister, err := kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list presence on %s: %w", channel, err)
	}

	var members []realtime.Member
	for key := range lister.Keys() {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue // member left between list and get
			}
			return nil, fmt.Errorf("read presence entry %s: %w", key, err)
		}
		members = append(members, realtime.Member{ClientID: key, Data: entry.Value()})
	}
	return members, nil
}
