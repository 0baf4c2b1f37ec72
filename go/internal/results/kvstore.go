package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/mcdev12/flagduel/go/internal/match/events"
)

const bucketName = "match-results"

// KVStore persists results in a JetStream key-value bucket, one key per
// room. It rides the same NATS connection the bus uses.
type KVStore struct {
	kv jetstream.KeyValue
}

// NewKVStore creates (or opens) the results bucket.
func NewKVStore(ctx context.Context, js jetstream.JetStream) (*KVStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucketName,
		Description: "final standings per finished match",
	})
	if err != nil {
		return nil, fmt.Errorf("results bucket: %w", err)
	}
	return &KVStore{kv: kv}, nil
}

func (s *KVStore) Save(ctx context.Context, roomID string, players []events.PlayerResult) error {
	data, err := json.Marshal(players)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	// Create fails if the key exists; the first write wins and later
	// writers (the other client finishing the same match) are no-ops.
	_, err = s.kv.Create(ctx, roomID, data)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return nil
		}
		return fmt.Errorf("write results for %s: %w", roomID, err)
	}
	return nil
}

func (s *KVStore) Load(ctx context.Context, roomID string) ([]events.PlayerResult, error) {
	entry, err := s.kv.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNoResults
		}
		return nil, fmt.Errorf("read results for %s: %w", roomID, err)
	}
	var players []events.PlayerResult
	if err := json.Unmarshal(entry.Value(), &players); err != nil {
		return nil, fmt.Errorf("decode results for %s: %w", roomID, err)
	}
	return players, nil
}
