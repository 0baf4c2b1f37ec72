package results

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/flagduel/go/internal/match/events"
)

func standings() []events.PlayerResult {
	return []events.PlayerResult{
		{ID: "p1", DisplayName: "Player 1", Score: 34, Avatar: "👤"},
		{ID: "p2", DisplayName: "Player 2", Score: 21, Avatar: "👥"},
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "match-p1-p2", standings()))
	got, err := store.Load(ctx, "match-p1-p2")
	require.NoError(t, err)
	assert.Equal(t, standings(), got)
}

func TestMemoryStoreFirstWriteWins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "match-p1-p2", standings()))

	overwrite := []events.PlayerResult{{ID: "p1", Score: 999}}
	require.NoError(t, store.Save(ctx, "match-p1-p2", overwrite))

	got, err := store.Load(ctx, "match-p1-p2")
	require.NoError(t, err)
	assert.Equal(t, standings(), got)
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Load(context.Background(), "match-x-y")
	require.ErrorIs(t, err, ErrNoResults)
}

func TestMemoryStoreDetachesStoredSlice(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	in := standings()
	require.NoError(t, store.Save(ctx, "match-p1-p2", in))
	in[0].Score = 0

	got, err := store.Load(ctx, "match-p1-p2")
	require.NoError(t, err)
	assert.Equal(t, 34, got[0].Score)

	got[1].Score = 0
	again, err := store.Load(ctx, "match-p1-p2")
	require.NoError(t, err)
	assert.Equal(t, 21, again[1].Score)
}
