package question

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDeterministic(t *testing.T) {
	seeds := []int64{0, 1, 42, 12345, -12345, math.MaxInt32, math.MinInt32}
	for _, seed := range seeds {
		a, err := Generate(seed)
		require.NoError(t, err)
		b, err := Generate(seed)
		require.NoError(t, err)
		assert.Equal(t, a, b, "seed %d must yield identical sequences", seed)
	}
}

func TestGenerateRoundCount(t *testing.T) {
	rounds, err := Generate(12345)
	require.NoError(t, err)
	assert.Len(t, rounds, RoundsPerMatch)
}

func TestGenerateDistinctCountries(t *testing.T) {
	rounds, err := Generate(987654)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, r := range rounds {
		assert.False(t, seen[r.CountryCode], "country %s repeated", r.CountryCode)
		seen[r.CountryCode] = true
	}
}

func TestGenerateOptionInvariants(t *testing.T) {
	for _, seed := range []int64{0, 7, 12345, 99999} {
		rounds, err := Generate(seed)
		require.NoError(t, err)

		for i, r := range rounds {
			correct := 0
			distinct := make(map[string]bool)
			for _, opt := range r.Options {
				require.NotEmpty(t, opt, "seed %d round %d has empty option", seed, i)
				distinct[opt] = true
				if opt == r.Answer {
					correct++
				}
			}
			assert.Equal(t, 1, correct, "seed %d round %d: exactly one option must match the answer", seed, i)
			assert.Len(t, distinct, OptionsPerRound, "seed %d round %d: options must be distinct", seed, i)
		}
	}
}

func TestGenerateSeedsDiffer(t *testing.T) {
	a, err := Generate(1)
	require.NoError(t, err)
	b, err := Generate(2)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestGenerateInvalidSeed(t *testing.T) {
	_, err := Generate(math.MaxInt32 + 1)
	assert.ErrorIs(t, err, ErrInvalidSeed)

	_, err = Generate(math.MinInt32 - 1)
	assert.ErrorIs(t, err, ErrInvalidSeed)
}

func TestSplitmix32Deterministic(t *testing.T) {
	a := newSplitmix32(12345)
	b := newSplitmix32(12345)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.next(), b.next())
	}
}

func TestSampleUsesWholePool(t *testing.T) {
	rng := newSplitmix32(1)
	src := []int{1, 2, 3, 4, 5}
	out := sample(rng, src, 5)
	assert.ElementsMatch(t, src, out)
	// source must be untouched
	assert.Equal(t, []int{1, 2, 3, 4, 5}, src)
}
