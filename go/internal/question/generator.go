// Package question turns a shared 32-bit match seed into the exact same
// ordered sequence of rounds on every participant's machine. Generation is a
// pure function of the seed; there is no other source of entropy, which is
// what lets two clients play the same match without ever exchanging the
// questions themselves.
package question

import (
	"errors"
	"math"
)

const (
	// RoundsPerMatch is the fixed number of rounds in a match.
	RoundsPerMatch = 5
	// OptionsPerRound is the number of answer options shown per round.
	OptionsPerRound = 4

	distractorsPerRound = OptionsPerRound - 1
)

// ErrInvalidSeed is returned when a seed does not fit in the generator's
// native 32-bit width. Callers validate seeds at the boundary; the generator
// never silently truncates.
var ErrInvalidSeed = errors.New("question: seed not representable as int32")

// Round is one immutable question: a country flag to identify, the correct
// label, and four display-ordered options exactly one of which is correct.
type Round struct {
	CountryCode string                  `json:"country_code"`
	Answer      string                  `json:"answer"`
	Options     [OptionsPerRound]string `json:"options"`
}

// Generate produces the round sequence for a match seed. Two invocations
// with the same seed yield identical rounds, including option ordering,
// regardless of platform.
func Generate(seed int64) ([]Round, error) {
	if seed < math.MinInt32 || seed > math.MaxInt32 {
		return nil, ErrInvalidSeed
	}

	rng := newSplitmix32(uint32(seed))

	picks := sample(rng, countries, RoundsPerMatch)
	rounds := make([]Round, 0, RoundsPerMatch)
	for _, c := range picks {
		others := make([]string, 0, len(countries)-1)
		for _, o := range countries {
			if o.Code != c.Code {
				others = append(others, o.Name)
			}
		}
		distractors := sample(rng, others, distractorsPerRound)

		candidates := make([]string, 0, OptionsPerRound)
		candidates = append(candidates, c.Name)
		candidates = append(candidates, distractors...)
		shuffled := sample(rng, candidates, OptionsPerRound)

		var options [OptionsPerRound]string
		copy(options[:], shuffled)

		rounds = append(rounds, Round{
			CountryCode: c.Code,
			Answer:      c.Name,
			Options:     options,
		})
	}
	return rounds, nil
}

// sample draws k elements without replacement using a partial Fisher-Yates
// shuffle from the tail: each step swaps the current trailing element with
// one chosen from the remaining unshuffled prefix, so the draw stays uniform
// while only k swaps are spent.
func sample[T any](rng *splitmix32, src []T, k int) []T {
	pool := make([]T, len(src))
	copy(pool, src)

	out := make([]T, 0, k)
	for i := len(pool) - 1; i > len(pool)-1-k; i-- {
		j := rng.intn(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
		out = append(out, pool[i])
	}
	return out
}
