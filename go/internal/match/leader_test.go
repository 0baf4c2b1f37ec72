package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeaderPicksLexicographicallySmallest(t *testing.T) {
	assert.Equal(t, "p1", Leader([]string{"p1", "p2"}))
	assert.Equal(t, "p1", Leader([]string{"p2", "p1"}))
	assert.Equal(t, "abc", Leader([]string{"abd", "abc"}))
	assert.Equal(t, "", Leader(nil))
}

func TestLeaderSymmetric(t *testing.T) {
	// Both participants must elect the same single leader regardless of
	// the order they list the players in.
	pairs := [][2]string{
		{"p1", "p2"},
		{"guest-042", "guest-941"},
		{"a", "b"},
		{"zz", "za"},
	}
	for _, pair := range pairs {
		fromA := Leader([]string{pair[0], pair[1]})
		fromB := Leader([]string{pair[1], pair[0]})
		assert.Equal(t, fromA, fromB, "pair %v", pair)
	}
}
