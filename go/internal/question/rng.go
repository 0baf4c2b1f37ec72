package question

// splitmix32 is a small deterministic stream generator seeded from a 32-bit
// integer. The constants are the standard splitmix32 mixing constants; the
// sequence is reproducible bit for bit on every platform, which the shared
// match seed depends on.
type splitmix32 struct {
	state uint32
}

func newSplitmix32(seed uint32) *splitmix32 {
	return &splitmix32{state: seed}
}

func (s *splitmix32) next() uint32 {
	s.state += 0x9e3779b9
	z := s.state
	z ^= z >> 16
	z *= 0x21f0aaad
	z ^= z >> 15
	z *= 0x735a2d97
	z ^= z >> 15
	return z
}

// intn returns a draw in [0, n). n must be positive.
func (s *splitmix32) intn(n int) int {
	return int(s.next() % uint32(n))
}
