package match

// Leader elects the single client allowed to compute score deltas and
// publish advancement for a match: the lexicographically smallest
// participant id. It is a pure function of the shared player list, so every
// client re-derives it and converges without the value ever being
// transmitted.
func Leader(players []string) string {
	if len(players) == 0 {
		return ""
	}
	leader := players[0]
	for _, id := range players[1:] {
		if id < leader {
			leader = id
		}
	}
	return leader
}
