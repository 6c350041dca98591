package cluster

// winner deterministically resolves a duplicate-actor conflict
// between two nodes that both believe they own a user during a
// membership transition (spec.md §4.3/§4.9): the lowest node id wins,
// a simple total order rather than vector clocks or leases.
func winner(a, b string) string {
	if a < b {
		return a
	}
	return b
}

func isWinner(self, other string) bool {
	return winner(self, other) == self
}
