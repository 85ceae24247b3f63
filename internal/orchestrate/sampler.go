package orchestrate

import "math/rand"

// Sample deterministically draws n instruments from the universe without
// replacement: the same seed over the same universe always yields the same
// subset. Asking for more than the universe holds returns every instrument
// in its original order.
func Sample(universe []string, n int, seed int64) []string {
	if n <= 0 {
		return nil
	}
	if n >= len(universe) {
		out := make([]string, len(universe))
		copy(out, universe)
		return out
	}
	rng := rand.New(rand.NewSource(seed))
	out := make([]string, 0, n)
	for _, idx := range rng.Perm(len(universe))[:n] {
		out = append(out, universe[idx])
	}
	return out
}
