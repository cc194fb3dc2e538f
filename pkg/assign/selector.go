package assign

import (
	"math/rand"
	"sort"
)

// pickCandidate returns a uniformly random member of a non-empty candidate
// set. There is no weighting and no fairness memory across calls: repeated
// identical requests may return the same user each time. Calling this with an
// empty set is a programming error; resolution must already have produced at
// least one candidate.
func pickCandidate(rng *rand.Rand, candidates CandidateSet) string {
	if len(candidates) == 0 {
		panic("pickCandidate called with an empty candidate set")
	}
	keys := make([]string, 0, len(candidates))
	for key := range candidates {
		keys = append(keys, key)
	}
	// Sort so a seeded source selects deterministically in tests.
	sort.Strings(keys)
	return candidates[keys[rng.Intn(len(keys))]]
}
