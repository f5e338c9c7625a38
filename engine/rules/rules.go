package rules

import (
	"sort"

	"go.uber.org/zap"

	"github.com/nathoo/responserules/engine/state"
	"github.com/nathoo/responserules/types"
)

// Epsilon is the lowest score a rule needs to be selected.
const Epsilon = 0.001

// Scored pairs a rule handle with its score.
type Scored struct {
	Rule  int
	Name  string
	Score float64
}

// FindBestRule scans every rule in insertion order and returns the handle of
// the best scoring one. Ties are broken uniformly at random; rng is only
// consulted when more than one rule ties.
func FindBestRule(defs *state.Defs, set types.CriteriaSet, rng types.Random, log *zap.Logger) (int, bool) {
	best := Epsilon
	var ties []int

	for i := range defs.Rules {
		score := ScoreRule(defs, set, i, log)
		if score < best {
			continue
		}
		if score == best {
			ties = append(ties, i)
			continue
		}
		best = score
		ties = append(ties[:0], i)
	}

	switch len(ties) {
	case 0:
		return -1, false
	case 1:
		return ties[0], true
	default:
		return ties[rng.RandomInt(0, len(ties)-1)], true
	}
}

// ScoreAll returns every rule scoring at least Epsilon, best first. Rules with
// equal scores keep insertion order.
func ScoreAll(defs *state.Defs, set types.CriteriaSet, log *zap.Logger) []Scored {
	var out []Scored
	for i, r := range defs.Rules {
		score := ScoreRule(defs, set, i, log)
		if score < Epsilon {
			continue
		}
		out = append(out, Scored{Rule: i, Name: r.Name, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
