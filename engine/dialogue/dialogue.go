// Package dialogue implements response selection within response groups:
// weighted draws with depletion, sequential playback and redirects.
package dialogue

import (
	"go.uber.org/zap"

	"github.com/nathoo/responserules/engine/resolve"
	"github.com/nathoo/responserules/engine/state"
	"github.com/nathoo/responserules/types"
)

// MaxRedirectDepth bounds how many "response" redirects one selection follows.
const MaxRedirectDepth = 8

// Selection identifies the chosen response.
type Selection struct {
	Group int
	Index int
}

// SelectForRule picks one of the rule's groups at random, then applies that
// group's own selection policy. ok is false when nothing could be chosen.
func SelectForRule(defs *state.Defs, rule *types.Rule, rng types.Random,
	filter types.Filter, log *zap.Logger) (Selection, bool, error) {

	if len(rule.Groups) == 0 {
		return Selection{}, false, nil
	}
	gi := rule.Groups[rng.RandomInt(0, len(rule.Groups)-1)]
	return Resolve(defs, gi, rng, filter, log)
}

// Resolve selects from group gi, following redirects until a concrete
// response is reached.
func Resolve(defs *state.Defs, gi int, rng types.Random, filter types.Filter,
	log *zap.Logger) (Selection, bool, error) {

	chain := resolve.NewChain(MaxRedirectDepth + 1)
	for {
		g, ok := defs.Group(gi)
		if !ok {
			return Selection{}, false, nil
		}
		if err := chain.Enter(gi, g.Name); err != nil {
			log.Warn("redirect aborted", zap.Error(err))
			return Selection{}, false, err
		}

		idx := SelectFromGroup(g, rng, filter)
		if idx < 0 {
			return Selection{}, false, nil
		}

		r := g.Responses[idx]
		if r.Kind != types.KindResponse {
			return Selection{Group: gi, Index: idx}, true, nil
		}

		next, err := resolve.Group(defs, r.Value)
		if err != nil {
			log.Warn("redirect target missing", zap.String("group", g.Name), zap.Error(err))
			return Selection{}, false, err
		}
		gi = next
	}
}

// SelectFromGroup applies the group's policy and returns the chosen index,
// or -1. The winner is marked as used for the current generation.
func SelectFromGroup(g *types.ResponseGroup, rng types.Random, filter types.Filter) int {
	if !g.Enabled || len(g.Responses) == 0 {
		return -1
	}
	if g.Sequential {
		return selectSequential(g, filter)
	}
	return selectWeighted(g, rng, filter)
}

// selectSequential serves entries in order starting at CurrentIndex, skipping
// filtered ones. Wrapping past the end disables a norepeat group.
func selectSequential(g *types.ResponseGroup, filter types.Filter) int {
	n := len(g.Responses)
	if g.CurrentIndex < 0 || g.CurrentIndex >= n {
		g.CurrentIndex = 0
	}

	idx := g.CurrentIndex
	for tries := 0; tries < n; tries++ {
		r := &g.Responses[idx]
		next := idx + 1
		wrapped := next >= n
		if wrapped {
			next = 0
		}

		if filter == nil || filter.IsValidResponse(r.Kind, r.Value) {
			g.CurrentIndex = next
			r.Depletion = g.Generation
			if wrapped && g.NoRepeat {
				g.Enabled = false
			}
			return idx
		}

		if wrapped && g.NoRepeat {
			g.CurrentIndex = next
			g.Enabled = false
			return -1
		}
		idx = next
	}
	return -1
}

// selectWeighted performs a weighted draw among available entries.
func selectWeighted(g *types.ResponseGroup, rng types.Random, filter types.Filter) int {
	check := g.DepleteBeforeRepeat

	// 1. Exhausted generation: start a new one, or retire a norepeat group.
	if check && !hasUndepleted(g) {
		if g.NoRepeat {
			g.Enabled = false
			return -1
		}
		g.Generation++
	}

	// 2. Availability. Filtered entries are held out of this draw only, and a
	// draw the filter empties leaves the generation where it was.
	avail, found := available(g, filter, check)
	if !found {
		return -1
	}

	slot := -1
	if check {
		slot = pickFirstOrLast(g, avail)
	}

	// 3. Weighted reservoir draw over the remaining non-last entries.
	if slot == -1 {
		total := 0.0
		for i := range g.Responses {
			r := &g.Responses[i]
			if !avail[i] || (check && r.Last) {
				continue
			}
			if total == 0 {
				slot = i
			}
			total += r.Weight
			if total == 0 || rng.RandomFloat(0, total) < r.Weight {
				slot = i
			}
		}
	}

	if slot != -1 {
		g.Responses[slot].Depletion = g.Generation
	}
	return slot
}

// pickFirstOrLast returns an available "displayfirst" entry, or a
// "displaylast" entry once nothing else is left.
func pickFirstOrLast(g *types.ResponseGroup, avail []bool) int {
	for i := range g.Responses {
		if avail[i] && g.Responses[i].First {
			return i
		}
	}
	last := -1
	for i := range g.Responses {
		if !avail[i] {
			continue
		}
		if !g.Responses[i].Last {
			return -1
		}
		if last == -1 {
			last = i
		}
	}
	return last
}

// available marks the entries that pass filter and, when check is set, are
// not depleted in the current generation.
func available(g *types.ResponseGroup, filter types.Filter, check bool) ([]bool, bool) {
	avail := make([]bool, len(g.Responses))
	found := false
	for i := range g.Responses {
		r := &g.Responses[i]
		if check && r.Depletion == g.Generation {
			continue
		}
		if filter != nil && !filter.IsValidResponse(r.Kind, r.Value) {
			continue
		}
		avail[i] = true
		found = true
	}
	return avail, found
}

func hasUndepleted(g *types.ResponseGroup) bool {
	for i := range g.Responses {
		if g.Responses[i].Depletion != g.Generation {
			return true
		}
	}
	return false
}
