// Package rules scores rules against a criteria set and selects the best one.
package rules

import (
	"go.uber.org/zap"

	"github.com/nathoo/responserules/engine/matcher"
	"github.com/nathoo/responserules/engine/state"
	"github.com/nathoo/responserules/types"
)

// ScoreCriterion scores one criterion against set. exclude is true when the
// criterion is required and did not contribute, which vetoes the whole rule.
func ScoreCriterion(defs *state.Defs, set types.CriteriaSet, idx int, log *zap.Logger) (score float64, exclude bool) {
	c, ok := defs.Criterion(idx)
	if !ok {
		return 0, false
	}
	if len(c.Children) > 0 {
		return scoreComposite(defs, set, c, log)
	}

	slot := set.Find(c.Key)
	if slot < 0 {
		return 0, c.Required
	}
	live, ok := set.Value(slot)
	if !ok {
		log.DPanic("criteria set entry has no value",
			zap.String("criterion", c.Name), zap.String("key", c.Key))
		return 0, false
	}
	if !matcher.Compare(c.Matcher, live, defs) {
		return 0, c.Required
	}
	return set.Weight(slot) * c.Weight, false
}

// scoreComposite sums its children, each contributing Compare * child weight.
// Nested composites contribute their own composite score.
func scoreComposite(defs *state.Defs, set types.CriteriaSet, c *types.Criteria, log *zap.Logger) (float64, bool) {
	sum := 0.0
	for _, childIdx := range c.Children {
		child, ok := defs.Criterion(childIdx)
		if !ok {
			continue
		}
		if len(child.Children) > 0 {
			s, _ := scoreComposite(defs, set, child, log)
			sum += s
			continue
		}
		slot := set.Find(child.Key)
		if slot < 0 {
			continue
		}
		live, ok := set.Value(slot)
		if !ok {
			log.DPanic("criteria set entry has no value",
				zap.String("criterion", child.Name), zap.String("key", child.Key))
			continue
		}
		if matcher.Compare(child.Matcher, live, defs) {
			sum += child.Weight
		}
	}
	return sum * c.Weight, c.Required && sum == 0
}

// ScoreRule returns the rule's total score, or 0 when it is disabled or a
// required criterion vetoes it.
func ScoreRule(defs *state.Defs, set types.CriteriaSet, ruleIdx int, log *zap.Logger) float64 {
	r, ok := defs.Rule(ruleIdx)
	if !ok || !r.Enabled {
		return 0
	}

	score := 0.0
	for _, ci := range r.Criteria {
		s, exclude := ScoreCriterion(defs, set, ci, log)
		if exclude {
			log.Debug("rule vetoed by required criterion", zap.String("rule", r.Name), zap.Int("criterion", ci))
			return 0
		}
		score += s
	}
	return score
}

// ScoreRuleLoose sums per-criterion scores without applying vetoes or the
// enabled flag. Instanced systems use it to pick rules worth copying.
func ScoreRuleLoose(defs *state.Defs, set types.CriteriaSet, ruleIdx int, log *zap.Logger) float64 {
	r, ok := defs.Rule(ruleIdx)
	if !ok {
		return 0
	}
	score := 0.0
	for _, ci := range r.Criteria {
		s, _ := ScoreCriterion(defs, set, ci, log)
		score += s
	}
	return score
}
