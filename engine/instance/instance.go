// Package instance builds instanced response systems: independent copies of
// the rules of a master system that score well against a given criteria set.
package instance

import (
	"go.uber.org/zap"

	"github.com/nathoo/responserules/engine/resolve"
	"github.com/nathoo/responserules/engine/rules"
	"github.com/nathoo/responserules/engine/state"
	"github.com/nathoo/responserules/types"
)

// builder copies entries from src into dst, remapping handles.
type builder struct {
	src, dst *state.Defs
	log      *zap.Logger
}

// Build deep-copies every rule of src whose loose score against set is at
// least threshold, together with the criteria and response groups it uses.
// The result shares no mutable state with src.
func Build(src *state.Defs, set types.CriteriaSet, threshold float64, log *zap.Logger) *state.Defs {
	if log == nil {
		log = zap.NewNop()
	}
	b := &builder{src: src, dst: state.NewDefs(), log: log}

	for _, k := range src.EnumerationKeys() {
		b.dst.SetEnumerationKey(k, src.Enumerations[k])
	}

	for i := range src.Rules {
		score := rules.ScoreRuleLoose(src, set, i, log)
		if score < threshold {
			continue
		}
		b.copyRule(&src.Rules[i])
	}

	log.Debug("instanced system built",
		zap.Int("rules", len(b.dst.Rules)),
		zap.Int("criteria", len(b.dst.Criteria)),
		zap.Int("responses", len(b.dst.Groups)),
		zap.Float64("threshold", threshold))
	return b.dst
}

func (b *builder) copyRule(r *types.Rule) {
	nr := types.Rule{
		Name:                r.Name,
		MatchOnce:           r.MatchOnce,
		Enabled:             r.Enabled,
		Contexts:            append([]string(nil), r.Contexts...),
		ApplyContextToWorld: r.ApplyContextToWorld,
	}
	for _, ci := range r.Criteria {
		if idx, ok := b.copyCriterion(ci); ok {
			nr.Criteria = append(nr.Criteria, idx)
		}
	}
	for _, gi := range r.Groups {
		if idx, ok := b.copyGroup(gi); ok {
			nr.Groups = append(nr.Groups, idx)
		}
	}
	b.dst.AddRule(nr)
}

// copyCriterion copies a criterion and its children, reusing any criterion
// already present in dst under the same name.
func (b *builder) copyCriterion(idx int) (int, bool) {
	c, ok := b.src.Criterion(idx)
	if !ok {
		return -1, false
	}
	if existing, ok := b.dst.FindCriteria(c.Name); ok {
		return existing, true
	}

	nc := *c
	nc.Children = nil
	for _, child := range c.Children {
		if ci, ok := b.copyCriterion(child); ok {
			nc.Children = append(nc.Children, ci)
		}
	}
	di, _ := b.dst.AddCriteria(nc)
	return di, true
}

// copyGroup copies a rule's response group. Every referencing rule gets its
// own copy, so duplicate group names may appear in dst.
func (b *builder) copyGroup(idx int) (int, bool) {
	g, ok := b.src.Group(idx)
	if !ok {
		return -1, false
	}
	di := b.addGroup(g)
	b.copyRedirects(g)
	return di, true
}

// copyRedirects copies each group g redirects to, once by name.
func (b *builder) copyRedirects(g *types.ResponseGroup) {
	for _, r := range g.Responses {
		if r.Kind != types.KindResponse {
			continue
		}
		if _, ok := b.dst.FindGroup(r.Value); ok {
			continue
		}
		target, err := resolve.Group(b.src, r.Value)
		if err != nil {
			b.log.Warn("instanced copy: redirect target missing", zap.String("group", g.Name), zap.Error(err))
			continue
		}
		tg, _ := b.src.Group(target)
		b.addGroup(tg)
		b.copyRedirects(tg)
	}
}

func (b *builder) addGroup(g *types.ResponseGroup) int {
	ng := *g
	ng.Responses = append([]types.Response(nil), g.Responses...)
	di, _ := b.dst.AddGroup(ng)
	return di
}
