package loader

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nathoo/responserules/engine/dialogue"
	"github.com/nathoo/responserules/engine/resolve"
	"github.com/nathoo/responserules/engine/state"
	"github.com/nathoo/responserules/types"
)

// LoadError collects the fatal errors and warnings of one script load.
// Entries parsed before a fatal error are still installed.
type LoadError struct {
	Errors   []string
	Warnings []string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("script load failed with %d error(s):\n  %s",
		len(e.Errors), strings.Join(e.Errors, "\n  "))
}

// validate checks the compiled dictionaries for referential integrity. Dangling
// handles are dropped; everything else is reported as a warning.
func validate(defs *state.Defs, le *LoadError, log *zap.Logger) {
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		le.Warnings = append(le.Warnings, msg)
		log.Warn(msg)
	}

	// Composite children must point at existing criteria.
	for i := range defs.Criteria {
		c := &defs.Criteria[i]
		if len(c.Children) == 0 {
			continue
		}
		kept := c.Children[:0]
		for _, child := range c.Children {
			if child == i {
				warn("criterion %s lists itself as a child", c.Name)
				continue
			}
			if _, ok := defs.Criterion(child); !ok {
				warn("criterion %s has a dangling child handle %d", c.Name, child)
				continue
			}
			kept = append(kept, child)
		}
		c.Children = kept
	}

	for i := range defs.Rules {
		r := &defs.Rules[i]

		crit := r.Criteria[:0]
		for _, h := range r.Criteria {
			if _, ok := defs.Criterion(h); ok {
				crit = append(crit, h)
			} else {
				warn("rule %s has a dangling criterion handle %d", r.Name, h)
			}
		}
		r.Criteria = crit

		groups := r.Groups[:0]
		for _, h := range r.Groups {
			if _, ok := defs.Group(h); ok {
				groups = append(groups, h)
			} else {
				warn("rule %s has a dangling response handle %d", r.Name, h)
			}
		}
		r.Groups = groups

		if len(r.Criteria) == 0 {
			warn("rule %s has no criteria and can never score", r.Name)
		}
	}

	for i := range defs.Groups {
		g := &defs.Groups[i]
		if len(g.Responses) == 0 {
			warn("response group %s is empty", g.Name)
			continue
		}
		for _, r := range g.Responses {
			if r.Kind != types.KindResponse {
				continue
			}
			if _, err := resolve.Group(defs, r.Value); err != nil {
				warn("response group %s redirects to missing %v", g.Name, err)
			}
		}
		if err := redirectCycle(defs, i); err != nil {
			warn("%v", err)
		}
	}
}

// redirectCycle reports a group whose redirect graph can lead back to itself
// or run deeper than the runtime will follow.
func redirectCycle(defs *state.Defs, start int) error {
	var walk func(gi int, chain *resolve.Chain) error
	walk = func(gi int, chain *resolve.Chain) error {
		g, ok := defs.Group(gi)
		if !ok {
			return nil
		}
		if err := chain.Enter(gi, g.Name); err != nil {
			return err
		}
		seen := map[int]bool{}
		for _, r := range g.Responses {
			if r.Kind != types.KindResponse {
				continue
			}
			next, err := resolve.Group(defs, r.Value)
			if err != nil || seen[next] {
				continue
			}
			seen[next] = true
			if err := walk(next, chain.Fork()); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(start, resolve.NewChain(dialogue.MaxRedirectDepth+1))
}
