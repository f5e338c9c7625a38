// Package events applies the contexts of a matched rule to the speaker's or
// the world's fact memory. Contexts expire on a caller-supplied clock.
package events

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nathoo/responserules/engine/state"
	"github.com/nathoo/responserules/types"
)

// Context is one "key:value[:expire]" assignment.
type Context struct {
	Key    string
	Value  string
	Expire time.Duration // zero never expires
}

// Parse splits a comma separated context string.
func Parse(s string) ([]Context, error) {
	var out []Context
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) < 2 || len(fields) > 3 || fields[0] == "" {
			return nil, fmt.Errorf("malformed context %q, expecting key:value[:expire]", part)
		}
		c := Context{Key: fields[0], Value: fields[1]}
		if len(fields) == 3 {
			secs, err := strconv.ParseFloat(fields[2], 64)
			if err != nil || secs < 0 {
				return nil, fmt.Errorf("context %q: bad expiry %q", part, fields[2])
			}
			c.Expire = time.Duration(secs * float64(time.Second))
		}
		out = append(out, c)
	}
	return out, nil
}

// Memory is a fact set whose entries may expire.
type Memory struct {
	facts   *state.Facts
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemory creates an empty memory. A nil clock uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{facts: state.NewFacts(), expires: map[string]time.Time{}, now: now}
}

// Apply writes contexts into memory, replacing earlier values.
func (m *Memory) Apply(ctxs []Context) {
	t := m.now()
	for _, c := range ctxs {
		m.facts.Append(c.Key, c.Value)
		k := state.Fold(c.Key)
		if c.Expire > 0 {
			m.expires[k] = t.Add(c.Expire)
		} else {
			delete(m.expires, k)
		}
	}
}

// Facts returns the live facts after dropping expired ones.
func (m *Memory) Facts() *state.Facts {
	t := m.now()
	for k, at := range m.expires {
		if !t.Before(at) {
			m.facts.Remove(k)
			delete(m.expires, k)
		}
	}
	return m.facts
}

// Clear forgets everything.
func (m *Memory) Clear() {
	m.facts = state.NewFacts()
	m.expires = map[string]time.Time{}
}

// Dispatch applies every context of match to the speaker, or to the world
// when the rule asks for it. Malformed contexts are skipped and reported.
func Dispatch(match types.Match, speaker, world *Memory) []error {
	target := speaker
	if match.ApplyContextToWorld {
		target = world
	}
	var errs []error
	for _, raw := range match.Contexts {
		ctxs, err := Parse(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", match.Rule, err))
			continue
		}
		if target != nil {
			target.Apply(ctxs)
		}
	}
	return errs
}
