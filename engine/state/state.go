// Package state holds the compiled response dictionaries and the concrete
// criteria set used to query them.
package state

import (
	"fmt"

	"golang.org/x/text/cases"

	"github.com/nathoo/responserules/types"
)

// Fold returns the case-folded form used for every dictionary key.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// EnumKey builds the lookup key of an enumeration entry: "[group::key]".
func EnumKey(group, key string) string {
	return Fold(fmt.Sprintf("[%s::%s]", group, key))
}

// Defs holds the dictionaries built from one script load. Criteria, Groups and
// Rules are arenas addressed by integer handles in insertion order.
type Defs struct {
	Enumerations map[string]float64
	Criteria     []types.Criteria
	Groups       []types.ResponseGroup
	Rules        []types.Rule

	enumOrder   []string
	criteriaIdx map[string]int
	groupIdx    map[string]int
	ruleIdx     map[string]int
}

// NewDefs returns empty dictionaries.
func NewDefs() *Defs {
	return &Defs{
		Enumerations: map[string]float64{},
		criteriaIdx:  map[string]int{},
		groupIdx:     map[string]int{},
		ruleIdx:      map[string]int{},
	}
}

// AddEnumeration inserts an enumeration value. Duplicate keys are ignored and
// the first definition wins.
func (d *Defs) AddEnumeration(group, key string, value float64) bool {
	return d.SetEnumerationKey(EnumKey(group, key), value)
}

// LookupEnumeration resolves a "[group::key]" reference.
func (d *Defs) LookupEnumeration(name string) (float64, bool) {
	v, ok := d.Enumerations[Fold(name)]
	return v, ok
}

// EnumerationKeys returns enumeration keys in insertion order.
func (d *Defs) EnumerationKeys() []string {
	return append([]string(nil), d.enumOrder...)
}

// AddCriteria inserts a criterion. It returns the handle and false when the
// name is already taken; the existing definition is kept.
func (d *Defs) AddCriteria(c types.Criteria) (int, bool) {
	k := Fold(c.Name)
	if idx, ok := d.criteriaIdx[k]; ok {
		return idx, false
	}
	d.Criteria = append(d.Criteria, c)
	idx := len(d.Criteria) - 1
	d.criteriaIdx[k] = idx
	return idx, true
}

// FindCriteria returns the handle of a named criterion.
func (d *Defs) FindCriteria(name string) (int, bool) {
	idx, ok := d.criteriaIdx[Fold(name)]
	return idx, ok
}

// AddGroup inserts a response group. Duplicate names are inserted too; name
// lookups keep resolving to the first. The bool reports whether the name was new.
func (d *Defs) AddGroup(g types.ResponseGroup) (int, bool) {
	d.Groups = append(d.Groups, g)
	idx := len(d.Groups) - 1
	k := Fold(g.Name)
	if _, ok := d.groupIdx[k]; ok {
		return idx, false
	}
	d.groupIdx[k] = idx
	return idx, true
}

// FindGroup returns the handle of the first group inserted under name.
func (d *Defs) FindGroup(name string) (int, bool) {
	idx, ok := d.groupIdx[Fold(name)]
	return idx, ok
}

// AddRule inserts a rule. Duplicate names keep the first definition.
func (d *Defs) AddRule(r types.Rule) (int, bool) {
	k := Fold(r.Name)
	if idx, ok := d.ruleIdx[k]; ok {
		return idx, false
	}
	d.Rules = append(d.Rules, r)
	idx := len(d.Rules) - 1
	d.ruleIdx[k] = idx
	return idx, true
}

// FindRule returns the handle of a named rule.
func (d *Defs) FindRule(name string) (int, bool) {
	idx, ok := d.ruleIdx[Fold(name)]
	return idx, ok
}

// Criterion returns the criterion behind a handle, validating it first.
func (d *Defs) Criterion(idx int) (*types.Criteria, bool) {
	if idx < 0 || idx >= len(d.Criteria) {
		return nil, false
	}
	return &d.Criteria[idx], true
}

// Group returns the response group behind a handle, validating it first.
func (d *Defs) Group(idx int) (*types.ResponseGroup, bool) {
	if idx < 0 || idx >= len(d.Groups) {
		return nil, false
	}
	return &d.Groups[idx], true
}

// Rule returns the rule behind a handle, validating it first.
func (d *Defs) Rule(idx int) (*types.Rule, bool) {
	if idx < 0 || idx >= len(d.Rules) {
		return nil, false
	}
	return &d.Rules[idx], true
}

// Empty reports whether nothing was loaded.
func (d *Defs) Empty() bool {
	return len(d.Rules) == 0 && len(d.Groups) == 0 && len(d.Criteria) == 0 && len(d.Enumerations) == 0
}

// SetEnumerationKey inserts an already folded "[group::key]" entry.
func (d *Defs) SetEnumerationKey(key string, value float64) bool {
	k := Fold(key)
	if _, ok := d.Enumerations[k]; ok {
		return false
	}
	d.Enumerations[k] = value
	d.enumOrder = append(d.enumOrder, k)
	return true
}
