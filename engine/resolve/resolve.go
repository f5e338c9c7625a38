// Package resolve maps names used in scripts and redirects to dictionary handles.
package resolve

import (
	"fmt"
	"strings"

	"github.com/nathoo/responserules/engine/state"
)

// NotFoundError indicates no dictionary entry matched a name.
type NotFoundError struct {
	Kind string // "criterion", "response", "rule", "enumeration"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// CycleError indicates a redirect chain that loops or runs too deep.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("response redirect cycle: %s", strings.Join(e.Chain, " -> "))
}

// Criteria resolves a criterion name to its handle.
func Criteria(defs *state.Defs, name string) (int, error) {
	if idx, ok := defs.FindCriteria(name); ok {
		return idx, nil
	}
	return -1, &NotFoundError{Kind: "criterion", Name: name}
}

// Group resolves a response group name to the first group defined under it.
func Group(defs *state.Defs, name string) (int, error) {
	if idx, ok := defs.FindGroup(name); ok {
		return idx, nil
	}
	return -1, &NotFoundError{Kind: "response", Name: name}
}

// Rule resolves a rule name to its handle.
func Rule(defs *state.Defs, name string) (int, error) {
	if idx, ok := defs.FindRule(name); ok {
		return idx, nil
	}
	return -1, &NotFoundError{Kind: "rule", Name: name}
}

// Enumeration resolves a "[group::key]" reference to its value.
func Enumeration(defs *state.Defs, name string) (float64, error) {
	if v, ok := defs.LookupEnumeration(name); ok {
		return v, nil
	}
	return 0, &NotFoundError{Kind: "enumeration", Name: name}
}

// Chain tracks the groups visited while following redirects.
type Chain struct {
	max     int
	visited map[int]bool
	names   []string
}

// NewChain starts a redirect chain allowing at most max hops.
func NewChain(max int) *Chain {
	return &Chain{max: max, visited: map[int]bool{}}
}

// Enter records a visit to group idx. It fails when the group was already
// visited or the chain is longer than allowed.
func (c *Chain) Enter(idx int, name string) error {
	c.names = append(c.names, name)
	if c.visited[idx] || len(c.names) > c.max {
		return &CycleError{Chain: append([]string(nil), c.names...)}
	}
	c.visited[idx] = true
	return nil
}

// Fork returns a copy of the chain for exploring one branch of a redirect graph.
func (c *Chain) Fork() *Chain {
	f := &Chain{max: c.max, visited: make(map[int]bool, len(c.visited)), names: append([]string(nil), c.names...)}
	for k := range c.visited {
		f.visited[k] = true
	}
	return f
}
