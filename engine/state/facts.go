package state

import (
	"fmt"
	"strings"
)

// fact is one (name, value, weight) triple.
type fact struct {
	name   string
	value  string
	weight float64
}

// Facts is an ordered, case-insensitive criteria set. Appending an existing
// name replaces its value and weight in place.
type Facts struct {
	entries []fact
	index   map[string]int
}

// NewFacts creates an empty fact set.
func NewFacts() *Facts {
	return &Facts{index: map[string]int{}}
}

// Append sets name to value with weight 1.
func (f *Facts) Append(name, value string) {
	f.AppendWeighted(name, value, 1)
}

// AppendWeighted sets name to value with the given weight.
func (f *Facts) AppendWeighted(name, value string, weight float64) {
	if f.index == nil {
		f.index = map[string]int{}
	}
	k := Fold(name)
	if i, ok := f.index[k]; ok {
		f.entries[i].value = value
		f.entries[i].weight = weight
		return
	}
	f.entries = append(f.entries, fact{name: name, value: value, weight: weight})
	f.index[k] = len(f.entries) - 1
}

// Remove deletes name if present, preserving the order of the rest.
func (f *Facts) Remove(name string) bool {
	k := Fold(name)
	i, ok := f.index[k]
	if !ok {
		return false
	}
	f.entries = append(f.entries[:i], f.entries[i+1:]...)
	delete(f.index, k)
	for j := i; j < len(f.entries); j++ {
		f.index[Fold(f.entries[j].name)] = j
	}
	return true
}

// Merge appends every fact of other, replacing duplicates.
func (f *Facts) Merge(other *Facts) {
	if other == nil {
		return
	}
	for _, e := range other.entries {
		f.AppendWeighted(e.name, e.value, e.weight)
	}
}

// Clone returns an independent copy.
func (f *Facts) Clone() *Facts {
	c := NewFacts()
	c.Merge(f)
	return c
}

// Len returns the number of facts.
func (f *Facts) Len() int {
	return len(f.entries)
}

// Find returns the index of name, or -1.
func (f *Facts) Find(name string) int {
	if i, ok := f.index[Fold(name)]; ok {
		return i
	}
	return -1
}

// Name returns the name stored at index.
func (f *Facts) Name(index int) string {
	if index < 0 || index >= len(f.entries) {
		return ""
	}
	return f.entries[index].name
}

// Value returns the value stored at index.
func (f *Facts) Value(index int) (string, bool) {
	if index < 0 || index >= len(f.entries) {
		return "", false
	}
	return f.entries[index].value, true
}

// Weight returns the weight stored at index, or 0.
func (f *Facts) Weight(index int) float64 {
	if index < 0 || index >= len(f.entries) {
		return 0
	}
	return f.entries[index].weight
}

// String renders the set as "name=value" pairs, weights shown when not 1.
func (f *Facts) String() string {
	parts := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		if e.weight != 1 {
			parts = append(parts, fmt.Sprintf("%s=%s@%g", e.name, e.value, e.weight))
			continue
		}
		parts = append(parts, e.name+"="+e.value)
	}
	return strings.Join(parts, " ")
}
