package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nathoo/responserules/types"
)

func TestEnumerations(t *testing.T) {
	d := NewDefs()
	if !d.AddEnumeration("Health", "Low", 25) {
		t.Fatal("first insert should succeed")
	}
	if d.AddEnumeration("health", "LOW", 99) {
		t.Error("duplicate key should be ignored")
	}
	d.AddEnumeration("Health", "High", 75)

	v, ok := d.LookupEnumeration("[HEALTH::low]")
	if !ok || v != 25 {
		t.Errorf("lookup: got %v %v, want 25 true", v, ok)
	}
	if _, ok := d.LookupEnumeration("[Health::mid]"); ok {
		t.Error("unknown key should not resolve")
	}
	if diff := cmp.Diff([]string{"[health::low]", "[health::high]"}, d.EnumerationKeys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestAddCriteria_FirstWins(t *testing.T) {
	d := NewDefs()
	i1, ok := d.AddCriteria(types.Criteria{Name: "IsHurt", Key: "health"})
	if !ok || i1 != 0 {
		t.Fatalf("first insert: %d %v", i1, ok)
	}
	i2, ok := d.AddCriteria(types.Criteria{Name: "ishurt", Key: "other"})
	if ok || i2 != 0 {
		t.Errorf("duplicate should return the existing handle and false, got %d %v", i2, ok)
	}
	if len(d.Criteria) != 1 || d.Criteria[0].Key != "health" {
		t.Errorf("first definition should be kept: %+v", d.Criteria)
	}
}

func TestAddGroup_DuplicatesKept(t *testing.T) {
	d := NewDefs()
	d.AddGroup(types.ResponseGroup{Name: "Pain"})
	idx, isNew := d.AddGroup(types.ResponseGroup{Name: "PAIN"})
	if isNew || idx != 1 {
		t.Errorf("duplicate group: got %d %v, want 1 false", idx, isNew)
	}
	if len(d.Groups) != 2 {
		t.Fatalf("both groups should be stored, got %d", len(d.Groups))
	}
	if first, _ := d.FindGroup("pain"); first != 0 {
		t.Errorf("lookup should resolve to the first group, got %d", first)
	}
}

func TestAddRule_FirstWins(t *testing.T) {
	d := NewDefs()
	d.AddRule(types.Rule{Name: "R", MatchOnce: true})
	if _, ok := d.AddRule(types.Rule{Name: "r"}); ok {
		t.Error("duplicate rule should be rejected")
	}
	if idx, ok := d.FindRule("R"); !ok || !d.Rules[idx].MatchOnce {
		t.Error("first rule definition should be kept")
	}
}

func TestHandles_Validated(t *testing.T) {
	d := NewDefs()
	d.AddCriteria(types.Criteria{Name: "C"})

	if _, ok := d.Criterion(0); !ok {
		t.Error("handle 0 should be valid")
	}
	for _, h := range []int{-1, 1, 100} {
		if _, ok := d.Criterion(h); ok {
			t.Errorf("criterion handle %d should be invalid", h)
		}
		if _, ok := d.Group(h); ok {
			t.Errorf("group handle %d should be invalid", h)
		}
		if _, ok := d.Rule(h); ok {
			t.Errorf("rule handle %d should be invalid", h)
		}
	}
}

func TestEmpty(t *testing.T) {
	d := NewDefs()
	if !d.Empty() {
		t.Error("new defs should be empty")
	}
	d.AddEnumeration("a", "b", 1)
	if d.Empty() {
		t.Error("defs with an enumeration are not empty")
	}
}

func TestFacts(t *testing.T) {
	f := NewFacts()
	f.Append("concept", "TLK_IDLE")
	f.AppendWeighted("who", "alyx", 2)
	f.Append("health", "10")
	f.Append("CONCEPT", "TLK_HURT")

	if f.Len() != 3 {
		t.Fatalf("expected 3 facts, got %d", f.Len())
	}
	i := f.Find("Concept")
	if i != 0 {
		t.Fatalf("replaced fact should keep its position, got %d", i)
	}
	if v, _ := f.Value(i); v != "TLK_HURT" {
		t.Errorf("expected replaced value, got %q", v)
	}
	if f.Weight(f.Find("who")) != 2 {
		t.Error("weight not stored")
	}
	if f.Find("missing") != -1 {
		t.Error("missing fact should return -1")
	}
	if _, ok := f.Value(7); ok {
		t.Error("out of range value should report false")
	}

	if !f.Remove("who") || f.Remove("who") {
		t.Error("Remove should report presence once")
	}
	if f.Find("health") != 1 {
		t.Errorf("index not rebuilt after remove: %d", f.Find("health"))
	}
	if got := f.String(); got != "concept=TLK_HURT health=10" {
		t.Errorf("String() = %q", got)
	}
}

func TestFacts_CloneMerge(t *testing.T) {
	world := NewFacts()
	world.Append("map", "d1")
	speaker := NewFacts()
	speaker.AppendWeighted("who", "alyx", 3)

	q := world.Clone()
	q.Merge(speaker)
	q.Append("map", "d2")

	if v, _ := world.Value(world.Find("map")); v != "d1" {
		t.Error("clone must not alias the original")
	}
	if q.String() != "map=d2 who=alyx@3" {
		t.Errorf("merged set = %q", q.String())
	}
}
