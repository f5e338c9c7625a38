package rules

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nathoo/responserules/engine/matcher"
	"github.com/nathoo/responserules/engine/state"
	"github.com/nathoo/responserules/types"
)

// scripted returns ints from a fixed list and counts calls.
type scripted struct {
	ints  []int
	calls int
}

func (s *scripted) RandomFloat(lo, hi float64) float64 { return lo }
func (s *scripted) RandomInt(lo, hi int) int {
	v := s.ints[s.calls%len(s.ints)]
	s.calls++
	return v
}

// noValue is a criteria set whose only entry has no value.
type noValue struct{}

func (noValue) Len() int                   { return 1 }
func (noValue) Find(name string) int       { return 0 }
func (noValue) Name(int) string            { return "health" }
func (noValue) Value(int) (string, bool)   { return "", false }
func (noValue) Weight(int) float64         { return 1 }

type crit struct {
	name, key, value string
	weight           float64
	required         bool
	children         []string
}

func buildDefs(crits []crit, rules map[string][]string, order []string) *state.Defs {
	defs := state.NewDefs()
	for _, c := range crits {
		w := c.weight
		if w == 0 {
			w = 1
		}
		nc := types.Criteria{Name: c.name, Key: c.key, Value: c.value, Weight: w, Required: c.required}
		for _, ch := range c.children {
			idx, _ := defs.FindCriteria(ch)
			nc.Children = append(nc.Children, idx)
		}
		if len(nc.Children) == 0 {
			nc.Matcher = matcher.Compile(c.value, defs, nil)
		}
		defs.AddCriteria(nc)
	}
	for _, name := range order {
		r := types.Rule{Name: name, Enabled: true}
		for _, cn := range rules[name] {
			idx, _ := defs.FindCriteria(cn)
			r.Criteria = append(r.Criteria, idx)
		}
		defs.AddRule(r)
	}
	return defs
}

func set(pairs ...string) *state.Facts {
	f := state.NewFacts()
	for i := 0; i+1 < len(pairs); i += 2 {
		f.Append(pairs[i], pairs[i+1])
	}
	return f
}

func TestScoreRule(t *testing.T) {
	defs := buildDefs([]crit{
		{name: "Hurt", key: "health", value: "<30"},
		{name: "Heavy", key: "concept", value: "pain", weight: 5},
		{name: "Armed", key: "weapon", value: "smg", required: true},
		{name: "A", key: "a", value: "1"},
		{name: "B", key: "b", value: "1", weight: 2},
		{name: "Either", weight: 3, children: []string{"A", "B"}},
		{name: "EitherReq", required: true, children: []string{"A", "B"}},
	}, map[string][]string{
		"Plain":     {"Hurt", "Heavy"},
		"Armed":     {"Hurt", "Armed"},
		"Composite": {"Either"},
		"CompReq":   {"Hurt", "EitherReq"},
	}, []string{"Plain", "Armed", "Composite", "CompReq"})

	tests := []struct {
		name string
		rule string
		set  *state.Facts
		want float64
	}{
		{"weights add", "Plain", set("health", "10", "concept", "pain"), 6},
		{"miss contributes nothing", "Plain", set("health", "50", "concept", "pain"), 5},
		{"required absent vetoes", "Armed", set("health", "10"), 0},
		{"required mismatch vetoes", "Armed", set("health", "10", "weapon", "pistol"), 0},
		{"required held", "Armed", set("health", "10", "weapon", "smg"), 2},
		{"composite sums children", "Composite", set("a", "1", "b", "1"), 9},
		{"composite partial", "Composite", set("b", "1"), 6},
		{"composite required empty vetoes", "CompReq", set("health", "1"), 0},
		{"composite required held", "CompReq", set("health", "1", "a", "1"), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, _ := defs.FindRule(tt.rule)
			if got := ScoreRule(defs, tt.set, idx, zap.NewNop()); got != tt.want {
				t.Errorf("ScoreRule(%s) = %v, want %v", tt.rule, got, tt.want)
			}
		})
	}
}

func TestScoreRule_FactWeight(t *testing.T) {
	defs := buildDefs([]crit{{name: "Who", key: "who", value: "alyx", weight: 2}},
		map[string][]string{"R": {"Who"}}, []string{"R"})
	f := state.NewFacts()
	f.AppendWeighted("who", "alyx", 1.5)

	if got := ScoreRule(defs, f, 0, zap.NewNop()); got != 3 {
		t.Errorf("expected fact weight times criterion weight = 3, got %v", got)
	}
}

func TestScoreRule_DisabledScoresZero(t *testing.T) {
	defs := buildDefs([]crit{{name: "Hurt", key: "health", value: "<30"}},
		map[string][]string{"R": {"Hurt"}}, []string{"R"})
	defs.Rules[0].Enabled = false

	if got := ScoreRule(defs, set("health", "1"), 0, zap.NewNop()); got != 0 {
		t.Errorf("disabled rule scored %v", got)
	}
	if got := ScoreRuleLoose(defs, set("health", "1"), 0, zap.NewNop()); got != 1 {
		t.Errorf("loose score should ignore the enabled flag, got %v", got)
	}
}

func TestScoreCriterion_MissingValue(t *testing.T) {
	defs := buildDefs([]crit{{name: "Hurt", key: "health", value: "<30"}}, nil, nil)
	core, logs := observer.New(zapcore.DebugLevel)

	score, exclude := ScoreCriterion(defs, noValue{}, 0, zap.New(core))
	if score != 0 || exclude {
		t.Errorf("expected a zero, non-excluding result, got %v %v", score, exclude)
	}
	if logs.FilterMessage("criteria set entry has no value").Len() != 1 {
		t.Error("expected a consistency violation to be logged")
	}
}

func TestFindBestRule(t *testing.T) {
	defs := buildDefs([]crit{
		{name: "Concept", key: "concept", value: "idle"},
		{name: "Bored", key: "mood", value: "bored"},
		{name: "Low", key: "x", value: "1", weight: 0.0005},
	}, map[string][]string{
		"Generic":  {"Concept"},
		"Generic2": {"Concept"},
		"Specific": {"Concept", "Bored"},
		"Faint":    {"Low"},
	}, []string{"Generic", "Generic2", "Specific", "Faint"})

	t.Run("highest wins without random", func(t *testing.T) {
		rng := &scripted{ints: []int{0}}
		idx, ok := FindBestRule(defs, set("concept", "idle", "mood", "bored"), rng, zap.NewNop())
		if !ok || defs.Rules[idx].Name != "Specific" {
			t.Fatalf("expected Specific, got %d %v", idx, ok)
		}
		if rng.calls != 0 {
			t.Errorf("random consulted %d times for a unique best", rng.calls)
		}
	})

	t.Run("ties broken by random", func(t *testing.T) {
		rng := &scripted{ints: []int{1}}
		idx, ok := FindBestRule(defs, set("concept", "idle"), rng, zap.NewNop())
		if !ok || defs.Rules[idx].Name != "Generic2" {
			t.Fatalf("expected the second tied rule, got %d %v", idx, ok)
		}
		if rng.calls != 1 {
			t.Errorf("expected one random call, got %d", rng.calls)
		}
	})

	t.Run("below epsilon never wins", func(t *testing.T) {
		_, ok := FindBestRule(defs, set("x", "1"), &scripted{ints: []int{0}}, zap.NewNop())
		if ok {
			t.Error("score below epsilon should not match")
		}
	})
}

func TestScoreAll(t *testing.T) {
	defs := buildDefs([]crit{
		{name: "A", key: "a", value: "1"},
		{name: "B", key: "b", value: "1", weight: 3},
	}, map[string][]string{
		"OnlyA": {"A"},
		"Both":  {"A", "B"},
		"None":  {"B"},
		"A2":    {"A"},
	}, []string{"OnlyA", "Both", "None", "A2"})

	got := ScoreAll(defs, set("a", "1", "b", "1"), zap.NewNop())
	var names []string
	for _, s := range got {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"Both", "None", "OnlyA", "A2"}, names); diff != "" {
		t.Errorf("ScoreAll order mismatch (-want +got):\n%s", diff)
	}
}
