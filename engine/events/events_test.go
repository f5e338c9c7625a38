package events

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nathoo/responserules/types"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Context
		wantErr bool
	}{
		{name: "single", input: "saidhello:1", want: []Context{{Key: "saidhello", Value: "1"}}},
		{
			name:  "expiry and list",
			input: "a:1, b:two:30",
			want: []Context{
				{Key: "a", Value: "1"},
				{Key: "b", Value: "two", Expire: 30 * time.Second},
			},
		},
		{name: "empty", input: "", want: nil},
		{name: "missing value", input: "lonely", wantErr: true},
		{name: "bad expiry", input: "a:1:soon", wantErr: true},
		{name: "too many fields", input: "a:1:2:3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.input, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestMemory_Expiry(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewMemory(func() time.Time { return now })

	m.Apply([]Context{
		{Key: "short", Value: "1", Expire: 5 * time.Second},
		{Key: "forever", Value: "1"},
	})
	if m.Facts().Len() != 2 {
		t.Fatalf("expected 2 facts, got %d", m.Facts().Len())
	}

	now = now.Add(5 * time.Second)
	facts := m.Facts()
	if facts.Find("short") >= 0 {
		t.Error("short should have expired")
	}
	if facts.Find("forever") < 0 {
		t.Error("forever should remain")
	}
}

func TestMemory_ReapplyClearsExpiry(t *testing.T) {
	now := time.Unix(0, 0)
	m := NewMemory(func() time.Time { return now })

	m.Apply([]Context{{Key: "k", Value: "1", Expire: time.Second}})
	m.Apply([]Context{{Key: "K", Value: "2"}})

	now = now.Add(time.Hour)
	facts := m.Facts()
	i := facts.Find("k")
	if i < 0 {
		t.Fatal("k should not expire after being reapplied without expiry")
	}
	if v, _ := facts.Value(i); v != "2" {
		t.Errorf("expected value 2, got %q", v)
	}
}

func TestDispatch_Target(t *testing.T) {
	speaker := NewMemory(nil)
	world := NewMemory(nil)

	Dispatch(types.Match{Rule: "r", Contexts: []string{"a:1"}}, speaker, world)
	Dispatch(types.Match{Rule: "r", Contexts: []string{"b:1"}, ApplyContextToWorld: true}, speaker, world)

	if speaker.Facts().Find("a") < 0 || speaker.Facts().Find("b") >= 0 {
		t.Errorf("speaker facts wrong: %s", speaker.Facts())
	}
	if world.Facts().Find("b") < 0 || world.Facts().Find("a") >= 0 {
		t.Errorf("world facts wrong: %s", world.Facts())
	}
}

func TestDispatch_MalformedSkipped(t *testing.T) {
	speaker := NewMemory(nil)

	errs := Dispatch(types.Match{Rule: "r", Contexts: []string{"bad", "good:1"}}, speaker, nil)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if speaker.Facts().Find("good") < 0 {
		t.Error("valid context should still be applied")
	}
}
