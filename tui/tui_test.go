package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/nathoo/responserules/cli"
	"github.com/nathoo/responserules/engine"
)

const testScript = `
criterion Hurt concept TLK_HURT required
response Pain { speak "ouch" delay 1 }
response Wave { scene "scenes/wave.vcd" }
rule PainRule { criteria Hurt response Pain }
`

func newTestModel(t *testing.T) Model {
	t.Helper()
	sys := engine.New(engine.Options{Seed: 1})
	if err := sys.LoadFromBuffer("scripts/talker/response_rules.txt", testScript); err != nil {
		t.Fatalf("LoadFromBuffer: %v", err)
	}
	s := cli.NewSession(sys, nil)
	s.SaveDir = t.TempDir()
	return New(s)
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	return next.(Model)
}

func typeLine(t *testing.T, m Model, line string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func rawTexts(m Model) []string {
	var out []string
	for _, rl := range m.rawLines {
		if rl.text != "" {
			out = append(out, rl.text)
		}
	}
	return out
}

func TestScriptDisplayName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"scripts/talker/response_rules.txt", "response_rules"},
		{"talker.txt", "talker"},
		{`scripts\talker\npc.txt`, "npc"},
		{"rules", "rules"},
		{"", "(no script)"},
	}
	for _, tt := range tests {
		got := scriptDisplayName(tt.path)
		if got != tt.want {
			t.Errorf("scriptDisplayName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want lineKind
	}{
		{"[speak] ouch", kindSpeech},
		{"[sentence] HL2_PAIN", kindSpeech},
		{"[scene] scenes/wave.vcd", kindScene},
		{"  delay 1 odds 50", kindDetail},
		{"  context hurt:1 -> speaker", kindDetail},
		{"[Selection state saved to saves/test.json.]", kindSystem},
		{"[trace] rule PainRule, group Pain", kindTrace},
		{"[error] rule R: bad context", kindError},
		{"(no response)", kindError},
		{"Just printed text.", kindText},
		{"", kindText},
	}
	for _, tt := range tests {
		got := classifyLine(tt.line)
		if got != tt.want {
			t.Errorf("classifyLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestWordWrap(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  string
	}{
		{"short", 80, "short"},
		{"hello world", 5, "hello\nworld"},
		{"The citizen looks at you and says something about the weather.", 30,
			"The citizen looks at you and\nsays something about the\nweather."},
		{"", 80, ""},
		{"a b c d e", 3, "a b\nc d\ne"},
		{"  context a:1 -> speaker", 12, "  context\na:1 ->\nspeaker"},
	}
	for _, tt := range tests {
		got := wordWrap(tt.text, tt.width)
		if got != tt.want {
			t.Errorf("wordWrap(%q, %d) =\n  %q\nwant:\n  %q", tt.text, tt.width, got, tt.want)
		}
	}
}

func TestHistory_PushAndPrev(t *testing.T) {
	h := NewHistory(5)
	h.Push("concept=idle")
	h.Push("concept=hurt")
	h.Push("/rules")

	for _, want := range []string{"/rules", "concept=hurt", "concept=idle", "concept=idle"} {
		prev, ok := h.Prev()
		if !ok || prev != want {
			t.Errorf("expected %q, got %q (ok=%v)", want, prev, ok)
		}
	}
}

func TestHistory_Next(t *testing.T) {
	h := NewHistory(5)
	h.Push("a")
	h.Push("b")

	h.Prev() // "b"
	h.Prev() // "a"

	next, ok := h.Next()
	if !ok || next != "b" {
		t.Errorf("expected 'b', got %q (ok=%v)", next, ok)
	}
	if _, ok := h.Next(); ok {
		t.Error("expected false when past newest entry")
	}
}

func TestHistory_Empty(t *testing.T) {
	h := NewHistory(5)
	if _, ok := h.Prev(); ok {
		t.Error("expected false on empty history")
	}
	if _, ok := h.Next(); ok {
		t.Error("expected false on empty history")
	}
}

func TestHistory_SkipsAndEvicts(t *testing.T) {
	h := NewHistory(2)
	h.Push("a")
	h.Push("a")
	h.Push("   ")
	h.Push("b")
	h.Push("c")

	if diff := cmp.Diff([]string{"b", "c"}, h.Lines()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestHistory_ResetCursor(t *testing.T) {
	h := NewHistory(5)
	h.Push("a")
	h.Push("b")

	h.Prev()
	h.ResetCursor()

	if prev, ok := h.Prev(); !ok || prev != "b" {
		t.Errorf("expected 'b' after reset, got %q", prev)
	}
}

func TestModel_Query(t *testing.T) {
	m := sized(t, newTestModel(t))
	m, _ = typeLine(t, m, "concept=TLK_HURT")

	want := []string{"> concept=TLK_HURT", "[speak] ouch", "  delay 1"}
	if diff := cmp.Diff(want, rawTexts(m)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if m.rawLines[1].kind != kindSpeech || m.rawLines[2].kind != kindDetail {
		t.Errorf("unexpected kinds: %+v", m.rawLines)
	}
	if !strings.Contains(m.View(), "Last: PainRule") {
		t.Error("status bar should show the last rule")
	}
}

func TestModel_AgainAndHistory(t *testing.T) {
	m := sized(t, newTestModel(t))

	m, _ = typeLine(t, m, "again")
	if got := rawTexts(m); got[len(got)-1] != "Nothing to repeat." {
		t.Errorf("expected nothing to repeat, got %v", got)
	}

	m, _ = typeLine(t, m, "concept=TLK_HURT")
	m, _ = typeLine(t, m, "/trace")
	m, _ = typeLine(t, m, "g")
	if n := strings.Count(strings.Join(rawTexts(m), "\n"), "[speak] ouch"); n != 2 {
		t.Errorf("expected the response twice, got %d", n)
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(Model)
	if m.input.Value() != "g" {
		t.Errorf("expected history recall, got %q", m.input.Value())
	}
}

func TestModel_MetaOutputIsSystem(t *testing.T) {
	m := sized(t, newTestModel(t))
	m, _ = typeLine(t, m, "/rules")

	last := m.rawLines[len(m.rawLines)-2]
	if !last.isSystem || !strings.HasPrefix(last.text, "PainRule") {
		t.Errorf("unexpected meta output: %+v", last)
	}
}

func TestModel_Quit(t *testing.T) {
	m := sized(t, newTestModel(t))
	m, cmd := typeLine(t, m, "/quit")
	if !m.quitting || cmd == nil {
		t.Fatal("expected quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected a tea.Quit command")
	}
	if m.View() != "" {
		t.Error("view should be empty after quitting")
	}
}

func TestModel_ReloadMessage(t *testing.T) {
	m := sized(t, newTestModel(t))

	next, _ := m.Update(reloadMsg{})
	m = next.(Model)
	next, _ = m.Update(reloadMsg{err: errors.New("boom")})
	m = next.(Model)

	want := []string{
		"Script changed, reloaded 1 rule(s).",
		"Script changed, reload reported problems: boom",
	}
	if diff := cmp.Diff(want, rawTexts(m)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestModel_ReloadReleasesInstance(t *testing.T) {
	m := sized(t, newTestModel(t))
	m, _ = typeLine(t, m, "/instance concept=TLK_HURT")
	id := m.session.InstanceID()
	if id == uuid.Nil {
		t.Fatal("instance should be active")
	}

	next, _ := m.Update(reloadMsg{})
	m = next.(Model)
	if m.session.InstanceID() != uuid.Nil || m.session.Target() != m.session.System {
		t.Error("reload should leave the instance")
	}
	texts := rawTexts(m)
	if want := "Instance " + id.String() + " released."; texts[len(texts)-1] != want {
		t.Errorf("last line %q, want %q", texts[len(texts)-1], want)
	}
}

func TestModel_Banner(t *testing.T) {
	m := newTestModel(t)
	msg := m.banner()()
	out, ok := msg.(outputMsg)
	if !ok || !out.isSystem {
		t.Fatalf("unexpected banner message %#v", msg)
	}
	if out.lines[0] != "scripts/talker/response_rules.txt: 1 rule(s), 1 criteria, 2 response group(s)." {
		t.Errorf("banner = %q", out.lines[0])
	}
}

func TestModel_LoadingView(t *testing.T) {
	if got := newTestModel(t).View(); got != "Loading..." {
		t.Errorf("View() before sizing = %q", got)
	}
}
