package loader

import (
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoadFile_Includes(t *testing.T) {
	fsys := fstest.MapFS{
		"scripts/talker/response_rules.txt": {Data: []byte(`
#include "npc/base.txt"
#include "npc/base.txt"
rule PainRule { criteria IsHurt response Pain }
`)},
		"scripts/talker/npc/base.txt": {Data: []byte(`
#include "npc/nested.txt"
response Pain { speak "ouch" }
`)},
		"scripts/talker/npc/nested.txt": {Data: []byte(`criterion IsHurt health <30`)},
	}

	l := New(fsys, "scripts/talker", nil)
	defs, err := l.LoadFile("scripts/talker/response_rules.txt")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(defs.Rules) != 1 || len(defs.Groups) != 1 || len(defs.Criteria) != 1 {
		t.Errorf("unexpected dictionary sizes: %d rules, %d groups, %d criteria",
			len(defs.Rules), len(defs.Groups), len(defs.Criteria))
	}
}

func TestLoadFile_MissingInclude(t *testing.T) {
	fsys := fstest.MapFS{
		"main.txt": {Data: []byte("#include \"gone.txt\"\nresponse G { speak a }")},
	}
	core, logs := observer.New(zapcore.WarnLevel)
	l := New(fsys, "", zap.New(core))

	defs, err := l.LoadFile("main.txt")
	if err != nil {
		t.Fatalf("a missing include is not fatal: %v", err)
	}
	if len(defs.Groups) != 1 {
		t.Error("parsing should continue after a missing include")
	}
	if logs.FilterMessageSnippet("unable to load #included script gone.txt").Len() != 1 {
		t.Errorf("expected a missing include warning, got %v", logs.All())
	}
}

func TestLoadFile_Missing(t *testing.T) {
	l := New(fstest.MapFS{}, "", nil)
	defs, err := l.LoadFile("nope.txt")
	if defs != nil {
		t.Error("no dictionaries should be returned for an unreadable script")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected a wrapped ErrNotExist, got %v", err)
	}

	if _, err := New(nil, "", nil).LoadFile("x.txt"); err == nil {
		t.Error("loading without a file system should fail")
	}
}

func TestValidate_Warnings(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l := New(nil, "", zap.New(core))
	_, err := l.LoadBuffer("v.txt", `
criterion C a 1
response Empty { }
response A { response B }
response B { response A }
response Dangling { response Nowhere }
rule NoResponses { criteria C }
`)
	if err != nil {
		t.Fatalf("validation problems are warnings: %v", err)
	}
	for _, frag := range []string{
		"response group Empty is empty",
		"response redirect cycle: A -> B -> A",
		"redirects to missing",
		"rule NoResponses has no responses",
	} {
		if logs.FilterMessageSnippet(frag).Len() == 0 {
			t.Errorf("expected a warning containing %q, got %v", frag, logs.All())
		}
	}
}

func TestLoadError_Message(t *testing.T) {
	le := &LoadError{Errors: []string{"a", "b"}}
	want := "script load failed with 2 error(s):\n  a\n  b"
	if le.Error() != want {
		t.Errorf("Error() = %q, want %q", le.Error(), want)
	}
}
