package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

type countingReloader struct {
	calls atomic.Int32
	err   error
}

func (r *countingReloader) Reload() error {
	r.calls.Add(1)
	return r.err
}

func ignoreInotify() goleak.Option {
	return goleak.IgnoreAnyFunction("github.com/fsnotify/fsnotify.(*inotify).readEvents")
}

func waitReload(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
		return nil
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreInotify())

	dir := t.TempDir()
	target := &countingReloader{}
	w, err := NewWatcher(target, zaptest.NewLogger(t), dir)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.SetDebounce(20 * time.Millisecond)
	reloaded := make(chan error, 4)
	w.OnReload = func(err error) { reloaded <- err }

	w.Start(context.Background())
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "talker.txt"), []byte(`response R { speak "hi" }`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := waitReload(t, reloaded); err != nil {
		t.Errorf("unexpected reload error: %v", err)
	}
	if got := target.calls.Load(); got < 1 {
		t.Errorf("expected a reload, got %d", got)
	}
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreInotify())

	dir := t.TempDir()
	target := &countingReloader{}
	w, err := NewWatcher(target, zaptest.NewLogger(t), dir)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.SetDebounce(200 * time.Millisecond)
	reloaded := make(chan error, 4)
	w.OnReload = func(err error) { reloaded <- err }

	w.Start(context.Background())
	defer w.Stop()

	name := filepath.Join(dir, "talker.txt")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(name, []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	waitReload(t, reloaded)

	select {
	case <-reloaded:
		t.Error("burst of writes should produce one reload")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcher_ReportsReloadErrors(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreInotify())

	dir := t.TempDir()
	target := &countingReloader{err: errors.New("bad script")}
	w, err := NewWatcher(target, zaptest.NewLogger(t), dir)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.SetDebounce(20 * time.Millisecond)
	reloaded := make(chan error, 4)
	w.OnReload = func(err error) { reloaded <- err }

	w.Start(context.Background())
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "broken.txt"), []byte("rule {"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := waitReload(t, reloaded); err == nil || err.Error() != "bad script" {
		t.Errorf("expected the reload error to be reported, got %v", err)
	}
}

func TestWatcher_ContextCancelStopsLoop(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreInotify())

	w, err := NewWatcher(&countingReloader{}, nil, t.TempDir())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	w.Start(ctx)
	cancel()
	w.Stop()
}

func TestWatcher_MissingDirectory(t *testing.T) {
	if _, err := NewWatcher(&countingReloader{}, nil, filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected an error watching a missing directory")
	}
}

func TestWatcher_SystemReload(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreInotify())

	dir := t.TempDir()
	file := filepath.Join(dir, "talker.txt")
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(file, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(`criterion C concept hi
response R { speak "one" }
rule Rule { criteria C response R }`)

	sys := New(Options{FS: os.DirFS(dir), Seed: 1, Logger: zaptest.NewLogger(t)})
	if err := sys.LoadRuleSet("talker.txt"); err != nil {
		t.Fatalf("LoadRuleSet: %v", err)
	}

	w, err := NewWatcher(sys, zaptest.NewLogger(t), dir)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.SetDebounce(20 * time.Millisecond)
	reloaded := make(chan error, 4)
	w.OnReload = func(err error) { reloaded <- err }
	w.Start(context.Background())
	defer w.Stop()

	write(`criterion C concept hi
response R { speak "two" }
rule Rule { criteria C response R }`)
	if err := waitReload(t, reloaded); err != nil {
		t.Fatalf("reload: %v", err)
	}

	m, ok := sys.FindBestResponse(facts(t, "concept=hi"), nil)
	if !ok || m.Response.Value != "two" {
		t.Errorf("expected reloaded response, got %+v ok=%v", m, ok)
	}
}
