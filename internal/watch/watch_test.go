package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/olgasafonova/tooldock-mcp-server/internal/infra"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func goFiles(name string) bool {
	return strings.HasSuffix(name, ".go") && !strings.HasPrefix(name, "_")
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("package x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

// waitFor polls cond until it holds or two seconds have passed.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startWatcher(t *testing.T, dir string, reload ReloadFunc, opts Options) *Watcher {
	t.Helper()
	opts.Logger = testLogger()
	if opts.Debounce == 0 {
		opts.Debounce = 50 * time.Millisecond
	}
	w, err := New(dir, reload, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestNew_RequiresReload(t *testing.T) {
	if _, err := New(t.TempDir(), nil, Options{}); err == nil {
		t.Error("New(nil reload) should fail")
	}
}

func TestStart_MissingDirectory(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing"), func(context.Context) error { return nil }, Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Stop()

	if err := w.Start(context.Background()); err == nil {
		t.Error("Start() on a missing directory should fail")
	}
	if w.IsWatching() {
		t.Error("IsWatching() = true after a failed start")
	}
}

func TestWatcher_ReloadsOnceForABurst(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	var reloads atomic.Int32
	w, err := New(dir, func(context.Context) error {
		reloads.Add(1)
		return nil
	}, Options{Debounce: 150 * time.Millisecond, Filter: goFiles, Logger: testLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, name := range []string{"a.go", "b.go", "a.go"} {
		touch(t, dir, name)
	}
	waitFor(t, "a reload", func() bool { return reloads.Load() >= 1 })

	// Let a second debounce window pass: the burst must not reload again.
	time.Sleep(300 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Errorf("reloads = %d, want 1", got)
	}
	if st := w.Stats(); st.Events == 0 || st.Reloads != 1 || st.LastEventPath == "" {
		t.Errorf("Stats() = %+v", st)
	}

	w.Stop()
	w.Stop() // idempotent
	if w.IsWatching() {
		t.Error("IsWatching() = true after Stop")
	}
}

func TestWatcher_IgnoresFilteredFiles(t *testing.T) {
	dir := t.TempDir()
	var reloads atomic.Int32
	w := startWatcher(t, dir, func(context.Context) error {
		reloads.Add(1)
		return nil
	}, Options{Filter: goFiles})

	touch(t, dir, "notes.txt")
	touch(t, dir, "_draft.go")
	time.Sleep(300 * time.Millisecond)

	if got := reloads.Load(); got != 0 {
		t.Errorf("reloads = %d, want 0 for ignored files", got)
	}
	if st := w.Stats(); st.Events != 0 {
		t.Errorf("Events = %d, want 0", st.Events)
	}
}

func TestWatcher_BreakerSkipsAfterFailures(t *testing.T) {
	dir := t.TempDir()
	var reloads atomic.Int32
	breaker := infra.NewBreaker(1, time.Hour)
	w := startWatcher(t, dir, func(context.Context) error {
		reloads.Add(1)
		return errors.New("tools directory: gone")
	}, Options{Filter: goFiles, Breaker: breaker})

	touch(t, dir, "a.go")
	waitFor(t, "the failing reload", func() bool { return w.Stats().Failures == 1 })
	if breaker.State() != infra.BreakerOpen {
		t.Fatalf("breaker state = %v, want open", breaker.State())
	}

	touch(t, dir, "b.go")
	waitFor(t, "a skipped reload", func() bool { return w.Stats().Skipped == 1 })
	if got := reloads.Load(); got != 1 {
		t.Errorf("reloads = %d, want 1 while the breaker is open", got)
	}
}

func TestWatcher_HeldChangesReloadAfterCooldown(t *testing.T) {
	dir := t.TempDir()
	var reloads atomic.Int32
	breaker := infra.NewBreaker(1, 200*time.Millisecond)
	w := startWatcher(t, dir, func(context.Context) error {
		if reloads.Add(1) == 1 {
			return errors.New("tools directory: gone")
		}
		return nil
	}, Options{Filter: goFiles, Breaker: breaker})

	touch(t, dir, "a.go")
	waitFor(t, "the failing reload", func() bool { return w.Stats().Failures == 1 })

	touch(t, dir, "b.go")
	waitFor(t, "a held reload", func() bool { return w.Stats().Skipped == 1 })
	waitFor(t, "the held change to reload", func() bool { return reloads.Load() == 2 })

	if st := w.Stats(); st.Reloads != 2 || st.Failures != 1 || st.Skipped != 1 {
		t.Errorf("Stats() = %+v, want 2 reloads, 1 failure, 1 skipped", st)
	}
	if breaker.State() != infra.BreakerClosed {
		t.Errorf("breaker state = %v, want closed", breaker.State())
	}
}

func TestWatcher_RewatchesRecreatedDirectory(t *testing.T) {
	sub := filepath.Join(t.TempDir(), "tools")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	var ok, failed atomic.Int32
	w := startWatcher(t, sub, func(context.Context) error {
		if _, err := os.Stat(filepath.Join(sub, "a.go")); err != nil {
			failed.Add(1)
			return err
		}
		ok.Add(1)
		return nil
	}, Options{Filter: goFiles})

	if err := os.RemoveAll(sub); err != nil {
		t.Fatal(err)
	}
	// Give the loop a tick to notice the removal before recreating.
	time.Sleep(50 * time.Millisecond)
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "the directory to be watched again", func() bool { return w.Stats().Rewatches == 1 })

	touch(t, sub, "a.go")
	waitFor(t, "a reload seeing the new unit", func() bool { return ok.Load() >= 1 })

	if got := w.Stats().LastEventPath; got != filepath.Join(sub, "a.go") {
		t.Errorf("LastEventPath = %q, want %q", got, filepath.Join(sub, "a.go"))
	}
}

func TestWatcher_StopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w, err := New(dir, func(context.Context) error { return nil }, Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	select {
	case <-w.doneCh:
	case <-time.After(time.Second):
		t.Fatal("event loop did not exit after cancel")
	}
	w.Stop()
}
