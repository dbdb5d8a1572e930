package whisperd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/innervoice/internal/inference"
)

type fakeEngine struct {
	mu     sync.Mutex
	closed bool
	result inference.Result
	err    error
}

func (e *fakeEngine) Infer(context.Context, string, inference.Task, string, bool) (inference.Result, error) {
	return e.result, e.err
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type countingFactory struct {
	mu      sync.Mutex
	loads   int
	err     error
	engines []*fakeEngine
}

func (f *countingFactory) factory(context.Context) (Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	e := &fakeEngine{result: inference.Result{Text: "ok"}}
	f.engines = append(f.engines, e)
	return e, nil
}

func (f *countingFactory) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func TestManagerLoadsOnce(t *testing.T) {
	f := &countingFactory{}
	m := NewManager(f.factory, 15*time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Engine(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if f.loadCount() != 1 {
		t.Fatalf("factory ran %d times, want 1", f.loadCount())
	}
	if !m.Loaded() {
		t.Error("model should be resident after Engine")
	}
}

func TestManagerCachesLoadFailure(t *testing.T) {
	f := &countingFactory{err: errors.New("accelerator not detected")}
	m := NewManager(f.factory, 15*time.Minute, nil)

	if _, err := m.Engine(context.Background()); err == nil {
		t.Fatal("expected load failure")
	}
	_, err := m.Engine(context.Background())
	if err == nil {
		t.Fatal("expected cached failure")
	}
	if f.loadCount() != 1 {
		t.Fatalf("factory ran %d times, want 1 (failure must be cached)", f.loadCount())
	}
	if m.Loaded() {
		t.Error("model must not be resident after a failed load")
	}
}

func TestManagerIdleUnload(t *testing.T) {
	f := &countingFactory{}
	m := NewManager(f.factory, 10*time.Minute, nil)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	if _, err := m.Engine(context.Background()); err != nil {
		t.Fatal(err)
	}

	now = now.Add(9 * time.Minute)
	if m.UnloadIfIdle() {
		t.Fatal("model unloaded before the idle window elapsed")
	}

	// A request refreshes the stamp and restarts the window.
	m.Touch()
	now = now.Add(9 * time.Minute)
	if m.UnloadIfIdle() {
		t.Fatal("touch should have restarted the idle window")
	}

	now = now.Add(2 * time.Minute)
	if !m.UnloadIfIdle() {
		t.Fatal("model should unload after the idle window")
	}
	if m.Loaded() {
		t.Error("model still resident after idle unload")
	}
	if !f.engines[0].isClosed() {
		t.Error("unload must close the engine")
	}

	// The next request loads again.
	if _, err := m.Engine(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.loadCount() != 2 {
		t.Fatalf("factory ran %d times, want 2", f.loadCount())
	}
}

func TestManagerIdleUnloadDisabled(t *testing.T) {
	f := &countingFactory{}
	m := NewManager(f.factory, 0, nil)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	if _, err := m.Engine(context.Background()); err != nil {
		t.Fatal(err)
	}
	now = now.Add(24 * time.Hour)
	if m.UnloadIfIdle() {
		t.Fatal("idle unload must be disabled when the window is zero")
	}
	if !m.Loaded() {
		t.Error("model should stay resident")
	}
}

func TestManagerClose(t *testing.T) {
	f := &countingFactory{}
	m := NewManager(f.factory, time.Hour, nil)

	if _, err := m.Engine(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.Close()
	if m.Loaded() {
		t.Error("model resident after Close")
	}
	if !f.engines[0].isClosed() {
		t.Error("Close must close the engine")
	}
}
