package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRun_RerunsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mesh.obj")
	if err := os.WriteFile(path, []byte("v 0 0 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 16)
	var runs atomic.Int32
	job := func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}
	go func() {
		_ = Run(ctx, []string{path}, job, Options{
			Debounce: 20 * time.Millisecond,
			OnDone:   func(err error) { done <- err },
		})
	}()

	waitDone(t, done)
	// Let the watcher settle before touching the file.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("v 1 0 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	waitDone(t, done)

	if n := runs.Load(); n < 2 {
		t.Errorf("expected at least 2 runs, got %d", n)
	}
}

func TestRun_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mesh.obj")
	if err := os.WriteFile(path, []byte("v 0 0 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 16)
	go func() {
		_ = Run(ctx, []string{path}, func(context.Context) error { return nil }, Options{
			Debounce: 20 * time.Millisecond,
			OnDone:   func(err error) { done <- err },
		})
	}()
	waitDone(t, done)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
		t.Error("unrelated file triggered a run")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRunner_CancelsStaleRun(t *testing.T) {
	var canceled atomic.Bool
	started := make(chan struct{}, 2)
	r := &runner{
		job: func(ctx context.Context) error {
			started <- struct{}{}
			<-ctx.Done()
			canceled.Store(true)
			return ctx.Err()
		},
		log: zap.NewNop(),
	}
	r.start(context.Background())
	<-started
	r.start(context.Background())
	<-started

	if !canceled.Load() {
		t.Error("expected the first run to be canceled before the second started")
	}
	r.stop()
}

func TestRun_NoPaths(t *testing.T) {
	if err := Run(context.Background(), nil, nil, Options{}); err == nil {
		t.Error("expected an error without paths")
	}
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a run")
	}
}
