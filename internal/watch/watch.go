// Package watch reruns a job whenever one of its input files changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last change before a rerun.
const DefaultDebounce = 250 * time.Millisecond

// Job is one run over the current inputs. It must return promptly once ctx
// is canceled.
type Job func(ctx context.Context) error

// Options configures Run.
type Options struct {
	Debounce time.Duration
	Logger   *zap.Logger

	// OnDone, if set, receives the outcome of every run that was not
	// superseded by a newer change.
	OnDone func(err error)
}

// Run calls job once immediately and again after every burst of changes to
// paths, until ctx is canceled. A change that arrives while a job is running
// cancels it before the next one starts, so at most one job runs at a time.
// Parent directories are watched rather than the files themselves, since
// many editors save by replacing the file.
func Run(ctx context.Context, paths []string, job Job, opts Options) error {
	if len(paths) == 0 {
		return errors.New("watch: no paths")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	targets := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		targets[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	r := &runner{job: job, log: log, onDone: opts.OnDone}
	defer r.stop()
	r.start(ctx)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(ev.Name)
			if !targets[abs] || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("input changed", zap.String("path", ev.Name), zap.Stringer("op", ev.Op))
			if timer == nil {
				timer = time.NewTimer(opts.Debounce)
			} else {
				timer.Reset(opts.Debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			r.start(ctx)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		}
	}
}

// runner owns the single in-flight job.
type runner struct {
	job    Job
	log    *zap.Logger
	onDone func(error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	gen    int
}

// start cancels the running job, waits for it and launches a new one.
func (r *runner) start(parent context.Context) {
	r.stop()

	r.mu.Lock()
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	go func() {
		defer close(done)
		err := r.job(ctx)
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			r.log.Debug("run superseded", zap.Int("run", gen))
			return
		}
		if err != nil {
			r.log.Error("run failed", zap.Int("run", gen), zap.Error(err))
		}
		if r.onDone != nil {
			r.onDone(err)
		}
	}()
}

func (r *runner) stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
