package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

func withContextCancelHook(ctx context.Context, onContextDone func()) chan struct{} {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			onContextDone()
		case <-done:
		}
	}()
	return done
}

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

// workerGroup runs named workers that share a context. The first failure
// cancels the rest; all failures are joined.
type workerGroup struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error
}

func newWorkerGroup(ctx context.Context) *workerGroup {
	ctx, cancel := context.WithCancel(ctx)
	return &workerGroup{ctx: ctx, cancel: cancel}
}

func (g *workerGroup) Go(name string, run func(context.Context) error) {
	worker := panicSafeNamedWorker(name, run)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := worker(g.ctx); err != nil {
			g.mu.Lock()
			g.err = errors.Join(g.err, err)
			g.mu.Unlock()
			g.cancel()
		}
	}()
}

func (g *workerGroup) Wait() error {
	g.wg.Wait()
	g.cancel()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}
