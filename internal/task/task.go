// Package task runs and tears down the goroutines owned by a push listener.
package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-synel/logger"
)

// Func performs one iteration of a task. It returns true to be called again,
// or false to end the goroutine.
type Func func(ctx context.Context) bool

// CancelFunc is called once when a task goroutine exits, whatever the reason.
type CancelFunc func()

// Manager manages the lifecycle of task goroutines.
//
// All tasks share a context derived from the parent context passed to NewManager.
// Stop cancels that context; Wait blocks until every task returned and then
// re-arms the manager so it can be started again.
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.Start("accept", acceptOnce, nil)
//	...
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protects ctx and cancel
}

// NewManager creates a Manager whose tasks are children of ctx.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

func (mgr *Manager) context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start runs taskFunc repeatedly in a new goroutine until it returns false or
// the manager is stopped. onExit, when not nil, runs as the goroutine exits.
//
// A panic inside taskFunc is recovered, logged, and ends the task.
func (mgr *Manager) Start(name string, taskFunc Func, onExit CancelFunc) error {
	ctx := mgr.context()
	if ctx.Err() != nil {
		return fmt.Errorf("task %s: manager already stopped", name)
	}

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer mgr.wg.Done()
		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.Count())
		}()
		if onExit != nil {
			defer onExit()
		}

		mgr.runLoop(ctx, name, taskFunc)
	}()

	return nil
}

func (mgr *Manager) runLoop(ctx context.Context, name string, taskFunc Func) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if !taskFunc(ctx) {
				return
			}
		}
	}
}

// CallWithRecover calls fn and converts a panic into an error log entry.
// It reports whether fn returned normally.
func (mgr *Manager) CallWithRecover(name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in callback", "name", name, "panic", r)
			ok = false
		}
	}()

	fn()

	return true
}

// Stop signals all running tasks to end.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.cancel != nil {
		mgr.cancel()
	}
}

// Wait blocks until all tasks have returned, then prepares a fresh context
// so the manager can be reused.
func (mgr *Manager) Wait() {
	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.cancel()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// Count returns the number of running task goroutines.
func (mgr *Manager) Count() int {
	return int(mgr.count.Load())
}
