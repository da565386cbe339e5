// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package core

import (
	"context"
	"errors"
	"sync"

	log "github.com/ChainSafe/log15"
	"golang.org/x/sync/errgroup"
)

var (
	ErrRunnerNotInstalled = errors.New("runner middleware is not installed in a store")
	ErrRunnerStarted      = errors.New("runner already started")
)

// Task is a long-lived background process driven by the Runner. Returning a
// non-nil error is fatal: every other task is cancelled and Wait reports it.
type Task func(ctx context.Context, env *Env) error

type watcher struct {
	match func(Signal) bool
	fn    func(Signal)
}

// Runner forks tasks and feeds them every signal that passes through the
// store it is installed in.
type Runner struct {
	store    StoreAPI
	watchers []*watcher
	lock     *sync.RWMutex
	group    *errgroup.Group
	cancel   context.CancelFunc
	log      log.Logger
}

func NewRunner(log log.Logger) *Runner {
	return &Runner{
		lock: &sync.RWMutex{},
		log:  log,
	}
}

// Middleware must be installed first so tasks observe signals after the
// reducers ran.
func (r *Runner) Middleware() Middleware {
	return func(api StoreAPI) func(next Dispatch) Dispatch {
		r.lock.Lock()
		r.store = api
		r.lock.Unlock()
		return func(next Dispatch) Dispatch {
			return func(sig Signal) error {
				if err := next(sig); err != nil {
					return err
				}
				r.emit(sig)
				return nil
			}
		}
	}
}

func (r *Runner) emit(sig Signal) {
	r.lock.RLock()
	ws := make([]*watcher, len(r.watchers))
	copy(ws, r.watchers)
	r.lock.RUnlock()

	for _, w := range ws {
		if w.match(sig) {
			w.fn(sig)
		}
	}
}

func (r *Runner) watch(match func(Signal) bool, fn func(Signal)) func() {
	w := &watcher{match: match, fn: fn}
	r.lock.Lock()
	r.watchers = append(r.watchers, w)
	r.lock.Unlock()
	return func() {
		r.lock.Lock()
		defer r.lock.Unlock()
		for i, x := range r.watchers {
			if x == w {
				r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
				return
			}
		}
	}
}

// Run forks tasks in order. Each task is started only after the previous one
// is ready to receive signals, so a signal dispatched after Run returns is
// seen by every task.
func (r *Runner) Run(ctx context.Context, tasks ...Task) error {
	r.lock.Lock()
	if r.store == nil {
		r.lock.Unlock()
		return ErrRunnerNotInstalled
	}
	if r.group != nil {
		r.lock.Unlock()
		return ErrRunnerStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)
	r.group, r.cancel = group, cancel
	store := r.store
	r.lock.Unlock()

	for _, task := range tasks {
		ready := make(chan struct{})
		once := &sync.Once{}
		env := &Env{
			Store:  store,
			Log:    r.log,
			runner: r,
			ready:  func() { once.Do(func() { close(ready) }) },
		}
		task := task
		group.Go(func() error {
			defer env.Ready()
			return ignoreCancel(gctx, task(gctx, env))
		})
		<-ready
	}
	r.log.Debug("Runner started", "tasks", len(tasks))
	return nil
}

// Wait blocks until every task returned and reports the first fatal error.
func (r *Runner) Wait() error {
	r.lock.RLock()
	group := r.group
	r.lock.RUnlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

func (r *Runner) Stop() {
	r.lock.RLock()
	cancel := r.cancel
	r.lock.RUnlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Runner) fork(ctx context.Context, task Task, env *Env) {
	child := &Env{Store: env.Store, Log: env.Log, runner: r, ready: func() {}}
	r.group.Go(func() error {
		return ignoreCancel(ctx, task(ctx, child))
	})
}

func ignoreCancel(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// Env is what a task sees of the runtime.
type Env struct {
	Store  StoreAPI
	Log    log.Logger
	runner *Runner
	ready  func()
}

// Ready releases Run. Taking, watching, putting and forking imply it; a task
// that does none of those before blocking must call it.
func (e *Env) Ready() { e.ready() }

func (e *Env) Put(sig Signal) error {
	e.Ready()
	return e.Store.Dispatch(sig)
}

func (e *Env) Select() State {
	return e.Store.GetState()
}

// Fork starts task in the background under ctx.
func (e *Env) Fork(ctx context.Context, task Task) {
	e.Ready()
	e.runner.fork(ctx, task, e)
}

// Watch calls fn synchronously, inside the dispatch, for every matching signal.
func (e *Env) Watch(match func(Signal) bool, fn func(Signal)) (unwatch func()) {
	unwatch = e.runner.watch(match, fn)
	e.Ready()
	return unwatch
}

// Channel buffers every matching signal until Close.
func (e *Env) Channel(match func(Signal) bool) *Channel {
	c := &Channel{lock: &sync.Mutex{}, ready: make(chan struct{}, 1)}
	c.unwatch = e.runner.watch(match, c.put)
	e.Ready()
	return c
}

// Take waits for the next matching signal.
func (e *Env) Take(ctx context.Context, match func(Signal) bool) (Signal, error) {
	c := e.Channel(match)
	defer c.Close()
	return c.Next(ctx)
}

// TakeEvery forks handler for every matching signal until ctx is done.
func (e *Env) TakeEvery(ctx context.Context, match func(Signal) bool, handler func(ctx context.Context, sig Signal) error) error {
	unwatch := e.Watch(match, func(sig Signal) {
		if ctx.Err() != nil {
			return
		}
		e.Fork(ctx, func(ctx context.Context, _ *Env) error {
			return handler(ctx, sig)
		})
	})
	defer unwatch()
	<-ctx.Done()
	return ctx.Err()
}

// TakeLatest forks handler for every matching signal and cancels the
// handler started for the previous one. The cancellation happens inside the
// dispatch of the newer signal, and Scope.Put checks it when its signal is
// taken off the store queue, so a superseded handler cannot put anything
// once the newer signal has been dispatched.
func (e *Env) TakeLatest(ctx context.Context, match func(Signal) bool, handler func(scope *Scope, sig Signal) error) error {
	lock := &sync.Mutex{}
	var cancelLast context.CancelFunc

	unwatch := e.Watch(match, func(sig Signal) {
		lock.Lock()
		defer lock.Unlock()
		if ctx.Err() != nil {
			return
		}
		if cancelLast != nil {
			cancelLast()
		}
		hctx, cancel := context.WithCancel(ctx)
		cancelLast = cancel
		scope := &Scope{ctx: hctx, env: e, lock: lock}
		e.Fork(hctx, func(ctx context.Context, _ *Env) error {
			err := ignoreCancel(ctx, handler(scope, sig))
			cancel()
			return err
		})
	})
	defer unwatch()

	<-ctx.Done()
	lock.Lock()
	if cancelLast != nil {
		cancelLast()
	}
	lock.Unlock()
	return ctx.Err()
}

// Scope belongs to one TakeLatest handler run.
type Scope struct {
	ctx  context.Context
	env  *Env
	lock *sync.Mutex
}

func (s *Scope) Context() context.Context { return s.ctx }

func (s *Scope) Env() *Env { return s.env }

// Put dispatches sig unless the run was superseded or stopped, judged when
// the store processes sig rather than when Put is called.
func (s *Scope) Put(sig Signal) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	s.env.Ready()
	if g, ok := s.env.Store.(guardedDispatcher); ok {
		return g.dispatchIf(sig, s.ctx.Err)
	}
	return s.env.Store.Dispatch(sig)
}

// Do runs fn unless the run was superseded or stopped. A newer trigger
// cannot supersede the run while fn executes. fn must not dispatch.
func (s *Scope) Do(fn func() error) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.ctx.Err(); err != nil {
		return err
	}
	return fn()
}

// Channel is an unbounded queue of signals; putting never blocks a dispatch.
type Channel struct {
	lock    *sync.Mutex
	buf     []Signal
	ready   chan struct{}
	closed  bool
	unwatch func()
}

func (c *Channel) put(sig Signal) {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return
	}
	c.buf = append(c.buf, sig)
	c.lock.Unlock()
	c.notify()
}

func (c *Channel) notify() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Next returns the oldest buffered signal, waiting for one if needed.
func (c *Channel) Next(ctx context.Context) (Signal, error) {
	for {
		c.lock.Lock()
		if len(c.buf) > 0 {
			sig := c.buf[0]
			c.buf[0] = nil
			c.buf = c.buf[1:]
			c.lock.Unlock()
			return sig, nil
		}
		if c.closed {
			c.lock.Unlock()
			return nil, ErrTerminated
		}
		c.lock.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.ready:
		}
	}
}

func (c *Channel) Close() {
	c.unwatch()
	c.lock.Lock()
	c.closed = true
	c.lock.Unlock()
	c.notify()
}

// Is returns a matcher for the given kinds.
func Is(kinds ...Kind) func(Signal) bool {
	return func(sig Signal) bool {
		for _, k := range kinds {
			if sig.Kind() == k {
				return true
			}
		}
		return false
	}
}
