// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package core

import (
	"errors"
	"sort"
	"sync"

	log "github.com/ChainSafe/log15"
	"github.com/mitchellh/mapstructure"
)

// State maps a namespace key to that namespace's value.
type State map[string]interface{}

// Reducer computes the next value of one namespace. It must not mutate
// state; return a new value instead.
type Reducer func(state interface{}, sig Signal) interface{}

type Dispatch func(sig Signal) error

type StoreAPI interface {
	GetState() State
	Dispatch(sig Signal) error
}

type Middleware func(api StoreAPI) func(next Dispatch) Dispatch

type StoreCreator func(reducers map[string]Reducer, preloaded State, middlewares ...Middleware) *Store

// Enhancer wraps store construction, e.g. for devtools.
type Enhancer func(next StoreCreator) StoreCreator

var ErrNilSignal = errors.New("nil signal")

// Store is the single-writer keyed state container.
type Store struct {
	reducers map[string]Reducer
	keys     []string
	state    State
	dispatch Dispatch
	lock     *sync.RWMutex
	qLock    *sync.Mutex
	queue    []queued
	draining bool
	subLock  *sync.Mutex
	subs     map[uint64]func(State)
	nextSub  uint64
	log      log.Logger
}

// Creator returns the plain StoreCreator logging to logger.
func Creator(logger log.Logger) StoreCreator {
	return func(reducers map[string]Reducer, preloaded State, middlewares ...Middleware) *Store {
		return NewStore(logger, reducers, preloaded, middlewares...)
	}
}

func NewStore(logger log.Logger, reducers map[string]Reducer, preloaded State, middlewares ...Middleware) *Store {
	s := &Store{
		reducers: make(map[string]Reducer, len(reducers)),
		lock:     &sync.RWMutex{},
		qLock:    &sync.Mutex{},
		subLock:  &sync.Mutex{},
		subs:     make(map[uint64]func(State)),
		log:      logger,
	}
	for key, r := range reducers {
		s.reducers[key] = r
		s.keys = append(s.keys, key)
	}
	sort.Strings(s.keys)

	for key := range preloaded {
		if _, ok := s.reducers[key]; !ok {
			logger.Warn("Preloaded namespace has no reducer, ignored", "namespace", key)
		}
	}

	state := make(State, len(s.keys))
	for _, key := range s.keys {
		state[key] = s.reducers[key](preloaded[key], Init{})
	}
	s.state = state

	s.dispatch = func(Signal) error { return ErrStoreDispatching }
	api := storeAPI{s}
	chain := make([]func(Dispatch) Dispatch, 0, len(middlewares))
	for _, mw := range middlewares {
		chain = append(chain, mw(api))
	}
	d := Dispatch(s.reduce)
	for i := len(chain) - 1; i >= 0; i-- {
		d = chain[i](d)
	}
	s.dispatch = d
	return s
}

type queued struct {
	sig   Signal
	guard func() error
}

// Dispatch runs sig through the middleware chain and the reducers. Signals
// dispatched while another dispatch is in progress, including from inside
// it, are queued and processed in order by the goroutine already
// dispatching; Dispatch then returns nil at once and failures are logged.
func (s *Store) Dispatch(sig Signal) error {
	return s.enqueue(sig, nil)
}

// dispatchIf is Dispatch with a guard evaluated right before sig enters the
// chain. A guard error drops sig.
func (s *Store) dispatchIf(sig Signal, guard func() error) error {
	return s.enqueue(sig, guard)
}

func (s *Store) enqueue(sig Signal, guard func() error) error {
	if sig == nil {
		return ErrNilSignal
	}
	s.qLock.Lock()
	if s.draining {
		s.queue = append(s.queue, queued{sig: sig, guard: guard})
		s.qLock.Unlock()
		return nil
	}
	s.draining = true
	s.qLock.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.qLock.Lock()
			s.draining = false
			s.queue = nil
			s.qLock.Unlock()
			panic(r)
		}
	}()

	err := s.process(queued{sig: sig, guard: guard})
	for {
		s.qLock.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.qLock.Unlock()
			return err
		}
		next := s.queue[0]
		s.queue[0] = queued{}
		s.queue = s.queue[1:]
		s.qLock.Unlock()

		if qerr := s.process(next); qerr != nil {
			s.log.Debug("Queued signal not dispatched", "kind", next.sig.Kind(), "err", qerr)
		}
	}
}

func (s *Store) process(q queued) error {
	if q.guard != nil {
		if err := q.guard(); err != nil {
			return err
		}
	}
	return s.dispatch(q.sig)
}

// GetState returns a snapshot of every namespace.
func (s *Store) GetState() State {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make(State, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

func (s *Store) Namespace(key string) interface{} {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state[key]
}

// Subscribe calls fn with the new state after every reduced signal.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subLock.Lock()
	defer s.subLock.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subLock.Lock()
		defer s.subLock.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) reduce(sig Signal) error {
	if sig == nil {
		return ErrNilSignal
	}

	s.lock.Lock()
	next := make(State, len(s.keys))
	for _, key := range s.keys {
		next[key] = s.reducers[key](s.state[key], sig)
	}
	s.state = next
	s.lock.Unlock()

	s.subLock.Lock()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subLock.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return nil
}

type storeAPI struct{ s *Store }

func (a storeAPI) GetState() State           { return a.s.GetState() }
func (a storeAPI) Dispatch(sig Signal) error { return a.s.Dispatch(sig) }

func (a storeAPI) dispatchIf(sig Signal, guard func() error) error {
	return a.s.dispatchIf(sig, guard)
}

// guardedDispatcher is implemented by the store handed to middleware.
type guardedDispatcher interface {
	dispatchIf(sig Signal, guard func() error) error
}

// NewReducer adapts a typed reduce function. Untyped preloaded values, such
// as nested maps, are decoded into T on first use; undecodable values fall
// back to initial.
func NewReducer[T any](initial func() T, reduce func(state T, sig Signal) T) Reducer {
	return func(state interface{}, sig Signal) interface{} {
		cur, ok := state.(T)
		if !ok {
			cur = initial()
			if state != nil {
				if err := DecodeState(state, &cur); err != nil {
					cur = initial()
				}
			}
		}
		return reduce(cur, sig)
	}
}

// DecodeState decodes an untyped state tree into out.
func DecodeState(in interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// Select reads namespace key of state as T.
func Select[T any](state State, key string) (T, bool) {
	v, ok := state[key].(T)
	return v, ok
}
