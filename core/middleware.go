// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package core

import (
	log "github.com/ChainSafe/log15"
)

// LogMiddleware traces every signal and logs rejected dispatches.
func LogMiddleware(logger log.Logger) Middleware {
	return func(api StoreAPI) func(next Dispatch) Dispatch {
		return func(next Dispatch) Dispatch {
			return func(sig Signal) error {
				if sig == nil {
					return ErrNilSignal
				}
				logger.Trace("Dispatch", "kind", sig.Kind())
				err := next(sig)
				if err != nil {
					logger.Error("Dispatch failed", "kind", sig.Kind(), "err", err)
				}
				return err
			}
		}
	}
}

// TraceEnhancer is the devtools hook: it logs the namespace snapshot after
// every reduced signal. It only observes.
func TraceEnhancer(logger log.Logger) Enhancer {
	return func(next StoreCreator) StoreCreator {
		return func(reducers map[string]Reducer, preloaded State, middlewares ...Middleware) *Store {
			s := next(reducers, preloaded, middlewares...)
			s.Subscribe(func(state State) {
				for key, value := range state {
					logger.Trace("State", "namespace", key, "value", value)
				}
			})
			return s
		}
	}
}
